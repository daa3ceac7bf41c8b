package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
)

func testPosition(symbol string, qty float64) models.Position {
	return models.Position{Symbol: models.Symbol{Name: symbol}, Side: models.SideLong, Quantity: qty}
}

func TestLedgerOnePositionPerSymbol(t *testing.T) {
	l := NewPositionLedger()
	require.NoError(t, l.Add(testPosition(btc, 1)))
	assert.ErrorIs(t, l.Add(testPosition(btc, 2)), models.ErrDuplicatePosition)
	assert.Equal(t, 1, l.Len())
}

func TestLedgerReduce(t *testing.T) {
	l := NewPositionLedger()
	require.NoError(t, l.Add(testPosition(btc, 5)))

	removed, err := l.Reduce(btc, 2)
	require.NoError(t, err)
	assert.False(t, removed)
	p, _ := l.Get(btc)
	assert.Equal(t, 3.0, p.Quantity)

	removed, err = l.Reduce(btc, 0)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Zero(t, l.Len())

	_, err = l.Reduce(btc, 1)
	assert.ErrorIs(t, err, models.ErrPositionNotFound)
}

func TestLedgerKeepsOpeningOrder(t *testing.T) {
	l := NewPositionLedger()
	for _, s := range []string{"C", "A", "B"} {
		require.NoError(t, l.Add(testPosition(s, 1)))
	}
	assert.True(t, l.Remove("A"))
	assert.False(t, l.Remove("A"))

	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, "C", all[0].Symbol.Name)
	assert.Equal(t, "B", all[1].Symbol.Name)
}

func TestLedgerSetStopLoss(t *testing.T) {
	l := NewPositionLedger()
	require.NoError(t, l.Add(testPosition(btc, 1)))
	require.NoError(t, l.SetStopLoss(btc, 99.5))
	p, _ := l.Get(btc)
	assert.Equal(t, 99.5, p.StopLoss)
	assert.ErrorIs(t, l.SetStopLoss("ETHUSDT", 1), models.ErrPositionNotFound)
}
