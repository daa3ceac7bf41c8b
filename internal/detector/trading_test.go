package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
)

func tradingHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, singleMarketConfig())
	h.connector.accounts[models.Route{ConnectorType: "binance", MarketType: models.MarketFutures}] = usdtAccount(models.MarketFutures)
	h.start(t)
	return h
}

func openParams(symbol string, qty float64) OpenPositionParams {
	return OpenPositionParams{
		Symbol:        models.Symbol{Name: symbol},
		Side:          models.SideLong,
		Quantity:      qty,
		Price:         20,
		ConnectorType: "binance",
		MarketType:    models.MarketFutures,
	}
}

func TestGetPermissibleQuantity(t *testing.T) {
	h := tradingHarness(t)
	acc, ok := h.engine.Account("binance", models.MarketFutures)
	require.True(t, ok)
	provider := h.engine.Options().Providers[0]

	got := h.engine.GetPermissibleQuantity(acc, models.Symbol{Name: btc}, 20, provider)
	assert.True(t, got.Acceptable)
	assert.Equal(t, 100.0, got.EntryBalanceMax)
	assert.Equal(t, 5.0, got.EntryQuantityDefault)
	assert.Equal(t, 100.0, got.EntryBalanceDefault)
	assert.Equal(t, 5.0, got.AcceptableQuantityMin)
	assert.Equal(t, 5.0, got.AcceptableQuantityMax)
	assert.Equal(t, 10.0, got.PermissibleQuantityDefaultPercent)

	cheap := h.engine.GetPermissibleQuantity(acc, models.Symbol{Name: btc}, 4, provider)
	assert.Equal(t, 25.0, cheap.AcceptableQuantityMax)

	tooExpensive := h.engine.GetPermissibleQuantity(acc, models.Symbol{Name: btc}, 21, provider)
	assert.False(t, tooExpensive.Acceptable)
	assert.Zero(t, tooExpensive.AcceptableQuantityMax)
}

func TestGetPermissibleQuantityEmptyAccount(t *testing.T) {
	h := tradingHarness(t)
	got := h.engine.GetPermissibleQuantity(models.Account{}, models.Symbol{Name: btc}, 20, h.engine.Options().Providers[0])
	assert.Equal(t, models.PermissibleQuantity{}, got)
}

func TestOpenPositionRequiresAccount(t *testing.T) {
	h := tradingHarness(t)
	p := openParams(btc, 5)
	p.MarketType = models.MarketSpot

	_, err := h.engine.OpenPosition(context.Background(), p)
	assert.ErrorIs(t, err, models.ErrAccountNotFound)
	assert.Zero(t, h.orders.openCalls)
}

func TestOpenPositionRejectsDuplicate(t *testing.T) {
	h := tradingHarness(t)
	ctx := context.Background()

	pos, err := h.engine.OpenPosition(ctx, openParams(btc, 5))
	require.NoError(t, err)
	assert.Equal(t, models.MarketFutures, pos.MarketType)
	assert.Positive(t, pos.OpenedAt)

	_, err = h.engine.OpenPosition(ctx, openParams(btc, 1))
	assert.ErrorIs(t, err, models.ErrDuplicatePosition)
	assert.Equal(t, 1, h.orders.openCalls)
}

func TestOpenPositionPropagatesOrderFailure(t *testing.T) {
	h := tradingHarness(t)
	h.orders.openErr = errors.New("rejected")

	_, err := h.engine.OpenPosition(context.Background(), openParams(btc, 5))
	assert.Error(t, err)
	_, held := h.engine.Position(btc)
	assert.False(t, held)
}

func TestOpenPositionWithoutProvider(t *testing.T) {
	h := tradingHarness(t)
	p := openParams(btc, 5)
	p.ConnectorType = "kraken"
	h.engine.UpdateAccount(models.Account{ConnectorType: "kraken", MarketType: models.MarketFutures})

	_, err := h.engine.OpenPosition(context.Background(), p)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)
}

func TestClosePositionPartialThenFull(t *testing.T) {
	h := tradingHarness(t)
	ctx := context.Background()
	pos, err := h.engine.OpenPosition(ctx, openParams(btc, 5))
	require.NoError(t, err)

	_, err = h.engine.ClosePosition(ctx, ClosePositionParams{Position: pos, ConnectorType: "binance", MarketType: models.MarketFutures, Quantity: 2})
	require.NoError(t, err)
	left, ok := h.engine.Position(btc)
	require.True(t, ok)
	assert.Equal(t, 3.0, left.Quantity)

	order, err := h.engine.ClosePosition(ctx, ClosePositionParams{Position: left, ConnectorType: "binance", MarketType: models.MarketFutures})
	require.NoError(t, err)
	assert.Equal(t, "close-"+btc, order.ExternalID)
	_, ok = h.engine.Position(btc)
	assert.False(t, ok)
}

func TestCloseAll(t *testing.T) {
	h := tradingHarness(t)
	ctx := context.Background()
	for _, s := range []string{btc, "ETHUSDT"} {
		_, err := h.engine.OpenPosition(ctx, openParams(s, 1))
		require.NoError(t, err)
	}

	orders, err := h.engine.CloseAll(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Empty(t, h.engine.Positions())
	assert.Equal(t, 2, h.orders.closeCalls)
}

func TestUpdateTrailingStop(t *testing.T) {
	h := tradingHarness(t)
	pos, err := h.engine.OpenPosition(context.Background(), openParams(btc, 1))
	require.NoError(t, err)

	_, moved := h.engine.UpdateTrailingStop(25, pos, 1)
	assert.False(t, moved)

	h.orders.stop, h.orders.moved = 24, true
	stop, moved := h.engine.UpdateTrailingStop(25, pos, 1)
	assert.True(t, moved)
	assert.Equal(t, 24.0, stop)
	held, _ := h.engine.Position(btc)
	assert.Equal(t, 24.0, held.StopLoss)
}

func TestOpenOrderTracksMoment(t *testing.T) {
	h := tradingHarness(t)
	h.orders.account = usdtAccount(models.MarketFutures, testOrder("x1", 5))
	o := testOrder("x1", 5)
	o.ConnectorType = "binance"
	o.MarketType = models.MarketFutures

	_, err := h.engine.OpenOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, int64(42), h.engine.openOrderMoment.Load())
	assert.True(t, h.engine.IsOpenOrder(btc, ""))
	assert.False(t, h.engine.IsOpenPosition(btc, models.SideShort))

	h.publisher.reset()
	_, err = h.engine.CloseOrder(context.Background(), o, 6)
	require.NoError(t, err)
	assert.Len(t, h.publisher.ofType(models.EventOrderFilled), 1)
}

func TestChangeLeverage(t *testing.T) {
	h := tradingHarness(t)
	sym, err := h.engine.ChangeLeverage(context.Background(), models.Route{ConnectorType: "binance", MarketType: models.MarketFutures}, models.Symbol{Name: btc}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, sym.Leverage)
}
