package detector

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
)

var base = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func tradeAt(offset time.Duration, price float64) models.Trade {
	return models.Trade{Symbol: models.Symbol{Name: btc}, Price: price, Volume: 1, Time: base.Add(offset).UnixMilli()}
}

func newAggregator(t *testing.T) *CandleAggregator {
	t.Helper()
	a := NewCandleAggregator(10, logger.Nop())
	a.Init([]models.Symbol{{Name: btc}}, []models.Timeframe{models.TF1m, models.TF5m})
	return a
}

func TestCandleValueStatus(t *testing.T) {
	isNew, _ := CandleValueStatus(base.Add(59*time.Second), base, models.TF1m)
	assert.False(t, isNew)

	isNew, moment := CandleValueStatus(base.Add(time.Minute), base, models.TF1m)
	assert.True(t, isNew)
	assert.Equal(t, base.Add(time.Minute), moment)

	isNew, _ = CandleValueStatus(base.Add(4*time.Minute), base, models.TF5m)
	assert.False(t, isNew)
}

func TestUpdateByTradeFirstCandleIsAligned(t *testing.T) {
	a := newAggregator(t)

	changes := a.UpdateByTrade(tradeAt(30*time.Second, 100), []models.Timeframe{models.TF1m, models.TF5m})
	require.Len(t, changes, 2)
	for _, ch := range changes {
		assert.Equal(t, models.CandleCreate, ch.Status)
		assert.Nil(t, ch.Closed)
		assert.Equal(t, base.UnixMilli(), ch.Candle.Time)
		assert.Equal(t, 100.0, ch.Candle.Open)
	}
}

func TestUpdateByTradeWithinBucket(t *testing.T) {
	a := newAggregator(t)
	intervals := []models.Timeframe{models.TF1m}
	a.UpdateByTrade(tradeAt(10*time.Second, 100), intervals)
	a.UpdateByTrade(tradeAt(20*time.Second, 110), intervals)
	changes := a.UpdateByTrade(tradeAt(30*time.Second, 95), intervals)

	require.Len(t, changes, 1)
	c := changes[0].Candle
	assert.Equal(t, models.CandleUpdate, changes[0].Status)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 110.0, c.High)
	assert.Equal(t, 95.0, c.Low)
	assert.Equal(t, 95.0, c.Close)
	assert.Equal(t, 3.0, c.Volume)
	assert.Equal(t, 3, c.Trades)
	assert.Len(t, a.Series(btc, models.TF1m, true), 1)
}

func TestUpdateByTradeBoundaryClosesThenOpens(t *testing.T) {
	a := newAggregator(t)
	intervals := []models.Timeframe{models.TF1m, models.TF5m}
	a.UpdateByTrade(tradeAt(10*time.Second, 100), intervals)
	a.UpdateByTrade(tradeAt(50*time.Second, 105), intervals)

	changes := a.UpdateByTrade(tradeAt(70*time.Second, 103), intervals)
	require.Len(t, changes, 2)

	oneMin := changes[0]
	assert.Equal(t, models.CandleCreate, oneMin.Status)
	require.NotNil(t, oneMin.Closed)
	assert.Equal(t, base.UnixMilli(), oneMin.Closed.Time)
	assert.Equal(t, 105.0, oneMin.Closed.Close)
	assert.Equal(t, base.Add(time.Minute).UnixMilli(), oneMin.Candle.Time)
	assert.Equal(t, 105.0, oneMin.Candle.Open, "new candle opens at the previous close")
	assert.Equal(t, 103.0, oneMin.Candle.Close)
	assert.Equal(t, 105.0, oneMin.Candle.High)

	assert.Equal(t, models.CandleUpdate, changes[1].Status)

	series := a.Series(btc, models.TF1m, true)
	require.Len(t, series, 2)
	assert.Greater(t, series[0].Time, series[1].Time)
}

func TestUpdateByTradeFillsGaps(t *testing.T) {
	a := newAggregator(t)
	intervals := []models.Timeframe{models.TF1m}
	a.UpdateByTrade(tradeAt(0, 100), intervals)
	a.UpdateByTrade(tradeAt(3*time.Minute+10*time.Second, 120), intervals)

	series := a.Series(btc, models.TF1m, false)
	require.Len(t, series, 4)
	for i := 1; i < len(series); i++ {
		assert.Equal(t, time.Minute.Milliseconds(), series[i].Time-series[i-1].Time)
	}
	for _, flat := range series[1:3] {
		assert.Equal(t, 100.0, flat.Open)
		assert.Equal(t, 100.0, flat.Close)
		assert.Zero(t, flat.Volume)
	}
	assert.Equal(t, 120.0, series[3].Close)
}

func TestUpdateByTradeIgnoresStaleAndUnknown(t *testing.T) {
	a := newAggregator(t)
	intervals := []models.Timeframe{models.TF1m}
	a.UpdateByTrade(tradeAt(2*time.Minute, 100), intervals)

	assert.Empty(t, a.UpdateByTrade(tradeAt(0, 90), intervals))
	head, ok := a.Head(btc, models.TF1m)
	require.True(t, ok)
	assert.Equal(t, 100.0, head.Close)

	other := tradeAt(0, 1)
	other.Symbol.Name = "ETHUSDT"
	assert.Nil(t, a.UpdateByTrade(other, intervals))
}

func TestUpdateByTradeRespectsWindow(t *testing.T) {
	a := NewCandleAggregator(3, logger.Nop())
	a.Init([]models.Symbol{{Name: btc}}, []models.Timeframe{models.TF1m})
	for i := 0; i < 6; i++ {
		a.UpdateByTrade(tradeAt(time.Duration(i)*time.Minute, float64(100+i)), []models.Timeframe{models.TF1m})
	}
	series := a.Series(btc, models.TF1m, true)
	require.Len(t, series, 3)
	assert.Equal(t, 105.0, series[0].Close)
}

func TestReplaceSortsDedupesAndCaps(t *testing.T) {
	a := NewCandleAggregator(3, logger.Nop())
	mk := func(min int, close float64) models.Candle {
		return models.Candle{Symbol: models.Symbol{Name: btc}, Interval: models.TF1m, Time: base.Add(time.Duration(min) * time.Minute).UnixMilli(), Close: close}
	}
	a.Replace(map[string]map[models.Timeframe][]models.Candle{
		btc: {models.TF1m: {mk(1, 1), mk(3, 3), mk(1, 99), mk(0, 0), mk(2, 2)}},
	})

	series := a.Series(btc, models.TF1m, true)
	require.Len(t, series, 3)
	assert.Equal(t, []float64{3, 2, 1}, []float64{series[0].Close, series[1].Close, series[2].Close})
}

func TestCloseCandleOverwritesMatchingHead(t *testing.T) {
	a := newAggregator(t)
	a.UpdateByTrade(tradeAt(0, 100), []models.Timeframe{models.TF1m})

	pushed := models.Candle{Symbol: models.Symbol{Name: btc}, Interval: models.TF1m, Time: base.UnixMilli(), Open: 100, Close: 101, High: 102, Low: 99}
	assert.True(t, a.CloseCandle(pushed))
	head, _ := a.Head(btc, models.TF1m)
	assert.Equal(t, pushed, head)

	pushed.Time = base.Add(time.Hour).UnixMilli()
	assert.False(t, a.CloseCandle(pushed))
}

func TestEnsureHistoryReadyLogsOnlyOnChange(t *testing.T) {
	var buf bytes.Buffer
	a := NewCandleAggregator(10, logger.NewWriter(&buf))
	symbols := []models.Symbol{{Name: btc}}
	intervals := []models.Timeframe{models.TF1m}
	a.Init(symbols, intervals)

	for i := 0; i < 3; i++ {
		assert.False(t, a.EnsureHistoryReady(symbols, intervals))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "candle history not ready"))

	a.UpdateByTrade(tradeAt(0, 100), intervals)
	for i := 0; i < 3; i++ {
		assert.True(t, a.EnsureHistoryReady(symbols, intervals))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "candle history ready"))
}
