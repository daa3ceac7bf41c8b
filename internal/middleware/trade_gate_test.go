package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	domrepo "Detector/internal/domain/repository"
	"Detector/internal/service/ratelimit"
)

type countingDispatcher struct {
	domrepo.EventDispatcher
	trades    []models.Trade
	throttled int
	candles   int
}

func (d *countingDispatcher) OnTrade(ctx context.Context, t models.Trade, _ models.Route) error {
	d.trades = append(d.trades, t)
	if detector.TradeHooksThrottled(ctx) {
		d.throttled++
	}
	return nil
}

func (d *countingDispatcher) OnCandle(context.Context, models.Candle, models.Route) error {
	d.candles++
	return nil
}

type dropRecorder struct {
	domrepo.Metrics
	reasons []string
}

func (r *dropRecorder) RecordEventDropped(_, reason string) { r.reasons = append(r.reasons, reason) }

func trade(sym string, price float64) models.Trade {
	return models.Trade{Symbol: models.Symbol{Name: sym}, Price: price, Volume: 1, Time: 1700000000000}
}

func TestTradeGateRejectsInvalidTrades(t *testing.T) {
	next := &countingDispatcher{}
	rec := &dropRecorder{}
	g := NewTradeGate(next, rec)

	ctx := context.Background()
	require.NoError(t, g.OnTrade(ctx, trade("", 100), models.Route{}))
	require.NoError(t, g.OnTrade(ctx, trade("BTCUSDT", 0), models.Route{}))
	require.NoError(t, g.OnTrade(ctx, trade("BTCUSDT", 100), models.Route{}))

	assert.Len(t, next.trades, 1)
	assert.Equal(t, []string{"invalid", "invalid"}, rec.reasons)
}

func TestTradeGateThrottlesPerSymbol(t *testing.T) {
	next := &countingDispatcher{}
	rec := &dropRecorder{}
	lim := ratelimit.NewWithClock(func() time.Time { return time.Unix(0, 0) })
	g := NewTradeGate(next, rec, WithTradeRate(1, 2), WithLimiter(lim))

	ctx := context.Background()
	route := models.Route{ConnectorType: "binance", MarketType: "futures"}
	for i := 0; i < 3; i++ {
		require.NoError(t, g.OnTrade(ctx, trade("BTCUSDT", 100), route))
	}
	require.NoError(t, g.OnTrade(ctx, trade("ETHUSDT", 10), route))

	assert.Len(t, next.trades, 4, "throttled trades still reach the aggregator")
	assert.Equal(t, 1, next.throttled)
	assert.Equal(t, []string{"throttled"}, rec.reasons)
}

func TestTradeGateBurstKeepsFullVolume(t *testing.T) {
	next := &countingDispatcher{}
	lim := ratelimit.NewWithClock(func() time.Time { return time.Unix(0, 0) })
	g := NewTradeGate(next, &dropRecorder{}, WithTradeRate(50, 100), WithLimiter(lim))

	ctx := context.Background()
	route := models.Route{ConnectorType: "binance", MarketType: "futures"}
	for i := 0; i < 150; i++ {
		require.NoError(t, g.OnTrade(ctx, trade("BTCUSDT", float64(100+i)), route))
	}

	require.Len(t, next.trades, 150)
	volume := 0.0
	for _, tr := range next.trades {
		volume += tr.Volume
	}
	assert.Equal(t, 150.0, volume)
	assert.Equal(t, 249.0, next.trades[149].Price)
	assert.Equal(t, 50, next.throttled)
}

func TestTradeGatePassesOtherEvents(t *testing.T) {
	next := &countingDispatcher{}
	g := NewTradeGate(next, &dropRecorder{}, WithTradeRate(0, 0))

	require.NoError(t, g.OnCandle(context.Background(), models.Candle{}, models.Route{}))
	assert.Equal(t, 1, next.candles)
}
