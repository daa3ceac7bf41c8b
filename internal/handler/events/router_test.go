package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
	"Detector/pkg/metrics"
)

type recordingDispatcher struct {
	calls     []string
	trade     models.Trade
	route     models.Route
	account   models.AccountEvent
	prices    []models.SymbolPrice
	inspector models.InspectorEvent
	err       error
}

func (d *recordingDispatcher) OnTrade(_ context.Context, t models.Trade, r models.Route) error {
	d.calls = append(d.calls, "trade")
	d.trade, d.route = t, r
	return d.err
}

func (d *recordingDispatcher) OnOrderBook(context.Context, models.OrderBook, models.Route) error {
	d.calls = append(d.calls, "orderbook")
	return d.err
}

func (d *recordingDispatcher) OnCandle(context.Context, models.Candle, models.Route) error {
	d.calls = append(d.calls, "candle")
	return d.err
}

func (d *recordingDispatcher) OnAccountUpdate(_ context.Context, ev models.AccountEvent) error {
	d.calls = append(d.calls, "account")
	d.account = ev
	return d.err
}

func (d *recordingDispatcher) OnOrderCreate(context.Context, models.Order) error {
	d.calls = append(d.calls, "order_create")
	return d.err
}

func (d *recordingDispatcher) OnOrderClose(context.Context, models.Order) error {
	d.calls = append(d.calls, "order_close")
	return d.err
}

func (d *recordingDispatcher) OnSymbolsUpdate(context.Context, []models.Symbol, models.Route) error {
	d.calls = append(d.calls, "symbols")
	return d.err
}

func (d *recordingDispatcher) OnSymbolPricesUpdate(_ context.Context, p []models.SymbolPrice, _ models.Route) error {
	d.calls = append(d.calls, "prices")
	d.prices = p
	return d.err
}

func (d *recordingDispatcher) OnInspectorRegulation(_ context.Context, ev models.InspectorEvent) error {
	d.calls = append(d.calls, "inspector")
	d.inspector = ev
	return d.err
}

func newTestRouter() (*Router, *recordingDispatcher) {
	d := &recordingDispatcher{}
	return NewRouter(d, metrics.Nop{}, nil), d
}

func TestRouterDecodesTrade(t *testing.T) {
	r, d := newTestRouter()
	raw := `{"pattern":"PROVIDER_MARKETDATA_TRADE","data":{"value":{"symbol":{"name":"BTCUSDT"},"price":101.5,"volume":2,"time":1700000000000},"options":{"connectorType":"binance","marketType":"futures"}}}`

	require.NoError(t, r.Handle(context.Background(), "", []byte(raw)))
	assert.Equal(t, []string{"trade"}, d.calls)
	assert.Equal(t, "BTCUSDT", d.trade.Symbol.Name)
	assert.Equal(t, 101.5, d.trade.Price)
	assert.Equal(t, models.Route{ConnectorType: "binance", MarketType: "futures"}, d.route)
}

func TestRouterUsesFallbackPattern(t *testing.T) {
	r, d := newTestRouter()
	raw := `{"data":{"value":[{"name":"ETHUSDT"}]}}`

	require.NoError(t, r.Handle(context.Background(), models.PatternSymbols, []byte(raw)))
	assert.Equal(t, []string{"symbols"}, d.calls)
}

func TestRouterSymbolPricesAcceptsObjectOrList(t *testing.T) {
	r, d := newTestRouter()
	ctx := context.Background()

	require.NoError(t, r.Handle(ctx, models.PatternSymbolPrices, []byte(`{"data":{"value":{"symbol":{"name":"A"},"price":1}}}`)))
	assert.Len(t, d.prices, 1)

	require.NoError(t, r.Handle(ctx, models.PatternSymbolPrices, []byte(`{"data":{"value":[{"symbol":{"name":"A"},"price":1},{"symbol":{"name":"B"},"price":2}]}}`)))
	assert.Len(t, d.prices, 2)
}

func TestRouterAccountEventInheritsRoute(t *testing.T) {
	r, d := newTestRouter()
	raw := `{"pattern":"PROVIDER_ACCOUNT_EVENT","data":{"value":{"eventType":"ORDER_TRADE_UPDATE","options":{"orderId":"42"}},"options":{"connectorType":"binance","marketType":"spot"}}}`

	require.NoError(t, r.Handle(context.Background(), "", []byte(raw)))
	assert.Equal(t, models.ConnectorType("binance"), d.account.Options.ConnectorType)
	assert.Equal(t, models.MarketType("spot"), d.account.Options.MarketType)
	assert.Equal(t, "42", d.account.Options.OrderID)
}

func TestRouterInspectorPayload(t *testing.T) {
	r, d := newTestRouter()
	raw := `{"pattern":"INSPECTOR_EVENT","data":{"value":{"detectorSysname":"Alpha","opt":{"reason":"drawdown"}}}}`

	require.NoError(t, r.Handle(context.Background(), "", []byte(raw)))
	assert.Equal(t, "Alpha", d.inspector.Sysname)
	assert.Equal(t, "drawdown", d.inspector.Payload["reason"])
}

func TestRouterErrors(t *testing.T) {
	r, d := newTestRouter()
	ctx := context.Background()

	assert.ErrorIs(t, r.Handle(ctx, models.PatternTrade, []byte(`not json`)), ErrMalformedEvent)
	assert.ErrorIs(t, r.Handle(ctx, models.PatternTrade, []byte(`{"data":{}}`)), ErrMalformedEvent)
	assert.ErrorIs(t, r.Handle(ctx, models.PatternCandle, []byte(`{"data":{"value":"x"}}`)), ErrMalformedEvent)
	assert.NoError(t, r.Handle(ctx, "SOMETHING_ELSE", []byte(`{"data":{"value":{}}}`)))
	assert.Empty(t, d.calls)

	d.err = models.ErrForbiddenOperation
	err := r.Handle(ctx, models.PatternInspector, []byte(`{"data":{"value":{"detectorSysname":"Alpha"}}}`))
	assert.ErrorIs(t, err, models.ErrForbiddenOperation)
}

func TestKafkaHandlers(t *testing.T) {
	r, d := newTestRouter()
	hs := KafkaHandlers(r, "detector.")
	require.Len(t, hs, len(models.InboundPatterns))

	var candle *KafkaHandler
	for _, h := range hs {
		if h.Topic() == "detector."+string(models.PatternCandle) {
			candle = h
		}
	}
	require.NotNil(t, candle)

	require.NoError(t, candle.Handle(context.Background(), []byte(`{"data":{"value":{"symbol":{"name":"A"},"interval":"1m","time":1}}}`)))
	assert.Equal(t, []string{"candle"}, d.calls)

	// malformed payloads are acknowledged
	assert.NoError(t, candle.Handle(context.Background(), []byte(`{`)))

	d.err = assert.AnError
	assert.ErrorIs(t, candle.Handle(context.Background(), []byte(`{"data":{"value":{}}}`)), assert.AnError)
}

func TestRedisSubscriberHandleMessage(t *testing.T) {
	r, d := newTestRouter()
	s := NewRedisSubscriber(nil, r, "in:", nil)

	assert.Contains(t, s.Channels(), "in:"+string(models.PatternOrderCreate))

	s.HandleMessage(context.Background(), "in:"+string(models.PatternOrderCreate), []byte(`{"data":{"value":{"externalId":"1"}}}`))
	s.HandleMessage(context.Background(), "in:"+string(models.PatternOrderClose), []byte(`broken`))
	assert.Equal(t, []string{"order_create"}, d.calls)
	assert.NoError(t, s.Close())
}
