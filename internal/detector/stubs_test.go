package detector

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/internal/plugin"
	"Detector/pkg/logger"
	"Detector/pkg/metrics"
)

type stubConnector struct {
	mu          sync.Mutex
	topology    map[string]*models.Provider
	topologyErr error
	accounts    map[models.Route]*models.Account
	accountErr  map[models.Route]error
	candles     map[string][]models.Candle
	registered  []string
	updated     []string
	updateErr   error
	accountHits int
}

func newStubConnector() *stubConnector {
	return &stubConnector{
		topology:   map[string]*models.Provider{},
		accounts:   map[models.Route]*models.Account{},
		accountErr: map[models.Route]error{},
		candles:    map[string][]models.Candle{},
	}
}

func (s *stubConnector) GetProviderOptions(_ context.Context, url string) (*models.Provider, error) {
	if s.topologyErr != nil {
		return nil, s.topologyErr
	}
	return s.topology[url], nil
}

func (s *stubConnector) GetAccount(_ context.Context, _ string, ct models.ConnectorType, mt models.MarketType) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountHits++
	key := models.Route{ConnectorType: ct, MarketType: mt}
	if err := s.accountErr[key]; err != nil {
		return nil, err
	}
	acc, ok := s.accounts[key]
	if !ok {
		return nil, errors.New("no account")
	}
	cp := cloneAccount(*acc)
	return &cp, nil
}

func (s *stubConnector) GetCandles(_ context.Context, q repository.CandlesQuery) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Candle(nil), s.candles[q.Symbol+"@"+string(q.Interval)]...), nil
}

func (s *stubConnector) RegisterDetector(_ context.Context, url string, _ models.DetectorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registered = append(s.registered, url)
	return nil
}

func (s *stubConnector) UpdateDetector(_ context.Context, url string, _ models.DetectorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, url)
	return s.updateErr
}

func (s *stubConnector) ChangeLeverage(context.Context, string, models.Route, models.Symbol, int) error {
	return nil
}

type stubOrders struct {
	openCalls  int
	closeCalls int
	openErr    error
	account    *models.Account
	stop       float64
	moved      bool
}

func (s *stubOrders) OpenPosition(_ context.Context, req repository.OpenPositionRequest) (*repository.OpenPositionResult, error) {
	s.openCalls++
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &repository.OpenPositionResult{
		Position: models.Position{Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity, EntryPrice: req.Price},
		Account:  s.account,
	}, nil
}

func (s *stubOrders) ClosePosition(_ context.Context, req repository.ClosePositionRequest) (*repository.ClosePositionResult, error) {
	s.closeCalls++
	return &repository.ClosePositionResult{
		Order: models.Order{ExternalID: "close-" + req.Position.Symbol.Name, Symbol: req.Position.Symbol, Quantity: req.Quantity},
	}, nil
}

func (s *stubOrders) UpdateTrailingStop(float64, models.Position, float64) (float64, bool) {
	return s.stop, s.moved
}

func (s *stubOrders) OpenOrder(_ context.Context, req repository.OpenOrderRequest) (*repository.OpenOrderResult, error) {
	return &repository.OpenOrderResult{Order: req.Order, Account: s.account, OpenOrderMoment: 42}, nil
}

func (s *stubOrders) CloseOrder(_ context.Context, req repository.CloseOrderRequest) (*repository.CloseOrderResult, error) {
	return &repository.CloseOrderResult{Order: req.Order, Account: s.account}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []models.SubscriptionValue
}

func (p *recordingPublisher) Publish(_ context.Context, msg models.SubscriptionValue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = nil
}

func (p *recordingPublisher) ofType(t models.DetectorEventType) []models.SubscriptionValue {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.SubscriptionValue
	for _, m := range p.msgs {
		if m.Value.EventType == t {
			out = append(out, m)
		}
	}
	return out
}

// callLog is shared by recording strategies and plugins to observe hook order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type recordingStrategy struct {
	BaseStrategy
	log *callLog
}

func (s *recordingStrategy) OnInit(context.Context) { s.log.add("strategy:init") }
func (s *recordingStrategy) OnTrade(context.Context, models.Trade, models.Route) {
	s.log.add("strategy:trade")
}
func (s *recordingStrategy) OnCandleUpdate(_ context.Context, c models.Candle, _ models.Route) {
	s.log.add("strategy:update:" + string(c.Interval))
}
func (s *recordingStrategy) OnCandleOpen(_ context.Context, c models.Candle) {
	s.log.add("strategy:open:" + string(c.Interval))
}
func (s *recordingStrategy) OnCandleClose(_ context.Context, c models.Candle) {
	s.log.add("strategy:close:" + string(c.Interval))
}
func (s *recordingStrategy) OnDispose(context.Context) { s.log.add("strategy:dispose") }

type recordingPlugin struct {
	plugin.Base
	log *callLog
}

func newRecordingPlugin(name string, log *callLog) *recordingPlugin {
	return &recordingPlugin{Base: plugin.Base{PluginMeta: models.PluginMeta{Name: name, GUID: "guid-" + name}}, log: log}
}

func (p *recordingPlugin) OnStart(context.Context, *plugin.Context) error {
	p.log.add("plugin:start")
	return nil
}

func (p *recordingPlugin) OnDispose(context.Context, *plugin.Context) error {
	p.log.add("plugin:dispose")
	return nil
}

func (p *recordingPlugin) OnTrade(context.Context, *plugin.Context, models.Trade) error {
	p.log.add("plugin:trade")
	return nil
}

func (p *recordingPlugin) OnAfterTrade(context.Context, *plugin.Context, models.Trade) error {
	p.log.add("plugin:afterTrade")
	return nil
}

func (p *recordingPlugin) OnCandleOpen(_ context.Context, _ *plugin.Context, c models.Candle) error {
	p.log.add("plugin:candleOpen:" + string(c.Interval))
	return nil
}

func (p *recordingPlugin) OnCandleClose(_ context.Context, _ *plugin.Context, c models.Candle) error {
	p.log.add("plugin:candleClose:" + string(c.Interval))
	return nil
}

func (p *recordingPlugin) OnInspectorRegulation(context.Context, *plugin.Context, models.InspectorEvent) error {
	p.log.add("plugin:inspector")
	return nil
}

func (p *recordingPlugin) OnAfterInspectorRegulation(context.Context, *plugin.Context, models.InspectorEvent) error {
	p.log.add("plugin:afterInspector")
	return nil
}

const btc = "BTCUSDT"

func testProvider(key, url string, markets ...models.MarketType) models.Provider {
	ms := make([]models.Market, 0, len(markets))
	for _, m := range markets {
		ms = append(ms, models.Market{MarketType: m, Symbols: []models.Symbol{{Name: btc, Quantity: 5}}})
	}
	return models.Provider{
		Key:        key,
		RestAPIURL: url,
		Connectors: []models.Connector{{ConnectorType: "binance", IsActive: true, Markets: ms}},
	}
}

type harness struct {
	engine    *Engine
	connector *stubConnector
	orders    *stubOrders
	publisher *recordingPublisher
	driver    *plugin.Driver
	log       *callLog
}

func newHarness(t *testing.T, cfg models.DetectorConfig, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		connector: newStubConnector(),
		orders:    &stubOrders{},
		publisher: &recordingPublisher{},
		driver:    plugin.NewDriver(logger.Nop(), metrics.Nop{}),
		log:       &callLog{},
	}
	deps := Deps{
		Connector: h.connector,
		Orders:    h.orders,
		Plugins:   h.driver,
		Publisher: h.publisher,
		Metrics:   metrics.Nop{},
		Logger:    logger.Nop(),
	}
	factory := func(*Engine) Strategy { return &recordingStrategy{log: h.log} }
	h.engine = New(cfg, factory, deps, append([]Option{WithTypeName("TestDetector")}, opts...)...)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.engine.InitDetectorLifecycle(ctx))
	require.NoError(t, h.engine.InitializeDetector(ctx))
	require.True(t, h.engine.IsReady())
}

func activeConfig(providers ...models.Provider) models.DetectorConfig {
	return models.DetectorConfig{
		Sysname:   "Alpha",
		IsActive:  true,
		Providers: providers,
		Symbols:   []models.Symbol{{Name: btc}},
		Intervals: []models.Timeframe{models.TF1m, models.TF5m},
		TradeSettings: models.TradeSettings{
			MaxPositionSizePercent: 10,
		},
	}
}

func usdtAccount(mt models.MarketType, orders ...models.Order) *models.Account {
	return &models.Account{
		ConnectorType: "binance",
		MarketType:    mt,
		Assets:        []models.Asset{{Symbol: models.Symbol{Name: "USDT"}, AvailableBalance: 1000, WalletBalance: 1000}},
		Orders:        orders,
	}
}
