package detector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/internal/plugin"
	"Detector/pkg/logger"
	"Detector/pkg/metrics"
	"Detector/pkg/util"
)

type State int32

const (
	StateConstructed State = iota
	StateInitializing
	StateReady
	StateDisposing
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Deps are the collaborators an engine talks to.
type Deps struct {
	Connector repository.ConnectorService
	Orders    repository.OrderService
	Plugins   *plugin.Driver
	Publisher repository.EventPublisher
	Archive   repository.CandleSink
	Metrics   repository.Metrics
	Logger    *logger.Logger
}

type Option func(*Engine)

// WithTypeName sets the implementation name used when sysname is empty.
func WithTypeName(name string) Option {
	return func(e *Engine) { e.typeName = name }
}

// WithEmitEvents toggles publishing to the bus.
func WithEmitEvents(enabled bool) Option {
	return func(e *Engine) { e.emitEvents = enabled }
}

// WithCandleWindow caps the length of every candle series.
func WithCandleWindow(n int) Option {
	return func(e *Engine) { e.candleWindow = n }
}

// WithPlugins adds plugin instances declared by the detector's own configuration.
func WithPlugins(plugins ...plugin.Plugin) Option {
	return func(e *Engine) { e.configPlugins = append(e.configPlugins, plugins...) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is one running detector: configuration, accounts, candles, positions,
// the strategy hooks and the handlers reacting to inbound events.
type Engine struct {
	id       string
	typeName string
	deps     Deps
	log      *logger.Logger
	now      func() time.Time

	state atomic.Int32

	optMu   sync.RWMutex
	options models.DetectorConfig

	emitEvents    bool
	candleWindow  int
	configPlugins []plugin.Plugin

	pluginMu sync.RWMutex
	plugins  []plugin.Plugin

	candles    *CandleAggregator
	ledger     *PositionLedger
	accounts   *AccountBook
	indicators *IndicatorStore

	tradesMu   sync.RWMutex
	lastTrades map[string]models.Trade
	lastPrices map[string]float64

	openOrderMoment atomic.Int64

	strategy Strategy
}

// New constructs an engine in the Constructed state. Nothing talks to the
// outside world until InitDetectorLifecycle runs.
func New(cfg models.DetectorConfig, factory StrategyFactory, deps Deps, opts ...Option) *Engine {
	e := &Engine{
		id:           uuid.NewString(),
		typeName:     "Detector",
		deps:         deps,
		now:          time.Now,
		options:      cfg.Clone(),
		emitEvents:   true,
		candleWindow: 500,
		ledger:       NewPositionLedger(),
		accounts:     NewAccountBook(),
		indicators:   NewIndicatorStore(),
		lastTrades:   make(map[string]models.Trade),
		lastPrices:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.deps.Logger == nil {
		e.deps.Logger = logger.Nop()
	}
	if e.deps.Metrics == nil {
		e.deps.Metrics = metrics.Nop{}
	}
	if e.deps.Plugins == nil {
		e.deps.Plugins = plugin.NewDriver(e.deps.Logger, e.deps.Metrics)
	}
	e.log = e.deps.Logger.With(logger.String("detector", e.typeName), logger.String("instance", e.id))
	e.candles = NewCandleAggregator(e.candleWindow, e.log)
	e.state.Store(int32(StateConstructed))

	if factory != nil {
		e.strategy = factory(e)
	}
	if e.strategy == nil {
		e.strategy = BaseStrategy{}
	}
	return e
}

func (e *Engine) ID() string { return e.id }

func (e *Engine) State() State { return State(e.state.Load()) }

// IsReady is the readiness gate every handler checks on entry.
func (e *Engine) IsReady() bool { return e.State() == StateReady }

func (e *Engine) Strategy() Strategy { return e.strategy }

func (e *Engine) Logger() *logger.Logger { return e.log }

// Name is the implementation name, used as default sysname.
func (e *Engine) Name() string { return e.typeName }

func (e *Engine) Sysname() string {
	e.optMu.RLock()
	defer e.optMu.RUnlock()
	return e.options.Sysname
}

func (e *Engine) Key() string {
	e.optMu.RLock()
	defer e.optMu.RUnlock()
	return e.options.Key
}

// Options returns a copy of the effective configuration.
func (e *Engine) Options() models.DetectorConfig {
	e.optMu.RLock()
	defer e.optMu.RUnlock()
	return e.options.Clone()
}

// UpdateOptions overlays patch on the configuration. Empty collections in the
// patch never blank out the current ones.
func (e *Engine) UpdateOptions(patch models.DetectorPatch) {
	e.optMu.Lock()
	prev := e.options
	e.options = patch.Apply(prev)
	next := e.options
	e.optMu.Unlock()

	e.log.Debug("options updated",
		logger.Int("providers_before", len(prev.Providers)),
		logger.Int("providers_after", len(next.Providers)),
		logger.Int("symbols_before", len(prev.Symbols)),
		logger.Int("symbols_after", len(next.Symbols)),
		logger.Int("intervals_before", len(prev.Intervals)),
		logger.Int("intervals_after", len(next.Intervals)),
		logger.Int("orders_before", len(prev.Orders)),
		logger.Int("orders_after", len(next.Orders)),
	)
}

func (e *Engine) mutateOptions(fn func(*models.DetectorConfig)) {
	e.optMu.Lock()
	defer e.optMu.Unlock()
	fn(&e.options)
}

func (e *Engine) Accounts() []models.Account { return e.accounts.All() }

// Account returns the account for (connectorType, marketType).
func (e *Engine) Account(connectorType models.ConnectorType, marketType models.MarketType) (models.Account, bool) {
	return e.accounts.Get(models.Route{ConnectorType: connectorType, MarketType: marketType})
}

// UpdateAccount merges a snapshot into the account book.
func (e *Engine) UpdateAccount(updated models.Account) models.Account {
	return e.accounts.Update(updated)
}

func (e *Engine) Orders() []models.Order { return e.accounts.Orders() }

func (e *Engine) Positions() []models.Position { return e.ledger.All() }

func (e *Engine) Position(symbol string) (models.Position, bool) { return e.ledger.Get(symbol) }

// SymbolCandles is the candle series of symbol at interval; desc keeps most recent first.
func (e *Engine) SymbolCandles(symbol string, interval models.Timeframe, desc bool) []models.Candle {
	return e.candles.Series(symbol, interval, desc)
}

// SymbolIndicators selects stored indicator values by key or group.
func (e *Engine) SymbolIndicators(symbol string, interval models.Timeframe, groups, items []string) map[string]any {
	return e.indicators.Select(symbol, interval, groups, items)
}

// LastTrades returns the most recent trade per symbol name.
func (e *Engine) LastTrades() map[string]models.Trade {
	e.tradesMu.RLock()
	defer e.tradesMu.RUnlock()
	out := make(map[string]models.Trade, len(e.lastTrades))
	for k, v := range e.lastTrades {
		out[k] = v
	}
	return out
}

// LastPrice is the latest known price of symbol from trades or price lists.
func (e *Engine) LastPrice(symbol string) (float64, bool) {
	e.tradesMu.RLock()
	defer e.tradesMu.RUnlock()
	p, ok := e.lastPrices[symbol]
	return p, ok
}

// StringTime formats a unix-millisecond time the way logs and notifications show it.
func (e *Engine) StringTime(ms int64) string {
	return util.FormatMillis(ms)
}

// Plugins returns the plugins registered during startup.
func (e *Engine) Plugins() []plugin.Plugin {
	e.pluginMu.RLock()
	defer e.pluginMu.RUnlock()
	return append([]plugin.Plugin(nil), e.plugins...)
}

// FindPlugin looks a registered plugin up by name or GUID.
func (e *Engine) FindPlugin(nameOrGUID string) (plugin.Plugin, bool) {
	e.pluginMu.RLock()
	defer e.pluginMu.RUnlock()
	for _, p := range e.plugins {
		if p.Name() == nameOrGUID || p.Meta().GUID == nameOrGUID {
			return p, true
		}
	}
	return e.deps.Plugins.Find(nameOrGUID)
}

// CreatePluginContext binds a plugin context to this engine and optionally one account.
func (e *Engine) CreatePluginContext(account *models.Account) *plugin.Context {
	return plugin.NewContext(e, account, e.FindPlugin)
}

func (e *Engine) reduce(ctx context.Context, hook plugin.Hook, pc *plugin.Context, arg any) {
	if pc == nil {
		pc = e.CreatePluginContext(nil)
	}
	// Failures are already logged per plugin by the driver.
	_ = e.deps.Plugins.AsyncReduce(ctx, hook, pc, arg)
}

var _ plugin.DetectorView = (*Engine)(nil)
