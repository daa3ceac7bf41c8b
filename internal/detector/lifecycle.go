package detector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/internal/plugin"
	"Detector/pkg/logger"
)

// InitDetectorLifecycle is the first startup phase: it registers plugins and
// runs their onInit hook. The engine leaves Constructed here.
func (e *Engine) InitDetectorLifecycle(ctx context.Context) error {
	if !e.state.CompareAndSwap(int32(StateConstructed), int32(StateInitializing)) {
		return fmt.Errorf("detector %s: cannot start from state %s", e.typeName, e.State())
	}
	start := e.now()

	e.deps.Plugins.Register(e.configPlugins...)
	registered := e.deps.Plugins.Plugins()
	e.pluginMu.Lock()
	e.plugins = registered
	e.pluginMu.Unlock()

	for _, b := range e.Options().Plugins {
		key := b.GUID
		if key == "" {
			key = b.Name
		}
		if _, ok := e.deps.Plugins.Find(key); !ok {
			e.log.Warn("configured plugin is not registered", logger.String("plugin", key))
		}
	}
	e.log.Info("plugins registered", logger.Int("count", len(registered)))

	e.reduce(ctx, plugin.HookInit, nil, nil)
	e.deps.Metrics.RecordLatency("detector_register_plugins", e.now().Sub(start).Seconds())
	return ctx.Err()
}

// InitializeDetector is the second startup phase. It resolves identity, loads
// provider topology, accounts and optional history, then marks the engine
// Ready and emits DETECTOR_STARTED. Collaborator failures are logged per
// provider and never abort the startup; only ctx cancellation does.
func (e *Engine) InitializeDetector(ctx context.Context) error {
	if e.State() != StateInitializing {
		return fmt.Errorf("detector %s: initialize in state %s", e.typeName, e.State())
	}
	start := e.now()

	e.mutateOptions(func(o *models.DetectorConfig) {
		if o.Key == "" {
			o.Key = uuid.NewString()
		}
		if o.Sysname == "" {
			o.Sysname = e.typeName
		}
		o.Normalize()
	})
	e.log = e.log.With(logger.String("sysname", e.Sysname()))

	e.deriveSymbols()
	opts := e.Options()
	e.candles.Init(opts.Symbols, opts.Intervals)

	e.loadTopology(ctx)
	if err := ctx.Err(); err != nil {
		return e.abortStartup(err)
	}
	if len(opts.Symbols) == 0 && e.deriveSymbols() {
		opts = e.Options()
		e.candles.Init(opts.Symbols, opts.Intervals)
	}

	e.registerWithProviders(ctx)

	if opts.IsBlocked {
		e.mutateOptions(func(o *models.DetectorConfig) { o.IsActive = false })
	}

	if e.Options().IsActive {
		e.loadAccounts(ctx)
		if err := ctx.Err(); err != nil {
			return e.abortStartup(err)
		}
		orders := e.accounts.Orders()
		e.mutateOptions(func(o *models.DetectorConfig) { o.Orders = orders })

		e.reduce(ctx, plugin.HookStart, nil, nil)

		if e.Options().PreloadHistory {
			e.PreloadHistory(ctx)
			if err := ctx.Err(); err != nil {
				return e.abortStartup(err)
			}
			cur := e.Options()
			e.candles.EnsureHistoryReady(cur.Symbols, cur.Intervals)
		}
	}

	e.state.Store(int32(StateReady))
	e.log.Info("detector ready",
		logger.Bool("active", e.Options().IsActive),
		logger.Int("accounts", e.accounts.Len()),
		logger.Duration("startup_ms", e.now().Sub(start)),
	)
	e.deps.Metrics.RecordLatency("detector_initialize", e.now().Sub(start).Seconds())

	e.emit(ctx, models.EventDetectorStarted, map[string]any{"sysname": e.Sysname()}, nil)
	e.strategy.OnInit(ctx)
	return nil
}

func (e *Engine) abortStartup(err error) error {
	e.state.Store(int32(StateDisposed))
	e.log.Warn("detector startup aborted", logger.Error(err))
	return err
}

// deriveSymbols fills an empty symbol list from the provider markets and
// reports whether it changed anything.
func (e *Engine) deriveSymbols() bool {
	var derived []models.Symbol
	e.mutateOptions(func(o *models.DetectorConfig) {
		if len(o.Symbols) > 0 {
			return
		}
		if derived = o.MarketSymbols(); len(derived) > 0 {
			o.Symbols = derived
		}
	})
	if len(derived) == 0 {
		return false
	}
	names := make([]string, len(derived))
	for i, s := range derived {
		names[i] = s.Name
	}
	e.log.Info("symbols derived from provider markets", logger.Strings("symbols", names))
	return true
}

// loadTopology fills connectors for providers that have a usable url but none configured.
func (e *Engine) loadTopology(ctx context.Context) {
	providers := e.Options().Providers
	for i, p := range providers {
		if !p.HasValidURL() || len(p.Connectors) > 0 {
			continue
		}
		fetched, err := e.deps.Connector.GetProviderOptions(ctx, p.RestAPIURL)
		if err != nil {
			e.log.Warn("provider topology unavailable",
				logger.String("provider", p.Key),
				logger.String("url", p.RestAPIURL),
				logger.Error(err),
			)
			e.deps.Metrics.RecordError("topology")
			continue
		}
		if fetched == nil {
			continue
		}
		providers[i] = p.MergeFetched(*fetched)
		e.log.Info("provider topology loaded",
			logger.String("provider", providers[i].Key),
			logger.Int("connectors", len(providers[i].Connectors)),
		)
	}
	e.mutateOptions(func(o *models.DetectorConfig) { o.Providers = providers })
}

func (e *Engine) registerWithProviders(ctx context.Context) {
	opts := e.Options()
	for _, p := range opts.Providers {
		if !p.HasValidURL() {
			e.log.Warn("provider skipped: invalid rest url", logger.String("provider", p.Key), logger.String("url", p.RestAPIURL))
			continue
		}
		if err := e.deps.Connector.RegisterDetector(ctx, p.RestAPIURL, opts); err != nil {
			e.log.Warn("detector registration failed",
				logger.String("provider", p.Key),
				logger.String("url", p.RestAPIURL),
				logger.Error(err),
			)
			e.deps.Metrics.RecordError("register")
		}
	}
}

// loadAccounts fetches one snapshot per (connector, market) of every valid
// provider. Providers are fetched concurrently; accounts are appended in
// provider order so the book stays deterministic.
func (e *Engine) loadAccounts(ctx context.Context) {
	providers := e.Options().Providers
	results := make([][]models.Account, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		if !p.HasValidURL() {
			continue
		}
		i, p := i, p
		g.Go(func() error {
			for _, c := range p.Connectors {
				for _, m := range c.Markets {
					acc, err := e.deps.Connector.GetAccount(gctx, p.RestAPIURL, c.ConnectorType, m.MarketType)
					if err != nil {
						e.log.Warn("account snapshot unavailable",
							logger.String("provider", p.Key),
							logger.String("connector", string(c.ConnectorType)),
							logger.String("market", string(m.MarketType)),
							logger.Error(err),
						)
						e.deps.Metrics.RecordError("account")
						continue
					}
					if acc == nil {
						continue
					}
					if acc.ConnectorType == "" {
						acc.ConnectorType = c.ConnectorType
					}
					if acc.MarketType == "" {
						acc.MarketType = m.MarketType
					}
					results[i] = append(results[i], *acc)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, accs := range results {
		for _, acc := range accs {
			e.accounts.Update(acc)
		}
	}
}

// PreloadHistory replaces the whole candle index with history fetched from
// every market that lists the configured symbol.
func (e *Engine) PreloadHistory(ctx context.Context) {
	opts := e.Options()
	start := e.now()

	type key struct {
		symbol string
		tf     models.Timeframe
	}
	var mu sync.Mutex
	index := make(map[string]map[models.Timeframe][]models.Candle, len(opts.Symbols))
	for _, s := range opts.Symbols {
		index[s.Name] = make(map[models.Timeframe][]models.Candle, len(opts.Intervals))
		for _, tf := range opts.Intervals {
			index[s.Name][tf] = []models.Candle{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, s := range opts.Symbols {
		for _, tf := range opts.Intervals {
			k := key{symbol: s.Name, tf: tf}
			g.Go(func() error {
				var batch []models.Candle
				for _, p := range opts.Providers {
					if !p.HasValidURL() {
						continue
					}
					for _, c := range p.Connectors {
						for _, m := range c.Markets {
							if _, listed := m.FindSymbol(k.symbol); !listed {
								continue
							}
							candles, err := e.deps.Connector.GetCandles(gctx, repository.CandlesQuery{
								ProviderURL:   p.RestAPIURL,
								ConnectorType: c.ConnectorType,
								MarketType:    m.MarketType,
								Symbol:        k.symbol,
								Interval:      k.tf,
								Limit:         e.candleWindow,
							})
							if err != nil {
								e.log.Warn("candle history unavailable",
									logger.String("provider", p.Key),
									logger.String("connector", string(c.ConnectorType)),
									logger.String("market", string(m.MarketType)),
									logger.String("symbol", k.symbol),
									logger.String("interval", string(k.tf)),
									logger.Error(err),
								)
								e.deps.Metrics.RecordError("history")
								continue
							}
							batch = append(batch, candles...)
						}
					}
				}
				mu.Lock()
				index[k.symbol][k.tf] = append(index[k.symbol][k.tf], batch...)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	e.candles.Replace(index)
	e.deps.Metrics.RecordLatency("detector_preload_history", e.now().Sub(start).Seconds())
}

// EnsureHistoryReady reports whether every configured (symbol, interval) has candles.
func (e *Engine) EnsureHistoryReady() bool {
	opts := e.Options()
	return e.candles.EnsureHistoryReady(opts.Symbols, opts.Intervals)
}

// OnModuleDestroy pushes state back to providers, runs onDispose and emits DETECTOR_STOPPED.
func (e *Engine) OnModuleDestroy(ctx context.Context) error {
	return e.shutdown(ctx, true)
}

// OnApplicationShutdown is OnModuleDestroy without the DETECTOR_STOPPED event.
func (e *Engine) OnApplicationShutdown(ctx context.Context) error {
	return e.shutdown(ctx, false)
}

func (e *Engine) shutdown(ctx context.Context, announce bool) error {
	for {
		cur := e.State()
		if cur == StateDisposing || cur == StateDisposed {
			return nil
		}
		if e.state.CompareAndSwap(int32(cur), int32(StateDisposing)) {
			break
		}
	}
	defer e.state.Store(int32(StateDisposed))

	opts := e.Options()
	var failed int
	for _, p := range opts.Providers {
		if !p.HasValidURL() {
			continue
		}
		if err := e.deps.Connector.UpdateDetector(ctx, p.RestAPIURL, opts); err != nil {
			failed++
			e.log.Warn("detector state push failed",
				logger.String("provider", p.Key),
				logger.String("url", p.RestAPIURL),
				logger.Error(err),
			)
			e.deps.Metrics.RecordError("teardown")
		}
	}

	e.reduce(ctx, plugin.HookDispose, nil, nil)
	e.strategy.OnDispose(ctx)

	if announce {
		e.emit(ctx, models.EventDetectorStopped, map[string]any{"sysname": opts.Sysname}, nil)
	}
	e.log.Info("detector stopped", logger.Int("failed_pushes", failed))
	if failed > 0 {
		return fmt.Errorf("detector %s: %d provider pushes failed: %w", opts.Sysname, failed, models.ErrUpstreamUnavailable)
	}
	return nil
}
