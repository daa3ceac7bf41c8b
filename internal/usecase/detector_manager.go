package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	domrepo "Detector/internal/domain/repository"
	"Detector/internal/plugin"
	"Detector/internal/strategy"
	"Detector/pkg/logger"
	"Detector/pkg/metrics"
)

// StrategyResolver finds a strategy implementation and its default configuration.
type StrategyResolver interface {
	Resolve(name string) (*strategy.Resolved, error)
}

// BundleDownloader fetches plugin artifacts.
type BundleDownloader interface {
	Download(ctx context.Context, sourceURL string) ([]byte, error)
}

// SwitchOptions carries the caller overrides of a switch. Sysname is the
// explicit identity override and beats Patch.Sysname and the resolved default.
type SwitchOptions struct {
	Sysname string
	Patch   models.DetectorPatch
}

// DetectorManager owns the single active engine. Readers load the slot
// lock-free; switches are serialized and publish a fully started engine.
type DetectorManager struct {
	resolver StrategyResolver
	deps     detector.Deps
	log      *logger.Logger
	metrics  domrepo.Metrics

	emitEvents   bool
	candleWindow int
	startTimeout time.Duration

	active   atomic.Pointer[detector.Engine]
	switchMu sync.Mutex

	registry   domrepo.PluginRegistry
	store      domrepo.PluginStore
	loader     *plugin.Loader
	downloader BundleDownloader
	pluginsDir string
	builtins   []models.PluginMeta
	now        func() time.Time

	// names of plugins built from the active config; removed on the next switch
	configured []string
}

type Option func(*DetectorManager)

func WithEmitEvents(enabled bool) Option {
	return func(m *DetectorManager) { m.emitEvents = enabled }
}

func WithCandleWindow(n int) Option {
	return func(m *DetectorManager) {
		if n > 0 {
			m.candleWindow = n
		}
	}
}

// WithStartTimeout bounds the two startup phases of a new engine.
func WithStartTimeout(d time.Duration) Option {
	return func(m *DetectorManager) { m.startTimeout = d }
}

// WithPluginRegistry wires the remote catalogue and the local bundle
// machinery used by InstallPlugin.
func WithPluginRegistry(registry domrepo.PluginRegistry, store domrepo.PluginStore, loader *plugin.Loader, downloader BundleDownloader, dir string) Option {
	return func(m *DetectorManager) {
		m.registry = registry
		m.store = store
		m.loader = loader
		m.downloader = downloader
		if dir != "" {
			m.pluginsDir = dir
		}
	}
}

// WithPluginLoader sets the entry point table used to build the plugins a
// detector config declares. WithPluginRegistry sets it too.
func WithPluginLoader(loader *plugin.Loader) Option {
	return func(m *DetectorManager) { m.loader = loader }
}

// WithBuiltinPlugins sets the immutable list shipped with the binary.
func WithBuiltinPlugins(metas ...models.PluginMeta) Option {
	return func(m *DetectorManager) { m.builtins = append([]models.PluginMeta(nil), metas...) }
}

func NewDetectorManager(resolver StrategyResolver, deps detector.Deps, opts ...Option) *DetectorManager {
	m := &DetectorManager{
		resolver:     resolver,
		deps:         deps,
		emitEvents:   true,
		candleWindow: 500,
		startTimeout: time.Minute,
		pluginsDir:   "./plugins",
		now:          time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	if m.deps.Logger == nil {
		m.deps.Logger = logger.Nop()
	}
	if m.deps.Metrics == nil {
		m.deps.Metrics = metrics.Nop{}
	}
	if m.deps.Plugins == nil {
		m.deps.Plugins = plugin.NewDriver(m.deps.Logger, m.deps.Metrics)
	}
	m.log = m.deps.Logger.With(logger.String("component", "detector_manager"))
	m.metrics = m.deps.Metrics
	return m
}

// GetActiveDetector returns the current engine, if any.
func (m *DetectorManager) GetActiveDetector() (*detector.Engine, bool) {
	e := m.active.Load()
	return e, e != nil
}

// ActiveDetectorView hands bundles a read view of the active engine.
func (m *DetectorManager) ActiveDetectorView() (plugin.DetectorView, bool) {
	e := m.active.Load()
	if e == nil {
		return nil, false
	}
	return e, true
}

// Plugins exposes the shared hook driver.
func (m *DetectorManager) Plugins() *plugin.Driver { return m.deps.Plugins }

// SwitchDetector resolves name, stops the current engine and starts a new one.
// The slot is empty from the moment the old engine is destroyed until the new
// one finishes both startup phases. A failed resolution leaves the current
// engine running; a failed startup leaves the slot empty.
func (m *DetectorManager) SwitchDetector(ctx context.Context, name string, so SwitchOptions) (*detector.Engine, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	start := m.now()

	res, err := m.resolver.Resolve(name)
	if err != nil {
		m.metrics.RecordError("switch_resolve")
		return nil, fmt.Errorf("switch to %s: %w", name, err)
	}
	cfg := mergeConfig(name, res.Config, so)

	if old := m.active.Load(); old != nil {
		m.log.Info("stopping active detector", logger.String("sysname", old.Sysname()))
		if err := old.OnModuleDestroy(ctx); err != nil {
			m.log.Error("error stopping old detector",
				logger.String("sysname", old.Sysname()),
				logger.Error(err),
			)
		}
		m.active.Store(nil)
		m.metrics.SetActiveDetector("")
	}
	for _, pn := range m.configured {
		m.deps.Plugins.Remove(pn)
	}
	m.configured = nil

	built := m.buildConfiguredPlugins(ctx, cfg.Plugins)
	for _, p := range built {
		m.configured = append(m.configured, p.Name())
	}

	e := detector.New(cfg, res.Factory, m.deps,
		detector.WithTypeName(res.Name),
		detector.WithEmitEvents(m.emitEvents),
		detector.WithCandleWindow(m.candleWindow),
		detector.WithPlugins(built...),
	)

	startCtx, cancel := context.WithTimeout(ctx, m.startTimeout)
	defer cancel()
	if err := e.InitDetectorLifecycle(startCtx); err == nil {
		err = e.InitializeDetector(startCtx)
	}
	if err != nil {
		m.active.Store(nil)
		m.metrics.SetActiveDetector("")
		m.metrics.RecordError("switch_start")
		_ = e.OnApplicationShutdown(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("start %s: %w", cfg.Sysname, err)
	}

	m.active.Store(e)
	m.metrics.SetActiveDetector(e.Sysname())
	m.metrics.RecordLatency("detector_switch", m.now().Sub(start).Seconds())
	m.log.Info("detector now active",
		logger.String("sysname", e.Sysname()),
		logger.String("implementation", res.Name),
	)
	return e, nil
}

// buildConfiguredPlugins creates a fresh instance for every binding whose name
// is a compiled-in entry point. Other bindings are expected to be installed
// bundles already present in the driver.
func (m *DetectorManager) buildConfiguredPlugins(ctx context.Context, bindings []models.PluginBinding) []plugin.Plugin {
	if m.loader == nil || len(bindings) == 0 {
		return nil
	}
	out := make([]plugin.Plugin, 0, len(bindings))
	for _, b := range bindings {
		p, err := m.loader.Build(ctx, m, b)
		if errors.Is(err, plugin.ErrUnknownEntrypoint) {
			continue
		}
		if err != nil {
			m.metrics.RecordError("plugin_build")
			m.log.Error("configured plugin build failed", logger.String("plugin", b.Name), logger.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out
}

// mergeConfig applies so over the resolved defaults. Collections in the patch
// replace the defaults only when non-empty.
func mergeConfig(name string, base models.DetectorConfig, so SwitchOptions) models.DetectorConfig {
	cfg := so.Patch.Apply(base)
	switch {
	case so.Sysname != "":
		cfg.Sysname = so.Sysname
	case so.Patch.Sysname != nil && *so.Patch.Sysname != "":
	case base.Sysname != "":
		cfg.Sysname = base.Sysname
	default:
		cfg.Sysname = name
	}
	return cfg
}

// Boot reloads installed bundles and auto-selects sysname when set.
func (m *DetectorManager) Boot(ctx context.Context, sysname string) error {
	m.ReloadInstalledPlugins(ctx)
	if sysname == "" {
		m.log.Warn("no detector sysname configured, waiting for a select request")
		return nil
	}
	m.log.Info("auto-selecting detector", logger.String("sysname", sysname))
	if _, err := m.SwitchDetector(ctx, sysname, SwitchOptions{Sysname: sysname}); err != nil {
		return err
	}
	return nil
}

// Shutdown stops the active engine without announcing it and empties the slot.
func (m *DetectorManager) Shutdown(ctx context.Context) error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	e := m.active.Swap(nil)
	if e == nil {
		return nil
	}
	m.metrics.SetActiveDetector("")
	return e.OnApplicationShutdown(ctx)
}
