package di

import (
	"context"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	goredis "github.com/redis/go-redis/v9"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/internal/handler/api"
	"Detector/internal/handler/events"
	mid "Detector/internal/middleware"
	"Detector/internal/plugin"
	"Detector/internal/plugin/riskguard"
	internalrepo "Detector/internal/repository"
	"Detector/internal/service/cache"
	"Detector/internal/service/connector"
	"Detector/internal/service/orders"
	"Detector/internal/service/ratelimit"
	"Detector/internal/service/registry"
	"Detector/internal/strategy"
	"Detector/internal/strategy/smacross"
	"Detector/internal/usecase"
	pkgch "Detector/pkg/clickhouse"
	"Detector/pkg/config"
	pkghttp "Detector/pkg/http"
	pkgkafka "Detector/pkg/kafka"
	"Detector/pkg/logger"
	"Detector/pkg/metrics"
	pkgredis "Detector/pkg/redis"
	"Detector/pkg/server"
)

const (
	backendRedis   = "redis"
	backendKafka   = "kafka"
	backendLayered = "layered"

	candleArchiveTable  = "candles"
	registryCachePrefix = "detector:registry"
)

// ProvideLogger builds the application logger from the logger section.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Bus.Backend == backendRedis ||
		cfg.Transport.Backend == backendRedis ||
		cfg.Registry.CacheBackend == backendRedis ||
		cfg.Registry.CacheBackend == backendLayered
}

// ProvideRedisClient connects to Redis when any component is configured to use it.
func ProvideRedisClient(cfg *config.Config) (*goredis.Client, error) {
	if !usesRedis(cfg) {
		return nil, nil
	}
	client, err := pkgredis.NewClient(
		pkgredis.WithAddr(cfg.Redis.Addr),
		pkgredis.WithPassword(cfg.Redis.Password),
		pkgredis.WithDB(cfg.Redis.DB),
		pkgredis.WithPool(cfg.Redis.PoolSize, 2, 30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer for the outbound bus.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Bus.Backend != backendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the inbound consumer when transport is kafka.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Transport.Backend != backendKafka {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(log))
	return consumer, nil
}

// ProvideClickHouseClient opens ClickHouse and prepares the candle archive table.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithDialTimeout(cfg.ClickHouse.DialTimeout),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, false),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.CandleArchiveSchema(cfg.ClickHouse.Database, candleArchiveTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCandleArchive returns the closed-candle sink, or nil when ClickHouse is off.
func ProvideCandleArchive(ch *pkgch.Client, cfg *config.Config) repository.CandleSink {
	if ch == nil {
		return nil
	}
	return internalrepo.NewClickHouseCandleArchive(ch.DB(), cfg.ClickHouse.Database+"."+candleArchiveTable)
}

// ProvideEventPublisher selects the outbound bus backend.
func ProvideEventPublisher(cfg *config.Config, rdb *goredis.Client, producer *pkgkafka.Producer) (repository.EventPublisher, error) {
	switch cfg.Bus.Backend {
	case backendKafka:
		if producer == nil {
			return nil, fmt.Errorf("event publisher: kafka producer not configured")
		}
		return internalrepo.NewKafkaEventPublisher(producer, cfg.Bus.Channel), nil
	case backendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("event publisher: redis client not configured")
		}
		return internalrepo.NewRedisEventPublisher(rdb, cfg.Bus.Channel), nil
	default:
		return nil, fmt.Errorf("event publisher: unknown backend %q", cfg.Bus.Backend)
	}
}

// ProvidePluginStore opens the local index of installed bundles.
func ProvidePluginStore(cfg *config.Config) (*internalrepo.BoltPluginStore, error) {
	store, err := internalrepo.OpenBoltPluginStore(cfg.PluginStore.Path)
	if err != nil {
		return nil, fmt.Errorf("plugin store: %w", err)
	}
	return store, nil
}

func ProvideConnectorClient(cfg *config.Config) *connector.Client {
	return connector.NewClient(pkghttp.NewClient(pkghttp.WithTimeout(cfg.Connector.Timeout)))
}

func ProvideOrdersClient(cfg *config.Config) *orders.Client {
	return orders.NewClient(pkghttp.NewClient(pkghttp.WithTimeout(cfg.Orders.Timeout)), cfg.Orders.URL)
}

// ProvideRegistryCache picks the response cache used by the registry client.
func ProvideRegistryCache(cfg *config.Config, rdb *goredis.Client) cache.BytesCache {
	if rdb == nil {
		return cache.NewTTLCache()
	}
	switch cfg.Registry.CacheBackend {
	case backendRedis:
		return cache.NewRedisCache(rdb, registryCachePrefix)
	case backendLayered:
		return cache.NewLayeredCache(cache.NewTTLCache(), cache.NewRedisCache(rdb, registryCachePrefix), cfg.Registry.CacheTTL/2)
	default:
		return cache.NewTTLCache()
	}
}

// ProvideRegistryClient returns nil when no registry URL is configured; plugin
// installation then fails with an upstream error.
func ProvideRegistryClient(cfg *config.Config, bc cache.BytesCache, log *logger.Logger) *registry.Client {
	if cfg.Registry.URL == "" {
		return nil
	}
	return registry.NewClient(
		pkghttp.NewClient(pkghttp.WithTimeout(cfg.Registry.Timeout)),
		cfg.Registry.URL,
		registry.WithToken(cfg.Registry.Token),
		registry.WithCache(bc, cfg.Registry.CacheTTL),
		registry.WithLogger(log),
	)
}

func ProvidePluginDriver(log *logger.Logger, m repository.Metrics) *plugin.Driver {
	return plugin.NewDriver(log, m)
}

// ProvidePluginLoader binds the entry points compiled into the binary.
func ProvidePluginLoader(driver *plugin.Driver, log *logger.Logger) *plugin.Loader {
	loader := plugin.NewLoader(driver, log)
	riskguard.Register(loader)
	return loader
}

// ProvideStrategyResolver registers the built-in strategies.
func ProvideStrategyResolver(cfg *config.Config, log *logger.Logger) (*strategy.Resolver, error) {
	r := strategy.NewResolver(cfg.Detector.StrategiesPath, log)

	var params smacross.Params
	if err := defaults.Set(&params); err != nil {
		return nil, fmt.Errorf("strategy defaults: %w", err)
	}
	if err := r.Register(smacross.Definition(params)); err != nil {
		return nil, fmt.Errorf("register strategy: %w", err)
	}
	return r, nil
}

// ProvideDetectorManager assembles the engine dependencies and the plugin lifecycle.
func ProvideDetectorManager(
	cfg *config.Config,
	resolver *strategy.Resolver,
	conn *connector.Client,
	ord *orders.Client,
	driver *plugin.Driver,
	loader *plugin.Loader,
	publisher repository.EventPublisher,
	archive repository.CandleSink,
	store *internalrepo.BoltPluginStore,
	reg *registry.Client,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.DetectorManager {
	deps := detector.Deps{
		Connector: conn,
		Orders:    ord,
		Plugins:   driver,
		Publisher: publisher,
		Archive:   archive,
		Metrics:   m,
		Logger:    log,
	}

	var (
		pluginRegistry repository.PluginRegistry
		downloader     usecase.BundleDownloader
	)
	if reg != nil {
		pluginRegistry = reg
		downloader = reg
	}

	builtins := make([]models.PluginMeta, 0, len(cfg.Detector.BuiltinPlugins))
	for _, b := range cfg.Detector.BuiltinPlugins {
		builtins = append(builtins, models.PluginMeta{
			GUID:       b.GUID,
			Name:       b.Name,
			Title:      b.Title,
			Version:    b.Version,
			Visibility: b.Visibility,
		})
	}

	return usecase.NewDetectorManager(resolver, deps,
		usecase.WithEmitEvents(cfg.Detector.EmitEvents),
		usecase.WithCandleWindow(cfg.Detector.CandleWindow),
		usecase.WithPluginRegistry(pluginRegistry, store, loader, downloader, cfg.Detector.PluginsDir),
		usecase.WithBuiltinPlugins(builtins...),
	)
}

// ProvideTradeGate puts validation and optional trade hook throttling in front of the manager.
func ProvideTradeGate(cfg *config.Config, manager *usecase.DetectorManager, m repository.Metrics, log *logger.Logger) *mid.TradeGate {
	return mid.NewTradeGate(manager, m,
		mid.WithTradeRate(cfg.RateLimit.Trades.Rate, cfg.RateLimit.Trades.Burst),
		mid.WithGateLogger(log),
	)
}

func ProvideEventRouter(gate *mid.TradeGate, m repository.Metrics, log *logger.Logger) *events.Router {
	return events.NewRouter(gate, m, log)
}

// ProvideRedisSubscriber builds the inbound Pub/Sub listener when transport is redis.
func ProvideRedisSubscriber(cfg *config.Config, rdb *goredis.Client, router *events.Router, log *logger.Logger) *events.RedisSubscriber {
	if cfg.Transport.Backend != backendRedis || rdb == nil {
		return nil
	}
	return events.NewRedisSubscriber(rdb, router, cfg.Transport.Prefix, log)
}

// ProvideDetectorHandler exposes the control surface over HTTP.
func ProvideDetectorHandler(cfg *config.Config, manager *usecase.DetectorManager, log *logger.Logger) *api.DetectorHandler {
	return api.NewDetectorHandler(log, manager,
		api.WithInstallLimit(ratelimit.New(), cfg.RateLimit.Install.Rate, cfg.RateLimit.Install.Burst),
	)
}

// ProvideApp creates the application with all lifecycle-managed components.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	manager *usecase.DetectorManager,
	handler *api.DetectorHandler,
	router *events.Router,
	consumer *pkgkafka.Consumer,
	subscriber *events.RedisSubscriber,
	publisher repository.EventPublisher,
	store *internalrepo.BoltPluginStore,
	ch *pkgch.Client,
	rdb *goredis.Client,
) *server.App {
	if consumer != nil {
		events.RegisterKafkaHandlers(consumer, router, cfg.Transport.Prefix)
	}
	return server.New(cfg, log, manager, handler,
		server.WithKafkaConsumer(consumer),
		server.WithRedisSubscriber(subscriber),
		server.WithClosers(
			server.Closer{Name: "event publisher", Close: publisher.Close},
			server.Closer{Name: "plugin store", Close: store.Close},
		),
		server.WithClickHouse(ch),
		server.WithRedis(rdb),
	)
}
