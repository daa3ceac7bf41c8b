package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"Detector/internal/handler/events"
	"Detector/internal/usecase"
	pkgch "Detector/pkg/clickhouse"
	"Detector/pkg/config"
	xhttp "Detector/pkg/http"
	pkgkafka "Detector/pkg/kafka"
	applogger "Detector/pkg/logger"
)

// Closer is a named resource released during shutdown.
type Closer struct {
	Name  string
	Close func() error
}

type Option func(*App)

func WithKafkaConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithRedisSubscriber(s *events.RedisSubscriber) Option {
	return func(a *App) { a.subscriber = s }
}

func WithClickHouse(c *pkgch.Client) Option {
	return func(a *App) { a.chClient = c }
}

func WithRedis(c *goredis.Client) Option {
	return func(a *App) { a.redis = c }
}

// WithClosers appends resources closed after the transports stop, in order.
func WithClosers(cs ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, cs...) }
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	manager     *usecase.DetectorManager
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	consumer    *pkgkafka.Consumer
	subscriber  *events.RedisSubscriber
	chClient    *pkgch.Client
	redis       *goredis.Client
	closers     []Closer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, manager *usecase.DetectorManager, h xhttp.Handler, opts ...Option) *App {
	a := &App{
		cfg:         cfg,
		log:         log,
		manager:     manager,
		httpHandler: h,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start boots the detector, the inbound transport and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	// A failed auto-select leaves the slot empty; the control API can still switch.
	if err := a.manager.Boot(ctx, a.cfg.Detector.Sysname); err != nil {
		a.log.Error("detector boot failed", applogger.String("sysname", a.cfg.Detector.Sysname), applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			return err
		}
		a.log.Info("kafka consumer started", applogger.Strings("brokers", a.cfg.Kafka.Brokers))
	}
	if a.subscriber != nil {
		// subscription outlives the signal context; Close ends it
		if err := a.subscriber.Start(context.WithoutCancel(ctx)); err != nil {
			a.log.Error("redis subscriber start error", applogger.Error(err))
			return err
		}
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(a.cfg.Server.AllowOrigins),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Shutdown stops intake first, then the detector, then infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.subscriber != nil {
		if err := a.subscriber.Close(); err != nil {
			a.log.Warn("redis subscriber close error", applogger.Error(err))
		}
	}

	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("detector shutdown error", applogger.Error(err))
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.Name), applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
