//go:build wireinject
// +build wireinject

package di

import (
	"Detector/pkg/config"
	"Detector/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideClickHouseClient,

		// Repositories
		ProvideCandleArchive,
		ProvideEventPublisher,
		ProvidePluginStore,

		// Collaborator services
		ProvideConnectorClient,
		ProvideOrdersClient,
		ProvideRegistryCache,
		ProvideRegistryClient,

		// Plugins and strategies
		ProvidePluginDriver,
		ProvidePluginLoader,
		ProvideStrategyResolver,

		// Use cases
		ProvideDetectorManager,

		// Inbound
		ProvideTradeGate,
		ProvideEventRouter,
		ProvideRedisSubscriber,
		ProvideDetectorHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
