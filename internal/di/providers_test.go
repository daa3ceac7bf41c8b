package di

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Detector/internal/service/cache"
	"Detector/internal/strategy/smacross"
	"Detector/pkg/config"
	"Detector/pkg/logger"
)

func testConfig(t *testing.T, raw string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return cfg
}

func TestOptionalInfrastructureIsSkipped(t *testing.T) {
	cfg := testConfig(t, "bus:\n  backend: kafka\ntransport:\n  backend: kafka\nkafka:\n  brokers: [\"k:9092\"]\n")

	rdb, err := ProvideRedisClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, rdb)

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)
	assert.Nil(t, ProvideCandleArchive(ch, cfg))

	assert.Nil(t, ProvideRedisSubscriber(cfg, nil, nil, logger.Nop()))
}

func TestEventPublisherRequiresBackendClient(t *testing.T) {
	cfg := testConfig(t, "")
	_, err := ProvideEventPublisher(cfg, nil, nil)
	assert.ErrorContains(t, err, "redis client not configured")

	cfg = testConfig(t, "bus:\n  backend: kafka\nkafka:\n  brokers: [\"k:9092\"]\n")
	_, err = ProvideEventPublisher(cfg, nil, nil)
	assert.ErrorContains(t, err, "kafka producer not configured")
}

func TestRegistryCacheFallsBackToMemory(t *testing.T) {
	cfg := testConfig(t, "registry:\n  cache_backend: layered\n")
	_, ok := ProvideRegistryCache(cfg, nil).(*cache.TTLCache)
	assert.True(t, ok)
}

func TestRegistryClientNeedsURL(t *testing.T) {
	cfg := testConfig(t, "")
	assert.Nil(t, ProvideRegistryClient(cfg, cache.NewTTLCache(), logger.Nop()))

	cfg.Registry.URL = "http://registry.local/api"
	cfg.Registry.Timeout = time.Second
	assert.NotNil(t, ProvideRegistryClient(cfg, cache.NewTTLCache(), logger.Nop()))
}

func TestStrategyResolverHasBuiltins(t *testing.T) {
	cfg := testConfig(t, "detector:\n  strategies_path: "+t.TempDir()+"\n")
	r, err := ProvideStrategyResolver(cfg, logger.Nop())
	require.NoError(t, err)
	assert.Contains(t, r.Names(), smacross.Name)

	res, err := r.Resolve("sma-cross")
	require.NoError(t, err)
	assert.Equal(t, smacross.Name, res.Name)
}
