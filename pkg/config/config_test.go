package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "redis", c.Bus.Backend)
	assert.Equal(t, "DETECTOR_EVENT", c.Bus.Channel)
	assert.Equal(t, 500, c.Detector.CandleWindow)
	assert.True(t, c.Detector.EmitEvents)
	assert.Equal(t, time.Minute, c.Registry.CacheTTL)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	raw := `
environment: prod
bus:
  backend: kafka
kafka:
  brokers: ["k1:9092"]
detector:
  sysname: Alpha
  builtin_plugins:
    - guid: g-1
      title: Risk
`
	c, err := Parse([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "kafka", c.Bus.Backend)
	assert.Equal(t, "Alpha", c.Detector.Sysname)
	require.Len(t, c.Detector.BuiltinPlugins, 1)
	assert.Equal(t, "public", c.Detector.BuiltinPlugins[0].Visibility)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown bus", "bus:\n  backend: nats\n"},
		{"kafka without brokers", "transport:\n  backend: kafka\n"},
		{"builtin without guid", "detector:\n  builtin_plugins:\n    - title: x\n"},
		{"unknown registry cache", "registry:\n  cache_backend: memcached\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	env := map[string]string{
		"DETECTOR_SYSNAME": "Beta",
		"KAFKA_BROKERS":    "a:1,b:2",
		"CLICKHOUSE_ADDR":  "ch:9440",
		"HTTP_PORT":        "9999",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "Beta", c.Detector.Sysname)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Kafka.Brokers)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, 9440, c.ClickHouse.Port)
	assert.Equal(t, 9999, c.Server.Port)
}

func TestParseExplicitFalseSurvivesDefaults(t *testing.T) {
	c, err := Parse([]byte("detector:\n  emit_events: false\n"))
	require.NoError(t, err)
	assert.False(t, c.Detector.EmitEvents)
}

func TestParseLayeredRegistryCache(t *testing.T) {
	c, err := Parse([]byte("registry:\n  cache_backend: layered\n"))
	require.NoError(t, err)
	assert.Equal(t, "layered", c.Registry.CacheBackend)
}
