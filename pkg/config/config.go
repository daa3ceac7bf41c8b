package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"dev"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Detector struct {
		Sysname        string          `yaml:"sysname"`
		StrategiesPath string          `yaml:"strategies_path" default:"./strategies"`
		PluginsDir     string          `yaml:"plugins_dir" default:"./plugins"`
		EmitEvents     bool            `yaml:"emit_events" default:"true"`
		CandleWindow   int             `yaml:"candle_window" default:"500"`
		BuiltinPlugins []BuiltinPlugin `yaml:"builtin_plugins"`
	} `yaml:"detector"`
	Bus struct {
		Backend string `yaml:"backend" default:"redis"`
		Channel string `yaml:"channel" default:"DETECTOR_EVENT"`
	} `yaml:"bus"`
	Transport struct {
		Backend string `yaml:"backend" default:"redis"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"transport"`
	Redis struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"20"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"detector"`
			Workers    int           `yaml:"workers" default:"4"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"detector"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		AsyncInsert bool          `yaml:"async_insert" default:"true"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Connector struct {
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"connector"`
	Orders struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout" default:"10s"`
	} `yaml:"orders"`
	Registry struct {
		URL          string        `yaml:"url"`
		Token        string        `yaml:"token"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
		CacheTTL     time.Duration `yaml:"cache_ttl" default:"1m"`
		CacheBackend string        `yaml:"cache_backend" default:"memory"`
	} `yaml:"registry"`
	PluginStore struct {
		Path string `yaml:"path" default:"./plugins/installed.db"`
	} `yaml:"plugin_store"`
	RateLimit struct {
		Trades struct {
			Rate  float64 `yaml:"rate" default:"0"`
			Burst int     `yaml:"burst" default:"100"`
		} `yaml:"trades"`
		Install struct {
			Rate  float64 `yaml:"rate" default:"1"`
			Burst int     `yaml:"burst" default:"3"`
		} `yaml:"install"`
	} `yaml:"ratelimit"`
}

// BuiltinPlugin is a plugin shipped with the binary and listed before registry entries.
type BuiltinPlugin struct {
	GUID       string `yaml:"guid"`
	Title      string `yaml:"title"`
	Version    string `yaml:"version"`
	Visibility string `yaml:"visibility" default:"public"`
	Name       string `yaml:"name"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	// Defaults go first so explicit zero values in YAML (emit_events: false) survive.
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for i := range c.Detector.BuiltinPlugins {
		if err := defaults.Set(&c.Detector.BuiltinPlugins[i]); err != nil {
			return nil, fmt.Errorf("apply defaults: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DETECTOR_SYSNAME"); v != "" {
		c.Detector.Sysname = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("CLICKHOUSE_ADDR"); v != "" {
		host, port, found := strings.Cut(v, ":")
		c.ClickHouse.Host = host
		if p, err := strconv.Atoi(port); found && err == nil {
			c.ClickHouse.Port = p
		}
	}
	if v := getenv("STUDIO_API_URL"); v != "" {
		c.Registry.URL = v
	}
	if v := getenv("STUDIO_API_TOKEN"); v != "" {
		c.Registry.Token = v
	}
	if v := getenv("ORDERS_API_URL"); v != "" {
		c.Orders.URL = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Bus.Backend != "redis" && c.Bus.Backend != "kafka" {
		return fmt.Errorf("bus.backend must be 'redis' or 'kafka', got '%s'", c.Bus.Backend)
	}
	if c.Transport.Backend != "redis" && c.Transport.Backend != "kafka" {
		return fmt.Errorf("transport.backend must be 'redis' or 'kafka', got '%s'", c.Transport.Backend)
	}
	if (c.Bus.Backend == "kafka" || c.Transport.Backend == "kafka") && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is used")
	}
	switch c.Registry.CacheBackend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("registry.cache_backend must be 'memory', 'redis' or 'layered', got '%s'", c.Registry.CacheBackend)
	}
	if c.Detector.CandleWindow <= 0 {
		return fmt.Errorf("detector.candle_window must be positive")
	}
	for i, p := range c.Detector.BuiltinPlugins {
		if p.GUID == "" {
			return fmt.Errorf("detector.builtin_plugins[%d].guid is required", i)
		}
	}
	return nil
}
