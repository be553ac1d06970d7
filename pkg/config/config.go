// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Data, Render, Cache, Redis, Kafka, Logging, Metrics,
// Tracing).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Sort policies for drop search results.
const (
	SortByLength  = "length"
	SortByLexical = "lexical"
)

// Response cache backends.
const (
	CacheBackendNone  = "none"
	CacheBackendLocal = "local"
	CacheBackendRedis = "redis"
)

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Render  RenderConfig  `yaml:"render"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// RateLimit is the per-client query allowance per minute; 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// DataConfig names the blob directory and the documents stored in it.
type DataConfig struct {
	Dir          string `yaml:"dir"`
	DropTable    string `yaml:"dropTable"`
	ItemAliases  string `yaml:"itemAliases"`
	QueryAliases string `yaml:"queryAliases"`
	IndexCache   string `yaml:"indexCache"`
}

// RenderConfig controls report size and ordering.
type RenderConfig struct {
	MaxChars       int    `yaml:"maxChars"`
	SortPolicy     string `yaml:"sortPolicy"`
	SeparatorWidth int    `yaml:"separatorWidth"`
}

// CacheConfig selects the rendered-report cache backend.
type CacheConfig struct {
	Backend   string `yaml:"backend"`
	LocalSize int    `yaml:"localSize"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr             string        `yaml:"addr"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db"`
	PoolSize         int           `yaml:"poolSize"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	ConnectAttempts  int           `yaml:"connectAttempts"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerCooldown  time.Duration `yaml:"breakerCooldown"`
}

// KafkaConfig holds the analytics broker settings.
type KafkaConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Brokers         []string      `yaml:"brokers"`
	AnalyticsTopic  string        `yaml:"analyticsTopic"`
	ConsumerGroup   string        `yaml:"consumerGroup"`
	EventBufferSize int           `yaml:"eventBufferSize"`
	BatchSize       int           `yaml:"batchSize"`
	FlushInterval   time.Duration `yaml:"flushInterval"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TracingConfig controls slow-query span logging.
type TracingConfig struct {
	// SlowQueryThreshold logs the span tree of queries at least this slow;
	// 0 disables it.
	SlowQueryThreshold time.Duration `yaml:"slowQueryThreshold"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	if c.Data.DropTable == "" {
		return fmt.Errorf("data.dropTable must be set")
	}
	if c.Data.IndexCache == "" {
		return fmt.Errorf("data.indexCache must be set")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Render.MaxChars <= 0 {
		return fmt.Errorf("render.maxChars must be positive, got %d", c.Render.MaxChars)
	}
	switch c.Render.SortPolicy {
	case SortByLength, SortByLexical:
	default:
		return fmt.Errorf("render.sortPolicy %q is not one of %q, %q", c.Render.SortPolicy, SortByLength, SortByLexical)
	}
	switch c.Cache.Backend {
	case CacheBackendNone, CacheBackendLocal, CacheBackendRedis:
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	return nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       60,
		},
		Data: DataConfig{
			Dir:          ".",
			DropTable:    "drop_data.json",
			ItemAliases:  "alias.json",
			QueryAliases: "general_alias.json",
			IndexCache:   "item_map_cache.json",
		},
		Render: RenderConfig{
			MaxChars:       2000,
			SortPolicy:     SortByLength,
			SeparatorWidth: 30,
		},
		Cache: CacheConfig{
			Backend:   CacheBackendLocal,
			LocalSize: 512,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			DB:               0,
			PoolSize:         10,
			CacheTTL:         10 * time.Minute,
			ConnectAttempts:  3,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Kafka: KafkaConfig{
			Enabled:         false,
			Brokers:         []string{"localhost:9092"},
			AnalyticsTopic:  "drop-query-events",
			ConsumerGroup:   "drop-query-stats",
			EventBufferSize: 1000,
			BatchSize:       100,
			FlushInterval:   5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Tracing: TracingConfig{
			SlowQueryThreshold: 250 * time.Millisecond,
		},
	}
}

// applyEnvOverrides reads ADB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ADB_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ADB_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("ADB_DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv("ADB_DATA_INDEX_CACHE"); v != "" {
		cfg.Data.IndexCache = v
	}
	if v := os.Getenv("ADB_RENDER_SORT_POLICY"); v != "" {
		cfg.Render.SortPolicy = v
	}
	if v := os.Getenv("ADB_RENDER_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Render.MaxChars = n
		}
	}
	if v := os.Getenv("ADB_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("ADB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ADB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ADB_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("ADB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ADB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ADB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("ADB_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
