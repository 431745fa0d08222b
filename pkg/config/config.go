// Package config loads application configuration from an optional YAML file
// with environment-variable overrides. Defaults cover a local run that needs
// nothing but a corpus directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Cache     CacheConfig     `yaml:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// ServerConfig holds HTTP listener settings. ReadTimeout and WriteTimeout
// default to zero (no limit); the body ceiling is the only request guard
// unless an operator opts in.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	MaxBodyBytes      int64         `yaml:"maxBodyBytes"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins       []string      `yaml:"corsOrigins"`
	// RateLimit is the query budget per client address per minute; 0 disables it.
	RateLimit int `yaml:"rateLimit"`
}

// Addr is the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CorpusConfig selects the source units. When Units is empty every unit
// under Root is discovered.
type CorpusConfig struct {
	Root  string       `yaml:"root"`
	Units []UnitConfig `yaml:"units"`
}

type UnitConfig struct {
	MethodologyID string `yaml:"methodologyId"`
	Version       string `yaml:"version"`
	Dir           string `yaml:"dir"`
	RulesFile     string `yaml:"rulesFile"`
}

// CacheConfig controls the result cache. The Redis tier is used only when
// Redis.Enabled is also set.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// MetricsConfig controls the rolling latency window and Prometheus exposure.
// Port 0 serves /metrics on the main listener.
type MetricsConfig struct {
	WindowSize int    `yaml:"windowSize"`
	LogFile    string `yaml:"logFile"`
	Enabled    bool   `yaml:"enabled"`
	Port       int    `yaml:"port"`
}

// AnalyticsConfig controls the optional latency-event fan-out.
type AnalyticsConfig struct {
	KafkaEnabled     bool          `yaml:"kafkaEnabled"`
	BufferSize       int           `yaml:"bufferSize"`
	SnapshotEnabled  bool          `yaml:"snapshotEnabled"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// RedisConfig holds Redis connection parameters for the shared cache tier.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds the broker list and the latency-event topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig enables per-request span trees, logged at debug level.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML config file (if provided) over the defaults and then
// applies environment-variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8000,
			MaxBodyBytes:      64 << 10,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Corpus: CorpusConfig{
			Root: "methodologies",
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    1024,
			TTL:     5 * time.Minute,
		},
		Metrics: MetricsConfig{
			WindowSize: 200,
			Enabled:    true,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       1024,
			SnapshotInterval: time.Minute,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "methodology-search.latency",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "methodology_search",
			User:            "methodology_search",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.maxBodyBytes must be positive, got %d", c.Server.MaxBodyBytes))
	}
	if c.Analytics.SnapshotEnabled && c.Analytics.SnapshotInterval <= 0 {
		errs = append(errs, fmt.Errorf("analytics.snapshotInterval must be positive, got %v", c.Analytics.SnapshotInterval))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit must not be negative, got %d", c.Server.RateLimit))
	}
	if c.Metrics.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("metrics.windowSize must be positive, got %d", c.Metrics.WindowSize))
	}
	if c.Cache.Enabled && c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache.size must be positive when the cache is enabled, got %d", c.Cache.Size))
	}
	if c.Corpus.Root == "" && len(c.Corpus.Units) == 0 {
		errs = append(errs, errors.New("corpus.root or corpus.units is required"))
	}
	for i, u := range c.Corpus.Units {
		if u.Dir == "" {
			errs = append(errs, fmt.Errorf("corpus.units[%d].dir is required", i))
		}
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads HOST, PORT and MS_* environment variables. A
// malformed numeric value is an error rather than a silent fallback.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", name, v))
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", name, v))
				return
			}
			*dst = b
		}
	}

	str("HOST", &cfg.Server.Host)
	num("PORT", &cfg.Server.Port)
	str("MS_SERVER_HOST", &cfg.Server.Host)
	num("MS_SERVER_PORT", &cfg.Server.Port)
	if v := os.Getenv("MS_SERVER_MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MS_SERVER_MAX_BODY_BYTES: invalid integer %q", v))
		} else {
			cfg.Server.MaxBodyBytes = n
		}
	}
	num("MS_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
	str("MS_CORPUS_ROOT", &cfg.Corpus.Root)
	num("MS_METRICS_WINDOW", &cfg.Metrics.WindowSize)
	str("MS_METRICS_LOG", &cfg.Metrics.LogFile)
	flag("MS_CACHE_ENABLED", &cfg.Cache.Enabled)
	flag("MS_REDIS_ENABLED", &cfg.Redis.Enabled)
	str("MS_REDIS_ADDR", &cfg.Redis.Addr)
	str("MS_REDIS_PASSWORD", &cfg.Redis.Password)
	if v := os.Getenv("MS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	str("MS_KAFKA_TOPIC", &cfg.Kafka.Topic)
	flag("MS_ANALYTICS_KAFKA", &cfg.Analytics.KafkaEnabled)
	flag("MS_ANALYTICS_SNAPSHOT", &cfg.Analytics.SnapshotEnabled)
	str("MS_POSTGRES_HOST", &cfg.Postgres.Host)
	num("MS_POSTGRES_PORT", &cfg.Postgres.Port)
	str("MS_POSTGRES_DATABASE", &cfg.Postgres.Database)
	str("MS_POSTGRES_USER", &cfg.Postgres.User)
	str("MS_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	str("MS_POSTGRES_SSLMODE", &cfg.Postgres.SSLMode)
	str("MS_LOGGING_LEVEL", &cfg.Logging.Level)
	str("MS_LOGGING_FORMAT", &cfg.Logging.Format)
	flag("MS_TRACING_ENABLED", &cfg.Tracing.Enabled)
	return errors.Join(errs...)
}
