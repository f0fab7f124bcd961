// Package config loads retrieval configuration from YAML files with
// environment-variable overrides. Every subsystem (Server, Index, Retrieval,
// Redis, Kafka, Postgres, ...) has its own typed section.
package config

import (
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
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// IndexConfig controls where shards live and how new index parts are laid
// out on disk.
type IndexConfig struct {
	DataDir           string `yaml:"dataDir"`
	Shards            int    `yaml:"shards"`
	BlockSize         int    `yaml:"blockSize"`
	SkipDistance      int    `yaml:"skipDistance"`
	SkipResetDistance int    `yaml:"skipResetDistance"`
	Skipping          bool   `yaml:"skipping"`
	// Stem applies the suffix stemmer when tokenizing documents.
	Stem    bool `yaml:"stem"`
	Workers int  `yaml:"workers"`
}

// OperatorConfig binds an operator name to a built-in implementation with
// preset node parameters.
type OperatorConfig struct {
	Operator string            `yaml:"operator"`
	Params   map[string]string `yaml:"params"`
}

// RetrievalConfig controls query compilation and ranking.
type RetrievalConfig struct {
	Requested       int                       `yaml:"requested"`
	MaxRequested    int                       `yaml:"maxRequested"`
	ShareNodes      bool                      `yaml:"shareNodes"`
	CacheNodes      bool                      `yaml:"cacheNodes"`
	CacheScores     bool                      `yaml:"cacheScores"`
	MaxCandidates   int64                     `yaml:"maxCandidates"`
	TimeoutPerShard time.Duration             `yaml:"timeoutPerShard"`
	DefaultPart     string                    `yaml:"defaultPart"`
	LengthsField    string                    `yaml:"lengthsField"`
	Operators       map[string]OperatorConfig `yaml:"operators"`
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

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexBuilt  string `yaml:"indexBuilt"`
	QueryEvents string `yaml:"queryEvents"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls query span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
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
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the index and ranking layers cannot honour.
func (c *Config) Validate() error {
	if c.Index.BlockSize < 64 {
		return fmt.Errorf("index.blockSize must be at least 64, got %d", c.Index.BlockSize)
	}
	if c.Index.SkipDistance < 1 || c.Index.SkipResetDistance < 1 {
		return fmt.Errorf("index.skipDistance and index.skipResetDistance must be positive")
	}
	if c.Index.Shards < 1 {
		return fmt.Errorf("index.shards must be positive, got %d", c.Index.Shards)
	}
	if c.Retrieval.Requested < 1 {
		return fmt.Errorf("retrieval.requested must be positive, got %d", c.Retrieval.Requested)
	}
	for name, op := range c.Retrieval.Operators {
		if op.Operator == "" {
			return fmt.Errorf("retrieval.operators.%s: missing operator", name)
		}
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			DataDir:           "data",
			Shards:            1,
			BlockSize:         16383,
			SkipDistance:      500,
			SkipResetDistance: 20,
			Skipping:          true,
			Workers:           4,
		},
		Retrieval: RetrievalConfig{
			Requested:       1000,
			MaxRequested:    10000,
			ShareNodes:      true,
			TimeoutPerShard: 30 * time.Second,
			DefaultPart:     "postings",
			LengthsField:    "document",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "retrieval",
			User:            "retrieval",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "retrieval-group",
			Topics: KafkaTopics{
				IndexBuilt:  "index.built",
				QueryEvents: "query-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_INDEX_DATA_DIR"); v != "" {
		cfg.Index.DataDir = v
	}
	if v := os.Getenv("SP_INDEX_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.Shards = n
		}
	}
	if v := os.Getenv("SP_RETRIEVAL_REQUESTED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.Requested = n
		}
	}
	if v := os.Getenv("SP_RETRIEVAL_CACHE_SCORES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Retrieval.CacheScores = b
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
