// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Engine, etc.).
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
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the reference
// store (taxonomy + barcode sequences) and result persistence.
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
	IdentificationEvents string `yaml:"identificationEvents"`
	ReferenceUpdated     string `yaml:"referenceUpdated"`
}

// RedisConfig holds Redis connection and result-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// ConfidenceConfig holds the score cutoffs for the ordinal confidence tiers.
// Each cutoff is a percent score in [0,100]; a score at or above a cutoff
// reaches at least that tier.
type ConfidenceConfig struct {
	VeryHigh float64 `yaml:"veryHigh"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// EngineConfig controls the species-identification engine: k-mer size,
// scoring thresholds, result limits, and batch concurrency. KmerSize is
// fixed for the lifetime of a built reference index; queries are always
// decomposed with the same k the index was built with.
type EngineConfig struct {
	KmerSize           int              `yaml:"kmerSize"`
	MinSequenceLength  int              `yaml:"minSequenceLength"`
	MinScore           float64          `yaml:"minScore"`
	TopMatches         int              `yaml:"topMatches"`
	MaxTopMatches      int              `yaml:"maxTopMatches"`
	MaxBatchTopMatches int              `yaml:"maxBatchTopMatches"`
	AlternativeMatches int              `yaml:"alternativeMatches"`
	MaxBatchSize       int              `yaml:"maxBatchSize"`
	Workers            int              `yaml:"workers"`
	BatchTimeout       time.Duration    `yaml:"batchTimeout"`
	Confidence         ConfidenceConfig `yaml:"confidence"`
}

// Validate checks engine parameters that must hold before an index is built.
func (e EngineConfig) Validate() error {
	if e.KmerSize < 2 {
		return fmt.Errorf("engine.kmerSize must be >= 2, got %d", e.KmerSize)
	}
	if e.MinSequenceLength < e.KmerSize {
		return fmt.Errorf("engine.minSequenceLength (%d) must be >= engine.kmerSize (%d)",
			e.MinSequenceLength, e.KmerSize)
	}
	if e.MinScore < 0 || e.MinScore > 100 {
		return fmt.Errorf("engine.minScore must be in [0,100], got %v", e.MinScore)
	}
	if e.Workers < 1 {
		return fmt.Errorf("engine.workers must be >= 1, got %d", e.Workers)
	}
	c := e.Confidence
	if !(c.Medium <= c.High && c.High <= c.VeryHigh) {
		return fmt.Errorf("engine.confidence cutoffs must be ordered medium <= high <= veryHigh, got %v/%v/%v",
			c.Medium, c.High, c.VeryHigh)
	}
	return nil
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

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with defaults suitable for local
// development. The engine defaults (k=5, min score 50, top 5, confidence
// cutoffs 90/75/60) are the platform's reference parameters.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "marinedata",
			User:            "marinedata",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "edna-platform-group",
			Topics: KafkaTopics{
				IdentificationEvents: "identification-events",
				ReferenceUpdated:     "reference-updated",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Engine: EngineConfig{
			KmerSize:           5,
			MinSequenceLength:  5,
			MinScore:           50.0,
			TopMatches:         5,
			MaxTopMatches:      20,
			MaxBatchTopMatches: 10,
			AlternativeMatches: 3,
			MaxBatchSize:       50,
			Workers:            8,
			BatchTimeout:       30 * time.Second,
			Confidence: ConfidenceConfig{
				VeryHigh: 90.0,
				High:     75.0,
				Medium:   60.0,
			},
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

// applyEnvOverrides reads MP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MP_ENGINE_KMER_SIZE"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Engine.KmerSize = k
		}
	}
	if v := os.Getenv("MP_ENGINE_MIN_SCORE"); v != "" {
		if s, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.MinScore = s
		}
	}
	if v := os.Getenv("MP_ENGINE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.Workers = n
		}
	}
	if v := os.Getenv("MP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
