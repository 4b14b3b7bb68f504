package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir     string
	FilePattern string

	StoreDriver string
	SQLitePath  string
	DatabaseURL string
	DBLogSQL    bool

	IngestWorkers    int
	AggregateWorkers int

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DefaultPageSize int
	MaxPageSize     int

	// Kafka publication of annual stats.
	KafkaEnabled    bool
	KafkaBrokers    []string
	KafkaStatsTopic string
	BatchSize       int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	ingestWorkers, err := parsePositiveInt("INGEST_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	aggregateWorkers, err := parsePositiveInt("AGGREGATE_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	defaultPageSize, err := parsePositiveInt("DEFAULT_PAGE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	maxPageSize, err := parsePositiveInt("MAX_PAGE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:          sharedcfg.EnvOrDefault("DATA_DIR", "./wx_data"),
		FilePattern:      sharedcfg.EnvOrDefault("FILE_PATTERN", "*.txt"),
		StoreDriver:      sharedcfg.EnvOrDefault("STORE_DRIVER", DriverSQLite),
		SQLitePath:       sharedcfg.EnvOrDefault("SQLITE_PATH", "weather.db"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		DBLogSQL:         os.Getenv("DB_LOG_SQL") == "true",
		IngestWorkers:    ingestWorkers,
		AggregateWorkers: aggregateWorkers,
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		DefaultPageSize:  defaultPageSize,
		MaxPageSize:      maxPageSize,
		KafkaEnabled:     os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:     sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaStatsTopic:  sharedcfg.EnvOrDefault("KAFKA_STATS_TOPIC", "weather-annual-stats"),
		BatchSize:        batchSize,
	}

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: expected %s or %s", cfg.StoreDriver, DriverSQLite, DriverPostgres)
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		return nil, errors.New("DEFAULT_PAGE_SIZE must not exceed MAX_PAGE_SIZE")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaStatsTopic == "" {
			return nil, errors.New("KAFKA_STATS_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}
