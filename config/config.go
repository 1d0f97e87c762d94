package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SourceFile  = "file"
	SourceTable = "table"
	SourceChain = "chain"

	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
)

type Config struct {
	App struct {
		Environment string
		LogLevel    string
		LogDir      string
	}

	Feed struct {
		Username       string
		Password       string
		APIURL         string
		HTTPTimeout    time.Duration
		RequestsPerMin int
		IdleTimeout    time.Duration
		ConnectRetries uint64
		BufferSize     int
	}

	Delta struct {
		Min float64
		Max float64
	}

	Ingest struct {
		SymbolSource        string
		WatchlistFile       string
		TruncateBeforeBatch bool
		PersistMaxRetries   uint64
	}

	Sink struct {
		Driver string
	}

	Postgres PostgresConfig

	ClickHouse ClickHouseConfig

	Metrics struct {
		Addr string
	}
}

type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders a lib/pq keyword/value connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, quoteDSN(p.Password), p.Database, p.SSLMode)
}

func quoteDSN(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

type ClickHouseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
	Debug           bool
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set in the process win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	// App settings
	cfg.App.Environment = getEnvOrDefault("APP_ENV", "production")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.App.LogDir = getEnvOrDefault("LOG_DIR", "logs")

	// Feed settings
	cfg.Feed.Username = os.Getenv("TASTYTRADE_USERNAME")
	cfg.Feed.Password = os.Getenv("TASTYTRADE_PASSWORD")
	cfg.Feed.APIURL = getEnvOrDefault("TASTYTRADE_API_URL", "https://api.tastyworks.com")
	cfg.Feed.HTTPTimeout = time.Duration(getEnvAsIntOrDefault("TASTYTRADE_HTTP_TIMEOUT_SECS", 15)) * time.Second
	cfg.Feed.RequestsPerMin = getEnvAsIntOrDefault("TASTYTRADE_REQUESTS_PER_MINUTE", 120)
	cfg.Feed.IdleTimeout = time.Duration(getEnvAsIntOrDefault("FEED_IDLE_TIMEOUT_SECS", 30)) * time.Second
	cfg.Feed.ConnectRetries = getEnvAsUintOrDefault("FEED_CONNECT_RETRIES", 3)
	cfg.Feed.BufferSize = getEnvAsIntOrDefault("FEED_BUFFER_SIZE", 1024)

	// Delta band
	cfg.Delta.Min = getEnvAsFloatOrDefault("MIN_DELTA", 0.16)
	cfg.Delta.Max = getEnvAsFloatOrDefault("MAX_DELTA", 0.22)

	// Ingestion settings
	cfg.Ingest.SymbolSource = getEnvOrDefault("SYMBOL_SOURCE", SourceFile)
	cfg.Ingest.WatchlistFile = getEnvOrDefault("WATCHLIST_FILE", "watchlist.json")
	cfg.Ingest.TruncateBeforeBatch = getEnvAsBoolOrDefault("TRUNCATE_BEFORE_BATCH", true)
	cfg.Ingest.PersistMaxRetries = getEnvAsUintOrDefault("PERSIST_MAX_RETRIES", 0)

	cfg.Sink.Driver = getEnvOrDefault("SINK_DRIVER", DriverPostgres)

	// Postgres settings
	cfg.Postgres.Host = getEnvOrDefault("POSTGRES_HOST", "localhost")
	cfg.Postgres.Port = getEnvAsIntOrDefault("POSTGRES_PORT", 5432)
	cfg.Postgres.User = getEnvOrDefault("POSTGRES_USER", "postgres")
	cfg.Postgres.Password = os.Getenv("POSTGRES_PASSWORD")
	cfg.Postgres.Database = getEnvOrDefault("POSTGRES_DB", "options")
	cfg.Postgres.SSLMode = getEnvOrDefault("POSTGRES_SSLMODE", "disable")
	cfg.Postgres.MaxOpenConns = getEnvAsIntOrDefault("POSTGRES_MAX_OPEN_CONNS", 1)
	cfg.Postgres.ConnMaxLifetime = time.Duration(getEnvAsIntOrDefault("POSTGRES_CONN_MAX_LIFETIME_MINS", 60)) * time.Minute

	// ClickHouse settings
	cfg.ClickHouse.Host = getEnvOrDefault("CLICKHOUSE_HOST", "localhost")
	cfg.ClickHouse.Port = getEnvAsIntOrDefault("CLICKHOUSE_PORT", 9000)
	cfg.ClickHouse.User = getEnvOrDefault("CLICKHOUSE_USER", "default")
	cfg.ClickHouse.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	cfg.ClickHouse.Database = getEnvOrDefault("CLICKHOUSE_DB", "default")
	cfg.ClickHouse.MaxOpenConns = getEnvAsIntOrDefault("CLICKHOUSE_MAX_OPEN_CONNS", 10)
	cfg.ClickHouse.MaxIdleConns = getEnvAsIntOrDefault("CLICKHOUSE_MAX_IDLE_CONNS", 5)
	cfg.ClickHouse.ConnMaxLifetime = time.Duration(getEnvAsIntOrDefault("CLICKHOUSE_CONN_MAX_LIFETIME_MINS", 60)) * time.Minute
	cfg.ClickHouse.QueryTimeout = time.Duration(getEnvAsIntOrDefault("CLICKHOUSE_QUERY_TIMEOUT_SECS", 30)) * time.Second
	cfg.ClickHouse.Debug = cfg.App.Environment != "production"

	cfg.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", ":8080")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Delta.Min < 0 || c.Delta.Max > 1 || c.Delta.Min > c.Delta.Max {
		return fmt.Errorf("invalid delta band [%v, %v]", c.Delta.Min, c.Delta.Max)
	}
	if c.Feed.IdleTimeout <= 0 {
		return fmt.Errorf("FEED_IDLE_TIMEOUT_SECS must be positive")
	}
	switch c.Ingest.SymbolSource {
	case SourceFile, SourceTable, SourceChain:
	default:
		return fmt.Errorf("unknown SYMBOL_SOURCE %q", c.Ingest.SymbolSource)
	}
	switch c.Sink.Driver {
	case DriverPostgres, DriverClickHouse:
	default:
		return fmt.Errorf("unknown SINK_DRIVER %q", c.Sink.Driver)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsUintOrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uintVal, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uintVal
		}
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
