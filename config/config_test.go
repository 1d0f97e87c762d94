package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp isolates Load from any .env in the package directory.
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.16, cfg.Delta.Min)
	assert.Equal(t, 0.22, cfg.Delta.Max)
	assert.Equal(t, 30*time.Second, cfg.Feed.IdleTimeout)
	assert.Equal(t, SourceFile, cfg.Ingest.SymbolSource)
	assert.Equal(t, DriverPostgres, cfg.Sink.Driver)
	assert.True(t, cfg.Ingest.TruncateBeforeBatch)
	assert.Zero(t, cfg.Ingest.PersistMaxRetries)
	assert.Equal(t, ":8080", cfg.Metrics.Addr)
	assert.False(t, cfg.ClickHouse.Debug)
}

func TestLoadOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("MIN_DELTA", "0.1")
	t.Setenv("MAX_DELTA", "0.3")
	t.Setenv("FEED_IDLE_TIMEOUT_SECS", "5")
	t.Setenv("SYMBOL_SOURCE", "chain")
	t.Setenv("SINK_DRIVER", "clickhouse")
	t.Setenv("TRUNCATE_BEFORE_BATCH", "false")
	t.Setenv("PERSIST_MAX_RETRIES", "2")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.1, cfg.Delta.Min)
	assert.Equal(t, 0.3, cfg.Delta.Max)
	assert.Equal(t, 5*time.Second, cfg.Feed.IdleTimeout)
	assert.Equal(t, SourceChain, cfg.Ingest.SymbolSource)
	assert.Equal(t, DriverClickHouse, cfg.Sink.Driver)
	assert.False(t, cfg.Ingest.TruncateBeforeBatch)
	assert.Equal(t, uint64(2), cfg.Ingest.PersistMaxRetries)
	assert.True(t, cfg.ClickHouse.Debug)
}

func TestLoadDotEnv(t *testing.T) {
	chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(".", ".env"), []byte("MAX_DELTA=0.25\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("MAX_DELTA") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Delta.Max)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"inverted band", "MIN_DELTA", "0.5"},
		{"unknown source", "SYMBOL_SOURCE", "redis"},
		{"unknown driver", "SINK_DRIVER", "mysql"},
		{"zero idle timeout", "FEED_IDLE_TIMEOUT_SECS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p w'd", Database: "options", SSLMode: "disable"}
	assert.Equal(t, `host=db port=5432 user=u password='p w\'d' dbname=options sslmode=disable`, p.DSN())

	p.Password = ""
	assert.Contains(t, p.DSN(), "password=''")
}
