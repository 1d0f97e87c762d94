package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"greeks_ingest/config"
	"greeks_ingest/models"
)

const createPostgresTablesSQL = `
CREATE TABLE IF NOT EXISTS greeks (
    id           BIGSERIAL PRIMARY KEY,
    event_symbol VARCHAR(50) NOT NULL,
    event_index  BIGINT NOT NULL,
    event_time   BIGINT NOT NULL,
    event_flags  INTEGER NOT NULL DEFAULT 0,
    sequence     BIGINT NOT NULL DEFAULT 0,
    price        DOUBLE PRECISION NOT NULL,
    volatility   DOUBLE PRECISION NOT NULL,
    delta        DOUBLE PRECISION NOT NULL,
    gamma        DOUBLE PRECISION NOT NULL,
    theta        DOUBLE PRECISION NOT NULL,
    rho          DOUBLE PRECISION NOT NULL,
    vega         DOUBLE PRECISION NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS option_chains (
    streamer_symbol VARCHAR(50) PRIMARY KEY,
    bid_price       DOUBLE PRECISION,
    ask_price       DOUBLE PRECISION,
    bid_size        DOUBLE PRECISION,
    ask_size        DOUBLE PRECISION,
    updated_at      TIMESTAMPTZ
);
`

var (
	insertGreeksSQL = fmt.Sprintf("INSERT INTO greeks (%s) VALUES (%s)",
		strings.Join(models.GreeksColumns, ", "),
		placeholders(len(models.GreeksColumns)))

	// Parameters follow models.QuoteColumns.
	updateQuoteSQL = `
		UPDATE option_chains
		SET bid_price = $2, ask_price = $3, bid_size = $4, ask_size = $5, updated_at = now()
		WHERE streamer_symbol = $1`
)

func placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ps, ", ")
}

// PostgresSink stores greeks rows and refreshes option chain quotes in
// Postgres.
type PostgresSink struct {
	db *sqlx.DB
}

var _ Sink = (*PostgresSink)(nil)

func NewPostgresSink(ctx context.Context, cfg config.PostgresConfig) (*PostgresSink, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxOpenConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return newPostgresSink(ctx, conn)
}

func newPostgresSink(ctx context.Context, conn *sqlx.DB) (*PostgresSink, error) {
	s := &PostgresSink{db: conn}
	if _, err := conn.ExecContext(ctx, createPostgresTablesSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *PostgresSink) InsertGreeks(ctx context.Context, rec models.GreeksRecord) error {
	_, err := s.db.ExecContext(ctx, insertGreeksSQL, rec.Values()...)
	return persistErr("insert greeks", rec.Symbol, err)
}

func (s *PostgresSink) UpsertQuote(ctx context.Context, q models.QuoteRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, updateQuoteSQL, q.Values()...)
	if err != nil {
		return false, persistErr("update quote", q.Symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistErr("update quote", q.Symbol, err)
	}
	return n > 0, nil
}

func (s *PostgresSink) Truncate(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return persistErr("truncate", "", err)
	}
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE "+pq.QuoteIdentifier(table))
	return persistErr("truncate "+table, "", err)
}

func (s *PostgresSink) EventSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.db.SelectContext(ctx, &symbols, "SELECT event_symbol FROM greeks ORDER BY id")
	if err != nil {
		return nil, persistErr("select event symbols", "", err)
	}
	return symbols, nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
