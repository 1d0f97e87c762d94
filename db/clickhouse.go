package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"greeks_ingest/config"
	"greeks_ingest/models"
)

var createClickHouseTablesSQL = []string{`
CREATE TABLE IF NOT EXISTS greeks (
    event_symbol String,
    event_index Int64,
    event_time Int64,
    event_flags Int32,
    sequence Int64,
    price Float64,
    volatility Float64,
    delta Float64,
    gamma Float64,
    theta Float64,
    rho Float64,
    vega Float64,
    root LowCardinality(String),
    expiration Date,
    option_type LowCardinality(String),
    strike Float64,
    ingested_at DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (root, expiration, event_symbol, event_time)
`, `
CREATE TABLE IF NOT EXISTS option_chains (
    streamer_symbol String,
    bid_price Float64,
    ask_price Float64,
    bid_size Float64,
    ask_size Float64,
    updated_at DateTime64(3)
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY streamer_symbol
`}

var greeksInsertColumns = append(append([]string{}, models.GreeksColumns...),
	"root", "expiration", "option_type", "strike", "ingested_at")

// ClickHouseDB keeps the greeks history with the contract decomposed into
// columns. Quotes go to a ReplacingMergeTree so the newest row per symbol
// wins; a quote only counts as matched when greeks were stored for it.
type ClickHouseDB struct {
	conn driver.Conn
	now  func() time.Time
}

var _ Sink = (*ClickHouseDB)(nil)

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:        clickhouse.Native,
		Debug:           cfg.Debug,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Settings: clickhouse.Settings{
			"max_execution_time": int(cfg.QueryTimeout.Seconds()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	db := &ClickHouseDB{conn: conn, now: time.Now}
	if err := db.createTables(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *ClickHouseDB) createTables(ctx context.Context) error {
	for _, stmt := range createClickHouseTablesSQL {
		if err := db.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (db *ClickHouseDB) InsertGreeks(ctx context.Context, rec models.GreeksRecord) error {
	row, err := greeksRow(rec, db.now())
	if err != nil {
		return persistErr("insert greeks", rec.Symbol, err)
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO greeks ("+strings.Join(greeksInsertColumns, ", ")+")")
	if err != nil {
		return persistErr("insert greeks", rec.Symbol, err)
	}
	if err := batch.Append(row...); err != nil {
		batch.Abort()
		return persistErr("insert greeks", rec.Symbol, err)
	}
	return persistErr("insert greeks", rec.Symbol, batch.Send())
}

// greeksRow appends the decomposed contract to the record values.
func greeksRow(rec models.GreeksRecord, now time.Time) ([]interface{}, error) {
	sym, err := models.ParseOptionSymbol(rec.Symbol)
	if err != nil {
		return nil, err
	}
	strike, err := strconv.ParseFloat(sym.Strike, 64)
	if err != nil {
		return nil, fmt.Errorf("strike %q: %w", sym.Strike, err)
	}
	return append(rec.Values(), sym.Root, sym.Expiration, sym.Type.String(), strike, now), nil
}

func (db *ClickHouseDB) UpsertQuote(ctx context.Context, q models.QuoteRecord) (bool, error) {
	var known uint64
	if err := db.conn.QueryRow(ctx, "SELECT count() FROM greeks WHERE event_symbol = ?", q.Symbol).Scan(&known); err != nil {
		return false, persistErr("lookup symbol", q.Symbol, err)
	}
	if known == 0 {
		return false, nil
	}

	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO option_chains ("+strings.Join(models.QuoteColumns, ", ")+", updated_at)")
	if err != nil {
		return false, persistErr("upsert quote", q.Symbol, err)
	}
	if err := batch.Append(append(q.Values(), db.now())...); err != nil {
		batch.Abort()
		return false, persistErr("upsert quote", q.Symbol, err)
	}
	if err := batch.Send(); err != nil {
		return false, persistErr("upsert quote", q.Symbol, err)
	}
	return true, nil
}

func (db *ClickHouseDB) Truncate(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return persistErr("truncate", "", err)
	}
	return persistErr("truncate "+table, "", db.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+table))
}

func (db *ClickHouseDB) EventSymbols(ctx context.Context) ([]string, error) {
	rows, err := db.conn.Query(ctx, "SELECT event_symbol FROM greeks GROUP BY event_symbol ORDER BY min(ingested_at)")
	if err != nil {
		return nil, persistErr("select event symbols", "", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, persistErr("select event symbols", "", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, persistErr("select event symbols", "", rows.Err())
}

func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}
