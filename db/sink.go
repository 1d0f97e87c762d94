package db

import (
	"context"
	"fmt"

	"greeks_ingest/models"
)

const (
	GreeksTable = "greeks"
	QuotesTable = "option_chains"
)

// Sink is the single writer of record for ingested events.
type Sink interface {
	// InsertGreeks appends one row; there is no update on conflict.
	InsertGreeks(ctx context.Context, rec models.GreeksRecord) error
	// UpsertQuote refreshes the quote fields of a known symbol. matched is
	// false when no row carries the symbol; that is not an error.
	UpsertQuote(ctx context.Context, q models.QuoteRecord) (matched bool, err error)
	// Truncate removes every row of table before a fresh batch.
	Truncate(ctx context.Context, table string) error
	// EventSymbols lists the symbols of the stored greeks rows.
	EventSymbols(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// PersistenceError is a failed write or read against the store. The
// ingestion loop logs it and moves on.
type PersistenceError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *PersistenceError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op, symbol string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Symbol: symbol, Err: err}
}

func checkTable(table string) error {
	switch table {
	case GreeksTable, QuotesTable:
		return nil
	}
	return fmt.Errorf("table %q is not managed by this sink", table)
}
