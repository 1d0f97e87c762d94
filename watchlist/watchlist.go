// Package watchlist resolves the symbols an ingestion batch subscribes to.
package watchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"greeks_ingest/tasty"
)

type Source interface {
	Resolve(ctx context.Context) ([]string, error)
}

// Entry is one element of the watchlist file. Other keys are ignored.
type Entry struct {
	Symbol string `json:"symbol"`
}

// FileSource reads a JSON array of {"symbol": ...} objects. Entries without
// a symbol are skipped.
type FileSource struct {
	Path string
}

func (s FileSource) Resolve(ctx context.Context) ([]string, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist %s: %w", s.Path, err)
	}

	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Symbol != "" {
			symbols = append(symbols, e.Symbol)
		}
	}
	return symbols, nil
}

type symbolLister interface {
	EventSymbols(ctx context.Context) ([]string, error)
}

// TableSource takes the symbols of the greeks rows already stored, which is
// how the quote refresh picks its universe.
type TableSource struct {
	Store symbolLister
}

func (s TableSource) Resolve(ctx context.Context) ([]string, error) {
	symbols, err := s.Store.EventSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored symbols: %w", err)
	}
	return symbols, nil
}

type chainFetcher interface {
	NestedOptionChain(ctx context.Context, symbol string) (*tasty.NestedChain, error)
}

// ChainSource expands each watchlist underlying into the streamer symbols
// of its monthly expiration nearest TargetDTE.
type ChainSource struct {
	Underlyings Source
	Chains      chainFetcher
	TargetDTE   int
	Log         *zap.SugaredLogger
}

func (s ChainSource) Resolve(ctx context.Context) ([]string, error) {
	underlyings, err := s.Underlyings.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	target := s.TargetDTE
	if target == 0 {
		target = tasty.MonthlyTargetDTE
	}

	var symbols []string
	for _, u := range underlyings {
		chain, err := s.Chains.NestedOptionChain(ctx, u)
		if err != nil {
			return nil, err
		}

		exp, ok := tasty.NearestMonthly(chain.Expirations, target)
		if !ok {
			s.Log.Warnw("No monthly expiration", "underlying", u)
			continue
		}

		subs := exp.StreamerSymbols()
		s.Log.Infow("Resolved option chain",
			"underlying", u,
			"expiration", exp.ExpirationDate,
			"dte", exp.DaysToExpiration,
			"symbols", len(subs))
		symbols = append(symbols, subs...)
	}
	return symbols, nil
}

// Distinct drops repeated symbols, keeping first occurrences in order.
func Distinct(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
