package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"greeks_ingest/config"
	"greeks_ingest/db"
	"greeks_ingest/greeks"
	"greeks_ingest/ingest"
	"greeks_ingest/middleware"
	"greeks_ingest/models"
	"greeks_ingest/monitoring"
	"greeks_ingest/tasty"
	"greeks_ingest/utils"
	"greeks_ingest/watchlist"
	"greeks_ingest/ws"
)

const usage = `usage: greeks_ingest [-source file|table|chain] <command>

commands:
  greeks   ingest one Greeks event per watchlist symbol
  quotes   refresh bid/ask of every stored symbol
  all      greeks, then quotes
`

func main() {
	source := flag.String("source", "", "symbol source override (file, table, chain)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cmd := "greeks"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if cmd != "greeks" && cmd != "quotes" && cmd != "all" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(cmd, *source); err != nil {
		fmt.Fprintf(os.Stderr, "greeks_ingest: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd, sourceOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(cfg.App.LogLevel, cfg.App.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openSink(ctx, cfg)
	if err != nil {
		utils.Error(logger, err, "Failed to open sink", "driver", cfg.Sink.Driver)
		return err
	}
	sink := middleware.NewResilientSink(store, cfg.Ingest.PersistMaxRetries, logger)
	defer sink.Close()

	health := monitoring.NewHealth()
	health.RegisterHealthCheck("sink", store.Ping)
	monitoring.StartMetricsCollection(ctx, 5*time.Second)

	server := startMetricsServer(cfg.Metrics.Addr, health, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetricsServer(shutdownCtx, server); err != nil {
			utils.Error(logger, err, "Metrics server shutdown error", "addr", cfg.Metrics.Addr)
		}
	}()

	client := tasty.NewClient(cfg.Feed.APIURL, tasty.Credentials{
		Username: cfg.Feed.Username,
		Password: cfg.Feed.Password,
	}, cfg.Feed.HTTPTimeout).WithRateLimit(cfg.Feed.RequestsPerMin)

	dxlink := ws.NewDXLinkFeed(client, ws.Config{
		IdleTimeout:    cfg.Feed.IdleTimeout,
		ConnectRetries: cfg.Feed.ConnectRetries,
		BufferSize:     cfg.Feed.BufferSize,
	}, logger)

	loopCfg := ingest.Config{
		Band:                greeks.Band{Min: cfg.Delta.Min, Max: cfg.Delta.Max},
		TruncateBeforeBatch: cfg.Ingest.TruncateBeforeBatch,
	}

	logger.Infow("Starting ingestion",
		"command", cmd,
		"sink", cfg.Sink.Driver,
		"min_delta", cfg.Delta.Min,
		"max_delta", cfg.Delta.Max)

	if cmd == "greeks" || cmd == "all" {
		name := cfg.Ingest.SymbolSource
		if sourceOverride != "" {
			name = sourceOverride
		}
		src, err := newSource(name, cfg, sink, client, logger)
		if err != nil {
			return err
		}
		loop := ingest.NewLoop(dxlink, sink, src, loopCfg, logger)
		if _, err := runBatch(ctx, logger, loop.RunGreeks); err != nil {
			return err
		}
	}

	if cmd == "quotes" || cmd == "all" {
		name := config.SourceTable
		if sourceOverride != "" {
			name = sourceOverride
		}
		src, err := newSource(name, cfg, sink, client, logger)
		if err != nil {
			return err
		}
		loop := ingest.NewLoop(dxlink, sink, src, loopCfg, logger)
		if _, err := runBatch(ctx, logger, loop.RunQuotes); err != nil {
			return err
		}
	}

	return nil
}

func runBatch(ctx context.Context, log *zap.SugaredLogger, batch func(context.Context) (models.BatchStats, error)) (models.BatchStats, error) {
	var stats models.BatchStats
	err := middleware.RecoverMiddleware(log, func() error {
		var err error
		stats, err = batch(ctx)
		return err
	})
	if err != nil {
		utils.Error(log, err, "Ingestion batch failed", "batch_id", stats.BatchID, "kind", stats.Kind)
	}
	return stats, err
}

func openSink(ctx context.Context, cfg *config.Config) (db.Sink, error) {
	switch cfg.Sink.Driver {
	case config.DriverPostgres:
		return db.NewPostgresSink(ctx, cfg.Postgres)
	case config.DriverClickHouse:
		return db.NewClickHouseDB(ctx, cfg.ClickHouse)
	}
	return nil, fmt.Errorf("unknown sink driver %q", cfg.Sink.Driver)
}

func newSource(name string, cfg *config.Config, sink db.Sink, client *tasty.Client, log *zap.SugaredLogger) (watchlist.Source, error) {
	file := watchlist.FileSource{Path: cfg.Ingest.WatchlistFile}

	switch name {
	case config.SourceFile:
		return file, nil
	case config.SourceTable:
		return watchlist.TableSource{Store: sink}, nil
	case config.SourceChain:
		return watchlist.ChainSource{
			Underlyings: file,
			Chains:      client,
			TargetDTE:   tasty.MonthlyTargetDTE,
			Log:         log,
		}, nil
	}
	return nil, fmt.Errorf("unknown symbol source %q", name)
}

func shutdownMetricsServer(ctx context.Context, server *http.Server) error {
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}
	return nil
}

func startMetricsServer(addr string, health http.Handler, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           utils.RequestLogger(log, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error(log, err, "Metrics server error", "addr", addr)
		}
	}()

	return server
}
