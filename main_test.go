package main

import (
	"context"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"greeks_ingest/config"
	"greeks_ingest/tasty"
	"greeks_ingest/watchlist"
)

func TestNewSource(t *testing.T) {
	cfg := &config.Config{}
	cfg.Ingest.WatchlistFile = "watchlist.json"
	client := tasty.NewClient("http://localhost", tasty.Credentials{}, 0)
	log := zap.NewNop().Sugar()

	src, err := newSource(config.SourceFile, cfg, nil, client, log)
	require.NoError(t, err)
	assert.Equal(t, watchlist.FileSource{Path: "watchlist.json"}, src)

	src, err = newSource(config.SourceTable, cfg, nil, client, log)
	require.NoError(t, err)
	assert.IsType(t, watchlist.TableSource{}, src)

	src, err = newSource(config.SourceChain, cfg, nil, client, log)
	require.NoError(t, err)
	chain, ok := src.(watchlist.ChainSource)
	require.True(t, ok)
	assert.Equal(t, tasty.MonthlyTargetDTE, chain.TargetDTE)

	_, err = newSource("redis", cfg, nil, client, log)
	assert.Error(t, err)
}

func TestShutdownMetricsServer(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	defer close(release)

	go func() {
		if resp, err := http.Get("http://" + ln.Addr().String()); err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = shutdownMetricsServer(ctx, srv)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorContains(t, err, "failed to shut down metrics server")

	idle := &http.Server{}
	assert.NoError(t, shutdownMetricsServer(context.Background(), idle))
}
