// pricewatch samples fee inputs for one network on an interval and records
// them to TimescaleDB, exposing a /health endpoint.
// Usage: go run ./cmd/pricewatch --config configs/chainbridge.example.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rickgao/chainbridge/internal/api"
	"github.com/rickgao/chainbridge/internal/chain"
	"github.com/rickgao/chainbridge/internal/config"
	"github.com/rickgao/chainbridge/internal/database"
	"github.com/rickgao/chainbridge/internal/logging"
	"github.com/rickgao/chainbridge/internal/model"
	"github.com/rickgao/chainbridge/internal/poller"
	"github.com/rickgao/chainbridge/internal/recorder"
	"github.com/rickgao/chainbridge/internal/stream"
	"github.com/rickgao/chainbridge/internal/version"
)

const initAttempts = 5

func main() {
	configPath := flag.String("config", "configs/chainbridge.example.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting pricewatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	network, err := cfg.SelectedNetwork()
	if err != nil {
		logger.Error("failed to select network", "error", err)
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	bridge := chain.New(network,
		chain.WithLogger(logger),
		chain.WithAPIOptions(
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
			api.WithBlockchainPath(cfg.API.BlockchainPath),
			api.WithUserAgent(version.UserAgent()),
		),
	)

	if err := initBridge(ctx, bridge, logger); err != nil {
		logger.Error("failed to initialise chain bridge", "error", err)
		os.Exit(1)
	}

	health := &healthState{
		network:  network.Name,
		interval: cfg.Poller.Interval,
	}

	var handler poller.SampleHandler = poller.SampleHandlerFunc(func(s model.FeeSample) error {
		logger.Info("fee sample",
			"base_asset", s.BaseAsset,
			"network_asset", s.Prices.NetworkAsset,
			"base_price", s.Prices.BaseAsset,
			"fee_price", s.Prices.FeeAsset,
			"gas_wei", s.Prices.GasWei,
			"latency", s.Latency,
		)
		return nil
	})

	var stops []func(context.Context) error

	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)

		pool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		health.db = pool

		if err := recorder.EnsureSchema(ctx, pool, cfg.Database.Hypertables); err != nil {
			logger.Error("failed to prepare schema", "error", err)
			os.Exit(1)
		}

		writerCfg := recorder.Config{
			BatchSize:     cfg.Database.BatchSize,
			FlushInterval: cfg.Database.FlushInterval,
			BufferSize:    cfg.Database.BufferSize,
		}

		fees := recorder.NewFeeWriter(writerCfg, pool, logger)
		fees.Start(ctx)
		stops = append(stops, fees.Stop)
		handler = fees

		if cfg.Database.RecordTickers && network.StreamURL != "" {
			stop := recordTickers(ctx, cfg, network, pool, writerCfg, health, logger)
			stops = append(stops, stop)
		}

		logger.Info("database connected")
	}

	p := poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout,
		BaseAssets:  cfg.Poller.BaseAssets,
		FeeAsset:    cfg.Poller.FeeAsset,
	}, bridge, handler, logger)
	health.stats = p.Stats

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: health.handler(),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	p.Start(ctx)

	logger.Info("pricewatch running",
		"network", network.Name,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Poller first so writers receive its last samples.
	p.Stop(shutdownCtx)
	for i := len(stops) - 1; i >= 0; i-- {
		if err := stops[i](shutdownCtx); err != nil {
			logger.Warn("shutdown step failed", "error", err)
		}
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("pricewatch stopped")
}

// initBridge retries Init on transport failures; malformed metadata is final.
func initBridge(ctx context.Context, bridge *chain.Bridge, logger *slog.Logger) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := bridge.Init(ctx)
		var te *api.TransportError
		if err != nil && !errors.As(err, &te) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(initAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("chain bridge init failed, retrying", "error", err, "retry_in", next)
		}),
	)
	return err
}

// recordTickers streams all tickers into the pair_tickers table.
func recordTickers(
	ctx context.Context,
	cfg *config.Config,
	network model.Network,
	pool *pgxpool.Pool,
	writerCfg recorder.Config,
	health *healthState,
	logger *slog.Logger,
) func(context.Context) error {
	hub := stream.NewHub(network.StreamURL,
		stream.WithLogger(logger),
		stream.WithHeader(http.Header{"User-Agent": {version.UserAgent()}}),
		stream.WithBackoff(func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.Stream.ReconnectBaseDelay
			b.MaxInterval = cfg.Stream.ReconnectMaxDelay
			return b
		}),
		stream.WithBufferSize(cfg.Stream.BufferSize),
		stream.WithPingInterval(cfg.Stream.PingInterval),
		stream.WithPingTimeout(cfg.Stream.PingTimeout),
		stream.WithWriteTimeout(cfg.Stream.WriteTimeout),
		stream.WithMinUptime(cfg.Stream.MinUptime),
	)
	hub.Init(ctx)

	tickers := recorder.NewTickerWriter(writerCfg, pool, logger)
	tickers.Start(ctx)

	sub := hub.AllTickers(ctx)
	health.tickers = sub.State

	done := make(chan struct{})
	go func() {
		defer close(done)
		for batch := range sub.Messages() {
			if err := tickers.Record(batch, time.Now()); err != nil {
				logger.Warn("dropped ticker batch", "error", err)
			}
		}
	}()

	return func(ctx context.Context) error {
		sub.Close()
		<-done
		return tickers.Stop(ctx)
	}
}
