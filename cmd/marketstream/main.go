// marketstream initialises the chain bridge for one network, prints its fee
// inputs, and streams tickers and order books to the console.
// Usage: go run ./cmd/marketstream --config configs/chainbridge.example.yaml
//
// Variables in a local .env file are loaded before the config is read.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/joho/godotenv"

	"github.com/rickgao/chainbridge/internal/api"
	"github.com/rickgao/chainbridge/internal/chain"
	"github.com/rickgao/chainbridge/internal/config"
	"github.com/rickgao/chainbridge/internal/logging"
	"github.com/rickgao/chainbridge/internal/model"
	"github.com/rickgao/chainbridge/internal/stream"
	"github.com/rickgao/chainbridge/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/chainbridge.example.yaml", "path to config file")
	symbol := flag.String("ticker", "", "stream a single ticker instead of all tickers")
	pairs := flag.String("pairs", "", "comma-separated order book pairs (overrides config)")
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

	network, err := cfg.SelectedNetwork()
	if err != nil {
		logger.Error("failed to select network", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
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

	logger.Info("initialising chain bridge", "network", network.Name, "backend", network.BackendURL)
	if err := bridge.Init(ctx); err != nil {
		logger.Error("failed to initialise chain bridge", "error", err)
		os.Exit(1)
	}

	if err := printFeeInputs(ctx, bridge); err != nil {
		logger.Error("failed to fetch fee inputs", "error", err)
		os.Exit(1)
	}

	if network.StreamURL == "" {
		logger.Info("network has no stream_url, nothing to stream")
		return
	}

	hub := stream.NewHub(network.StreamURL,
		stream.WithLogger(logger),
		stream.WithHeader(http.Header{"User-Agent": {version.UserAgent()}}),
		stream.WithBackoff(reconnectPolicy(cfg.Stream)),
		stream.WithBufferSize(cfg.Stream.BufferSize),
		stream.WithPingInterval(cfg.Stream.PingInterval),
		stream.WithPingTimeout(cfg.Stream.PingTimeout),
		stream.WithWriteTimeout(cfg.Stream.WriteTimeout),
		stream.WithMinUptime(cfg.Stream.MinUptime),
	)
	hub.Init(ctx)
	logger.Info("stream hub ready", "url", hub.BaseURL(), "api_version", hub.Version())

	var tickers *stream.Subscription[model.TickerBatch]
	if *symbol != "" {
		tickers = hub.Ticker(ctx, *symbol)
	} else {
		tickers = hub.AllTickers(ctx)
	}

	books := make([]*stream.Subscription[model.OrderbookUpdate], 0)
	for _, pair := range orderbookPairs(*pairs, cfg.Stream.Pairs) {
		books = append(books, hub.OrderBook(ctx, pair))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		printTickers(tickers)
	}()
	for _, sub := range books {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printOrderbook(sub)
		}()
	}

	logger.Info("streaming started - press Ctrl+C to stop", "orderbooks", len(books))

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	tickers.Close()
	for _, sub := range books {
		sub.Close()
	}
	wg.Wait()

	if err := tickers.Err(); err != nil {
		logger.Warn("ticker stream ended with error", "error", err)
	}
	logger.Info("shutdown complete")
}

// reconnectPolicy builds a fresh exponential policy per subscription.
func reconnectPolicy(cfg config.StreamConfig) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = cfg.ReconnectBaseDelay
		b.MaxInterval = cfg.ReconnectMaxDelay
		return b
	}
}

// orderbookPairs prefers the flag value over the configured list.
func orderbookPairs(flagValue string, configured []string) []string {
	if flagValue == "" {
		return configured
	}
	var out []string
	for _, p := range strings.Split(flagValue, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printFeeInputs(ctx context.Context, bridge *chain.Bridge) error {
	info, err := bridge.BlockchainInfo()
	if err != nil {
		return err
	}
	fmt.Printf("[NETWORK] chain=%s id=%d base_currency=%s assets=%d\n",
		info.ChainName, info.ChainID, info.BaseCurrencyName, len(info.AssetToAddress))

	prices, err := bridge.Prices(ctx)
	if err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	symbols := prices.Symbols()
	sort.Strings(symbols)
	for _, sym := range symbols {
		fmt.Printf("[PRICE] %s=%s\n", sym, prices[sym])
	}

	gas, err := bridge.GasPrice(ctx)
	if err != nil {
		return fmt.Errorf("gas price: %w", err)
	}
	fmt.Printf("[GAS] wei=%s source=%s\n", gas, gasSource(bridge))

	return nil
}

func gasSource(bridge *chain.Bridge) string {
	if bridge.IsEthereum() {
		return "backend"
	}
	return "node"
}

func printTickers(sub *stream.Subscription[model.TickerBatch]) {
	for batch := range sub.Messages() {
		names := make([]string, 0, len(batch.Pairs))
		for name := range batch.Pairs {
			names = append(names, name)
		}
		sort.Strings(names)

		ts := time.UnixMilli(batch.Timestamp).UTC().Format(time.RFC3339)
		for _, name := range names {
			p := batch.Pairs[name]
			fmt.Printf("[TICKER] %s pair=%s last=%s change=%s%% vol=%s\n",
				ts, name, p.LastPrice, p.Change24h.StringFixed(2), p.Volume24h)
		}
	}
}

func printOrderbook(sub *stream.Subscription[model.OrderbookUpdate]) {
	for ob := range sub.Messages() {
		fmt.Printf("[ORDERBOOK] pair=%s ts=%d asks=%d bids=%d best_ask=%s best_bid=%s\n",
			ob.Pair, ob.Timestamp, len(ob.Asks), len(ob.Bids), best(ob.Asks), best(ob.Bids))
	}
}

func best(levels []model.OrderbookLevel) string {
	if len(levels) == 0 {
		return "-"
	}
	return levels[0].Price.String()
}
