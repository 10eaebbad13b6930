package stream

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/rickgao/chainbridge/internal/api"
	"github.com/rickgao/chainbridge/internal/model"
)

// DefaultVersion is reported when the version probe fails.
const DefaultVersion = 1

// Hub opens subscriptions against one aggregator stream endpoint.
type Hub struct {
	baseURL      string
	logger       *slog.Logger
	httpClient   *http.Client
	dialer       *websocket.Dialer
	header       http.Header
	newBackoff   func() backoff.BackOff
	matches      TagMatcher
	bufferSize   int
	pingInterval time.Duration
	pingTimeout  time.Duration
	writeTimeout time.Duration
	minUptime    time.Duration

	version atomic.Int64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used by the version probe.
func WithHTTPClient(hc *http.Client) HubOption {
	return func(h *Hub) {
		h.httpClient = hc
	}
}

// WithDialer sets the WebSocket dialer.
func WithDialer(d *websocket.Dialer) HubOption {
	return func(h *Hub) {
		h.dialer = d
	}
}

// WithHeader sets extra handshake headers.
func WithHeader(header http.Header) HubOption {
	return func(h *Hub) {
		h.header = header
	}
}

// WithBackoff sets the reconnect policy factory. Each subscription gets its own policy.
func WithBackoff(newBackoff func() backoff.BackOff) HubOption {
	return func(h *Hub) {
		h.newBackoff = newBackoff
	}
}

// WithTagMatcher replaces the reply tag rule used by filtered subscriptions.
func WithTagMatcher(m TagMatcher) HubOption {
	return func(h *Hub) {
		h.matches = m
	}
}

// WithBufferSize sets the per-subscription message buffer.
func WithBufferSize(n int) HubOption {
	return func(h *Hub) {
		h.bufferSize = n
	}
}

// WithPingInterval sets how often subscriptions ping the server. Zero disables pings.
func WithPingInterval(d time.Duration) HubOption {
	return func(h *Hub) {
		h.pingInterval = d
	}
}

// WithPingTimeout sets how long a socket may stay silent before it is dropped.
func WithPingTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.pingTimeout = d
	}
}

// WithWriteTimeout sets the write deadline for query frames.
func WithWriteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.writeTimeout = d
	}
}

// WithMinUptime sets how long a connection must stay open before the
// reconnect policy starts over.
func WithMinUptime(d time.Duration) HubOption {
	return func(h *Hub) {
		h.minUptime = d
	}
}

// NewHub creates a Hub for a ws:// or wss:// base URL.
func NewHub(baseURL string, opts ...HubOption) *Hub {
	h := &Hub{
		baseURL:      strings.TrimRight(baseURL, "/"),
		matches:      replyTagMatches,
		bufferSize:   DefaultBufferSize,
		pingInterval: DefaultPingInterval,
		pingTimeout:  DefaultPingTimeout,
		writeTimeout: DefaultWriteTimeout,
		minUptime:    DefaultMinUptime,
		newBackoff:   defaultBackoff,
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.bufferSize < 0 {
		h.bufferSize = 0
	}

	h.version.Store(DefaultVersion)

	return h
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultReconnectBase
	b.MaxInterval = DefaultReconnectMax
	return b
}

// BaseURL returns the stream base URL.
func (h *Hub) BaseURL() string {
	return h.baseURL
}

// Version returns the protocol version found by Init.
func (h *Hub) Version() int {
	return int(h.version.Load())
}

// Init probes the backend's protocol version. It never fails: any probe
// error leaves the version at DefaultVersion.
func (h *Hub) Init(ctx context.Context) {
	v, err := h.probeVersion(ctx)
	if err != nil {
		h.logger.Warn("version probe failed, using default",
			"error", err,
			"default", DefaultVersion,
		)
	}
	v = versionOrDefault(v, err)
	h.version.Store(int64(v))

	h.logger.Info("stream hub initialized", "url", h.baseURL, "version", v)
}

func (h *Hub) probeVersion(ctx context.Context) (int, error) {
	opts := []api.ClientOption{api.WithLogger(h.logger), api.WithRetries(0, 0)}
	if h.httpClient != nil {
		opts = append(opts, api.WithHTTPClient(h.httpClient))
	}
	return api.NewClient(httpURL(h.baseURL), opts...).GetVersion(ctx)
}

// versionOrDefault returns v, or DefaultVersion when the probe failed or reported nonsense.
func versionOrDefault(v int, err error) int {
	if err != nil || v <= 0 {
		return DefaultVersion
	}
	return v
}

// httpURL maps a stream base URL to the matching HTTP(S) URL.
func httpURL(base string) string {
	switch {
	case strings.HasPrefix(base, "wss://"):
		return "https://" + strings.TrimPrefix(base, "wss://")
	case strings.HasPrefix(base, "ws://"):
		return "http://" + strings.TrimPrefix(base, "ws://")
	default:
		return base
	}
}

func (h *Hub) socketConfig(path string) socketConfig {
	return socketConfig{
		URL:          h.baseURL + path,
		Dialer:       h.dialer,
		Header:       h.header,
		PingInterval: h.pingInterval,
		PingTimeout:  h.pingTimeout,
		WriteTimeout: h.writeTimeout,
		BufferSize:   h.bufferSize,
		MinUptime:    h.minUptime,
	}
}

// AllTickers subscribes to the full-market ticker feed.
func (h *Hub) AllTickers(ctx context.Context) *Subscription[model.TickerBatch] {
	return newSubscription(ctx, h.socketConfig(pathAllTickers), nil, h.matches, parsePairs, h.newBackoff(), h.logger)
}

// Ticker subscribes to the ticker feed of one symbol.
func (h *Hub) Ticker(ctx context.Context, symbol string) *Subscription[model.TickerBatch] {
	return newSubscription(ctx, h.socketConfig(pathTicker+url.PathEscape(symbol)), nil, h.matches, parsePairs, h.newBackoff(), h.logger)
}

// OrderBook subscribes to aggregated order-book updates for pair.
func (h *Hub) OrderBook(ctx context.Context, pair string) *Subscription[model.OrderbookUpdate] {
	query := &Query{S: pair, T: TypeAggregatedOrderBookUpdates}
	return newSubscription(ctx, h.socketConfig(pathOrderBook), query, h.matches, parseOrderbook, h.newBackoff(), h.logger)
}
