package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"wss://trade.example.com", "https://trade.example.com"},
		{"ws://localhost:8080", "http://localhost:8080"},
		{"https://already.example.com", "https://already.example.com"},
	}

	for _, tt := range tests {
		if got := httpURL(tt.in); got != tt.want {
			t.Errorf("httpURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionOrDefault(t *testing.T) {
	tests := []struct {
		name string
		v    int
		err  error
		want int
	}{
		{"probe ok", 2, nil, 2},
		{"probe failed", 5, errors.New("boom"), DefaultVersion},
		{"zero version", 0, nil, DefaultVersion},
		{"negative version", -3, nil, DefaultVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := versionOrDefault(tt.v, tt.err); got != tt.want {
				t.Errorf("versionOrDefault(%d, %v) = %d, want %d", tt.v, tt.err, got, tt.want)
			}
		})
	}
}

func TestHubInit(t *testing.T) {
	t.Run("reports probed version", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/backend/api/v1/version" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write([]byte(`{"apiVersion": 2}`))
		}))
		defer server.Close()

		h := NewHub(wsURL(server))
		h.Init(context.Background())

		if h.Version() != 2 {
			t.Errorf("Version() = %d, want 2", h.Version())
		}
	})

	t.Run("falls back when endpoint fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		h := NewHub(wsURL(server))
		h.Init(context.Background())

		if h.Version() != 1 {
			t.Errorf("Version() = %d, want 1", h.Version())
		}
	})

	t.Run("falls back when unreachable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := wsURL(server)
		server.Close()

		h := NewHub(url, WithHTTPClient(&http.Client{Timeout: time.Second}))
		h.Init(context.Background())

		if h.Version() != 1 {
			t.Errorf("Version() = %d, want 1", h.Version())
		}
	})

	t.Run("falls back on bad payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"apiVersion": "two"}`))
		}))
		defer server.Close()

		h := NewHub(wsURL(server))
		h.Init(context.Background())

		if h.Version() != 1 {
			t.Errorf("Version() = %d, want 1", h.Version())
		}
	})
}

func TestNewHub(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		h := NewHub("wss://stream.example.com/")

		if h.BaseURL() != "wss://stream.example.com" {
			t.Errorf("BaseURL() = %q, want trailing slash trimmed", h.BaseURL())
		}
		if h.Version() != DefaultVersion {
			t.Errorf("Version() before Init = %d, want %d", h.Version(), DefaultVersion)
		}
		if h.bufferSize != DefaultBufferSize {
			t.Errorf("bufferSize = %d, want %d", h.bufferSize, DefaultBufferSize)
		}
		if h.pingTimeout != DefaultPingTimeout {
			t.Errorf("pingTimeout = %v, want %v", h.pingTimeout, DefaultPingTimeout)
		}

		b, ok := h.newBackoff().(*backoff.ExponentialBackOff)
		if !ok {
			t.Fatalf("default backoff is %T, want *backoff.ExponentialBackOff", h.newBackoff())
		}
		if b.InitialInterval != DefaultReconnectBase || b.MaxInterval != DefaultReconnectMax {
			t.Errorf("backoff = %v..%v, want %v..%v", b.InitialInterval, b.MaxInterval, DefaultReconnectBase, DefaultReconnectMax)
		}
	})

	t.Run("channel urls", func(t *testing.T) {
		h := NewHub("ws://127.0.0.1:1", WithBackoff(func() backoff.BackOff { return &backoff.StopBackOff{} }))
		ctx := context.Background()

		all := h.AllTickers(ctx)
		one := h.Ticker(ctx, "ORN-USDT")
		ob := h.OrderBook(ctx, "ORN-USDT")
		defer all.Close()
		defer one.Close()
		defer ob.Close()

		if all.URL() != "ws://127.0.0.1:1/ws2/allTickers" {
			t.Errorf("AllTickers URL = %q", all.URL())
		}
		if one.URL() != "ws://127.0.0.1:1/ws2/ticker/ORN-USDT" {
			t.Errorf("Ticker URL = %q", one.URL())
		}
		if ob.URL() != "ws://127.0.0.1:1/v1" {
			t.Errorf("OrderBook URL = %q", ob.URL())
		}
		if ob.query == nil || ob.query.S != "ORN-USDT" || ob.query.T != "aobus" {
			t.Errorf("OrderBook query = %+v, want {S:ORN-USDT T:aobus}", ob.query)
		}
		if all.query != nil || one.query != nil {
			t.Error("ticker subscriptions should not carry a query")
		}
		if all.ID() == one.ID() {
			t.Error("subscription IDs should be unique")
		}
	})
}
