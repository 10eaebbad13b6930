package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetBlockchainInfo(t *testing.T) {
	t.Run("successful response", func(t *testing.T) {
		server := newTestServer(t, map[string]string{
			"/api/info": `{
				"chainId": 97,
				"chainName": "bsc-testnet",
				"exchangeContractAddress": "0x0000000000000000000000000000000000000001",
				"assetToAddress": {"BNB": "0x0000000000000000000000000000000000000000", "ORN": "0xAbC0000000000000000000000000000000000001"}
			}`,
		})

		c := NewClient(server.URL)
		info, err := c.GetBlockchainInfo(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.ChainName != "bsc-testnet" {
			t.Errorf("ChainName = %q, want bsc-testnet", info.ChainName)
		}
		if info.ChainID != 97 {
			t.Errorf("ChainID = %d, want 97", info.ChainID)
		}
		if len(info.AssetToAddress) != 2 {
			t.Errorf("len(AssetToAddress) = %d, want 2", len(info.AssetToAddress))
		}
		if info.BaseCurrencyName != "" {
			t.Errorf("BaseCurrencyName = %q, should not be fetched", info.BaseCurrencyName)
		}
	})

	t.Run("missing asset table is malformed", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/api/info": `{"chainName": "x"}`})

		c := NewClient(server.URL)
		_, err := c.GetBlockchainInfo(context.Background())

		var me *MalformedResponseError
		if !errors.As(err, &me) {
			t.Fatalf("expected *MalformedResponseError, got %T (%v)", err, err)
		}
	})

	t.Run("invalid json is malformed", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/api/info": `not json`})

		c := NewClient(server.URL)
		_, err := c.GetBlockchainInfo(context.Background())

		var me *MalformedResponseError
		if !errors.As(err, &me) {
			t.Fatalf("expected *MalformedResponseError, got %T (%v)", err, err)
		}
	})

	t.Run("custom blockchain path", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/bc/info": `{"assetToAddress": {}}`})

		c := NewClient(server.URL, WithBlockchainPath("/bc"))
		if _, err := c.GetBlockchainInfo(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestGetPrices(t *testing.T) {
	t.Run("numbers and strings keep precision", func(t *testing.T) {
		server := newTestServer(t, map[string]string{
			"/api/prices": `{"0xa": 0.123456789012345678901, "0xb": "42.000000000000000001"}`,
		})

		c := NewClient(server.URL)
		prices, err := c.GetPrices(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := prices["0xa"].String(); got != "0.123456789012345678901" {
			t.Errorf("prices[0xa] = %s, want 0.123456789012345678901", got)
		}
		if got := prices["0xb"].String(); got != "42.000000000000000001" {
			t.Errorf("prices[0xb] = %s, want 42.000000000000000001", got)
		}
	})

	t.Run("non-numeric price is malformed", func(t *testing.T) {
		server := newTestServer(t, map[string]string{"/api/prices": `{"0xa": "abc"}`})

		c := NewClient(server.URL)
		_, err := c.GetPrices(context.Background())

		var me *MalformedResponseError
		if !errors.As(err, &me) {
			t.Fatalf("expected *MalformedResponseError, got %T (%v)", err, err)
		}
	})
}

func TestGetGasPrice(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"quoted string", `"5000000000"`, "5000000000", false},
		{"bare number", `12000000000`, "12000000000", false},
		{"whitespace", " \"7\"\n", "7", false},
		{"negative", `"-1"`, "", true},
		{"garbage", `{"x":1}`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, map[string]string{"/api/gasPrice": tt.body})

			c := NewClient(server.URL)
			got, err := c.GetGasPrice(context.Background())
			if tt.wantErr {
				var me *MalformedResponseError
				if !errors.As(err, &me) {
					t.Fatalf("expected *MalformedResponseError, got %T (%v)", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("GetGasPrice() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetVersion(t *testing.T) {
	t.Run("successful response", func(t *testing.T) {
		server := newTestServer(t, map[string]string{VersionPath: `{"apiVersion": 2}`})

		c := NewClient(server.URL)
		v, err := c.GetVersion(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 2 {
			t.Errorf("version = %d, want 2", v)
		}
	})

	t.Run("number formats", func(t *testing.T) {
		tests := []struct {
			body    string
			want    int
			wantErr bool
		}{
			{`{"apiVersion": 2.0}`, 2, false},
			{`{"apiVersion": 3e0}`, 3, false},
			{`{"apiVersion": 2.5}`, 0, true},
			{`{"apiVersion": 1e20}`, 0, true},
		}

		for _, tt := range tests {
			server := newTestServer(t, map[string]string{VersionPath: tt.body})

			c := NewClient(server.URL)
			v, err := c.GetVersion(context.Background())
			if tt.wantErr {
				var me *MalformedResponseError
				if !errors.As(err, &me) {
					t.Errorf("%s: expected *MalformedResponseError, got %T (%v)", tt.body, err, err)
				}
				continue
			}
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.body, err)
				continue
			}
			if v != tt.want {
				t.Errorf("%s: version = %d, want %d", tt.body, v, tt.want)
			}
		}
	})

	t.Run("missing field", func(t *testing.T) {
		server := newTestServer(t, map[string]string{VersionPath: `{}`})

		c := NewClient(server.URL)
		_, err := c.GetVersion(context.Background())

		var me *MalformedResponseError
		if !errors.As(err, &me) {
			t.Fatalf("expected *MalformedResponseError, got %T (%v)", err, err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := newTestServer(t, map[string]string{})

		c := NewClient(server.URL, WithRetries(0, 0))
		_, err := c.GetVersion(context.Background())

		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("expected *TransportError, got %T (%v)", err, err)
		}
	})
}
