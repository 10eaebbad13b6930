package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/chainbridge/internal/model"
)

// mockSource returns canned fee inputs.
type mockSource struct {
	delay time.Duration
	fail  map[string]bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *mockSource) Network() model.Network {
	return model.Network{Name: "bsc-testnet", ChainID: 97}
}

func (m *mockSource) ChainPrices(ctx context.Context, base, fee string) (model.ChainPrices, error) {
	current := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	// Track max concurrent requests.
	for {
		old := m.maxInFlight.Load()
		if current <= old || m.maxInFlight.CompareAndSwap(old, current) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return model.ChainPrices{}, ctx.Err()
		}
	}

	if m.fail[base] {
		return model.ChainPrices{}, errors.New("unknown asset")
	}
	return model.ChainPrices{NetworkAsset: "1", BaseAsset: "2", FeeAsset: "3", GasWei: "5000000000"}, nil
}

func TestPoller_PollAll(t *testing.T) {
	var (
		mu      sync.Mutex
		samples []model.FeeSample
	)
	handler := SampleHandlerFunc(func(s model.FeeSample) error {
		mu.Lock()
		samples = append(samples, s)
		mu.Unlock()
		return nil
	})

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 2,
		Timeout:     5 * time.Second,
		BaseAssets:  []string{"ETH", "USDT", "DOGE"},
		FeeAsset:    "ORN",
	}
	source := &mockSource{fail: map[string]bool{"DOGE": true}}

	p := New(cfg, source, handler, nil)

	// Call pollAll directly.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	mu.Lock()
	defer mu.Unlock()
	if len(samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(samples))
	}
	for _, s := range samples {
		if s.Network != "bsc-testnet" || s.ChainID != 97 {
			t.Errorf("sample network = %s/%d", s.Network, s.ChainID)
		}
		if s.FeeAsset != "ORN" {
			t.Errorf("FeeAsset = %q, want ORN", s.FeeAsset)
		}
		if s.Prices.GasWei != "5000000000" {
			t.Errorf("GasWei = %q", s.Prices.GasWei)
		}
		if s.ID.String() == "00000000-0000-0000-0000-000000000000" {
			t.Error("sample ID not set")
		}
		if s.SampledAt.IsZero() {
			t.Error("SampledAt not set")
		}
	}

	stats := p.Stats()
	if stats.Cycles != 1 || stats.Samples != 2 || stats.Errors != 1 {
		t.Errorf("Stats() = %+v, want 1 cycle, 2 samples, 1 error", stats)
	}
}

func TestPoller_HandlerError(t *testing.T) {
	handler := SampleHandlerFunc(func(model.FeeSample) error {
		return errors.New("buffer full")
	})

	p := New(Config{Interval: time.Hour, Concurrency: 1, Timeout: time.Second, BaseAssets: []string{"ETH"}}, &mockSource{}, handler, nil)
	p.ctx = context.Background()

	p.pollAll()

	if got := p.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	var called atomic.Bool
	handler := SampleHandlerFunc(func(model.FeeSample) error {
		called.Store(true)
		return nil
	})

	cfg := Config{
		Interval:    100 * time.Millisecond,
		Concurrency: 1,
		Timeout:     5 * time.Second,
		BaseAssets:  []string{"ETH"},
		FeeAsset:    "ORN",
	}

	p := New(cfg, &mockSource{}, handler, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one poll.
	time.Sleep(150 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !called.Load() {
		t.Error("handler was never called")
	}
	if p.Stats().LastRun.IsZero() {
		t.Error("LastRun not recorded")
	}
}

func TestPoller_Concurrency(t *testing.T) {
	var assets []string
	for i := 0; i < 20; i++ {
		assets = append(assets, "ASSET-"+string(rune('A'+i)))
	}

	source := &mockSource{delay: 20 * time.Millisecond}
	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5, // Limit to 5 concurrent.
		Timeout:     5 * time.Second,
		BaseAssets:  assets,
		FeeAsset:    "ORN",
	}

	p := New(cfg, source, SampleHandlerFunc(func(model.FeeSample) error { return nil }), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if got := source.maxInFlight.Load(); got > 5 {
		t.Errorf("maxInFlight = %d, want <= 5", got)
	}
	if got := p.Stats().Samples; got != 20 {
		t.Errorf("Samples = %d, want 20", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Interval != time.Minute {
		t.Errorf("Interval = %v, want 1m", cfg.Interval)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", cfg.Concurrency)
	}
}
