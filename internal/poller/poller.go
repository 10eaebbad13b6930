package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/chainbridge/internal/model"
)

// Source provides fee inputs, usually a *chain.Bridge.
type Source interface {
	Network() model.Network
	ChainPrices(ctx context.Context, baseAsset, feeAsset string) (model.ChainPrices, error)
}

// SampleHandler receives fee samples.
type SampleHandler interface {
	HandleSample(sample model.FeeSample) error
}

// SampleHandlerFunc is a function adapter for SampleHandler.
type SampleHandlerFunc func(model.FeeSample) error

func (f SampleHandlerFunc) HandleSample(s model.FeeSample) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Sample interval (default: 1m)
	Concurrency int           // Max concurrent samples (default: 4)
	Timeout     time.Duration // Per-sample timeout (default: 10s)
	BaseAssets  []string      // Assets to sample
	FeeAsset    string        // Asset fees are paid in
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 4,
		Timeout:     10 * time.Second,
		FeeAsset:    "ORN",
	}
}

// Stats counts sampling outcomes since start.
type Stats struct {
	Cycles  int64
	Samples int64
	Errors  int64
	LastRun time.Time
}

// Poller periodically samples fee inputs.
type Poller struct {
	cfg     Config
	source  Source
	handler SampleHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	cycles  atomic.Int64
	samples atomic.Int64
	errors  atomic.Int64
	lastRun atomic.Int64 // Unix nanoseconds
}

// New creates a new Poller.
func New(cfg Config, source Source, handler SampleHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("fee poller started",
		"interval", p.cfg.Interval,
		"assets", p.cfg.BaseAssets,
		"fee_asset", p.cfg.FeeAsset,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("fee poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns sampling counters.
func (p *Poller) Stats() Stats {
	s := Stats{
		Cycles:  p.cycles.Load(),
		Samples: p.samples.Load(),
		Errors:  p.errors.Load(),
	}
	if ns := p.lastRun.Load(); ns != 0 {
		s.LastRun = time.Unix(0, ns)
	}
	return s
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll samples every configured asset concurrently.
func (p *Poller) pollAll() {
	start := time.Now()

	if len(p.cfg.BaseAssets) == 0 {
		p.logger.Debug("no base assets to sample")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var sampled, failed atomic.Int64

	for _, asset := range p.cfg.BaseAssets {
		wg.Add(1)
		go func(asset string) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.sample(asset); err != nil {
				p.logger.Warn("failed to sample fee inputs",
					"asset", asset,
					"err", err,
				)
				failed.Add(1)
				return
			}

			sampled.Add(1)
		}(asset)
	}

	wg.Wait()

	p.cycles.Add(1)
	p.samples.Add(sampled.Load())
	p.errors.Add(failed.Load())
	p.lastRun.Store(start.UnixNano())

	p.logger.Info("poll cycle complete",
		"assets", len(p.cfg.BaseAssets),
		"sampled", sampled.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// sample fetches and handles fee inputs for one base asset.
func (p *Poller) sample(asset string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	prices, err := p.source.ChainPrices(ctx, asset, p.cfg.FeeAsset)
	if err != nil {
		return err
	}

	network := p.source.Network()
	s := model.FeeSample{
		ID:        uuid.New(),
		Network:   network.Name,
		ChainID:   network.ChainID,
		BaseAsset: asset,
		FeeAsset:  p.cfg.FeeAsset,
		Prices:    prices,
		SampledAt: start.UTC(),
		Latency:   time.Since(start),
	}

	if p.handler != nil {
		if err := p.handler.HandleSample(s); err != nil {
			return err
		}
	}

	return nil
}
