package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrBufferFull is returned when a writer cannot accept more rows.
var ErrBufferFull = errors.New("recorder buffer full")

// Batcher sends queued statements. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds batching settings.
type Config struct {
	BatchSize     int           // Rows per flush
	FlushInterval time.Duration // Max time a row waits in the batch
	BufferSize    int           // Input channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		BufferSize:    1000,
	}
}

// Metrics counts writer outcomes.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}

// statement is one queued insert.
type statement struct {
	sql  string
	args []any
}

// writer is the batching core shared by the typed writers.
type writer[T any] struct {
	name   string
	cfg    Config
	logger *slog.Logger
	db     Batcher
	rows   func(T) []statement

	input chan T

	batch   []statement
	batchMu sync.Mutex
	metrics Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWriter[T any](name string, cfg Config, db Batcher, rows func(T) []statement, logger *slog.Logger) *writer[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &writer[T]{
		name:   name,
		cfg:    cfg,
		db:     db,
		rows:   rows,
		logger: logger.With("writer", name),
		input:  make(chan T, cfg.BufferSize),
		batch:  make([]statement, 0, cfg.BatchSize),
	}
}

// Start begins consuming and flushing.
func (w *writer[T]) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued input, flushes, and shuts down.
func (w *writer[T]) Stop(ctx context.Context) error {
	w.logger.Info("stopping writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	// Whatever is still queued goes into the final flush.
drain:
	for {
		select {
		case v := <-w.input:
			w.add(v)
		default:
			break drain
		}
	}
	w.flush(ctx)

	w.logger.Info("writer stopped")
	return nil
}

// Enqueue hands v to the writer without blocking.
func (w *writer[T]) Enqueue(v T) error {
	select {
	case w.input <- v:
		return nil
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		return ErrBufferFull
	}
}

// Stats returns current metrics.
func (w *writer[T]) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *writer[T]) consumeLoop() {
	defer w.wg.Done()

	var tick <-chan time.Time
	if w.cfg.FlushInterval > 0 {
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case v := <-w.input:
			if w.add(v) {
				w.flush(w.ctx)
			}
		case <-tick:
			w.flush(w.ctx)
		}
	}
}

// add appends v's statements and reports whether the batch is full.
func (w *writer[T]) add(v T) bool {
	stmts := w.rows(v)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, stmts...)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *writer[T]) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]statement, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed rows",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert sends rows with pgx.Batch; statements use ON CONFLICT DO NOTHING.
func (w *writer[T]) batchInsert(ctx context.Context, rows []statement) (conflicts int, err error) {
	// Stop may flush after the run context is gone.
	ctx = context.WithoutCancel(ctx)

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(r.sql, r.args...)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
