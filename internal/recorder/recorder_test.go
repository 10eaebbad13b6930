package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/chainbridge/internal/model"
)

// fakeDB records every batch and answers each Exec with a command tag.
type fakeDB struct {
	mu       sync.Mutex
	batches  [][]*pgx.QueuedQuery
	conflict func(args []any) bool
	err      error
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b.QueuedQueries)
	return &fakeResults{db: f, queries: b.QueuedQueries}
}

func (f *fakeDB) rows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

type fakeResults struct {
	db      *fakeDB
	queries []*pgx.QueuedQuery
	next    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.db.err != nil {
		return pgconn.CommandTag{}, r.db.err
	}
	q := r.queries[r.next]
	r.next++
	if r.db.conflict != nil && r.db.conflict(q.Arguments) {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row { return nil }
func (r *fakeResults) Close() error { return nil }

func sample(network string) model.FeeSample {
	return model.FeeSample{
		ID:        uuid.New(),
		Network:   network,
		ChainID:   97,
		BaseAsset: "USDT",
		FeeAsset:  "ORN",
		Prices: model.ChainPrices{
			NetworkAsset: "310.5",
			BaseAsset:    "1",
			FeeAsset:     "0.82",
			GasWei:       "10000000000",
		},
		SampledAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		Latency:   250 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeeRows(t *testing.T) {
	s := sample("bsc-testnet")
	s.Prices.GasWei = ""

	stmts := feeRows(s)
	if len(stmts) != 1 {
		t.Fatalf("len(stmts) = %d, want 1", len(stmts))
	}
	args := stmts[0].args
	if len(args) != 11 {
		t.Fatalf("len(args) = %d, want 11", len(args))
	}
	if args[0] != s.ID {
		t.Errorf("id = %v, want %v", args[0], s.ID)
	}
	if args[2] != "bsc-testnet" {
		t.Errorf("network = %v, want bsc-testnet", args[2])
	}
	if args[6] != "310.5" {
		t.Errorf("network_asset_price = %v, want 310.5", args[6])
	}
	if args[9] != nil {
		t.Errorf("gas_wei = %v, want nil for empty value", args[9])
	}
	if args[10] != int64(250) {
		t.Errorf("latency_ms = %v, want 250", args[10])
	}
}

func TestTickerRows(t *testing.T) {
	b := TickerBatch{
		TickerBatch: model.TickerBatch{
			Timestamp: 1700000000000,
			Pairs: map[string]model.Pair{
				"ORN-USDT": {Name: "ORN-USDT", LastPrice: decimal.RequireFromString("1.25")},
				"BNB-USDT": {Name: "BNB-USDT", LastPrice: decimal.RequireFromString("310")},
			},
		},
		ReceivedAt: time.UnixMicro(1700000000123456),
	}

	stmts := tickerRows(b)
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	if stmts[0].args[2] != "BNB-USDT" || stmts[1].args[2] != "ORN-USDT" {
		t.Errorf("pairs not sorted: %v, %v", stmts[0].args[2], stmts[1].args[2])
	}
	if stmts[1].args[3] != "1.25" {
		t.Errorf("last_price = %v, want 1.25", stmts[1].args[3])
	}
	if stmts[0].args[1] != int64(1700000000123456) {
		t.Errorf("received_at = %v, want 1700000000123456", stmts[0].args[1])
	}
}

func TestFeeWriter_FlushOnBatchSize(t *testing.T) {
	db := &fakeDB{}
	w := NewFeeWriter(Config{BatchSize: 2, BufferSize: 10}, db, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop(context.Background())

	for i := 0; i < 4; i++ {
		if err := w.HandleSample(sample("bsc")); err != nil {
			t.Fatalf("HandleSample: %v", err)
		}
	}

	waitFor(t, func() bool { return w.Stats().Flushes == 2 })

	stats := w.Stats()
	if stats.Inserts != 4 {
		t.Errorf("Inserts = %d, want 4", stats.Inserts)
	}
	if db.rows() != 4 {
		t.Errorf("rows sent = %d, want 4", db.rows())
	}
}

func TestFeeWriter_FlushOnInterval(t *testing.T) {
	db := &fakeDB{}
	w := NewFeeWriter(Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond, BufferSize: 10}, db, nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.HandleSample(sample("bsc"))

	waitFor(t, func() bool { return db.rows() == 1 })
}

func TestFeeWriter_Conflicts(t *testing.T) {
	dup := sample("bsc")
	db := &fakeDB{conflict: func(args []any) bool { return args[0] == dup.ID }}
	w := NewFeeWriter(Config{BatchSize: 2, BufferSize: 10}, db, nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.HandleSample(dup)
	w.HandleSample(sample("bsc"))

	waitFor(t, func() bool { return w.Stats().Flushes == 1 })

	stats := w.Stats()
	if stats.Inserts != 1 || stats.Conflicts != 1 {
		t.Errorf("Inserts = %d, Conflicts = %d, want 1 and 1", stats.Inserts, stats.Conflicts)
	}
}

func TestFeeWriter_InsertError(t *testing.T) {
	db := &fakeDB{err: errors.New("relation does not exist")}
	w := NewFeeWriter(Config{BatchSize: 1, BufferSize: 10}, db, nil)
	w.Start(context.Background())
	defer w.Stop(context.Background())

	w.HandleSample(sample("bsc"))

	waitFor(t, func() bool { return w.Stats().Errors == 1 })
	if w.Stats().Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", w.Stats().Inserts)
	}
}

func TestFeeWriter_StopFlushesPending(t *testing.T) {
	db := &fakeDB{}
	w := NewFeeWriter(Config{BatchSize: 100, BufferSize: 10}, db, nil)
	w.Start(context.Background())

	for i := 0; i < 3; i++ {
		w.HandleSample(sample("bsc"))
	}

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if db.rows() != 3 {
		t.Errorf("rows sent = %d, want 3", db.rows())
	}
}

func TestFeeWriter_BufferFull(t *testing.T) {
	w := NewFeeWriter(Config{BatchSize: 10, BufferSize: 1}, &fakeDB{}, nil)

	if err := w.HandleSample(sample("bsc")); err != nil {
		t.Fatalf("first HandleSample: %v", err)
	}
	if err := w.HandleSample(sample("bsc")); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("second HandleSample error = %v, want ErrBufferFull", err)
	}
	if w.Stats().Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", w.Stats().Dropped)
	}
}

func TestTickerWriter_Record(t *testing.T) {
	db := &fakeDB{}
	w := NewTickerWriter(Config{BatchSize: 100, BufferSize: 10}, db, nil)
	w.Start(context.Background())

	err := w.Record(model.TickerBatch{
		Timestamp: 1,
		Pairs: map[string]model.Pair{
			"A-B": {Name: "A-B"},
			"C-D": {Name: "C-D"},
			"E-F": {Name: "E-F"},
		},
	}, time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	w.Stop(context.Background())
	if db.rows() != 3 {
		t.Errorf("rows sent = %d, want 3", db.rows())
	}
}

type fakeExecer struct {
	stmts  []string
	failAt int
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	if f.failAt == len(f.stmts) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestEnsureSchema(t *testing.T) {
	t.Run("tables only", func(t *testing.T) {
		db := &fakeExecer{}
		if err := EnsureSchema(context.Background(), db, false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(db.stmts) != len(tableDDL) {
			t.Errorf("statements = %d, want %d", len(db.stmts), len(tableDDL))
		}
	})

	t.Run("with hypertables", func(t *testing.T) {
		db := &fakeExecer{}
		if err := EnsureSchema(context.Background(), db, true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(db.stmts) != len(tableDDL)+len(hypertableDDL) {
			t.Errorf("statements = %d, want %d", len(db.stmts), len(tableDDL)+len(hypertableDDL))
		}
	})

	t.Run("stops at first failure", func(t *testing.T) {
		db := &fakeExecer{failAt: 1}
		err := EnsureSchema(context.Background(), db, true)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if len(db.stmts) != 1 {
			t.Errorf("statements = %d, want 1", len(db.stmts))
		}
	})
}
