package recorder

import (
	"log/slog"
	"sort"
	"time"

	"github.com/rickgao/chainbridge/internal/model"
)

const insertPairTicker = `
	INSERT INTO pair_tickers (ts, received_at, pair, last_price, open_price, high, low, volume_24h, change_24h)
	VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric)
	ON CONFLICT (pair, ts) DO NOTHING
`

// TickerBatch is a stream ticker frame with its arrival time.
type TickerBatch struct {
	model.TickerBatch
	ReceivedAt time.Time
}

// TickerWriter persists stream ticker pairs to the pair_tickers table.
type TickerWriter struct {
	*writer[TickerBatch]
}

// NewTickerWriter creates a TickerWriter.
func NewTickerWriter(cfg Config, db Batcher, logger *slog.Logger) *TickerWriter {
	return &TickerWriter{newWriter("pair_tickers", cfg, db, tickerRows, logger)}
}

// Record queues every pair of b.
func (w *TickerWriter) Record(b model.TickerBatch, receivedAt time.Time) error {
	return w.Enqueue(TickerBatch{TickerBatch: b, ReceivedAt: receivedAt})
}

// tickerRows emits one statement per pair, ordered by pair name.
func tickerRows(b TickerBatch) []statement {
	names := make([]string, 0, len(b.Pairs))
	for name := range b.Pairs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]statement, 0, len(names))
	for _, name := range names {
		p := b.Pairs[name]
		out = append(out, statement{
			sql: insertPairTicker,
			args: []any{
				b.Timestamp,
				b.ReceivedAt.UnixMicro(),
				name,
				p.LastPrice.String(),
				p.OpenPrice.String(),
				p.High.String(),
				p.Low.String(),
				p.Volume24h.String(),
				p.Change24h.String(),
			},
		})
	}
	return out
}
