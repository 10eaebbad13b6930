package stream

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/rickgao/chainbridge/internal/model"
)

var hundred = decimal.NewFromInt(100)

// parsePairs decodes a ticker frame:
//
//	[timestamp, [pair, last, open, high, low, volume], ...]
//
// Numeric fields may be JSON strings or numbers.
func parsePairs(frame []byte) (model.TickerBatch, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(frame, &items); err != nil {
		return model.TickerBatch{}, fmt.Errorf("ticker frame: %w", err)
	}
	if len(items) == 0 {
		return model.TickerBatch{}, errors.New("ticker frame: empty")
	}

	var ts json.Number
	if err := json.Unmarshal(items[0], &ts); err != nil {
		return model.TickerBatch{}, fmt.Errorf("ticker timestamp: %w", err)
	}
	timestamp, err := ts.Int64()
	if err != nil {
		return model.TickerBatch{}, fmt.Errorf("ticker timestamp: %w", err)
	}

	batch := model.TickerBatch{
		Timestamp: timestamp,
		Pairs:     make(map[string]model.Pair, len(items)-1),
	}

	for i, raw := range items[1:] {
		pair, err := parsePair(raw)
		if err != nil {
			return model.TickerBatch{}, fmt.Errorf("ticker record %d: %w", i, err)
		}
		batch.Pairs[pair.Name] = pair
	}

	return batch, nil
}

func parsePair(raw json.RawMessage) (model.Pair, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.Pair{}, err
	}
	if len(fields) < 6 {
		return model.Pair{}, fmt.Errorf("want 6 fields, got %d", len(fields))
	}

	var p model.Pair
	if err := json.Unmarshal(fields[0], &p.Name); err != nil {
		return model.Pair{}, fmt.Errorf("pair name: %w", err)
	}
	if p.Name == "" {
		return model.Pair{}, errors.New("pair name: empty")
	}

	for i, dst := range []*decimal.Decimal{&p.LastPrice, &p.OpenPrice, &p.High, &p.Low, &p.Volume24h} {
		if err := dst.UnmarshalJSON(fields[i+1]); err != nil {
			return model.Pair{}, fmt.Errorf("%s field %d: %w", p.Name, i+1, err)
		}
	}

	if !p.OpenPrice.IsZero() {
		p.Change24h = p.LastPrice.Div(p.OpenPrice).Sub(decimal.NewFromInt(1)).Mul(hundred)
	}

	return p, nil
}

// orderbookFrame is an aggregated order-book update.
type orderbookFrame struct {
	T         string `json:"T"`
	S         string `json:"S"`
	Timestamp int64  `json:"_"`
	OB        *struct {
		Asks []orderbookItem `json:"a"`
		Bids []orderbookItem `json:"b"`
	} `json:"ob"`
}

type orderbookItem struct {
	Price     decimal.Decimal `json:"p"`
	Amount    decimal.Decimal `json:"a"`
	Total     decimal.Decimal `json:"t"`
	Exchanges []string        `json:"e"`
}

// parseOrderbook decodes an order-book frame into asks and bids.
func parseOrderbook(frame []byte) (model.OrderbookUpdate, error) {
	var f orderbookFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return model.OrderbookUpdate{}, fmt.Errorf("orderbook frame: %w", err)
	}
	if f.OB == nil {
		return model.OrderbookUpdate{}, errors.New("orderbook frame: missing ob")
	}

	return model.OrderbookUpdate{
		Pair:      f.S,
		Timestamp: f.Timestamp,
		Asks:      levels(f.OB.Asks),
		Bids:      levels(f.OB.Bids),
	}, nil
}

func levels(items []orderbookItem) []model.OrderbookLevel {
	out := make([]model.OrderbookLevel, 0, len(items))
	for _, it := range items {
		out = append(out, model.OrderbookLevel{
			Price:     it.Price,
			Size:      it.Amount,
			Total:     it.Total,
			Exchanges: it.Exchanges,
		})
	}
	return out
}
