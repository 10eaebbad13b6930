package recorder

import (
	"log/slog"

	"github.com/rickgao/chainbridge/internal/model"
)

const insertFeeSample = `
	INSERT INTO fee_samples (id, sampled_at, network, chain_id, base_asset, fee_asset,
		network_asset_price, base_asset_price, fee_asset_price, gas_wei, latency_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11)
	ON CONFLICT (id, sampled_at) DO NOTHING
`

// FeeWriter persists fee samples to the fee_samples table.
type FeeWriter struct {
	*writer[model.FeeSample]
}

// NewFeeWriter creates a FeeWriter. It satisfies poller.SampleHandler.
func NewFeeWriter(cfg Config, db Batcher, logger *slog.Logger) *FeeWriter {
	return &FeeWriter{newWriter("fee_samples", cfg, db, feeRows, logger)}
}

// HandleSample queues a sample for the next flush.
func (w *FeeWriter) HandleSample(s model.FeeSample) error {
	return w.Enqueue(s)
}

func feeRows(s model.FeeSample) []statement {
	return []statement{{
		sql: insertFeeSample,
		args: []any{
			s.ID,
			s.SampledAt,
			s.Network,
			s.ChainID,
			s.BaseAsset,
			s.FeeAsset,
			numeric(s.Prices.NetworkAsset),
			numeric(s.Prices.BaseAsset),
			numeric(s.Prices.FeeAsset),
			numeric(s.Prices.GasWei),
			s.Latency.Milliseconds(),
		},
	}}
}

// numeric maps an empty decimal string to NULL.
func numeric(v string) any {
	if v == "" {
		return nil
	}
	return v
}
