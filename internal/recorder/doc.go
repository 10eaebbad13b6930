// Package recorder batches observations and writes them to TimescaleDB.
//
// Writers:
//   - Fee sample writer (fee_samples)
//   - Ticker writer (pair_tickers)
//
// All writers use append-only semantics: rows are inserted, never updated,
// and conflicts on the natural key are skipped. Decimal values are stored as
// NUMERIC text so no precision is lost.
package recorder
