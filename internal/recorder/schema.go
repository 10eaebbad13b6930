package recorder

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a single statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS fee_samples (
		id                  UUID        NOT NULL,
		sampled_at          TIMESTAMPTZ NOT NULL,
		network             TEXT        NOT NULL,
		chain_id            BIGINT      NOT NULL,
		base_asset          TEXT        NOT NULL,
		fee_asset           TEXT        NOT NULL,
		network_asset_price NUMERIC,
		base_asset_price    NUMERIC,
		fee_asset_price     NUMERIC,
		gas_wei             NUMERIC,
		latency_ms          BIGINT      NOT NULL,
		PRIMARY KEY (id, sampled_at)
	)`,
	`CREATE TABLE IF NOT EXISTS pair_tickers (
		ts          BIGINT  NOT NULL,
		received_at BIGINT  NOT NULL,
		pair        TEXT    NOT NULL,
		last_price  NUMERIC NOT NULL,
		open_price  NUMERIC NOT NULL,
		high        NUMERIC NOT NULL,
		low         NUMERIC NOT NULL,
		volume_24h  NUMERIC NOT NULL,
		change_24h  NUMERIC NOT NULL,
		PRIMARY KEY (pair, ts)
	)`,
}

var hypertableDDL = []string{
	`SELECT create_hypertable('fee_samples', 'sampled_at', if_not_exists => TRUE)`,
	`SELECT create_hypertable('pair_tickers', 'ts', chunk_time_interval => 86400000, if_not_exists => TRUE)`,
}

// EnsureSchema creates the recorder tables. With hypertables set the
// TimescaleDB extension must already be installed.
func EnsureSchema(ctx context.Context, db Execer, hypertables bool) error {
	stmts := tableDDL
	if hypertables {
		stmts = append(append([]string{}, tableDDL...), hypertableDDL...)
	}
	for i, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
