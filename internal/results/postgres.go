package results

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS bundle_results (
  attempt_id UUID PRIMARY KEY,
  trigger_tx_hash TEXT NOT NULL,
  companion_tx_hash TEXT NULL,

  target_block BIGINT NOT NULL,
  min_timestamp BIGINT NOT NULL,
  max_timestamp BIGINT NOT NULL,

  max_fee_wei NUMERIC(78,0) NOT NULL,
  priority_fee_wei NUMERIC(78,0) NOT NULL,

  success BOOLEAN NOT NULL,
  bundle_status TEXT NOT NULL,
  error TEXT NULL,
  record JSONB NOT NULL,

  recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS bundle_results_trigger_idx ON bundle_results(trigger_tx_hash);
`
	_, err := p.pool.Exec(ctx, ddl)
	return err
}

func (p *Postgres) Save(ctx context.Context, r bundlecore.Result) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	rec, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var (
		companion any = nil
		errText   any = nil
	)
	if r.CompanionTx.Hash != "" {
		companion = r.CompanionTx.Hash
	}
	if r.Error != "" {
		errText = r.Error
	}

	q := `
INSERT INTO bundle_results(
  attempt_id, trigger_tx_hash, companion_tx_hash,
  target_block, min_timestamp, max_timestamp,
  max_fee_wei, priority_fee_wei,
  success, bundle_status, error, record, recorded_at
) VALUES (
  $1, $2, $3,
  $4, $5, $6,
  $7::numeric, $8::numeric,
  $9, $10, $11, $12, $13
)
ON CONFLICT (attempt_id) DO UPDATE SET
  success = EXCLUDED.success,
  bundle_status = EXCLUDED.bundle_status,
  error = EXCLUDED.error,
  record = EXCLUDED.record,
  recorded_at = EXCLUDED.recorded_at
`
	_, err = p.pool.Exec(cctx, q,
		r.AttemptID, r.TriggerTxHash, companion,
		int64(r.TargetBlock), int64(r.MinTimestamp), int64(r.MaxTimestamp),
		r.CompanionTx.MaxFeePerGas, r.CompanionTx.MaxPriorityFeePerGas,
		r.Success, string(r.BundleStatus), errText, rec, time.UnixMilli(r.Timestamp).UTC(),
	)
	return err
}

// Status returns the stored status of an attempt.
func (p *Postgres) Status(ctx context.Context, attemptID string) (bundlecore.OutcomeStatus, bool, error) {
	var st string
	err := p.pool.QueryRow(ctx, `SELECT bundle_status FROM bundle_results WHERE attempt_id = $1`, attemptID).Scan(&st)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return bundlecore.OutcomeStatus(st), true, nil
}
