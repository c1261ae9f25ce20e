package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paystream/tx-engine/internal/model"
)

// PostgresSink upserts one row per client into account_snapshots. Amounts
// are stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	CREATE TABLE account_snapshots (
//	    client     INTEGER PRIMARY KEY,
//	    available  NUMERIC NOT NULL,
//	    held       NUMERIC NOT NULL,
//	    total      NUMERIC NOT NULL,
//	    locked     BOOLEAN NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink returns a sink writing through the given pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) WriteSnapshot(ctx context.Context, views []model.AccountView) error {
	now := time.Now().UTC()
	for _, v := range views {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO account_snapshots (client, available, held, total, locked, updated_at)
			 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5, $6)
			 ON CONFLICT (client) DO UPDATE
			 SET available = EXCLUDED.available,
			     held = EXCLUDED.held,
			     total = EXCLUDED.total,
			     locked = EXCLUDED.locked,
			     updated_at = EXCLUDED.updated_at`,
			int32(v.Client),
			v.Available.Decimal().String(),
			v.Held.Decimal().String(),
			v.Total.Decimal().String(),
			v.Locked, now,
		)
		if err != nil {
			return fmt.Errorf("sink: upsert client %d: %w", v.Client, err)
		}
	}
	return nil
}
