package database

import (
	"context"
	"fmt"

	"github.com/irfndi/funding-collector/internal/models"
)

const lastSentSchema = `CREATE TABLE IF NOT EXISTS funding_last_sent (
	key          TEXT PRIMARY KEY,
	ts           BIGINT NOT NULL,
	funding_rate DOUBLE PRECISION NOT NULL,
	next_funding BIGINT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertLastSent = `INSERT INTO funding_last_sent (key, ts, funding_rate, next_funding, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (key) DO UPDATE SET
	ts = EXCLUDED.ts,
	funding_rate = EXCLUDED.funding_rate,
	next_funding = EXCLUDED.next_funding,
	updated_at = NOW()`

const selectLastSent = `SELECT key, ts, funding_rate, next_funding FROM funding_last_sent WHERE key LIKE $1`

// LastSentRepository handles database operations for last-sent funding state.
type LastSentRepository struct {
	pool DatabasePool
}

// NewLastSentRepository creates a new last-sent repository.
func NewLastSentRepository(pool DatabasePool) *LastSentRepository {
	return &LastSentRepository{pool: pool}
}

// EnsureSchema creates the funding_last_sent table when it is missing.
func (r *LastSentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, lastSentSchema); err != nil {
		return fmt.Errorf("failed to create funding_last_sent: %w", err)
	}
	return nil
}

// LoadExchange returns every stored entry whose key belongs to exchange.
func (r *LastSentRepository) LoadExchange(ctx context.Context, exchange string) (map[string]models.LastSentState, error) {
	rows, err := r.pool.Query(ctx, selectLastSent, models.StateKey(exchange, "")+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to query last-sent state: %w", err)
	}
	defer rows.Close()

	states := make(map[string]models.LastSentState)
	for rows.Next() {
		var (
			key   string
			state models.LastSentState
		)
		if err := rows.Scan(&key, &state.TimestampMs, &state.FundingRate, &state.NextFundingAtMs); err != nil {
			return nil, fmt.Errorf("failed to scan last-sent row: %w", err)
		}
		states[key] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating last-sent rows: %w", err)
	}
	return states, nil
}

// Upsert writes the state for key, replacing any previous row.
func (r *LastSentRepository) Upsert(ctx context.Context, key string, state models.LastSentState) error {
	_, err := r.pool.Exec(ctx, upsertLastSent, key, state.TimestampMs, state.FundingRate, state.NextFundingAtMs)
	if err != nil {
		return fmt.Errorf("failed to upsert last-sent state for %s: %w", key, err)
	}
	return nil
}
