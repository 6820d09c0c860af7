package state

import (
	"context"

	"github.com/irfndi/funding-collector/internal/database"
	"github.com/irfndi/funding-collector/internal/models"
)

// PostgresStore keeps last-sent state in the funding_last_sent table.
type PostgresStore struct {
	repo     *database.LastSentRepository
	exchange string
}

func NewPostgresStore(repo *database.LastSentRepository, exchange string) *PostgresStore {
	return &PostgresStore{repo: repo, exchange: exchange}
}

// Load creates the table if needed and returns this exchange's rows.
func (p *PostgresStore) Load(ctx context.Context) (map[string]models.LastSentState, error) {
	if err := p.repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return p.repo.LoadExchange(ctx, p.exchange)
}

// Store upserts one row.
func (p *PostgresStore) Store(ctx context.Context, key string, state models.LastSentState, _ map[string]models.LastSentState) error {
	return p.repo.Upsert(ctx, key, state)
}
