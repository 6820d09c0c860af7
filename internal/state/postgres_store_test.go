package state

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/funding-collector/internal/database"
	"github.com/irfndi/funding-collector/internal/models"
)

func TestPostgresStore_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS funding_last_sent")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT key, ts, funding_rate, next_funding").
		WithArgs("orderly:%").
		WillReturnRows(pgxmock.NewRows([]string{"key", "ts", "funding_rate", "next_funding"}).
			AddRow("orderly:BTC", int64(10), 0.0001, int64(20)))

	store := NewPostgresStore(database.NewLastSentRepository(mock), "orderly")
	loaded, err := store.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[string]models.LastSentState{
		"orderly:BTC": {TimestampMs: 10, FundingRate: 0.0001, NextFundingAtMs: 20},
	}, loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSchemaFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	store := NewPostgresStore(database.NewLastSentRepository(mock), "orderly")
	_, err = store.Load(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestPostgresStore_StoreThroughLastSentStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO funding_last_sent")).
		WithArgs("orderly:ETH", int64(99), 0.0003, int64(1234)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewLastSentStore(Policy{Enabled: true}, NewPostgresStore(database.NewLastSentRepository(mock), "orderly"), nil)
	store.Remember(context.Background(), "orderly:ETH", models.CanonicalFundingRecord{
		Exchange: "orderly", Asset: "ETH", FundingRate: 0.0003, NextFundingAtMs: 1234,
	}, 99)

	assert.NoError(t, mock.ExpectationsWereMet())
}
