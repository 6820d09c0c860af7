package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/logging"
)

func TestNewRedisConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := NewRedisConnection(context.Background(), config.RedisConfig{Host: mr.Host(), Port: port}, logging.NewDiscardLogger())
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.HealthCheck(context.Background()))
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = NewRedisConnection(context.Background(), config.RedisConfig{Host: "127.0.0.1", Port: port}, logging.NewDiscardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestRedisClient_HealthCheck_NilClient(t *testing.T) {
	client := &RedisClient{Client: nil}

	err := client.HealthCheck(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")
	assert.NotPanics(t, client.Close)
}

func TestPostgresDB_NilPool(t *testing.T) {
	db := &PostgresDB{Pool: nil}

	assert.NotPanics(t, db.Close)
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestNewPostgresConnection_InvalidURL(t *testing.T) {
	_, err := NewPostgresConnection(context.Background(), config.DatabaseConfig{DatabaseURL: "postgres://%zz"}, logging.NewDiscardLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse DATABASE_URL")
}
