// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// GetTestRedisOptions returns client options for addr that fail fast once the
// server goes away.
func GetTestRedisOptions(addr string) *redis.Options {
	return &redis.Options{
		Addr:        addr,
		MaxRetries:  -1,
		DialTimeout: time.Second,
	}
}

// NewTestRedis starts an in-memory redis for t and returns it with a client.
// Both are closed when the test ends.
func NewTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(GetTestRedisOptions(mr.Addr()))
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// GetTestRedisClient returns a client for REDIS_TEST_ADDR, or nil when the
// variable is unset so callers can skip.
func GetTestRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		return nil
	}
	return redis.NewClient(GetTestRedisOptions(addr))
}
