package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/api/handlers"
	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/database"
	"github.com/irfndi/funding-collector/internal/messaging"
	"github.com/irfndi/funding-collector/internal/state"
)

// backends holds the optional shared connections.
type backends struct {
	redis    *database.RedisClient
	postgres *database.PostgresDB
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Bus.Backend == "redis" || (cfg.State.Persist && cfg.State.Backend == "redis")
}

func needsPostgres(cfg *config.Config) bool {
	return cfg.State.Persist && cfg.State.Backend == "postgres"
}

// connectBackends opens only the connections the configuration selects.
func connectBackends(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*backends, error) {
	b := &backends{}
	if needsRedis(cfg) {
		client, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.redis = client
	}
	if needsPostgres(cfg) {
		db, err := database.NewPostgresConnection(ctx, cfg.Database, logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		b.postgres = db
	}
	return b, nil
}

// Checks returns the health checks of the open connections.
func (b *backends) Checks() map[string]handlers.HealthChecker {
	checks := make(map[string]handlers.HealthChecker)
	if b.redis != nil {
		checks["redis"] = b.redis
	}
	if b.postgres != nil {
		checks["postgres"] = b.postgres
	}
	return checks
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.postgres != nil {
		b.postgres.Close()
	}
}

// buildPersister returns nil when persistence is off.
func buildPersister(cfg *config.Config, exchangeName string, b *backends, logger *logrus.Logger) (state.Persister, error) {
	if !cfg.State.Persist {
		return nil, nil
	}
	switch cfg.State.Backend {
	case "file":
		return state.NewFileStore(cfg.State.Path, logger), nil
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("redis state backend selected without a redis connection")
		}
		return state.NewRedisStore(b.redis.Client, cfg.State.RedisKey, exchangeName, logger), nil
	case "postgres":
		if b.postgres == nil {
			return nil, fmt.Errorf("postgres state backend selected without a database connection")
		}
		return state.NewPostgresStore(database.NewLastSentRepository(b.postgres.Pool), exchangeName), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

func buildBusClient(cfg *config.Config, b *backends, logger *logrus.Logger) (messaging.Client, error) {
	switch cfg.Bus.Backend {
	case "gateway":
		return messaging.NewGatewayClient(cfg.Bus.GatewayURL, cfg.Bus.GatewayTimeout(), cfg.Exchange.UserAgent, logger), nil
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("redis bus selected without a redis connection")
		}
		return messaging.NewRedisStreamClient(b.redis.Client, cfg.Bus.StreamPrefix), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
	}
}

func stateBackendName(cfg *config.Config) string {
	if !cfg.State.Persist {
		return "memory"
	}
	return cfg.State.Backend
}
