package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/models"
)

// RedisStore keeps last-sent state in one hash; each field is an
// "exchange:asset" key holding a JSON entry.
type RedisStore struct {
	client   redis.Cmdable
	hashKey  string
	exchange string
	logger   *logrus.Logger
}

func NewRedisStore(client redis.Cmdable, hashKey, exchange string, logger *logrus.Logger) *RedisStore {
	return &RedisStore{client: client, hashKey: hashKey, exchange: exchange, logger: logger}
}

// Load reads the fields belonging to this store's exchange.
func (r *RedisStore) Load(ctx context.Context) (map[string]models.LastSentState, error) {
	fields, err := r.client.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.hashKey, err)
	}

	prefix := models.StateKey(r.exchange, "")
	states := make(map[string]models.LastSentState, len(fields))
	for field, value := range fields {
		if !strings.HasPrefix(field, prefix) {
			continue
		}
		var state models.LastSentState
		if err := json.Unmarshal([]byte(value), &state); err != nil {
			r.logger.WithFields(logrus.Fields{
				"key":   field,
				"error": err.Error(),
			}).Warn("Skipping unreadable last-sent entry")
			continue
		}
		states[field] = state
	}
	return states, nil
}

// Store writes the single updated field.
func (r *RedisStore) Store(ctx context.Context, key string, state models.LastSentState, _ map[string]models.LastSentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode last-sent state: %w", err)
	}
	if err := r.client.HSet(ctx, r.hashKey, key, data).Err(); err != nil {
		return fmt.Errorf("failed to write %s[%s]: %w", r.hashKey, key, err)
	}
	return nil
}
