package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/irfndi/funding-collector/internal/models"
)

// RedisStreamClient appends messages to one redis stream per target.
type RedisStreamClient struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStreamClient(client redis.Cmdable, prefix string) *RedisStreamClient {
	return &RedisStreamClient{client: client, prefix: prefix}
}

// Send XADDs the message to <prefix><target>; the stream entry id is the message id.
func (r *RedisStreamClient) Send(ctx context.Context, target string, tags []models.Tag, data []byte) (string, error) {
	encodedTags, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}

	id, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.Stream(target),
		Values: map[string]interface{}{
			"tags": string(encodedTags),
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", r.Stream(target), err)
	}
	return id, nil
}

// Stream returns the stream name for target.
func (r *RedisStreamClient) Stream(target string) string {
	return r.prefix + target
}

// String names the backend in logs.
func (r *RedisStreamClient) String() string {
	return fmt.Sprintf("redis-stream(%s*)", r.prefix)
}
