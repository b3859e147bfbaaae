package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list the extraction worker pops reprocess signals from.
const DefaultRedisKey = "statements:queue:reprocess"

// RedisPusher is the subset of redis.Cmdable used by RedisClient.
type RedisPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisClient publishes reprocess signals onto a Redis list.
type RedisClient struct {
	rdb RedisPusher
	key string
}

// NewRedisClient builds a RedisClient pushing onto key.
func NewRedisClient(rdb RedisPusher, key string) *RedisClient {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisClient{rdb: rdb, key: key}
}

// Send implements Client.
func (r *RedisClient) Send(ctx context.Context, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode redis message: %w", err)
	}
	if err := r.rdb.LPush(ctx, r.key, string(payload)).Err(); err != nil {
		return fmt.Errorf("redis lpush %s: %w", r.key, err)
	}
	return nil
}

var _ Client = (*RedisClient)(nil)
