package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedSnapshot is a snapshot with the time it was computed.
type CachedSnapshot struct {
	Snapshot   Snapshot  `json:"snapshot"`
	ComputedAt time.Time `json:"computedAt"`
}

// SnapshotCache holds the latest snapshot per day for dashboard reads.
type SnapshotCache interface {
	Put(ctx context.Context, entry CachedSnapshot) error
	Get(ctx context.Context, date string) (CachedSnapshot, bool, error)
}

// MemorySnapshotCache keeps snapshots in process.
type MemorySnapshotCache struct {
	mu    sync.RWMutex
	snaps map[string]CachedSnapshot
}

// NewMemorySnapshotCache constructs an empty cache.
func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{snaps: make(map[string]CachedSnapshot)}
}

// Put implements SnapshotCache.
func (c *MemorySnapshotCache) Put(ctx context.Context, entry CachedSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[entry.Snapshot.Date] = entry
	return nil
}

// Get implements SnapshotCache.
func (c *MemorySnapshotCache) Get(ctx context.Context, date string) (CachedSnapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return CachedSnapshot{}, false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.snaps[date]
	return e, ok, nil
}

const (
	redisKeyPrefix = "statements:metrics:snapshot:"
	redisTTL       = 48 * time.Hour
)

// RedisKV is the subset of redis.Cmdable used by RedisSnapshotCache.
type RedisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSnapshotCache shares snapshots between API replicas.
type RedisSnapshotCache struct {
	rdb RedisKV
}

// NewRedisSnapshotCache wraps rdb.
func NewRedisSnapshotCache(rdb RedisKV) *RedisSnapshotCache {
	return &RedisSnapshotCache{rdb: rdb}
}

// Put implements SnapshotCache.
func (c *RedisSnapshotCache) Put(ctx context.Context, entry CachedSnapshot) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	date := entry.Snapshot.Date
	if err := c.rdb.Set(ctx, redisKeyPrefix+date, payload, redisTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", date, err)
	}
	return nil
}

// Get implements SnapshotCache. Entries written without a computed time
// decode with a zero ComputedAt and read as stale.
func (c *RedisSnapshotCache) Get(ctx context.Context, date string) (CachedSnapshot, bool, error) {
	raw, err := c.rdb.Get(ctx, redisKeyPrefix+date).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedSnapshot{}, false, nil
	}
	if err != nil {
		return CachedSnapshot{}, false, fmt.Errorf("redis get snapshot %s: %w", date, err)
	}
	var entry CachedSnapshot
	if err := json.Unmarshal(raw, &entry); err != nil {
		return CachedSnapshot{}, false, fmt.Errorf("decode snapshot %s: %w", date, err)
	}
	return entry, true, nil
}

var (
	_ SnapshotCache = (*MemorySnapshotCache)(nil)
	_ SnapshotCache = (*RedisSnapshotCache)(nil)
)
