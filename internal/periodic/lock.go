// Package periodic implements C11: idempotent periodic jobs (reflection
// sweep, forgetting cycle, cache regeneration, health probe), each
// guarded by a per-(job_name, workspace_id) lock so a job overlapping
// its own previous run — or a second scheduler instance racing the
// first — skips instead of double-running (spec §4.10: "periodic jobs
// are idempotent and carry an internal per-run lock").
package periodic

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Lock is a best-effort mutual-exclusion primitive keyed by an arbitrary
// string, grounded on internal/orchestrator/dedupe.go's
// RedisDedupeStore construction style but exposing SetNX-style atomic
// acquire semantics instead of plain get/set (a lock must never be
// granted to two holders at once; a dedupe store only needs to record
// that a key was seen).
type Lock interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLock implements Lock over a single Redis key per lock name.
type RedisLock struct {
	client *redis.Client
}

// NewRedisLock dials addr and validates the connection with a ping,
// mirroring NewRedisDedupeStore.
func NewRedisLock(addr string) (*RedisLock, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisLock{client: c}, nil
}

// TryAcquire sets key only if absent, expiring it after ttl so a holder
// that crashes without releasing never wedges the lock permanently.
func (l *RedisLock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, "1", ttl).Result()
}

// Release deletes the lock key.
func (l *RedisLock) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// Close releases the underlying Redis client.
func (l *RedisLock) Close() error {
	return l.client.Close()
}

func lockKey(jobName, workspaceID string) string {
	return fmt.Sprintf("periodic:lock:%s:%s", jobName, workspaceID)
}
