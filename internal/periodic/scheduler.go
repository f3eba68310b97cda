package periodic

import (
	"context"
	"time"
)

// Scheduler runs a named job under a per-(job_name, workspace_id) lock.
type Scheduler struct {
	lock    Lock
	lockTTL time.Duration
}

// NewScheduler builds a Scheduler. lockTTL should comfortably exceed the
// slowest expected run of any job it guards, so a crashed holder's lock
// expires rather than wedging future runs, while a healthy run never
// loses its lock mid-flight.
func NewScheduler(lock Lock, lockTTL time.Duration) *Scheduler {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Scheduler{lock: lock, lockTTL: lockTTL}
}

// RunLocked attempts to acquire jobName's lock for workspaceID and, on
// success, runs fn and releases the lock afterward. ran is false (with a
// nil error) when another holder already has the lock — this is the
// normal, expected outcome of two overlapping triggers, not a failure.
func (s *Scheduler) RunLocked(ctx context.Context, jobName, workspaceID string, fn func(ctx context.Context) error) (ran bool, err error) {
	key := lockKey(jobName, workspaceID)
	acquired, err := s.lock.TryAcquire(ctx, key, s.lockTTL)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}
	defer s.lock.Release(ctx, key)
	return true, fn(ctx)
}
