package periodic

import (
	"context"
	"fmt"
	"time"
)

// CacheRegeneration refreshes C12's cached insight/summary rows
// independent of ReflectionSweep's statement-driven trigger — either a
// periodic full sweep over every end user (Lister) or a targeted
// single-user rebuild (the taskqueue's cache_rebuild job kind, §4.10's
// "durable async submission of ... cache-rebuild jobs").
type CacheRegeneration struct {
	Lister  EndUserLister
	Insight InsightRefresher
}

// RunAll refreshes every end user with activity since since.
func (c *CacheRegeneration) RunAll(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := c.Lister.ListEndUserIDs(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("cache regeneration: list end users: %w", err)
	}
	var failed []string
	for _, id := range ids {
		if err := c.Insight.Refresh(ctx, id); err != nil {
			failed = append(failed, id)
		}
	}
	return failed, nil
}

// RunOne refreshes a single end user's cached insight row (the
// cache_rebuild job kind's handler).
func (c *CacheRegeneration) RunOne(ctx context.Context, endUserID string) error {
	if err := c.Insight.Refresh(ctx, endUserID); err != nil {
		return fmt.Errorf("cache regeneration: refresh %s: %w", endUserID, err)
	}
	return nil
}
