package periodic

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
)

// Status is the health probe's coarse verdict (spec §6: "status ∈
// {Success,Fail,unknown,warning}").
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFail    Status = "Fail"
	StatusUnknown Status = "unknown"
	StatusWarning Status = "warning"
)

const warnThresholdPercent = 80.0
const failThresholdPercent = 95.0

// HealthResult is one probe's outcome (spec §6: "{status,
// database_pool:{usage_percent}}"; the msg/code/error/time fields
// mirror the Redis hash shape the spec names for the cached copy).
type HealthResult struct {
	Status                   Status
	DatabasePoolUsagePercent float64
	Message                  string
	Code                     int
	Error                    string
	Time                     time.Time
}

// HealthProbe checks the relational DB pool's saturation and caches the
// verdict in Redis under a TTL, grounded on spec §6's "Redis:
// memsci:health:read_service hash {status,msg,code,error,time} with
// TTL" contract — key prefix adapted from the original's "memsci" to
// this module's own namespace, hash shape kept unchanged.
type HealthProbe struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	ServiceName string
	CacheTTL    time.Duration
}

func (h *HealthProbe) cacheKey() string {
	name := h.ServiceName
	if name == "" {
		name = "read_service"
	}
	return fmt.Sprintf("memoryengine:health:%s", name)
}

// Run computes database_pool.usage_percent from the pgx pool's live
// stats, derives a status (fail ≥95%, warning ≥80% per §5's "alerts >
// 80%", else Success), caches the hash with CacheTTL, and returns it.
func (h *HealthProbe) Run(ctx context.Context) (HealthResult, error) {
	result := HealthResult{Status: StatusUnknown, Time: time.Now()}

	if h.Pool == nil {
		result.Error = "database pool unavailable"
		result.Status = StatusFail
		return result, h.cache(ctx, result)
	}

	stat := h.Pool.Stat()
	if max := stat.MaxConns(); max > 0 {
		result.DatabasePoolUsagePercent = float64(stat.TotalConns()) / float64(max) * 100
	}

	switch {
	case result.DatabasePoolUsagePercent >= failThresholdPercent:
		result.Status = StatusFail
	case result.DatabasePoolUsagePercent >= warnThresholdPercent:
		result.Status = StatusWarning
	default:
		result.Status = StatusSuccess
	}

	return result, h.cache(ctx, result)
}

func (h *HealthProbe) cache(ctx context.Context, result HealthResult) error {
	if h.Redis == nil {
		return nil
	}
	ttl := h.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	key := h.cacheKey()
	fields := map[string]any{
		"status": string(result.Status),
		"msg":    result.Message,
		"code":   result.Code,
		"error":  result.Error,
		"time":   result.Time.Format(time.RFC3339),
	}
	if err := h.Redis.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("health probe: cache result: %w", err)
	}
	if err := h.Redis.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("health probe: set cache TTL: %w", err)
	}
	return nil
}
