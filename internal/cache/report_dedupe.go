package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "delivery_report"

// ReportDedupe remembers delivery reports that have already been applied so
// gateway retries of the same webhook do not reconcile messages twice.
type ReportDedupe interface {
	// MarkSeen records the report and returns true when it is the first
	// sighting within the retention window.
	MarkSeen(ctx context.Context, bulkID, messageID string) (bool, error)
}

type redisReportDedupe struct {
	client    *redis.Client
	retention time.Duration
}

func NewReportDedupe(client *redis.Client, retention time.Duration) ReportDedupe {
	return &redisReportDedupe{client: client, retention: retention}
}

func (r *redisReportDedupe) MarkSeen(ctx context.Context, bulkID, messageID string) (bool, error) {
	key := fmt.Sprintf("%s:%s:%s", dedupeKeyPrefix, bulkID, messageID)
	first, err := r.client.SetNX(ctx, key, 1, r.retention).Result()
	if err != nil {
		return false, fmt.Errorf("marking delivery report seen: %w", err)
	}
	return first, nil
}
