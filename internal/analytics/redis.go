// Package analytics records fire-rate counters in Redis. Counters are
// best-effort: delivery never blocks on them.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/djlord-it/easy-trigger/internal/domain"
)

// RedisSink implements dispatcher.AnalyticsSink on a Redis client. Each fire
// increments a per-schedule counter bucketed by the configured window; keys
// expire after the configured retention.
type RedisSink struct {
	client *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Record(ctx context.Context, event domain.FireEvent, config domain.AnalyticsConfig) error {
	if !config.Enabled {
		return nil
	}

	key := buildKey(event.ScheduleID.String(), config.Type, event.ScheduledAt, config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

func buildKey(scheduleID string, typ domain.AnalyticsType, t time.Time, window time.Duration) string {
	return fmt.Sprintf("sched:%s:%s:%s", scheduleID, typ, bucketOf(t, window))
}

// bucketOf truncates t to the start of its window so every fire inside the
// same window increments the same key.
func bucketOf(t time.Time, window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	return t.UTC().Truncate(window).Format("20060102T150405")
}
