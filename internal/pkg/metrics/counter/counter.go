// Package counter keeps cheap daily pipeline counters in Redis. They are
// best-effort operational numbers, the database rows stay the source of truth.
package counter

import (
	"context"
	"time"

	"github.com/planetaketo/storefront/internal/pkg/cache"
)

const keyPrefix = "storefront:counters:"

// Counter field names.
const (
	WebhooksProcessed = "webhooks_processed"
	WebhooksDuplicate = "webhooks_duplicate"
	WebhooksFailed    = "webhooks_failed"
	EmailsSent        = "emails_sent"
	DownloadsServed   = "downloads_served"
	DownloadsRejected = "downloads_rejected"
)

func dayKey(day time.Time) string {
	return keyPrefix + day.Format("2006-01-02")
}

// Add increments one of today's counters.
func Add(field string) error {
	ctx := context.Background()
	key := dayKey(time.Now())
	if err := cache.GetClient().HIncrBy(ctx, key, field, 1).Err(); err != nil {
		return err
	}
	// Daily hashes expire on their own; 40 days covers a month of lookback.
	return cache.GetClient().Expire(ctx, key, 40*24*time.Hour).Err()
}

// Snapshot returns all counters recorded for the given day.
func Snapshot(day time.Time) (map[string]string, error) {
	return cache.GetClient().HGetAll(context.Background(), dayKey(day)).Result()
}
