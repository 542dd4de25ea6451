package fulfillment

import (
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/planetaketo/storefront/internal/pkg/cache"
)

const (
	completedEventKeyPrefix = "webhook:completed:"
	completedEventTTL       = 48 * time.Hour
)

// EventCache is the optional fast path for the completed-event pre-check.
// Misses fall through to the database, so cache failures are never fatal.
type EventCache interface {
	MarkCompleted(providerEventID string)
	IsCompleted(providerEventID string) bool
}

type redisEventCache struct{}

// NewRedisEventCache returns an EventCache backed by the shared Redis
// connection.
func NewRedisEventCache() EventCache {
	return &redisEventCache{}
}

func (c *redisEventCache) MarkCompleted(providerEventID string) {
	if err := cache.Set(completedEventKeyPrefix+providerEventID, "1", completedEventTTL); err != nil {
		log.Warnf("failed to cache completed event %s: %v", providerEventID, err)
	}
}

func (c *redisEventCache) IsCompleted(providerEventID string) bool {
	val, err := cache.Get(completedEventKeyPrefix + providerEventID)
	return err == nil && val == "1"
}
