package constants

import (
	"fmt"
	"time"
)

// Redis keys follow eventdraw:{module}:{purpose}:{identifier}

const (
	CACHE_PREFIX = "eventdraw"
)

// TTLs
const (
	TTL_WAITLIST_SUMMARY = 30 * time.Second // counters change with every join
	TTL_EVENT_DETAIL     = 2 * time.Minute
)

const (
	CACHE_KEY_WAITLIST_SUMMARY = CACHE_PREFIX + ":waitlist:summary:event:"
	CACHE_KEY_EVENT_DETAIL     = CACHE_PREFIX + ":events:detail:event:"
	LOCK_KEY_EVENT             = CACHE_PREFIX + ":lock:event:"
	RATE_LIMIT_PREFIX          = CACHE_PREFIX + ":ratelimit"
)

// BuildWaitlistSummaryKey returns the cache key of an event's waitlist summary
func BuildWaitlistSummaryKey(eventID string) string {
	return CACHE_KEY_WAITLIST_SUMMARY + eventID
}

// BuildEventDetailKey returns the cache key of an event's detail view
func BuildEventDetailKey(eventID string) string {
	return CACHE_KEY_EVENT_DETAIL + eventID
}

// BuildEventLockKey returns the key guarding writes to one event
func BuildEventLockKey(eventID string) string {
	return LOCK_KEY_EVENT + eventID
}

// BuildRateLimitKey returns the sliding-window key for a caller on an endpoint group
func BuildRateLimitKey(scope, identity string) string {
	return fmt.Sprintf("%s:%s:%s", RATE_LIMIT_PREFIX, scope, identity)
}
