package usecase

import (
	"context"
	"time"

	abuseDomain "github.com/tenantkit/secrets/internal/abuse/domain"
)

// BlacklistRepository defines the durable audit store for IP blocks.
type BlacklistRepository interface {
	Insert(ctx context.Context, entry *abuseDomain.BlacklistEntry) error
	FindActive(ctx context.Context, ipAddress string, now time.Time) (*abuseDomain.BlacklistEntry, error)
	MarkUnblocked(ctx context.Context, ipAddress, unblockedBy string, unblockedAt time.Time) error
	CountSince(ctx context.Context, since time.Time) (int64, error)
	CountCurrentlyBlocked(ctx context.Context, now time.Time) (int64, error)
	GroupByReason(ctx context.Context, since time.Time) (map[string]int64, error)
	RecentActivity(ctx context.Context, since time.Time, limit int) ([]*abuseDomain.BlacklistEntry, error)
}

// BlacklistIPInput carries the operator-supplied fields for blocking an IP.
type BlacklistIPInput struct {
	IPAddress string
	// Duration is how long the block lasts from now.
	Duration time.Duration
	Reason   string
	// BlockedBy identifies the operator or system issuing the block.
	BlockedBy string
}

// Guard blocks and rate-limits abusive callers. Enforcement reads fail open:
// when the cache and the durable store are both unreachable, callers are
// allowed through rather than locked out by an infrastructure outage.
type Guard interface {
	// IsIPBlacklisted reports whether the IP is currently blocked. Cache
	// first; on miss the durable store is authoritative and repopulates the
	// cache with the remaining TTL.
	IsIPBlacklisted(ctx context.Context, ipAddress string) (bool, error)

	// BlacklistIP blocks the IP for the given duration. The cache entry is
	// written first so enforcement is immediate even if the audit row lags.
	BlacklistIP(ctx context.Context, in BlacklistIPInput) (*abuseDomain.BlacklistEntry, error)

	// UnblacklistIP lifts a block: drops the cache entry and closes the
	// latest open audit row.
	UnblacklistIP(ctx context.Context, ipAddress, unblockedBy string) error

	// CheckRateLimit applies a fixed-window counter to the IP. On counter
	// errors the request is allowed.
	CheckRateLimit(ctx context.Context, ipAddress string, maxRequests int64, window time.Duration) (*abuseDomain.RateLimitResult, error)

	// GetBlacklistAnalytics aggregates read-only block reporting over the
	// last N days. No cache involvement.
	GetBlacklistAnalytics(ctx context.Context, days int) (*abuseDomain.BlacklistAnalytics, error)
}
