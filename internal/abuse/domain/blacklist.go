// Package domain defines the abuse-guard domain models: durable IP blacklist
// audit records and rate-limit decisions.
package domain

import "time"

// BlacklistEntry is a durable audit record of an IP block. Rows are append
// only; unblocking marks the open row instead of deleting it, preserving the
// audit trail.
type BlacklistEntry struct {
	ID int64
	// IPAddress is the blocked caller address (IPv4 or IPv6).
	IPAddress string
	// BlockedUntil is when the block expires on its own.
	BlockedUntil time.Time
	// Reason is an optional operator-supplied block reason.
	Reason string
	// BlockedBy identifies who or what issued the block.
	BlockedBy string
	// UnblockedAt marks an explicit early unblock (nil while the block is open).
	UnblockedAt *time.Time
	// UnblockedBy identifies who lifted the block.
	UnblockedBy string
	CreatedAt   time.Time
}

// IsOpen reports whether the entry still blocks at the given time.
func (b *BlacklistEntry) IsOpen(now time.Time) bool {
	return b.UnblockedAt == nil && b.BlockedUntil.After(now)
}

// RateLimitResult is the outcome of a fixed-window rate-limit check.
type RateLimitResult struct {
	// Allowed reports whether the request is within the window's limit.
	Allowed bool
	// Remaining is the number of requests left in the current window.
	Remaining int64
	// ResetTime is when the current window expires and the counter resets.
	ResetTime time.Time
}

// BlacklistAnalytics aggregates read-only reporting over the durable store.
type BlacklistAnalytics struct {
	// TotalBlocked counts blocks issued in the reporting period.
	TotalBlocked int64
	// CurrentlyBlocked counts blocks open right now.
	CurrentlyBlocked int64
	// ByReason groups period blocks by reason (empty reason keyed as "").
	ByReason map[string]int64
	// RecentActivity lists the most recent block entries, newest first.
	RecentActivity []*BlacklistEntry
}
