// Package usecase implements the abuse guard: a TTL-cached IP blacklist over
// a durable audit store, and a fixed-window rate limiter on the cache's
// atomic counters.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	validation "github.com/jellydator/validation"

	abuseDomain "github.com/tenantkit/secrets/internal/abuse/domain"
	"github.com/tenantkit/secrets/internal/cache"
	apperrors "github.com/tenantkit/secrets/internal/errors"
	appvalidation "github.com/tenantkit/secrets/internal/validation"
)

const (
	blacklistKeyPrefix = "blacklist:ip:"
	rateLimitKeyPrefix = "ratelimit:ip:"

	// recentActivityLimit caps the analytics activity listing.
	recentActivityLimit = 10
)

type guard struct {
	cache  cache.Cache
	repo   BlacklistRepository
	logger *slog.Logger
}

// NewGuard creates the abuse guard over a cache and a durable audit store.
func NewGuard(c cache.Cache, repo BlacklistRepository, logger *slog.Logger) Guard {
	return &guard{
		cache:  c,
		repo:   repo,
		logger: logger,
	}
}

func validateIP(ipAddress string) error {
	if err := validation.Validate(ipAddress, appvalidation.IPAddress...); err != nil {
		return appvalidation.WrapValidationError(err)
	}
	return nil
}

func blacklistKey(ipAddress string) string {
	return blacklistKeyPrefix + ipAddress
}

func rateLimitKey(ipAddress string) string {
	return rateLimitKeyPrefix + ipAddress
}

// IsIPBlacklisted checks the cache first, then the durable store on a miss.
// Infrastructure failures on either side degrade to allowing the caller.
func (g *guard) IsIPBlacklisted(ctx context.Context, ipAddress string) (bool, error) {
	if err := validateIP(ipAddress); err != nil {
		return false, err
	}

	now := time.Now().UTC()

	value, err := g.cache.Get(ctx, blacklistKey(ipAddress))
	switch {
	case err == nil:
		blockedUntilMs, parseErr := strconv.ParseInt(value, 10, 64)
		if parseErr == nil && time.UnixMilli(blockedUntilMs).After(now) {
			return true, nil
		}
		// Malformed or stale cache value; fall through to the durable store.
	case !apperrors.Is(err, cache.ErrCacheMiss):
		g.logger.WarnContext(ctx, "blacklist cache unavailable, falling back to durable store",
			slog.String("ip_address", ipAddress),
			slog.String("error", err.Error()),
		)
	}

	entry, err := g.repo.FindActive(ctx, ipAddress, now)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		g.logger.WarnContext(ctx, "blacklist durable store unavailable, failing open",
			slog.String("ip_address", ipAddress),
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	// Durable hit: repopulate the cache with the remaining TTL.
	remaining := entry.BlockedUntil.Sub(now)
	if remaining > 0 {
		value := strconv.FormatInt(entry.BlockedUntil.UnixMilli(), 10)
		if err := g.cache.SetEx(ctx, blacklistKey(ipAddress), value, remaining); err != nil {
			g.logger.WarnContext(ctx, "failed to repopulate blacklist cache",
				slog.String("ip_address", ipAddress),
				slog.String("error", err.Error()),
			)
		}
	}
	return true, nil
}

// BlacklistIP writes the cache entry before the audit row so enforcement is
// immediate; a delayed audit write leaves the cache authoritative until its
// TTL expires.
func (g *guard) BlacklistIP(ctx context.Context, in BlacklistIPInput) (*abuseDomain.BlacklistEntry, error) {
	if err := validateIP(in.IPAddress); err != nil {
		return nil, err
	}
	if in.Duration <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "block duration must be positive")
	}

	now := time.Now().UTC()
	entry := &abuseDomain.BlacklistEntry{
		IPAddress:    in.IPAddress,
		BlockedUntil: now.Add(in.Duration),
		Reason:       in.Reason,
		BlockedBy:    in.BlockedBy,
		CreatedAt:    now,
	}

	value := strconv.FormatInt(entry.BlockedUntil.UnixMilli(), 10)
	if err := g.cache.SetEx(ctx, blacklistKey(in.IPAddress), value, in.Duration); err != nil {
		g.logger.WarnContext(ctx, "failed to write blacklist cache entry",
			slog.String("ip_address", in.IPAddress),
			slog.String("error", err.Error()),
		)
	}

	if err := g.repo.Insert(ctx, entry); err != nil {
		return nil, apperrors.Wrap(err, "failed to record blacklist audit row")
	}

	g.logger.InfoContext(ctx, "blacklisted ip",
		slog.String("ip_address", in.IPAddress),
		slog.Time("blocked_until", entry.BlockedUntil),
		slog.String("reason", in.Reason),
		slog.String("blocked_by", in.BlockedBy),
	)
	return entry, nil
}

// UnblacklistIP drops the cache entry and closes the latest open audit row.
func (g *guard) UnblacklistIP(ctx context.Context, ipAddress, unblockedBy string) error {
	if err := validateIP(ipAddress); err != nil {
		return err
	}

	if err := g.cache.Del(ctx, blacklistKey(ipAddress)); err != nil {
		g.logger.WarnContext(ctx, "failed to delete blacklist cache entry",
			slog.String("ip_address", ipAddress),
			slog.String("error", err.Error()),
		)
	}

	if err := g.repo.MarkUnblocked(ctx, ipAddress, unblockedBy, time.Now().UTC()); err != nil {
		return apperrors.Wrap(err, "failed to close blacklist audit row")
	}

	g.logger.InfoContext(ctx, "unblacklisted ip",
		slog.String("ip_address", ipAddress),
		slog.String("unblocked_by", unblockedBy),
	)
	return nil
}

// CheckRateLimit applies a fixed window: the first increment in a fresh
// window sets the expiry, and the decision is count <= maxRequests. Counter
// errors allow the request through.
func (g *guard) CheckRateLimit(
	ctx context.Context,
	ipAddress string,
	maxRequests int64,
	window time.Duration,
) (*abuseDomain.RateLimitResult, error) {
	if err := validateIP(ipAddress); err != nil {
		return nil, err
	}
	if maxRequests <= 0 || window <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "rate limit parameters must be positive")
	}

	now := time.Now().UTC()
	key := rateLimitKey(ipAddress)

	count, err := g.cache.Incr(ctx, key)
	if err != nil {
		g.logger.WarnContext(ctx, "rate limit counter unavailable, failing open",
			slog.String("ip_address", ipAddress),
			slog.String("error", err.Error()),
		)
		return &abuseDomain.RateLimitResult{
			Allowed:   true,
			Remaining: maxRequests,
			ResetTime: now.Add(window),
		}, nil
	}

	resetTime := now.Add(window)
	if count == 1 {
		if _, err := g.cache.Expire(ctx, key, window); err != nil {
			g.logger.WarnContext(ctx, "failed to set rate limit window expiry",
				slog.String("ip_address", ipAddress),
				slog.String("error", err.Error()),
			)
		}
	} else if ttl, err := g.cache.TTL(ctx, key); err == nil && ttl > 0 {
		resetTime = now.Add(ttl)
	}

	remaining := maxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return &abuseDomain.RateLimitResult{
		Allowed:   count <= maxRequests,
		Remaining: remaining,
		ResetTime: resetTime,
	}, nil
}

// GetBlacklistAnalytics aggregates reporting over the durable store only.
func (g *guard) GetBlacklistAnalytics(ctx context.Context, days int) (*abuseDomain.BlacklistAnalytics, error) {
	if days <= 0 {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Sprintf("invalid reporting period %d days", days))
	}

	now := time.Now().UTC()
	since := now.Add(-time.Duration(days) * 24 * time.Hour)

	totalBlocked, err := g.repo.CountSince(ctx, since)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count blocked entries")
	}

	currentlyBlocked, err := g.repo.CountCurrentlyBlocked(ctx, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count currently blocked entries")
	}

	byReason, err := g.repo.GroupByReason(ctx, since)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to group blocks by reason")
	}

	recent, err := g.repo.RecentActivity(ctx, since, recentActivityLimit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list recent activity")
	}

	return &abuseDomain.BlacklistAnalytics{
		TotalBlocked:     totalBlocked,
		CurrentlyBlocked: currentlyBlocked,
		ByReason:         byReason,
		RecentActivity:   recent,
	}, nil
}
