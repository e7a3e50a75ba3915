package usecase

import (
	"context"
	"time"

	abuseDomain "github.com/tenantkit/secrets/internal/abuse/domain"
	"github.com/tenantkit/secrets/internal/metrics"
)

const metricsDomain = "abuse"

// guardWithMetrics decorates Guard with metrics instrumentation.
type guardWithMetrics struct {
	next    Guard
	metrics metrics.BusinessMetrics
}

// NewGuardWithMetrics wraps a Guard with metrics recording.
func NewGuardWithMetrics(g Guard, m metrics.BusinessMetrics) Guard {
	return &guardWithMetrics{
		next:    g,
		metrics: m,
	}
}

func (g *guardWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	g.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	g.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

func (g *guardWithMetrics) IsIPBlacklisted(ctx context.Context, ipAddress string) (bool, error) {
	start := time.Now()
	blocked, err := g.next.IsIPBlacklisted(ctx, ipAddress)
	g.record(ctx, "blacklist_check", start, err)
	return blocked, err
}

func (g *guardWithMetrics) BlacklistIP(ctx context.Context, in BlacklistIPInput) (*abuseDomain.BlacklistEntry, error) {
	start := time.Now()
	entry, err := g.next.BlacklistIP(ctx, in)
	g.record(ctx, "blacklist_ip", start, err)
	return entry, err
}

func (g *guardWithMetrics) UnblacklistIP(ctx context.Context, ipAddress, unblockedBy string) error {
	start := time.Now()
	err := g.next.UnblacklistIP(ctx, ipAddress, unblockedBy)
	g.record(ctx, "unblacklist_ip", start, err)
	return err
}

func (g *guardWithMetrics) CheckRateLimit(
	ctx context.Context,
	ipAddress string,
	maxRequests int64,
	window time.Duration,
) (*abuseDomain.RateLimitResult, error) {
	start := time.Now()
	result, err := g.next.CheckRateLimit(ctx, ipAddress, maxRequests, window)
	g.record(ctx, "rate_limit_check", start, err)
	return result, err
}

func (g *guardWithMetrics) GetBlacklistAnalytics(ctx context.Context, days int) (*abuseDomain.BlacklistAnalytics, error) {
	start := time.Now()
	analytics, err := g.next.GetBlacklistAnalytics(ctx, days)
	g.record(ctx, "blacklist_analytics", start, err)
	return analytics, err
}
