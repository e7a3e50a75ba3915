package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	abuseDomain "github.com/tenantkit/secrets/internal/abuse/domain"
	abuseUsecase "github.com/tenantkit/secrets/internal/abuse/usecase"
)

// RunBlacklistAnalytics reports block activity over the last N days: totals,
// currently open blocks, a per-reason breakdown and the most recent entries.
// Supports both text and JSON output formats.
func RunBlacklistAnalytics(
	ctx context.Context,
	guard abuseUsecase.Guard,
	logger *slog.Logger,
	out io.Writer,
	days int,
	format string,
) error {
	logger.Info("fetching blacklist analytics", slog.Int("days", days))

	analytics, err := guard.GetBlacklistAnalytics(ctx, days)
	if err != nil {
		return fmt.Errorf("failed to fetch blacklist analytics: %w", err)
	}

	if format == "json" {
		return outputAnalyticsJSON(out, days, analytics)
	}
	outputAnalyticsText(out, days, analytics)
	return nil
}

// outputAnalyticsText outputs the analytics in human-readable text format.
func outputAnalyticsText(out io.Writer, days int, analytics *abuseDomain.BlacklistAnalytics) {
	fmt.Fprintf(out, "Blacklist activity, last %d day(s):\n", days)
	fmt.Fprintf(out, "  Total blocked:     %d\n", analytics.TotalBlocked)
	fmt.Fprintf(out, "  Currently blocked: %d\n", analytics.CurrentlyBlocked)

	if len(analytics.ByReason) > 0 {
		fmt.Fprintln(out, "  By reason:")
		for reason, count := range analytics.ByReason {
			if reason == "" {
				reason = "(none)"
			}
			fmt.Fprintf(out, "    %s: %d\n", reason, count)
		}
	}

	if len(analytics.RecentActivity) > 0 {
		fmt.Fprintln(out, "  Recent activity:")
		for _, entry := range analytics.RecentActivity {
			fmt.Fprintf(out, "    %s blocked until %s by %s\n",
				entry.IPAddress,
				entry.BlockedUntil.Format(time.RFC3339),
				entry.BlockedBy,
			)
		}
	}
}

// outputAnalyticsJSON outputs the analytics in JSON format for machine consumption.
func outputAnalyticsJSON(out io.Writer, days int, analytics *abuseDomain.BlacklistAnalytics) error {
	type activityEntry struct {
		IPAddress    string    `json:"ip_address"`
		BlockedUntil time.Time `json:"blocked_until"`
		Reason       string    `json:"reason,omitempty"`
		BlockedBy    string    `json:"blocked_by,omitempty"`
		CreatedAt    time.Time `json:"created_at"`
	}

	recent := make([]activityEntry, 0, len(analytics.RecentActivity))
	for _, entry := range analytics.RecentActivity {
		recent = append(recent, activityEntry{
			IPAddress:    entry.IPAddress,
			BlockedUntil: entry.BlockedUntil,
			Reason:       entry.Reason,
			BlockedBy:    entry.BlockedBy,
			CreatedAt:    entry.CreatedAt,
		})
	}

	result := map[string]interface{}{
		"days":              days,
		"total_blocked":     analytics.TotalBlocked,
		"currently_blocked": analytics.CurrentlyBlocked,
		"by_reason":         analytics.ByReason,
		"recent_activity":   recent,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(out, string(jsonBytes))
	return nil
}
