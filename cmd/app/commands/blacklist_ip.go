package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	abuseUsecase "github.com/tenantkit/secrets/internal/abuse/usecase"
)

// RunBlacklistIP blocks an IP address for the given number of minutes. The
// block takes effect immediately via the cache and is recorded in the durable
// audit store.
func RunBlacklistIP(
	ctx context.Context,
	guard abuseUsecase.Guard,
	logger *slog.Logger,
	out io.Writer,
	ipAddress string,
	minutes int,
	reason string,
	blockedBy string,
) error {
	// Validate minutes parameter
	if minutes <= 0 {
		return fmt.Errorf("minutes must be a positive number, got: %d", minutes)
	}

	logger.Info("blacklisting IP",
		slog.String("ip_address", ipAddress),
		slog.Int("minutes", minutes),
		slog.String("reason", reason),
	)

	entry, err := guard.BlacklistIP(ctx, abuseUsecase.BlacklistIPInput{
		IPAddress: ipAddress,
		Duration:  time.Duration(minutes) * time.Minute,
		Reason:    reason,
		BlockedBy: blockedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to blacklist IP: %w", err)
	}

	fmt.Fprintf(out, "Blocked %s until %s\n", entry.IPAddress, entry.BlockedUntil.Format(time.RFC3339))

	logger.Info("IP blacklisted",
		slog.String("ip_address", entry.IPAddress),
		slog.Time("blocked_until", entry.BlockedUntil),
	)

	return nil
}
