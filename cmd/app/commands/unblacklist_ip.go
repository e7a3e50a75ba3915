package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	abuseUsecase "github.com/tenantkit/secrets/internal/abuse/usecase"
)

// RunUnblacklistIP lifts an active block on an IP address. Removes the cache
// entry so enforcement stops immediately and closes the latest open audit row.
func RunUnblacklistIP(
	ctx context.Context,
	guard abuseUsecase.Guard,
	logger *slog.Logger,
	out io.Writer,
	ipAddress string,
	unblockedBy string,
) error {
	logger.Info("unblacklisting IP", slog.String("ip_address", ipAddress))

	if err := guard.UnblacklistIP(ctx, ipAddress, unblockedBy); err != nil {
		return fmt.Errorf("failed to unblacklist IP: %w", err)
	}

	fmt.Fprintf(out, "Unblocked %s\n", ipAddress)

	logger.Info("IP unblacklisted", slog.String("ip_address", ipAddress))
	return nil
}
