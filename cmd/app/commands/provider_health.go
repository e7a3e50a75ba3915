package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/tenantkit/secrets/internal/provider"
)

// RunProviderHealth checks that the configured secret-store backend responds.
// Prints the backend name and its reachability status; returns an error when
// the backend is unhealthy so the command exits non-zero.
func RunProviderHealth(
	ctx context.Context,
	p provider.SecretStoreProvider,
	logger *slog.Logger,
	out io.Writer,
) error {
	logger.Info("checking provider health")

	status, err := p.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("failed to check provider health: %w", err)
	}

	if status.Healthy {
		fmt.Fprintf(out, "Provider %s is healthy\n", status.Backend)
	} else {
		fmt.Fprintf(out, "Provider %s is unhealthy: %s\n", status.Backend, status.Detail)
	}

	logger.Info("provider health checked",
		slog.String("backend", status.Backend),
		slog.Bool("healthy", status.Healthy),
	)

	if !status.Healthy {
		return fmt.Errorf("provider %s is unhealthy: %s", status.Backend, status.Detail)
	}
	return nil
}
