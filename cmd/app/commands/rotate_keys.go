package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	keymgmtUsecase "github.com/tenantkit/secrets/internal/keymgmt/usecase"
)

// RunRotateKeys rotates the tenant's encryption key. Creates a new ACTIVE key
// in the secret-store backend, archives the previous active key and evicts
// archived keys beyond the retention cap, oldest first. Secrets encrypted with
// archived keys remain readable until their key is evicted.
//
// With no active key the rotation fails unless force is set, in which case an
// initial key is created.
func RunRotateKeys(
	ctx context.Context,
	engine keymgmtUsecase.KeyEngine,
	logger *slog.Logger,
	out io.Writer,
	tenantID string,
	force bool,
) error {
	logger.Info("rotating tenant key",
		slog.String("tenant_id", tenantID),
		slog.Bool("force", force),
	)

	result, err := engine.RotateKeys(ctx, tenantID, force)
	if err != nil {
		return fmt.Errorf("failed to rotate keys: %w", err)
	}

	if result.OldKeyID == "" {
		fmt.Fprintf(out, "Created initial key %s for tenant %s\n", result.NewKeyID, tenantID)
	} else {
		fmt.Fprintf(out, "Rotated key for tenant %s: %s -> %s\n", tenantID, result.OldKeyID, result.NewKeyID)
	}
	fmt.Fprintf(out, "Archived keys retained: %d\n", result.ArchivedKeys)

	logger.Info("key rotation completed",
		slog.String("tenant_id", tenantID),
		slog.String("old_key_id", result.OldKeyID),
		slog.String("new_key_id", result.NewKeyID),
		slog.Int("archived_keys", result.ArchivedKeys),
	)

	return nil
}
