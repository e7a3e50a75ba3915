package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
	keymgmtUsecase "github.com/tenantkit/secrets/internal/keymgmt/usecase"
)

// RunListKeys lists all encryption keys for a tenant with their lifecycle
// status. Supports both text and JSON output formats.
func RunListKeys(
	ctx context.Context,
	engine keymgmtUsecase.KeyEngine,
	logger *slog.Logger,
	out io.Writer,
	tenantID string,
	format string,
) error {
	logger.Info("listing tenant keys", slog.String("tenant_id", tenantID))

	keys, err := engine.ListKeys(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	if format == "json" {
		return outputKeysJSON(out, tenantID, keys)
	}
	outputKeysText(out, tenantID, keys)
	return nil
}

// outputKeysText outputs the key list in human-readable text format.
func outputKeysText(out io.Writer, tenantID string, keys *keymgmtDomain.TenantKeys) {
	if len(keys.Keys) == 0 {
		fmt.Fprintf(out, "No keys found for tenant %s\n", tenantID)
		return
	}

	fmt.Fprintf(out, "Keys for tenant %s (active: %s):\n", tenantID, keys.ActiveKeyID)
	for _, key := range keys.Keys {
		fmt.Fprintf(out, "  %s  %-8s  %s  created %s\n",
			key.ID,
			key.Status,
			key.Algorithm,
			key.CreatedAt.Format(time.RFC3339),
		)
	}
}

// outputKeysJSON outputs the key list in JSON format for machine consumption.
func outputKeysJSON(out io.Writer, tenantID string, keys *keymgmtDomain.TenantKeys) error {
	type keyEntry struct {
		ID           string     `json:"id"`
		Status       string     `json:"status"`
		Algorithm    string     `json:"algorithm"`
		KeySize      int        `json:"key_size"`
		CreatedAt    time.Time  `json:"created_at"`
		RotationDate *time.Time `json:"rotation_date,omitempty"`
		ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	}

	entries := make([]keyEntry, 0, len(keys.Keys))
	for _, key := range keys.Keys {
		entries = append(entries, keyEntry{
			ID:           key.ID,
			Status:       string(key.Status),
			Algorithm:    key.Algorithm,
			KeySize:      key.KeySize,
			CreatedAt:    key.CreatedAt,
			RotationDate: key.RotationDate,
			ArchivedAt:   key.ArchivedAt,
		})
	}

	result := map[string]interface{}{
		"tenant_id":     tenantID,
		"active_key_id": keys.ActiveKeyID,
		"keys":          entries,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(out, string(jsonBytes))
	return nil
}
