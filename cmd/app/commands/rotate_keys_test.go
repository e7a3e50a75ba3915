package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

func TestRunRotateKeys(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("rotation", func(t *testing.T) {
		mockEngine := &mockKeyEngine{}
		mockEngine.On("RotateKeys", ctx, "tenant-a", false).Return(&keymgmtDomain.RotationResult{
			OldKeyID:     "old-key",
			NewKeyID:     "new-key",
			RotationDate: time.Now().UTC(),
			ArchivedKeys: 2,
		}, nil)

		var out bytes.Buffer
		err := RunRotateKeys(ctx, mockEngine, logger, &out, "tenant-a", false)

		require.NoError(t, err)
		require.Contains(t, out.String(), "Rotated key for tenant tenant-a: old-key -> new-key")
		require.Contains(t, out.String(), "Archived keys retained: 2")
		mockEngine.AssertExpectations(t)
	})

	t.Run("forced-initial-key", func(t *testing.T) {
		mockEngine := &mockKeyEngine{}
		mockEngine.On("RotateKeys", ctx, "tenant-a", true).Return(&keymgmtDomain.RotationResult{
			NewKeyID:     "new-key",
			RotationDate: time.Now().UTC(),
		}, nil)

		var out bytes.Buffer
		err := RunRotateKeys(ctx, mockEngine, logger, &out, "tenant-a", true)

		require.NoError(t, err)
		require.Contains(t, out.String(), "Created initial key new-key for tenant tenant-a")
		mockEngine.AssertExpectations(t)
	})

	t.Run("engine-error", func(t *testing.T) {
		mockEngine := &mockKeyEngine{}
		mockEngine.On("RotateKeys", ctx, "tenant-a", false).Return(nil, context.DeadlineExceeded)

		var out bytes.Buffer
		err := RunRotateKeys(ctx, mockEngine, logger, &out, "tenant-a", false)

		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to rotate keys")
		mockEngine.AssertExpectations(t)
	})
}
