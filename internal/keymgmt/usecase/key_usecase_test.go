package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
	"github.com/tenantkit/secrets/internal/provider"
)

func newTestEngine(t *testing.T, maxArchivedKeys int) (KeyEngine, *fakeKeyRepository, *provider.LocalProvider) {
	t.Helper()

	p := provider.NewLocalProvider("")
	require.NoError(t, p.Initialize(context.Background()))

	repo := newFakeKeyRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := NewKeyEngine(passthroughTxManager{}, repo, p, logger, maxArchivedKeys)
	return engine, repo, p
}

func TestKeyEngine_EnsureActiveKey(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_CreatesKeyOnFirstUse", func(t *testing.T) {
		engine, _, p := newTestEngine(t, 0)

		key, err := engine.EnsureActiveKey(ctx, "acme")

		require.NoError(t, err)
		assert.Equal(t, "acme", key.TenantID)
		assert.Equal(t, keymgmtDomain.KeyStatusActive, key.Status)
		assert.Equal(t, keymgmtDomain.Algorithm, key.Algorithm)

		paths, err := p.GetTenantPaths("acme")
		require.NoError(t, err)
		info, err := p.GetKey(ctx, paths.KeyName(key.ID))
		require.NoError(t, err)
		assert.Equal(t, keymgmtDomain.KeySize, info.KeySize)
	})

	t.Run("Success_ReturnsExistingKey", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		first, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)
		second, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("Success_KeysAreTenantScoped", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		acme, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)
		globex, err := engine.EnsureActiveKey(ctx, "globex")
		require.NoError(t, err)

		assert.NotEqual(t, acme.ID, globex.ID)
	})

	t.Run("Error_InvalidTenantID", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.EnsureActiveKey(ctx, "../other-tenant")

		assert.ErrorIs(t, err, apperrors.ErrInvalidTenantID)
	})

	t.Run("Success_LoserOfCreateRaceReturnsWinner", func(t *testing.T) {
		p := provider.NewLocalProvider("")
		require.NoError(t, p.Initialize(ctx))
		repo := &racingKeyRepository{fakeKeyRepository: newFakeKeyRepository()}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		engine := NewKeyEngine(passthroughTxManager{}, repo, p, logger, 0)

		key, err := engine.EnsureActiveKey(ctx, "acme")

		require.NoError(t, err)
		require.NotNil(t, repo.winner)
		assert.Equal(t, repo.winner.ID, key.ID)

		// The loser's provisioned key material is cleaned up, so the provider
		// holds no orphan. The winner's material lives in its own store.
		names, err := p.ListKeys(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("Error_ProviderNotReady", func(t *testing.T) {
		p := provider.NewLocalProvider("")
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		engine := NewKeyEngine(passthroughTxManager{}, newFakeKeyRepository(), p, logger, 0)

		_, err := engine.EnsureActiveKey(ctx, "acme")

		assert.ErrorIs(t, err, apperrors.ErrProviderNotReady)
	})
}

func TestKeyEngine_StoreSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RoundTrip", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		record, err := engine.StoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "api-token",
			Value:    "tok_12345",
			Tags:     map[string]string{"env": "prod"},
		})
		require.NoError(t, err)
		assert.False(t, record.IsEncrypted())
		assert.Equal(t, len("tok_12345"), record.Size)

		got, err := engine.GetSecret(ctx, "acme", record.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok_12345", got.Value)
		assert.Equal(t, "api-token", got.Name)
		assert.Equal(t, map[string]string{"env": "prod"}, got.Tags)
	})

	t.Run("Error_EmptyValue", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.StoreSecret(ctx, StoreSecretInput{TenantID: "acme", Name: "api-token"})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_InvalidName", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.StoreSecret(ctx, StoreSecretInput{TenantID: "acme", Name: "..", Value: "v"})

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})
}

func TestKeyEngine_EncryptAndStoreSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_EncryptDecryptRoundTrip", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		record, err := engine.EncryptAndStoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "db-password",
			Value:    "hunter2",
		})
		require.NoError(t, err)
		assert.True(t, record.IsEncrypted())
		assert.Empty(t, record.Value)
		assert.NotEmpty(t, record.KeyID)

		plaintext, err := engine.DecryptSecret(ctx, "acme", record.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte("hunter2"), plaintext)
	})

	t.Run("Success_UsesActiveKey", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		key, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)

		record, err := engine.EncryptAndStoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "db-password",
			Value:    "hunter2",
		})
		require.NoError(t, err)
		assert.Equal(t, key.ID, record.KeyID)
	})

	t.Run("Success_StoredRecordCarriesNoPlaintext", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		record, err := engine.EncryptAndStoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "db-password",
			Value:    "hunter2",
		})
		require.NoError(t, err)

		got, err := engine.GetSecret(ctx, "acme", record.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Value)
		assert.NotEmpty(t, got.Ciphertext)
		assert.NotEqual(t, []byte("hunter2"), got.Ciphertext)
	})
}

func TestKeyEngine_DecryptSecret_AfterRotation(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, 0)

	record, err := engine.EncryptAndStoreSecret(ctx, StoreSecretInput{
		TenantID: "acme",
		Name:     "db-password",
		Value:    "hunter2",
	})
	require.NoError(t, err)

	result, err := engine.RotateKeys(ctx, "acme", false)
	require.NoError(t, err)
	require.Equal(t, record.KeyID, result.OldKeyID)

	// Secrets encrypted under the now-archived key stay decryptable.
	plaintext, err := engine.DecryptSecret(ctx, "acme", record.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), plaintext)

	// New secrets are encrypted under the new active key.
	fresh, err := engine.EncryptAndStoreSecret(ctx, StoreSecretInput{
		TenantID: "acme",
		Name:     "db-password",
		Value:    "hunter3",
	})
	require.NoError(t, err)
	assert.Equal(t, result.NewKeyID, fresh.KeyID)
}

func TestKeyEngine_GetSecret(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_NotFound", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.GetSecret(ctx, "acme", uuid.Must(uuid.NewV7()).String())

		assert.ErrorIs(t, err, apperrors.ErrSecretNotFound)
	})

	t.Run("Error_InvalidSecretID", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.GetSecret(ctx, "acme", "../keys/other")

		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	})

	t.Run("Error_ExpiredSecretRemoved", func(t *testing.T) {
		engine, _, p := newTestEngine(t, 0)

		expired := time.Now().UTC().Add(-time.Hour)
		record, err := engine.StoreSecret(ctx, StoreSecretInput{
			TenantID:  "acme",
			Name:      "stale-token",
			Value:     "tok",
			ExpiresAt: &expired,
		})
		require.NoError(t, err)

		_, err = engine.GetSecret(ctx, "acme", record.ID)
		assert.ErrorIs(t, err, apperrors.ErrSecretNotFound)

		paths, err := p.GetTenantPaths("acme")
		require.NoError(t, err)
		exists, err := p.SecretExists(ctx, paths.SecretPath(record.ID))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Error_CrossTenantAccess", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		record, err := engine.StoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "api-token",
			Value:    "tok",
		})
		require.NoError(t, err)

		_, err = engine.GetSecret(ctx, "globex", record.ID)
		assert.ErrorIs(t, err, apperrors.ErrSecretNotFound)
	})
}

func TestKeyEngine_DeleteSecret(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, 0)

	record, err := engine.StoreSecret(ctx, StoreSecretInput{
		TenantID: "acme",
		Name:     "api-token",
		Value:    "tok",
	})
	require.NoError(t, err)

	require.NoError(t, engine.DeleteSecret(ctx, "acme", record.ID))

	_, err = engine.GetSecret(ctx, "acme", record.ID)
	assert.ErrorIs(t, err, apperrors.ErrSecretNotFound)
}

func TestKeyEngine_ListSecrets(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_MetadataOnly", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.StoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "api-token",
			Value:    "tok",
			Tags:     map[string]string{"env": "prod"},
		})
		require.NoError(t, err)
		_, err = engine.EncryptAndStoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "db-password",
			Value:    "hunter2",
		})
		require.NoError(t, err)

		records, err := engine.ListSecrets(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, records, 2)

		for _, record := range records {
			assert.Empty(t, record.Value)
			assert.Empty(t, record.Ciphertext)
			assert.Empty(t, record.IV)
			assert.NotEmpty(t, record.Name)
		}
	})

	t.Run("Success_SkipsExpired", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		expired := time.Now().UTC().Add(-time.Hour)
		_, err := engine.StoreSecret(ctx, StoreSecretInput{
			TenantID:  "acme",
			Name:      "stale-token",
			Value:     "tok",
			ExpiresAt: &expired,
		})
		require.NoError(t, err)

		records, err := engine.ListSecrets(ctx, "acme")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Success_TenantIsolation", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.StoreSecret(ctx, StoreSecretInput{
			TenantID: "acme",
			Name:     "api-token",
			Value:    "tok",
		})
		require.NoError(t, err)

		records, err := engine.ListSecrets(ctx, "globex")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestKeyEngine_RotateKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("Error_NoActiveKeyWithoutForce", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.RotateKeys(ctx, "acme", false)

		assert.ErrorIs(t, err, apperrors.ErrNoActiveKey)
	})

	t.Run("Success_ForceCreatesInitialKey", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		result, err := engine.RotateKeys(ctx, "acme", true)

		require.NoError(t, err)
		assert.Empty(t, result.OldKeyID)
		assert.NotEmpty(t, result.NewKeyID)
		assert.Zero(t, result.ArchivedKeys)
	})

	t.Run("Success_ArchivesOldKey", func(t *testing.T) {
		engine, repo, _ := newTestEngine(t, 0)

		old, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)

		result, err := engine.RotateKeys(ctx, "acme", false)
		require.NoError(t, err)
		assert.Equal(t, old.ID, result.OldKeyID)
		assert.NotEqual(t, old.ID, result.NewKeyID)
		assert.Equal(t, 1, result.ArchivedKeys)

		archived, err := repo.ListArchived(ctx, "acme")
		require.NoError(t, err)
		require.Len(t, archived, 1)
		assert.Equal(t, old.ID, archived[0].ID)
		assert.NotNil(t, archived[0].ArchivedAt)
	})

	t.Run("Success_EvictsOldestBeyondCap", func(t *testing.T) {
		engine, repo, p := newTestEngine(t, 2)

		first, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)

		// Four rotations archive four keys against a cap of two.
		for i := 0; i < 4; i++ {
			_, err := engine.RotateKeys(ctx, "acme", false)
			require.NoError(t, err)
		}

		archived, err := repo.ListArchived(ctx, "acme")
		require.NoError(t, err)
		assert.Len(t, archived, 2)
		for _, key := range archived {
			assert.NotEqual(t, first.ID, key.ID)
		}

		// The evicted key's material is gone from the provider.
		paths, err := p.GetTenantPaths("acme")
		require.NoError(t, err)
		_, err = p.GetKey(ctx, paths.KeyName(first.ID))
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("Error_InvalidTenantID", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.RotateKeys(ctx, "tenant/../../etc", false)

		assert.ErrorIs(t, err, apperrors.ErrInvalidTenantID)
	})

	t.Run("Error_AbortedTxRemovesFreshProviderKey", func(t *testing.T) {
		engine, repo, p := newTestEngine(t, 0)

		old, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)

		txErr := errors.New("commit failed")
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		broken := NewKeyEngine(failingTxManager{err: txErr}, repo, p, logger, 0)

		_, err = broken.RotateKeys(ctx, "acme", false)
		assert.ErrorIs(t, err, txErr)

		// The key provisioned for the aborted rotation is gone from the
		// provider and the old key is still the tenant's active one.
		names, err := p.ListKeys(ctx)
		require.NoError(t, err)
		require.Len(t, names, 1)

		active, err := repo.GetActive(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, old.ID, active.ID)
	})
}

func TestKeyEngine_Concurrency(t *testing.T) {
	ctx := context.Background()

	t.Run("EnsureActiveKeyYieldsSingleKey", func(t *testing.T) {
		engine, repo, p := newTestEngine(t, 0)

		const callers = 16
		ids := make([]string, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key, err := engine.EnsureActiveKey(ctx, "acme")
				if err != nil {
					errs[i] = err
					return
				}
				ids[i] = key.ID
			}(i)
		}
		wg.Wait()

		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}

		keys, err := repo.ListByTenant(ctx, "acme")
		require.NoError(t, err)
		assert.Len(t, keys, 1)

		names, err := p.ListKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, names, 1)
	})

	t.Run("RotateKeysSerializedPerTenant", func(t *testing.T) {
		const archiveCap = 2
		engine, repo, p := newTestEngine(t, archiveCap)

		_, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)

		const rotations = 8
		errs := make([]error, rotations)
		var wg sync.WaitGroup
		for i := 0; i < rotations; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = engine.RotateKeys(ctx, "acme", false)
			}(i)
		}
		wg.Wait()

		for i := 0; i < rotations; i++ {
			require.NoError(t, errs[i])
		}

		// Exactly one ACTIVE key survives and the archive stays at its cap.
		active, err := repo.GetActive(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, keymgmtDomain.KeyStatusActive, active.Status)

		archived, err := repo.ListArchived(ctx, "acme")
		require.NoError(t, err)
		assert.Len(t, archived, archiveCap)

		names, err := p.ListKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, names, archiveCap+1)
	})
}

func TestKeyEngine_ListKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Empty", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		keys, err := engine.ListKeys(ctx, "acme")

		require.NoError(t, err)
		assert.Empty(t, keys.Keys)
		assert.Empty(t, keys.ActiveKeyID)
	})

	t.Run("Success_ReportsActiveKey", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, 0)

		_, err := engine.EnsureActiveKey(ctx, "acme")
		require.NoError(t, err)
		result, err := engine.RotateKeys(ctx, "acme", false)
		require.NoError(t, err)

		keys, err := engine.ListKeys(ctx, "acme")
		require.NoError(t, err)
		assert.Len(t, keys.Keys, 2)
		assert.Equal(t, result.NewKeyID, keys.ActiveKeyID)
	})
}
