package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"golang.org/x/sync/singleflight"

	"github.com/tenantkit/secrets/internal/database"
	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
	"github.com/tenantkit/secrets/internal/provider"
	appvalidation "github.com/tenantkit/secrets/internal/validation"
)

type keyEngine struct {
	txManager       database.TxManager
	keyRepo         KeyRepository
	provider        provider.SecretStoreProvider
	logger          *slog.Logger
	maxArchivedKeys int

	ensureGroup singleflight.Group

	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex
}

// NewKeyEngine creates the key and secret management engine. maxArchivedKeys
// caps the per-tenant archive; values below 1 fall back to the default.
func NewKeyEngine(txManager database.TxManager, keyRepo KeyRepository, p provider.SecretStoreProvider, logger *slog.Logger, maxArchivedKeys int) KeyEngine {
	if maxArchivedKeys < 1 {
		maxArchivedKeys = keymgmtDomain.MaxArchivedKeys
	}
	return &keyEngine{
		txManager:       txManager,
		keyRepo:         keyRepo,
		provider:        p,
		logger:          logger,
		maxArchivedKeys: maxArchivedKeys,
		tenantLocks:     make(map[string]*sync.Mutex),
	}
}

// tenantLock returns the process-local rotation lock for a tenant. The durable
// store's uniqueness constraint remains the backstop across processes.
func (e *keyEngine) tenantLock(tenantID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		e.tenantLocks[tenantID] = lock
	}
	return lock
}

// pathsFor validates the tenant id and derives the tenant path roots. Every
// engine operation goes through here before touching the provider.
func (e *keyEngine) pathsFor(tenantID string) (provider.TenantPaths, error) {
	if !e.provider.IsReady() {
		return provider.TenantPaths{}, apperrors.ErrProviderNotReady
	}
	return e.provider.GetTenantPaths(tenantID)
}

func validateSecretID(secretID string) error {
	if err := uuid.Validate(secretID); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "invalid secret id")
	}
	return nil
}

func (e *keyEngine) EnsureActiveKey(ctx context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error) {
	paths, err := e.pathsFor(tenantID)
	if err != nil {
		return nil, err
	}

	result, err, _ := e.ensureGroup.Do(tenantID, func() (any, error) {
		key, err := e.keyRepo.GetActive(ctx, tenantID)
		if err == nil {
			return key, nil
		}
		if !apperrors.Is(err, apperrors.ErrNoActiveKey) {
			return nil, err
		}
		return e.createActiveKey(ctx, tenantID, paths)
	})
	if err != nil {
		return nil, err
	}
	return result.(*keymgmtDomain.EncryptionKey), nil
}

// createActiveKey provisions key material at the provider first, then records
// the metadata. When a concurrent creator wins the durable race the orphaned
// provider key is removed and the winner's key is returned.
func (e *keyEngine) createActiveKey(ctx context.Context, tenantID string, paths provider.TenantPaths) (*keymgmtDomain.EncryptionKey, error) {
	key := keymgmtDomain.NewEncryptionKey(tenantID)
	keyName := paths.KeyName(key.ID)

	if err := e.provider.CreateKey(ctx, keyName, provider.DefaultAlgorithm, provider.DefaultKeySize); err != nil {
		return nil, err
	}

	if err := e.keyRepo.Create(ctx, key); err != nil {
		if apperrors.Is(err, apperrors.ErrRotationConflict) {
			if deleteErr := e.provider.DeleteKey(ctx, keyName); deleteErr != nil {
				e.logger.WarnContext(ctx, "failed to clean up orphaned provider key",
					slog.String("tenant_id", tenantID),
					slog.String("key_id", key.ID),
					slog.String("error", deleteErr.Error()),
				)
			}
			return e.keyRepo.GetActive(ctx, tenantID)
		}
		return nil, err
	}

	e.logger.InfoContext(ctx, "created active encryption key",
		slog.String("tenant_id", tenantID),
		slog.String("key_id", key.ID),
	)
	return key, nil
}

func (e *keyEngine) StoreSecret(ctx context.Context, in StoreSecretInput) (*keymgmtDomain.SecretRecord, error) {
	paths, record, err := e.prepareRecord(in)
	if err != nil {
		return nil, err
	}

	record.Value = in.Value
	e.logger.WarnContext(ctx, "storing secret without encryption",
		slog.String("tenant_id", in.TenantID),
		slog.String("secret_id", record.ID),
		slog.String("name", in.Name),
	)

	if err := e.provider.SetSecret(ctx, paths.SecretPath(record.ID), recordToData(record)); err != nil {
		return nil, err
	}
	return record, nil
}

func (e *keyEngine) EncryptAndStoreSecret(ctx context.Context, in StoreSecretInput) (*keymgmtDomain.SecretRecord, error) {
	paths, record, err := e.prepareRecord(in)
	if err != nil {
		return nil, err
	}

	key, err := e.EnsureActiveKey(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}

	ct, err := e.provider.Encrypt(ctx, []byte(in.Value), paths.KeyName(key.ID))
	if err != nil {
		return nil, err
	}
	record.Ciphertext = ct.Ciphertext
	record.IV = ct.IV
	record.Algorithm = ct.Algorithm
	record.KeyID = key.ID

	if err := e.provider.SetSecret(ctx, paths.SecretPath(record.ID), recordToData(record)); err != nil {
		return nil, err
	}
	return record, nil
}

// prepareRecord validates store input and builds the record shell with its
// derived path. The record has no material yet.
func (e *keyEngine) prepareRecord(in StoreSecretInput) (provider.TenantPaths, *keymgmtDomain.SecretRecord, error) {
	paths, err := e.pathsFor(in.TenantID)
	if err != nil {
		return provider.TenantPaths{}, nil, err
	}
	if err := validation.Validate(in.Name, appvalidation.SecretName...); err != nil {
		return provider.TenantPaths{}, nil, appvalidation.WrapValidationError(err)
	}
	if in.Value == "" {
		return provider.TenantPaths{}, nil, apperrors.Wrap(apperrors.ErrInvalidInput, "secret value must not be empty")
	}

	record := keymgmtDomain.NewSecretRecord(in.TenantID, in.Name)
	record.Path = paths.SecretPath(record.ID)
	record.Size = len(in.Value)
	record.ExpiresAt = in.ExpiresAt
	if len(in.Tags) > 0 {
		record.Tags = make(map[string]string, len(in.Tags))
		for k, v := range in.Tags {
			record.Tags[k] = v
		}
	}
	return paths, record, nil
}

func (e *keyEngine) GetSecret(ctx context.Context, tenantID, secretID string) (*keymgmtDomain.SecretRecord, error) {
	paths, err := e.pathsFor(tenantID)
	if err != nil {
		return nil, err
	}
	if err := validateSecretID(secretID); err != nil {
		return nil, err
	}

	path := paths.SecretPath(secretID)
	data, err := e.provider.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	record, err := recordFromData(data)
	if err != nil {
		return nil, err
	}
	record.TenantID = tenantID
	record.Path = path

	if record.IsExpired(time.Now().UTC()) {
		if deleteErr := e.provider.DeleteSecret(ctx, path); deleteErr != nil {
			e.logger.WarnContext(ctx, "failed to delete expired secret",
				slog.String("tenant_id", tenantID),
				slog.String("secret_id", secretID),
				slog.String("error", deleteErr.Error()),
			)
		} else {
			e.logger.InfoContext(ctx, "deleted expired secret",
				slog.String("tenant_id", tenantID),
				slog.String("secret_id", secretID),
			)
		}
		return nil, apperrors.Wrap(apperrors.ErrSecretNotFound, "secret expired")
	}
	return record, nil
}

func (e *keyEngine) DecryptSecret(ctx context.Context, tenantID, secretID string) ([]byte, error) {
	record, err := e.GetSecret(ctx, tenantID, secretID)
	if err != nil {
		return nil, err
	}
	if !record.IsEncrypted() {
		return []byte(record.Value), nil
	}

	// The record may reference an ARCHIVED key; archived material stays
	// decryptable until the key is evicted from the archive.
	paths, err := e.pathsFor(tenantID)
	if err != nil {
		return nil, err
	}
	return e.provider.Decrypt(ctx, &provider.Ciphertext{
		Ciphertext: record.Ciphertext,
		IV:         record.IV,
		Algorithm:  record.Algorithm,
		KeyID:      paths.KeyName(record.KeyID),
	})
}

func (e *keyEngine) DeleteSecret(ctx context.Context, tenantID, secretID string) error {
	paths, err := e.pathsFor(tenantID)
	if err != nil {
		return err
	}
	if err := validateSecretID(secretID); err != nil {
		return err
	}
	return e.provider.DeleteSecret(ctx, paths.SecretPath(secretID))
}

func (e *keyEngine) ListSecrets(ctx context.Context, tenantID string) ([]*keymgmtDomain.SecretRecord, error) {
	paths, err := e.pathsFor(tenantID)
	if err != nil {
		return nil, err
	}

	ids, err := e.provider.ListSecrets(ctx, paths.Secrets)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSecretNotFound) {
			return []*keymgmtDomain.SecretRecord{}, nil
		}
		return nil, err
	}

	now := time.Now().UTC()
	records := make([]*keymgmtDomain.SecretRecord, 0, len(ids))
	for _, id := range ids {
		data, err := e.provider.GetSecret(ctx, paths.SecretPath(id))
		if err != nil {
			if apperrors.Is(err, apperrors.ErrSecretNotFound) {
				continue
			}
			return nil, err
		}
		record, err := recordFromData(data)
		if err != nil {
			e.logger.WarnContext(ctx, "skipping unreadable secret record",
				slog.String("tenant_id", tenantID),
				slog.String("secret_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if record.IsExpired(now) {
			continue
		}
		record.TenantID = tenantID
		record.Path = paths.SecretPath(id)
		records = append(records, record.Metadata())
	}
	return records, nil
}

func (e *keyEngine) RotateKeys(ctx context.Context, tenantID string, force bool) (*keymgmtDomain.RotationResult, error) {
	paths, err := e.pathsFor(tenantID)
	if err != nil {
		return nil, err
	}

	lock := e.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	active, err := e.keyRepo.GetActive(ctx, tenantID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNoActiveKey) {
			return nil, err
		}
		if !force {
			return nil, err
		}
		active = nil
	}

	newKey := keymgmtDomain.NewEncryptionKey(tenantID)
	newKeyName := paths.KeyName(newKey.ID)

	// Create the new key material first so the tenant never observes a state
	// with the old key archived and no successor available.
	if err := e.provider.CreateKey(ctx, newKeyName, provider.DefaultAlgorithm, provider.DefaultKeySize); err != nil {
		return nil, err
	}

	rotationDate := time.Now().UTC()
	err = e.txManager.WithTx(ctx, func(ctx context.Context) error {
		if active != nil {
			if err := e.keyRepo.DemoteActive(ctx, tenantID, active.ID, rotationDate, rotationDate); err != nil {
				return err
			}
		}
		return e.keyRepo.Create(ctx, newKey)
	})
	if err != nil {
		if deleteErr := e.provider.DeleteKey(ctx, newKeyName); deleteErr != nil {
			e.logger.WarnContext(ctx, "failed to clean up provider key after aborted rotation",
				slog.String("tenant_id", tenantID),
				slog.String("key_id", newKey.ID),
				slog.String("error", deleteErr.Error()),
			)
		}
		return nil, err
	}

	archivedCount, err := e.evictArchivedKeys(ctx, tenantID, paths)
	if err != nil {
		return nil, err
	}

	result := &keymgmtDomain.RotationResult{
		NewKeyID:     newKey.ID,
		RotationDate: rotationDate,
		ArchivedKeys: archivedCount,
	}
	if active != nil {
		result.OldKeyID = active.ID
	}

	e.logger.InfoContext(ctx, "rotated tenant encryption key",
		slog.String("tenant_id", tenantID),
		slog.String("old_key_id", result.OldKeyID),
		slog.String("new_key_id", result.NewKeyID),
		slog.Int("archived_keys", archivedCount),
	)
	return result, nil
}

// evictArchivedKeys trims the tenant archive to the cap, oldest archivedAt
// first. Provider material is destroyed before the metadata row so a failed
// eviction never leaves a dangling metadata reference to live material.
func (e *keyEngine) evictArchivedKeys(ctx context.Context, tenantID string, paths provider.TenantPaths) (int, error) {
	archived, err := e.keyRepo.ListArchived(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if len(archived) <= e.maxArchivedKeys {
		return len(archived), nil
	}

	for _, key := range archived[:len(archived)-e.maxArchivedKeys] {
		if err := e.provider.DeleteKey(ctx, paths.KeyName(key.ID)); err != nil {
			return 0, apperrors.Wrap(err, "evicting archived key "+key.ID)
		}
		if err := e.keyRepo.Delete(ctx, tenantID, key.ID); err != nil {
			return 0, apperrors.Wrap(err, "deleting archived key metadata "+key.ID)
		}
		e.logger.InfoContext(ctx, "evicted archived encryption key",
			slog.String("tenant_id", tenantID),
			slog.String("key_id", key.ID),
		)
	}
	return e.maxArchivedKeys, nil
}

func (e *keyEngine) ListKeys(ctx context.Context, tenantID string) (*keymgmtDomain.TenantKeys, error) {
	if _, err := e.pathsFor(tenantID); err != nil {
		return nil, err
	}

	keys, err := e.keyRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	result := &keymgmtDomain.TenantKeys{Keys: keys}
	for _, key := range keys {
		if key.IsActive() {
			result.ActiveKeyID = key.ID
			break
		}
	}
	return result, nil
}
