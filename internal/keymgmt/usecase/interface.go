package usecase

import (
	"context"
	"time"

	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

// KeyRepository defines the durable key-metadata store. The store enforces
// the one-ACTIVE-key-per-tenant constraint; Create and DemoteActive return
// ErrRotationConflict when a concurrent rotation wins the race.
type KeyRepository interface {
	Create(ctx context.Context, key *keymgmtDomain.EncryptionKey) error
	GetActive(ctx context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error)
	Get(ctx context.Context, tenantID, keyID string) (*keymgmtDomain.EncryptionKey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*keymgmtDomain.EncryptionKey, error)
	ListArchived(ctx context.Context, tenantID string) ([]*keymgmtDomain.EncryptionKey, error)
	DemoteActive(ctx context.Context, tenantID, keyID string, rotationDate, archivedAt time.Time) error
	Delete(ctx context.Context, tenantID, keyID string) error
}

// StoreSecretInput carries the caller-supplied fields for storing a secret.
type StoreSecretInput struct {
	TenantID  string
	Name      string
	Value     string
	ExpiresAt *time.Time
	Tags      map[string]string
}

// KeyEngine orchestrates per-tenant key lifecycle and secret storage over a
// secret-store provider and the durable key store. All operations validate
// the tenant id before deriving any path.
type KeyEngine interface {
	// EnsureActiveKey returns the tenant's ACTIVE key, creating one if none
	// exists. Concurrent calls for one tenant are collapsed.
	EnsureActiveKey(ctx context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error)

	// StoreSecret writes the value verbatim at a fresh tenant-scoped path.
	// Intended for values that are themselves already credential tokens.
	StoreSecret(ctx context.Context, in StoreSecretInput) (*keymgmtDomain.SecretRecord, error)

	// EncryptAndStoreSecret envelope-encrypts the value under the tenant's
	// active key and persists the ciphertext envelope at a fresh path.
	EncryptAndStoreSecret(ctx context.Context, in StoreSecretInput) (*keymgmtDomain.SecretRecord, error)

	// GetSecret resolves the record at the tenant-scoped path, material included.
	GetSecret(ctx context.Context, tenantID, secretID string) (*keymgmtDomain.SecretRecord, error)

	// DecryptSecret returns the plaintext for a record: the verbatim value
	// for plaintext records, or the decryption under the key referenced by
	// the record's stored key id, which may be ARCHIVED.
	DecryptSecret(ctx context.Context, tenantID, secretID string) ([]byte, error)

	// DeleteSecret removes the record at the tenant-scoped path.
	DeleteSecret(ctx context.Context, tenantID, secretID string) error

	// ListSecrets returns record metadata only, never secret material.
	ListSecrets(ctx context.Context, tenantID string) ([]*keymgmtDomain.SecretRecord, error)

	// RotateKeys creates a new ACTIVE key, demotes the previous one to
	// ARCHIVED and evicts archived keys beyond the cap, oldest first. With
	// no active key it fails unless force is set.
	RotateKeys(ctx context.Context, tenantID string, force bool) (*keymgmtDomain.RotationResult, error)

	// ListKeys returns all tenant key metadata plus the active key id.
	ListKeys(ctx context.Context, tenantID string) (*keymgmtDomain.TenantKeys, error)
}
