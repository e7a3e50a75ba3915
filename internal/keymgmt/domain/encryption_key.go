// Package domain defines the core domain models for tenant key and secret
// lifecycle management. Key material never appears here: keys are provider
// resources referenced by id, and this package tracks their metadata and
// status transitions only.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EncryptionKey is the durable metadata record for a tenant symmetric key.
// The material itself lives in the secret-store provider under the key's
// provider name. Invariant: at most one ACTIVE key per tenant at any time,
// enforced by the key store's uniqueness constraint.
type EncryptionKey struct {
	// ID is the unique key identifier (UUIDv7 string, also the last segment
	// of the provider-side key name).
	ID string
	// TenantID is the owning tenant; keys are never shared across tenants.
	TenantID string
	// Algorithm is always AES-256-GCM.
	Algorithm string
	// KeySize is the key size in bits (256).
	KeySize int
	// Status is the lifecycle status.
	Status KeyStatus
	// CreatedAt is the UTC creation timestamp.
	CreatedAt time.Time
	// RotationDate is when this key was superseded by a rotation (nil while active).
	RotationDate *time.Time
	// ArchivedAt is when this key was demoted to ARCHIVED (nil while active).
	ArchivedAt *time.Time
}

// NewEncryptionKey creates an ACTIVE key record for a tenant.
func NewEncryptionKey(tenantID string) *EncryptionKey {
	return &EncryptionKey{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		Algorithm: Algorithm,
		KeySize:   KeySize,
		Status:    KeyStatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

// IsActive reports whether the key is usable for new encryption operations.
func (k *EncryptionKey) IsActive() bool {
	return k.Status == KeyStatusActive
}

// RotationResult describes a completed rotation.
type RotationResult struct {
	OldKeyID     string
	NewKeyID     string
	RotationDate time.Time
	// ArchivedKeys is the number of keys in the tenant's archive after
	// eviction.
	ArchivedKeys int
}

// TenantKeys is the listKeys result: all key metadata for a tenant plus the
// derived active key id (empty when the tenant has no active key).
type TenantKeys struct {
	Keys        []*EncryptionKey
	ActiveKeyID string
}
