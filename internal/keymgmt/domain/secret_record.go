package domain

import (
	"time"

	"github.com/google/uuid"
)

// SecretRecord is a tenant secret stored at a deterministically derived
// provider path. Exactly one of Value or the encrypted fields (Ciphertext,
// KeyID, IV, Algorithm) is populated, determined by which store operation
// created the record.
type SecretRecord struct {
	// ID is the unique record identifier (UUIDv7 string); the provider path
	// is derived as {tenantSecretsRoot}/{ID}.
	ID string
	// TenantID is the owning tenant.
	TenantID string
	// Name is the caller-supplied logical name.
	Name string
	// Path is the derived tenant-scoped provider path.
	Path string
	// Size is the plaintext size in bytes at store time.
	Size int

	// Value holds the verbatim plaintext for unencrypted records.
	Value string
	// Ciphertext, KeyID, IV and Algorithm hold the envelope for encrypted
	// records. KeyID references the key that encrypted this record and may
	// point at an ARCHIVED key after rotation.
	Ciphertext []byte
	KeyID      string
	IV         []byte
	Algorithm  string

	CreatedAt time.Time
	UpdatedAt time.Time
	// ExpiresAt marks when the secret stops being served (nil for no expiry).
	ExpiresAt *time.Time
	// Tags are caller-supplied metadata labels.
	Tags map[string]string
}

// NewSecretRecord creates a record shell with identity and timestamps set.
func NewSecretRecord(tenantID, name string) *SecretRecord {
	now := time.Now().UTC()
	return &SecretRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEncrypted reports whether the record holds an envelope rather than a
// plaintext value.
func (s *SecretRecord) IsEncrypted() bool {
	return len(s.Ciphertext) > 0
}

// IsExpired reports whether the record is past its expiry at the given time.
func (s *SecretRecord) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// Metadata returns a copy of the record with all secret material removed.
// List operations must only ever return metadata.
func (s *SecretRecord) Metadata() *SecretRecord {
	clone := *s
	clone.Value = ""
	clone.Ciphertext = nil
	clone.IV = nil
	if s.Tags != nil {
		clone.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			clone.Tags[k] = v
		}
	}
	return &clone
}
