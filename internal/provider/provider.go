// Package provider defines the polymorphic secret-store provider contract and
// its backend implementations. A provider exposes secret CRUD on opaque paths,
// key lifecycle and encrypt/decrypt primitives, and tenant path derivation.
//
// Providers perform no cross-tenant filtering of their own: isolation is
// enforced structurally by the engine only ever passing paths produced by
// GetTenantPaths. Raw caller-supplied paths must never reach a provider.
package provider

import (
	"context"
	"time"
)

// Algorithm and key-size defaults for tenant encryption keys.
const (
	// DefaultAlgorithm is the symmetric algorithm used for tenant keys.
	DefaultAlgorithm = "AES-256-GCM"
	// DefaultKeySize is the key size in bits.
	DefaultKeySize = 256
)

// Ciphertext is the output of Encrypt and the input to Decrypt. The IV may be
// empty for backends (such as vault transit) that manage nonces internally.
type Ciphertext struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv,omitempty"`
	Algorithm  string `json:"algorithm"`
	KeyID      string `json:"keyId"`
}

// KeyInfo describes a provider-managed key.
type KeyInfo struct {
	KeyID     string
	Algorithm string
	KeySize   int
	CreatedAt time.Time
}

// TenantPaths holds the tenant-namespaced roots all engine operations derive
// their paths from. The formats are fixed; see TenantPathsFor.
type TenantPaths struct {
	// Secrets is the root under which tenant secret records live.
	Secrets string
	// EncryptionKeys is the root under which tenant key material lives.
	EncryptionKeys string
	// KeyRotation is the path recording tenant rotation state.
	KeyRotation string
}

// HealthStatus reports backend reachability.
type HealthStatus struct {
	Healthy bool
	Backend string
	Detail  string
}

// SecretStoreProvider is the uniform contract over backend secret stores.
// All path-accepting operations must be called only with tenant-namespaced
// paths produced by GetTenantPaths.
type SecretStoreProvider interface {
	// Initialize establishes backend connectivity. Must be called (by the
	// factory) before any other operation.
	Initialize(ctx context.Context) error
	// IsReady reports whether Initialize has completed successfully.
	IsReady() bool
	// HealthCheck verifies the backend responds.
	HealthCheck(ctx context.Context) (HealthStatus, error)

	// GetSecret reads the data stored at path.
	GetSecret(ctx context.Context, path string) (map[string]any, error)
	// SetSecret writes data at path, replacing any existing data.
	SetSecret(ctx context.Context, path string, data map[string]any) error
	// DeleteSecret removes the data at path.
	DeleteSecret(ctx context.Context, path string) error
	// ListSecrets returns the child entry names under path.
	ListSecrets(ctx context.Context, path string) ([]string, error)
	// SecretExists reports whether data exists at path.
	SecretExists(ctx context.Context, path string) (bool, error)

	// Encrypt encrypts plaintext under the named key.
	Encrypt(ctx context.Context, plaintext []byte, keyID string) (*Ciphertext, error)
	// Decrypt reverses Encrypt using the key named in the ciphertext envelope.
	Decrypt(ctx context.Context, ct *Ciphertext) ([]byte, error)

	// CreateKey creates a named symmetric key.
	CreateKey(ctx context.Context, keyID, algorithm string, keySize int) error
	// GetKey returns metadata for a named key.
	GetKey(ctx context.Context, keyID string) (*KeyInfo, error)
	// ListKeys returns the names of all provider-managed keys.
	ListKeys(ctx context.Context) ([]string, error)
	// RotateKey rotates the named key in place at the backend.
	RotateKey(ctx context.Context, keyID string, force bool) error
	// DeleteKey permanently removes a key. Data encrypted under it becomes
	// undecryptable; callers own that check.
	DeleteKey(ctx context.Context, keyID string) error

	// GetTenantPaths derives the tenant-namespaced path roots. The tenant id
	// is validated before derivation; invalid ids fail with ErrInvalidTenantID.
	GetTenantPaths(tenantID string) (TenantPaths, error)
}
