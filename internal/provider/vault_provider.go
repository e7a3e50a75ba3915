package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// vaultTransitKeyType is the transit key type matching AES-256-GCM.
const vaultTransitKeyType = "aes256-gcm96"

// VaultProvider implements SecretStoreProvider against HashiCorp Vault:
// tenant secrets in a KV v2 mount, tenant keys in a transit mount.
type VaultProvider struct {
	client       *vaultapi.Client
	kvMount      string
	transitMount string
	ready        atomic.Bool
}

// VaultConfig holds connection settings for the vault backend.
type VaultConfig struct {
	Address      string
	Token        string
	Namespace    string
	KVMount      string
	TransitMount string
}

// NewVaultProvider constructs an uninitialized vault provider.
// The factory calls Initialize before handing it out.
func NewVaultProvider(cfg VaultConfig) (*VaultProvider, error) {
	apiConfig := vaultapi.DefaultConfig()
	apiConfig.Address = cfg.Address

	client, err := vaultapi.NewClient(apiConfig)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create vault client")
	}

	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	kvMount := cfg.KVMount
	if kvMount == "" {
		kvMount = "secret"
	}
	transitMount := cfg.TransitMount
	if transitMount == "" {
		transitMount = "transit"
	}

	return &VaultProvider{
		client:       client,
		kvMount:      kvMount,
		transitMount: transitMount,
	}, nil
}

// Initialize verifies the server is reachable and the token is usable.
func (v *VaultProvider) Initialize(ctx context.Context) error {
	health, err := v.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return apperrors.Wrap(err, "vault health check failed")
	}
	if health.Sealed {
		return apperrors.Wrap(apperrors.ErrProviderNotReady, "vault is sealed")
	}

	if _, err := v.client.Auth().Token().LookupSelfWithContext(ctx); err != nil {
		return apperrors.Wrap(err, "vault token lookup failed")
	}

	v.ready.Store(true)
	return nil
}

// IsReady reports whether Initialize completed successfully.
func (v *VaultProvider) IsReady() bool {
	return v.ready.Load()
}

// HealthCheck reports current backend reachability.
func (v *VaultProvider) HealthCheck(ctx context.Context) (HealthStatus, error) {
	health, err := v.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return HealthStatus{Backend: "vault", Detail: err.Error()}, apperrors.Wrap(err, "vault health check failed")
	}
	if health.Sealed {
		return HealthStatus{Backend: "vault", Detail: "sealed"}, nil
	}
	return HealthStatus{Backend: "vault", Healthy: true}, nil
}

func (v *VaultProvider) checkReady() error {
	if !v.ready.Load() {
		return apperrors.ErrProviderNotReady
	}
	return nil
}

// kvDataPath rewrites a logical secret path onto the configured KV mount.
// Paths arrive in the canonical secret/data/... format; only the mount
// segment is substituted.
func (v *VaultProvider) kvDataPath(path string) string {
	if v.kvMount == "secret" {
		return path
	}
	return v.kvMount + strings.TrimPrefix(path, "secret")
}

// kvMetadataPath converts a data path to its metadata twin for list/delete
// of KV v2 entries.
func (v *VaultProvider) kvMetadataPath(path string) string {
	return strings.Replace(v.kvDataPath(path), "/data/", "/metadata/", 1)
}

// GetSecret reads KV v2 data at path.
func (v *VaultProvider) GetSecret(ctx context.Context, path string) (map[string]any, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	secret, err := v.client.Logical().ReadWithContext(ctx, v.kvDataPath(path))
	if err != nil {
		return nil, wrapOperation(err, "read", path)
	}
	if secret == nil || secret.Data == nil {
		return nil, apperrors.ErrSecretNotFound
	}

	// KV v2 nests the payload under "data".
	data, ok := secret.Data["data"].(map[string]any)
	if !ok || data == nil {
		return nil, apperrors.ErrSecretNotFound
	}
	return data, nil
}

// SetSecret writes KV v2 data at path.
func (v *VaultProvider) SetSecret(ctx context.Context, path string, data map[string]any) error {
	if err := v.checkReady(); err != nil {
		return err
	}

	payload := map[string]any{"data": data}
	if _, err := v.client.Logical().WriteWithContext(ctx, v.kvDataPath(path), payload); err != nil {
		return wrapOperation(err, "write", path)
	}
	return nil
}

// DeleteSecret removes all versions and metadata at path.
func (v *VaultProvider) DeleteSecret(ctx context.Context, path string) error {
	if err := v.checkReady(); err != nil {
		return err
	}

	if _, err := v.client.Logical().DeleteWithContext(ctx, v.kvMetadataPath(path)); err != nil {
		return wrapOperation(err, "delete", path)
	}
	return nil
}

// ListSecrets returns the entry names under path.
func (v *VaultProvider) ListSecrets(ctx context.Context, path string) ([]string, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	secret, err := v.client.Logical().ListWithContext(ctx, v.kvMetadataPath(path))
	if err != nil {
		return nil, wrapOperation(err, "list", path)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, ok := secret.Data["keys"].([]any)
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		if name, ok := item.(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// SecretExists reports whether data exists at path.
func (v *VaultProvider) SecretExists(ctx context.Context, path string) (bool, error) {
	_, err := v.GetSecret(ctx, path)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSecretNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Encrypt encrypts plaintext under the named transit key. Vault transit
// manages nonces internally, so the returned IV is empty and the ciphertext
// is the vault:vN:... token.
func (v *VaultProvider) Encrypt(ctx context.Context, plaintext []byte, keyID string) (*Ciphertext, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	path := v.transitMount + "/encrypt/" + keyID
	secret, err := v.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncryptionFailed, fmt.Sprintf("key %s: %v", keyID, err))
	}

	token, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrEncryptionFailed, "vault transit returned no ciphertext")
	}

	return &Ciphertext{
		Ciphertext: []byte(token),
		Algorithm:  DefaultAlgorithm,
		KeyID:      keyID,
	}, nil
}

// Decrypt reverses Encrypt using the key named in the envelope.
func (v *VaultProvider) Decrypt(ctx context.Context, ct *Ciphertext) ([]byte, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	path := v.transitMount + "/decrypt/" + ct.KeyID
	secret, err := v.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"ciphertext": string(ct.Ciphertext),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDecryptionFailed, fmt.Sprintf("key %s: %v", ct.KeyID, err))
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrDecryptionFailed, "vault transit returned no plaintext")
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDecryptionFailed, "vault transit plaintext is not base64")
	}
	return plaintext, nil
}

// CreateKey creates a named transit key. Only AES-256-GCM is supported.
func (v *VaultProvider) CreateKey(ctx context.Context, keyID, algorithm string, keySize int) error {
	if err := v.checkReady(); err != nil {
		return err
	}
	if algorithm != "" && algorithm != DefaultAlgorithm {
		return apperrors.Wrap(apperrors.ErrUnsupported, fmt.Sprintf("algorithm %q", algorithm))
	}
	if keySize != 0 && keySize != DefaultKeySize {
		return apperrors.Wrap(apperrors.ErrUnsupported, fmt.Sprintf("key size %d", keySize))
	}

	path := v.transitMount + "/keys/" + keyID
	if _, err := v.client.Logical().WriteWithContext(ctx, path, map[string]any{
		"type": vaultTransitKeyType,
	}); err != nil {
		return wrapOperation(err, "create key", keyID)
	}
	return nil
}

// GetKey returns metadata for a transit key.
func (v *VaultProvider) GetKey(ctx context.Context, keyID string) (*KeyInfo, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	path := v.transitMount + "/keys/" + keyID
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, wrapOperation(err, "get key", keyID)
	}
	if secret == nil || secret.Data == nil {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "key "+keyID)
	}

	info := &KeyInfo{
		KeyID:     keyID,
		Algorithm: DefaultAlgorithm,
		KeySize:   DefaultKeySize,
	}
	if raw, ok := secret.Data["creation_time"].(string); ok {
		if createdAt, err := time.Parse(time.RFC3339, raw); err == nil {
			info.CreatedAt = createdAt
		}
	}
	return info, nil
}

// ListKeys returns the names of all transit keys in the mount.
func (v *VaultProvider) ListKeys(ctx context.Context) ([]string, error) {
	if err := v.checkReady(); err != nil {
		return nil, err
	}

	secret, err := v.client.Logical().ListWithContext(ctx, v.transitMount+"/keys")
	if err != nil {
		return nil, wrapOperation(err, "list keys", v.transitMount)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, _ := secret.Data["keys"].([]any)
	names := make([]string, 0, len(raw))
	for _, item := range raw {
		if name, ok := item.(string); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// RotateKey rotates a transit key in place at the backend. The force flag has
// no backend meaning for vault transit and is ignored here; the engine owns
// force semantics.
func (v *VaultProvider) RotateKey(ctx context.Context, keyID string, _ bool) error {
	if err := v.checkReady(); err != nil {
		return err
	}

	path := v.transitMount + "/keys/" + keyID + "/rotate"
	if _, err := v.client.Logical().WriteWithContext(ctx, path, nil); err != nil {
		return wrapOperation(err, "rotate key", keyID)
	}
	return nil
}

// DeleteKey enables deletion on the key config, then deletes it.
func (v *VaultProvider) DeleteKey(ctx context.Context, keyID string) error {
	if err := v.checkReady(); err != nil {
		return err
	}

	configPath := v.transitMount + "/keys/" + keyID + "/config"
	if _, err := v.client.Logical().WriteWithContext(ctx, configPath, map[string]any{
		"deletion_allowed": true,
	}); err != nil {
		return wrapOperation(err, "configure key deletion", keyID)
	}

	path := v.transitMount + "/keys/" + keyID
	if _, err := v.client.Logical().DeleteWithContext(ctx, path); err != nil {
		return wrapOperation(err, "delete key", keyID)
	}
	return nil
}

// GetTenantPaths derives the tenant-namespaced path roots.
func (v *VaultProvider) GetTenantPaths(tenantID string) (TenantPaths, error) {
	return TenantPathsFor(tenantID)
}

// wrapOperation wraps a backend failure with operation context. Paths and key
// names are safe to log; values never are.
func wrapOperation(err error, op, subject string) error {
	return apperrors.Wrap(apperrors.ErrProviderOperationFailed, fmt.Sprintf("%s %s: %v", op, subject, err))
}

var _ SecretStoreProvider = (*VaultProvider)(nil)
