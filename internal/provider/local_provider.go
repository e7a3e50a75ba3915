package provider

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gocloud.dev/secrets"

	apperrors "github.com/tenantkit/secrets/internal/errors"

	_ "gocloud.dev/secrets/localsecrets" // register base64key:// keeper
)

// LocalProvider implements SecretStoreProvider entirely in process: secrets
// in a path-keyed map, key material generated locally and wrapped at rest
// with a gocloud keeper. State is lost on restart. For local development and
// tests only; the factory refuses it in production.
type LocalProvider struct {
	keeperURI string

	mu      sync.RWMutex
	keeper  *secrets.Keeper
	store   map[string]map[string]any
	keys    map[string]localKey
	ready   bool
	created time.Time
}

// localKey holds wrapped key material and creation metadata.
type localKey struct {
	wrapped   []byte
	createdAt time.Time
}

// NewLocalProvider constructs an uninitialized local provider. keeperURI is a
// gocloud secrets keeper URI; base64key:// generates an ephemeral wrapping key.
func NewLocalProvider(keeperURI string) *LocalProvider {
	if keeperURI == "" {
		keeperURI = "base64key://"
	}
	return &LocalProvider{
		keeperURI: keeperURI,
		store:     make(map[string]map[string]any),
		keys:      make(map[string]localKey),
	}
}

// Initialize opens the wrapping keeper.
func (l *LocalProvider) Initialize(ctx context.Context) error {
	keeper, err := secrets.OpenKeeper(ctx, l.keeperURI)
	if err != nil {
		return apperrors.Wrap(err, "failed to open local keeper")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.keeper = keeper
	l.ready = true
	l.created = time.Now().UTC()
	return nil
}

// IsReady reports whether Initialize completed successfully.
func (l *LocalProvider) IsReady() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

// HealthCheck always reports healthy once initialized.
func (l *LocalProvider) HealthCheck(_ context.Context) (HealthStatus, error) {
	if !l.IsReady() {
		return HealthStatus{Backend: "local", Detail: "not initialized"}, nil
	}
	return HealthStatus{Backend: "local", Healthy: true}, nil
}

func (l *LocalProvider) checkReady() error {
	if !l.IsReady() {
		return apperrors.ErrProviderNotReady
	}
	return nil
}

// GetSecret reads the data stored at path.
func (l *LocalProvider) GetSecret(_ context.Context, path string) (map[string]any, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	data, ok := l.store[path]
	if !ok {
		return nil, apperrors.ErrSecretNotFound
	}
	return copyData(data), nil
}

// SetSecret writes data at path.
func (l *LocalProvider) SetSecret(_ context.Context, path string, data map[string]any) error {
	if err := l.checkReady(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.store[path] = copyData(data)
	return nil
}

// DeleteSecret removes the data at path.
func (l *LocalProvider) DeleteSecret(_ context.Context, path string) error {
	if err := l.checkReady(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.store, path)
	return nil
}

// ListSecrets returns the immediate child entry names under path.
func (l *LocalProvider) ListSecrets(_ context.Context, path string) ([]string, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	prefix := strings.TrimSuffix(path, "/") + "/"

	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for stored := range l.store {
		if !strings.HasPrefix(stored, prefix) {
			continue
		}
		rest := strings.TrimPrefix(stored, prefix)
		// Only immediate children; deeper entries list as "child/".
		if idx := strings.Index(rest, "/"); idx >= 0 {
			rest = rest[:idx+1]
		}
		seen[rest] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SecretExists reports whether data exists at path.
func (l *LocalProvider) SecretExists(_ context.Context, path string) (bool, error) {
	if err := l.checkReady(); err != nil {
		return false, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.store[path]
	return ok, nil
}

// unwrapKey returns the plaintext key material for keyID.
func (l *LocalProvider) unwrapKey(ctx context.Context, keyID string) ([]byte, error) {
	l.mu.RLock()
	key, ok := l.keys[keyID]
	keeper := l.keeper
	l.mu.RUnlock()

	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "key "+keyID)
	}
	material, err := keeper.Decrypt(ctx, key.wrapped)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to unwrap key "+keyID)
	}
	return material, nil
}

// newGCM builds an AES-256-GCM AEAD from raw key material.
func newGCM(material []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext with the named key using AES-256-GCM.
// The random 12-byte nonce is returned as the IV.
func (l *LocalProvider) Encrypt(ctx context.Context, plaintext []byte, keyID string) (*Ciphertext, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	material, err := l.unwrapKey(ctx, keyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncryptionFailed, err.Error())
	}

	aead, err := newGCM(material)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncryptionFailed, err.Error())
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrEncryptionFailed, "failed to generate nonce")
	}

	return &Ciphertext{
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
		IV:         nonce,
		Algorithm:  DefaultAlgorithm,
		KeyID:      keyID,
	}, nil
}

// Decrypt reverses Encrypt using the key named in the envelope.
func (l *LocalProvider) Decrypt(ctx context.Context, ct *Ciphertext) ([]byte, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	material, err := l.unwrapKey(ctx, ct.KeyID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDecryptionFailed, err.Error())
	}

	aead, err := newGCM(material)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDecryptionFailed, err.Error())
	}

	plaintext, err := aead.Open(nil, ct.IV, ct.Ciphertext, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDecryptionFailed, "key "+ct.KeyID)
	}
	return plaintext, nil
}

// CreateKey generates a 256-bit key and stores it wrapped at rest.
func (l *LocalProvider) CreateKey(ctx context.Context, keyID, algorithm string, keySize int) error {
	if err := l.checkReady(); err != nil {
		return err
	}
	if algorithm != "" && algorithm != DefaultAlgorithm {
		return apperrors.Wrap(apperrors.ErrUnsupported, fmt.Sprintf("algorithm %q", algorithm))
	}
	if keySize != 0 && keySize != DefaultKeySize {
		return apperrors.Wrap(apperrors.ErrUnsupported, fmt.Sprintf("key size %d", keySize))
	}

	material := make([]byte, DefaultKeySize/8)
	if _, err := rand.Read(material); err != nil {
		return apperrors.Wrap(err, "failed to generate key material")
	}

	l.mu.Lock()
	keeper := l.keeper
	l.mu.Unlock()

	wrapped, err := keeper.Encrypt(ctx, material)
	if err != nil {
		return apperrors.Wrap(err, "failed to wrap key material")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.keys[keyID]; exists {
		return apperrors.Wrap(apperrors.ErrConflict, "key "+keyID+" already exists")
	}
	l.keys[keyID] = localKey{wrapped: wrapped, createdAt: time.Now().UTC()}
	return nil
}

// GetKey returns metadata for a named key.
func (l *LocalProvider) GetKey(_ context.Context, keyID string) (*KeyInfo, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	key, ok := l.keys[keyID]
	if !ok {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "key "+keyID)
	}
	return &KeyInfo{
		KeyID:     keyID,
		Algorithm: DefaultAlgorithm,
		KeySize:   DefaultKeySize,
		CreatedAt: key.createdAt,
	}, nil
}

// ListKeys returns the names of all stored keys.
func (l *LocalProvider) ListKeys(_ context.Context) ([]string, error) {
	if err := l.checkReady(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.keys))
	for name := range l.keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// RotateKey replaces the key material in place, keeping the name.
func (l *LocalProvider) RotateKey(ctx context.Context, keyID string, _ bool) error {
	if err := l.checkReady(); err != nil {
		return err
	}

	material := make([]byte, DefaultKeySize/8)
	if _, err := rand.Read(material); err != nil {
		return apperrors.Wrap(err, "failed to generate key material")
	}

	l.mu.Lock()
	keeper := l.keeper
	existing, ok := l.keys[keyID]
	l.mu.Unlock()

	if !ok {
		return apperrors.Wrap(apperrors.ErrNotFound, "key "+keyID)
	}

	wrapped, err := keeper.Encrypt(ctx, material)
	if err != nil {
		return apperrors.Wrap(err, "failed to wrap key material")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys[keyID] = localKey{wrapped: wrapped, createdAt: existing.createdAt}
	return nil
}

// DeleteKey permanently removes a key.
func (l *LocalProvider) DeleteKey(_ context.Context, keyID string) error {
	if err := l.checkReady(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, keyID)
	return nil
}

// GetTenantPaths derives the tenant-namespaced path roots.
func (l *LocalProvider) GetTenantPaths(tenantID string) (TenantPaths, error) {
	return TenantPathsFor(tenantID)
}

// copyData shallow-copies a secret payload so callers cannot mutate stored state.
func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

var _ SecretStoreProvider = (*LocalProvider)(nil)
