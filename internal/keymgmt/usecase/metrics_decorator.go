package usecase

import (
	"context"
	"time"

	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
	"github.com/tenantkit/secrets/internal/metrics"
)

const metricsDomain = "keymgmt"

// keyEngineWithMetrics decorates KeyEngine with metrics instrumentation.
type keyEngineWithMetrics struct {
	next    KeyEngine
	metrics metrics.BusinessMetrics
}

// NewKeyEngineWithMetrics wraps a KeyEngine with metrics recording.
func NewKeyEngineWithMetrics(engine KeyEngine, m metrics.BusinessMetrics) KeyEngine {
	return &keyEngineWithMetrics{
		next:    engine,
		metrics: m,
	}
}

func (k *keyEngineWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	k.metrics.RecordOperation(ctx, metricsDomain, operation, status)
	k.metrics.RecordDuration(ctx, metricsDomain, operation, time.Since(start), status)
}

func (k *keyEngineWithMetrics) EnsureActiveKey(ctx context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error) {
	start := time.Now()
	key, err := k.next.EnsureActiveKey(ctx, tenantID)
	k.record(ctx, "key_ensure_active", start, err)
	return key, err
}

func (k *keyEngineWithMetrics) StoreSecret(ctx context.Context, in StoreSecretInput) (*keymgmtDomain.SecretRecord, error) {
	start := time.Now()
	record, err := k.next.StoreSecret(ctx, in)
	k.record(ctx, "secret_store", start, err)
	return record, err
}

func (k *keyEngineWithMetrics) EncryptAndStoreSecret(ctx context.Context, in StoreSecretInput) (*keymgmtDomain.SecretRecord, error) {
	start := time.Now()
	record, err := k.next.EncryptAndStoreSecret(ctx, in)
	k.record(ctx, "secret_encrypt_store", start, err)
	return record, err
}

func (k *keyEngineWithMetrics) GetSecret(ctx context.Context, tenantID, secretID string) (*keymgmtDomain.SecretRecord, error) {
	start := time.Now()
	record, err := k.next.GetSecret(ctx, tenantID, secretID)
	k.record(ctx, "secret_get", start, err)
	return record, err
}

func (k *keyEngineWithMetrics) DecryptSecret(ctx context.Context, tenantID, secretID string) ([]byte, error) {
	start := time.Now()
	plaintext, err := k.next.DecryptSecret(ctx, tenantID, secretID)
	k.record(ctx, "secret_decrypt", start, err)
	return plaintext, err
}

func (k *keyEngineWithMetrics) DeleteSecret(ctx context.Context, tenantID, secretID string) error {
	start := time.Now()
	err := k.next.DeleteSecret(ctx, tenantID, secretID)
	k.record(ctx, "secret_delete", start, err)
	return err
}

func (k *keyEngineWithMetrics) ListSecrets(ctx context.Context, tenantID string) ([]*keymgmtDomain.SecretRecord, error) {
	start := time.Now()
	records, err := k.next.ListSecrets(ctx, tenantID)
	k.record(ctx, "secret_list", start, err)
	return records, err
}

func (k *keyEngineWithMetrics) RotateKeys(ctx context.Context, tenantID string, force bool) (*keymgmtDomain.RotationResult, error) {
	start := time.Now()
	result, err := k.next.RotateKeys(ctx, tenantID, force)
	k.record(ctx, "key_rotate", start, err)
	return result, err
}

func (k *keyEngineWithMetrics) ListKeys(ctx context.Context, tenantID string) (*keymgmtDomain.TenantKeys, error) {
	start := time.Now()
	keys, err := k.next.ListKeys(ctx, tenantID)
	k.record(ctx, "key_list", start, err)
	return keys, err
}
