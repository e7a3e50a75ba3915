package commands

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	abuseDomain "github.com/tenantkit/secrets/internal/abuse/domain"
	abuseUsecase "github.com/tenantkit/secrets/internal/abuse/usecase"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
	keymgmtUsecase "github.com/tenantkit/secrets/internal/keymgmt/usecase"
)

type mockKeyEngine struct {
	mock.Mock
}

func (m *mockKeyEngine) EnsureActiveKey(ctx context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keymgmtDomain.EncryptionKey), args.Error(1)
}

func (m *mockKeyEngine) StoreSecret(ctx context.Context, in keymgmtUsecase.StoreSecretInput) (*keymgmtDomain.SecretRecord, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keymgmtDomain.SecretRecord), args.Error(1)
}

func (m *mockKeyEngine) EncryptAndStoreSecret(ctx context.Context, in keymgmtUsecase.StoreSecretInput) (*keymgmtDomain.SecretRecord, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keymgmtDomain.SecretRecord), args.Error(1)
}

func (m *mockKeyEngine) GetSecret(ctx context.Context, tenantID, secretID string) (*keymgmtDomain.SecretRecord, error) {
	args := m.Called(ctx, tenantID, secretID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keymgmtDomain.SecretRecord), args.Error(1)
}

func (m *mockKeyEngine) DecryptSecret(ctx context.Context, tenantID, secretID string) ([]byte, error) {
	args := m.Called(ctx, tenantID, secretID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKeyEngine) DeleteSecret(ctx context.Context, tenantID, secretID string) error {
	args := m.Called(ctx, tenantID, secretID)
	return args.Error(0)
}

func (m *mockKeyEngine) ListSecrets(ctx context.Context, tenantID string) ([]*keymgmtDomain.SecretRecord, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*keymgmtDomain.SecretRecord), args.Error(1)
}

func (m *mockKeyEngine) RotateKeys(ctx context.Context, tenantID string, force bool) (*keymgmtDomain.RotationResult, error) {
	args := m.Called(ctx, tenantID, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keymgmtDomain.RotationResult), args.Error(1)
}

func (m *mockKeyEngine) ListKeys(ctx context.Context, tenantID string) (*keymgmtDomain.TenantKeys, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keymgmtDomain.TenantKeys), args.Error(1)
}

type mockGuard struct {
	mock.Mock
}

func (m *mockGuard) IsIPBlacklisted(ctx context.Context, ipAddress string) (bool, error) {
	args := m.Called(ctx, ipAddress)
	return args.Bool(0), args.Error(1)
}

func (m *mockGuard) BlacklistIP(ctx context.Context, in abuseUsecase.BlacklistIPInput) (*abuseDomain.BlacklistEntry, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*abuseDomain.BlacklistEntry), args.Error(1)
}

func (m *mockGuard) UnblacklistIP(ctx context.Context, ipAddress, unblockedBy string) error {
	args := m.Called(ctx, ipAddress, unblockedBy)
	return args.Error(0)
}

func (m *mockGuard) CheckRateLimit(ctx context.Context, ipAddress string, maxRequests int64, window time.Duration) (*abuseDomain.RateLimitResult, error) {
	args := m.Called(ctx, ipAddress, maxRequests, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*abuseDomain.RateLimitResult), args.Error(1)
}

func (m *mockGuard) GetBlacklistAnalytics(ctx context.Context, days int) (*abuseDomain.BlacklistAnalytics, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*abuseDomain.BlacklistAnalytics), args.Error(1)
}
