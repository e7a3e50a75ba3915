package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

// passthroughTxManager runs the function without a real transaction. The
// engine's transactional sequencing is still exercised because the fake key
// repository enforces the same constraints the schema does.
type passthroughTxManager struct{}

func (passthroughTxManager) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// failingTxManager rejects every transaction without running the function, as
// a driver would after losing its connection mid commit.
type failingTxManager struct{ err error }

func (f failingTxManager) WithTx(context.Context, func(ctx context.Context) error) error {
	return f.err
}

// fakeKeyRepository is an in-memory KeyRepository enforcing the
// one-ACTIVE-key-per-tenant constraint the SQL schemas enforce.
type fakeKeyRepository struct {
	mu   sync.Mutex
	keys map[string][]*keymgmtDomain.EncryptionKey
}

func newFakeKeyRepository() *fakeKeyRepository {
	return &fakeKeyRepository{keys: make(map[string][]*keymgmtDomain.EncryptionKey)}
}

func (f *fakeKeyRepository) Create(_ context.Context, key *keymgmtDomain.EncryptionKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if key.Status == keymgmtDomain.KeyStatusActive {
		for _, existing := range f.keys[key.TenantID] {
			if existing.Status == keymgmtDomain.KeyStatusActive {
				return apperrors.ErrRotationConflict
			}
		}
	}
	clone := *key
	f.keys[key.TenantID] = append(f.keys[key.TenantID], &clone)
	return nil
}

func (f *fakeKeyRepository) GetActive(_ context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range f.keys[tenantID] {
		if key.Status == keymgmtDomain.KeyStatusActive {
			clone := *key
			return &clone, nil
		}
	}
	return nil, apperrors.ErrNoActiveKey
}

func (f *fakeKeyRepository) Get(_ context.Context, tenantID, keyID string) (*keymgmtDomain.EncryptionKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range f.keys[tenantID] {
		if key.ID == keyID {
			clone := *key
			return &clone, nil
		}
	}
	return nil, keymgmtDomain.ErrKeyNotFound
}

func (f *fakeKeyRepository) ListByTenant(_ context.Context, tenantID string) ([]*keymgmtDomain.EncryptionKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*keymgmtDomain.EncryptionKey, 0, len(f.keys[tenantID]))
	for _, key := range f.keys[tenantID] {
		clone := *key
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeKeyRepository) ListArchived(_ context.Context, tenantID string) ([]*keymgmtDomain.EncryptionKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*keymgmtDomain.EncryptionKey, 0)
	for _, key := range f.keys[tenantID] {
		if key.Status == keymgmtDomain.KeyStatusArchived {
			clone := *key
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArchivedAt.Before(*out[j].ArchivedAt) })
	return out, nil
}

func (f *fakeKeyRepository) DemoteActive(_ context.Context, tenantID, keyID string, rotationDate, archivedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range f.keys[tenantID] {
		if key.ID == keyID && key.Status == keymgmtDomain.KeyStatusActive {
			key.Status = keymgmtDomain.KeyStatusArchived
			rd := rotationDate
			aa := archivedAt
			key.RotationDate = &rd
			key.ArchivedAt = &aa
			return nil
		}
	}
	return apperrors.ErrRotationConflict
}

func (f *fakeKeyRepository) Delete(_ context.Context, tenantID, keyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := f.keys[tenantID]
	for i, key := range keys {
		if key.ID == keyID {
			f.keys[tenantID] = append(keys[:i], keys[i+1:]...)
			return nil
		}
	}
	return keymgmtDomain.ErrKeyNotFound
}

var _ KeyRepository = (*fakeKeyRepository)(nil)

// racingKeyRepository simulates a concurrent creator committing an ACTIVE key
// between the caller's GetActive miss and its Create. The first ACTIVE Create
// inserts the winner's key and reports the durable conflict.
type racingKeyRepository struct {
	*fakeKeyRepository
	winner *keymgmtDomain.EncryptionKey
	raced  bool
}

func (r *racingKeyRepository) GetActive(ctx context.Context, tenantID string) (*keymgmtDomain.EncryptionKey, error) {
	if !r.raced {
		return nil, apperrors.ErrNoActiveKey
	}
	return r.fakeKeyRepository.GetActive(ctx, tenantID)
}

func (r *racingKeyRepository) Create(ctx context.Context, key *keymgmtDomain.EncryptionKey) error {
	if !r.raced && key.Status == keymgmtDomain.KeyStatusActive {
		r.raced = true
		r.winner = keymgmtDomain.NewEncryptionKey(key.TenantID)
		if err := r.fakeKeyRepository.Create(ctx, r.winner); err != nil {
			return err
		}
		return apperrors.ErrRotationConflict
	}
	return r.fakeKeyRepository.Create(ctx, key)
}

var _ KeyRepository = (*racingKeyRepository)(nil)
