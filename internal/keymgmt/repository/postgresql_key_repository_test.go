package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

func keyColumns() []string {
	return []string{
		"id", "tenant_id", "algorithm", "key_size", "status",
		"created_at", "rotation_date", "archived_at",
	}
}

func TestPostgreSQLKeyRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts key row", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)
		key := keymgmtDomain.NewEncryptionKey("acme")

		mock.ExpectExec("INSERT INTO encryption_keys").
			WithArgs(
				key.ID, key.TenantID, key.Algorithm, key.KeySize,
				string(key.Status), key.CreatedAt, nil, nil,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Create(ctx, key))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second active key maps to rotation conflict", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)
		key := keymgmtDomain.NewEncryptionKey("acme")

		mock.ExpectExec("INSERT INTO encryption_keys").
			WillReturnError(&pq.Error{Code: "23505"})

		err = repo.Create(ctx, key)
		assert.ErrorIs(t, err, apperrors.ErrRotationConflict)
	})
}

func TestPostgreSQLKeyRepository_GetActive(t *testing.T) {
	ctx := context.Background()

	t.Run("returns active key", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)
		createdAt := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM encryption_keys").
			WithArgs("acme").
			WillReturnRows(sqlmock.NewRows(keyColumns()).
				AddRow("k1", "acme", keymgmtDomain.Algorithm, keymgmtDomain.KeySize,
					"ACTIVE", createdAt, nil, nil))

		key, err := repo.GetActive(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "k1", key.ID)
		assert.Equal(t, keymgmtDomain.KeyStatusActive, key.Status)
		assert.True(t, key.IsActive())
	})

	t.Run("no rows maps to no active key", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM encryption_keys").
			WithArgs("acme").
			WillReturnRows(sqlmock.NewRows(keyColumns()))

		_, err = repo.GetActive(ctx, "acme")
		assert.ErrorIs(t, err, apperrors.ErrNoActiveKey)
	})
}

func TestPostgreSQLKeyRepository_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key maps to not found", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)

		mock.ExpectQuery("SELECT (.+) FROM encryption_keys").
			WithArgs("acme", "missing").
			WillReturnRows(sqlmock.NewRows(keyColumns()))

		_, err = repo.Get(ctx, "acme", "missing")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("returns archived key with timestamps", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)
		createdAt := time.Now().UTC().Add(-time.Hour)
		rotated := time.Now().UTC()

		mock.ExpectQuery("SELECT (.+) FROM encryption_keys").
			WithArgs("acme", "k1").
			WillReturnRows(sqlmock.NewRows(keyColumns()).
				AddRow("k1", "acme", keymgmtDomain.Algorithm, keymgmtDomain.KeySize,
					"ARCHIVED", createdAt, rotated, rotated))

		key, err := repo.Get(ctx, "acme", "k1")
		require.NoError(t, err)
		assert.Equal(t, keymgmtDomain.KeyStatusArchived, key.Status)
		require.NotNil(t, key.ArchivedAt)
		assert.WithinDuration(t, rotated, *key.ArchivedAt, time.Second)
	})
}

func TestPostgreSQLKeyRepository_ListArchived(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLKeyRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM encryption_keys").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(keyColumns()).
			AddRow("k-old", "acme", keymgmtDomain.Algorithm, keymgmtDomain.KeySize,
				"ARCHIVED", now.Add(-3*time.Hour), now.Add(-2*time.Hour), now.Add(-2*time.Hour)).
			AddRow("k-new", "acme", keymgmtDomain.Algorithm, keymgmtDomain.KeySize,
				"ARCHIVED", now.Add(-2*time.Hour), now.Add(-time.Hour), now.Add(-time.Hour)))

	keys, err := repo.ListArchived(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	// Oldest-archived first: the eviction order.
	assert.Equal(t, "k-old", keys[0].ID)
	assert.Equal(t, "k-new", keys[1].ID)
}

func TestPostgreSQLKeyRepository_DemoteActive(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("demotes active key", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)

		mock.ExpectExec("UPDATE encryption_keys").
			WithArgs(now, now, "acme", "k1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.DemoteActive(ctx, "acme", "k1", now, now))
	})

	t.Run("zero rows means concurrent rotation", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		repo := NewPostgreSQLKeyRepository(db)

		mock.ExpectExec("UPDATE encryption_keys").
			WithArgs(now, now, "acme", "k1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err = repo.DemoteActive(ctx, "acme", "k1", now, now)
		assert.ErrorIs(t, err, apperrors.ErrRotationConflict)
	})
}

func TestPostgreSQLKeyRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgreSQLKeyRepository(db)

	mock.ExpectExec("DELETE FROM encryption_keys").
		WithArgs("acme", "k1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(ctx, "acme", "k1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
