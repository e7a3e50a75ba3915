package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/tenantkit/secrets/internal/database"
	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

// mysqlDuplicateEntry is the MySQL error number for duplicate key entries.
const mysqlDuplicateEntry = 1062

// MySQLKeyRepository implements key-metadata persistence for MySQL.
// The ACTIVE uniqueness rides on a generated column (active_tenant) with a
// unique index, since MySQL has no partial indexes.
type MySQLKeyRepository struct {
	db *sql.DB
}

// NewMySQLKeyRepository creates a MySQL key repository.
func NewMySQLKeyRepository(db *sql.DB) *MySQLKeyRepository {
	return &MySQLKeyRepository{db: db}
}

// Create inserts a new key row. A second ACTIVE key for a tenant violates the
// generated-column unique index and returns ErrRotationConflict.
func (m *MySQLKeyRepository) Create(ctx context.Context, key *keymgmtDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO encryption_keys (id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		key.ID,
		key.TenantID,
		key.Algorithm,
		key.KeySize,
		string(key.Status),
		key.CreatedAt,
		key.RotationDate,
		key.ArchivedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return apperrors.ErrRotationConflict
		}
		return apperrors.Wrap(err, "failed to create encryption key")
	}
	return nil
}

// GetActive returns the tenant's single ACTIVE key, or ErrNoActiveKey.
func (m *MySQLKeyRepository) GetActive(
	ctx context.Context,
	tenantID string,
) (*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = ? AND status = 'ACTIVE'`

	key, err := scanKey(querier.QueryRowContext(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNoActiveKey
		}
		return nil, apperrors.Wrap(err, "failed to get active key")
	}
	return key, nil
}

// Get returns a tenant key by id regardless of status.
func (m *MySQLKeyRepository) Get(
	ctx context.Context,
	tenantID, keyID string,
) (*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = ? AND id = ?`

	key, err := scanKey(querier.QueryRowContext(ctx, query, tenantID, keyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, keymgmtDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get key")
	}
	return key, nil
}

// ListByTenant returns all tenant keys, newest first.
func (m *MySQLKeyRepository) ListByTenant(
	ctx context.Context,
	tenantID string,
) ([]*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = ?
			  ORDER BY created_at DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListArchived returns the tenant's archived keys, oldest-archived first.
func (m *MySQLKeyRepository) ListArchived(
	ctx context.Context,
	tenantID string,
) ([]*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = ? AND status = 'ARCHIVED'
			  ORDER BY archived_at ASC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list archived keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// DemoteActive compare-and-swaps the named key from ACTIVE to ARCHIVED.
func (m *MySQLKeyRepository) DemoteActive(
	ctx context.Context,
	tenantID, keyID string,
	rotationDate, archivedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE encryption_keys
			  SET status = 'ARCHIVED', rotation_date = ?, archived_at = ?
			  WHERE tenant_id = ? AND id = ? AND status = 'ACTIVE'`

	result, err := querier.ExecContext(ctx, query, rotationDate, archivedAt, tenantID, keyID)
	if err != nil {
		return apperrors.Wrap(err, "failed to demote active key")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read demote result")
	}
	if affected == 0 {
		return apperrors.ErrRotationConflict
	}
	return nil
}

// Delete removes a key row.
func (m *MySQLKeyRepository) Delete(ctx context.Context, tenantID, keyID string) error {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM encryption_keys WHERE tenant_id = ? AND id = ?`

	if _, err := querier.ExecContext(ctx, query, tenantID, keyID); err != nil {
		return apperrors.Wrap(err, "failed to delete key")
	}
	return nil
}
