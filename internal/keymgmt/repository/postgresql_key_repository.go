// Package repository implements durable persistence for encryption-key
// metadata. Repositories support both PostgreSQL and MySQL; the
// one-ACTIVE-key-per-tenant invariant is enforced by a uniqueness constraint
// in the schema, so concurrent rotations surface as conflicts here rather
// than as silent double-activation.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/tenantkit/secrets/internal/database"
	apperrors "github.com/tenantkit/secrets/internal/errors"
	keymgmtDomain "github.com/tenantkit/secrets/internal/keymgmt/domain"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// PostgreSQLKeyRepository implements key-metadata persistence for PostgreSQL.
type PostgreSQLKeyRepository struct {
	db *sql.DB
}

// NewPostgreSQLKeyRepository creates a PostgreSQL key repository.
func NewPostgreSQLKeyRepository(db *sql.DB) *PostgreSQLKeyRepository {
	return &PostgreSQLKeyRepository{db: db}
}

// Create inserts a new key row. Inserting a second ACTIVE key for a tenant
// violates the partial unique index and returns ErrRotationConflict.
func (p *PostgreSQLKeyRepository) Create(ctx context.Context, key *keymgmtDomain.EncryptionKey) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO encryption_keys (id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

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
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return apperrors.ErrRotationConflict
		}
		return apperrors.Wrap(err, "failed to create encryption key")
	}
	return nil
}

// GetActive returns the tenant's single ACTIVE key, or ErrNoActiveKey.
func (p *PostgreSQLKeyRepository) GetActive(
	ctx context.Context,
	tenantID string,
) (*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = $1 AND status = 'ACTIVE'`

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
func (p *PostgreSQLKeyRepository) Get(
	ctx context.Context,
	tenantID, keyID string,
) (*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = $1 AND id = $2`

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
func (p *PostgreSQLKeyRepository) ListByTenant(
	ctx context.Context,
	tenantID string,
) ([]*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = $1
			  ORDER BY created_at DESC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListArchived returns the tenant's archived keys ordered oldest-archived
// first, the eviction order.
func (p *PostgreSQLKeyRepository) ListArchived(
	ctx context.Context,
	tenantID string,
) ([]*keymgmtDomain.EncryptionKey, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, tenant_id, algorithm, key_size, status, created_at, rotation_date, archived_at
			  FROM encryption_keys
			  WHERE tenant_id = $1 AND status = 'ARCHIVED'
			  ORDER BY archived_at ASC`

	rows, err := querier.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list archived keys")
	}
	defer rows.Close()

	return collectKeys(rows)
}

// DemoteActive compare-and-swaps the named key from ACTIVE to ARCHIVED.
// Zero rows affected means another rotation got there first and returns
// ErrRotationConflict.
func (p *PostgreSQLKeyRepository) DemoteActive(
	ctx context.Context,
	tenantID, keyID string,
	rotationDate, archivedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE encryption_keys
			  SET status = 'ARCHIVED', rotation_date = $1, archived_at = $2
			  WHERE tenant_id = $3 AND id = $4 AND status = 'ACTIVE'`

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
func (p *PostgreSQLKeyRepository) Delete(ctx context.Context, tenantID, keyID string) error {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM encryption_keys WHERE tenant_id = $1 AND id = $2`

	if _, err := querier.ExecContext(ctx, query, tenantID, keyID); err != nil {
		return apperrors.Wrap(err, "failed to delete key")
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*keymgmtDomain.EncryptionKey, error) {
	var (
		key    keymgmtDomain.EncryptionKey
		status string
	)
	err := row.Scan(
		&key.ID,
		&key.TenantID,
		&key.Algorithm,
		&key.KeySize,
		&status,
		&key.CreatedAt,
		&key.RotationDate,
		&key.ArchivedAt,
	)
	if err != nil {
		return nil, err
	}
	key.Status = keymgmtDomain.KeyStatus(status)
	return &key, nil
}

func collectKeys(rows *sql.Rows) ([]*keymgmtDomain.EncryptionKey, error) {
	var keys []*keymgmtDomain.EncryptionKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan key")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate keys")
	}
	return keys, nil
}
