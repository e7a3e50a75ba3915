// Package repository implements durable persistence for IP blacklist audit
// rows. Repositories support both PostgreSQL and MySQL. Rows are append only;
// unblocking marks the latest open row rather than deleting it.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	abuseDomain "github.com/tenantkit/secrets/internal/abuse/domain"
	"github.com/tenantkit/secrets/internal/database"
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// PostgreSQLBlacklistRepository implements blacklist persistence for PostgreSQL.
type PostgreSQLBlacklistRepository struct {
	db *sql.DB
}

// NewPostgreSQLBlacklistRepository creates a PostgreSQL blacklist repository.
func NewPostgreSQLBlacklistRepository(db *sql.DB) *PostgreSQLBlacklistRepository {
	return &PostgreSQLBlacklistRepository{db: db}
}

// Insert appends a new audit row for a block.
func (p *PostgreSQLBlacklistRepository) Insert(ctx context.Context, entry *abuseDomain.BlacklistEntry) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO ip_blacklist (ip_address, blocked_until, reason, blocked_by, created_at)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`

	err := querier.QueryRowContext(
		ctx,
		query,
		entry.IPAddress,
		entry.BlockedUntil,
		entry.Reason,
		entry.BlockedBy,
		entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return apperrors.Wrap(err, "failed to insert blacklist entry")
	}
	return nil
}

// FindActive returns the latest open block for the IP, or
// ErrBlacklistEntryNotFound when the IP is not currently blocked.
func (p *PostgreSQLBlacklistRepository) FindActive(
	ctx context.Context,
	ipAddress string,
	now time.Time,
) (*abuseDomain.BlacklistEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, ip_address, blocked_until, reason, blocked_by, unblocked_at, unblocked_by, created_at
			  FROM ip_blacklist
			  WHERE ip_address = $1 AND blocked_until > $2 AND unblocked_at IS NULL
			  ORDER BY blocked_until DESC
			  LIMIT 1`

	entry, err := scanEntry(querier.QueryRowContext(ctx, query, ipAddress, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, abuseDomain.ErrBlacklistEntryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to find active blacklist entry")
	}
	return entry, nil
}

// MarkUnblocked closes the latest open row for the IP. Closing when no open
// row exists is not an error; the cache entry may simply have outlived the
// audit row.
func (p *PostgreSQLBlacklistRepository) MarkUnblocked(
	ctx context.Context,
	ipAddress, unblockedBy string,
	unblockedAt time.Time,
) error {
	querier := database.GetTx(ctx, p.db)

	query := `UPDATE ip_blacklist
			  SET unblocked_at = $1, unblocked_by = $2
			  WHERE id = (
				  SELECT id FROM ip_blacklist
				  WHERE ip_address = $3 AND unblocked_at IS NULL
				  ORDER BY created_at DESC
				  LIMIT 1
			  )`

	if _, err := querier.ExecContext(ctx, query, unblockedAt, unblockedBy, ipAddress); err != nil {
		return apperrors.Wrap(err, "failed to mark blacklist entry unblocked")
	}
	return nil
}

// CountSince counts blocks issued at or after the given time.
func (p *PostgreSQLBlacklistRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM ip_blacklist WHERE created_at >= $1`

	var count int64
	if err := querier.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count blacklist entries")
	}
	return count, nil
}

// CountCurrentlyBlocked counts blocks open at the given time.
func (p *PostgreSQLBlacklistRepository) CountCurrentlyBlocked(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COUNT(*) FROM ip_blacklist WHERE blocked_until > $1 AND unblocked_at IS NULL`

	var count int64
	if err := querier.QueryRowContext(ctx, query, now).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count currently blocked entries")
	}
	return count, nil
}

// GroupByReason groups blocks issued since the given time by reason.
func (p *PostgreSQLBlacklistRepository) GroupByReason(
	ctx context.Context,
	since time.Time,
) (map[string]int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT COALESCE(reason, ''), COUNT(*)
			  FROM ip_blacklist
			  WHERE created_at >= $1
			  GROUP BY COALESCE(reason, '')`

	rows, err := querier.QueryContext(ctx, query, since)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to group blacklist entries by reason")
	}
	defer rows.Close()

	grouped := make(map[string]int64)
	for rows.Next() {
		var (
			reason string
			count  int64
		)
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan reason group")
		}
		grouped[reason] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate reason groups")
	}
	return grouped, nil
}

// RecentActivity returns the most recent blocks since the given time, newest
// first, capped at limit.
func (p *PostgreSQLBlacklistRepository) RecentActivity(
	ctx context.Context,
	since time.Time,
	limit int,
) ([]*abuseDomain.BlacklistEntry, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, ip_address, blocked_until, reason, blocked_by, unblocked_at, unblocked_by, created_at
			  FROM ip_blacklist
			  WHERE created_at >= $1
			  ORDER BY created_at DESC
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list recent blacklist activity")
	}
	defer rows.Close()

	return collectEntries(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*abuseDomain.BlacklistEntry, error) {
	var (
		entry       abuseDomain.BlacklistEntry
		reason      sql.NullString
		blockedBy   sql.NullString
		unblockedBy sql.NullString
	)
	err := row.Scan(
		&entry.ID,
		&entry.IPAddress,
		&entry.BlockedUntil,
		&reason,
		&blockedBy,
		&entry.UnblockedAt,
		&unblockedBy,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Reason = reason.String
	entry.BlockedBy = blockedBy.String
	entry.UnblockedBy = unblockedBy.String
	return &entry, nil
}

func collectEntries(rows *sql.Rows) ([]*abuseDomain.BlacklistEntry, error) {
	var entries []*abuseDomain.BlacklistEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan blacklist entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate blacklist entries")
	}
	return entries, nil
}
