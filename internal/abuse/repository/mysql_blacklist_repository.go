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

// MySQLBlacklistRepository implements blacklist persistence for MySQL.
type MySQLBlacklistRepository struct {
	db *sql.DB
}

// NewMySQLBlacklistRepository creates a MySQL blacklist repository.
func NewMySQLBlacklistRepository(db *sql.DB) *MySQLBlacklistRepository {
	return &MySQLBlacklistRepository{db: db}
}

// Insert appends a new audit row for a block.
func (m *MySQLBlacklistRepository) Insert(ctx context.Context, entry *abuseDomain.BlacklistEntry) error {
	querier := database.GetTx(ctx, m.db)

	query := `INSERT INTO ip_blacklist (ip_address, blocked_until, reason, blocked_by, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	result, err := querier.ExecContext(
		ctx,
		query,
		entry.IPAddress,
		entry.BlockedUntil,
		entry.Reason,
		entry.BlockedBy,
		entry.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to insert blacklist entry")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return apperrors.Wrap(err, "failed to read inserted blacklist entry id")
	}
	entry.ID = id
	return nil
}

// FindActive returns the latest open block for the IP, or
// ErrBlacklistEntryNotFound when the IP is not currently blocked.
func (m *MySQLBlacklistRepository) FindActive(
	ctx context.Context,
	ipAddress string,
	now time.Time,
) (*abuseDomain.BlacklistEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, ip_address, blocked_until, reason, blocked_by, unblocked_at, unblocked_by, created_at
			  FROM ip_blacklist
			  WHERE ip_address = ? AND blocked_until > ? AND unblocked_at IS NULL
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

// MarkUnblocked closes the latest open row for the IP. MySQL supports
// ORDER BY/LIMIT on UPDATE directly.
func (m *MySQLBlacklistRepository) MarkUnblocked(
	ctx context.Context,
	ipAddress, unblockedBy string,
	unblockedAt time.Time,
) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE ip_blacklist
			  SET unblocked_at = ?, unblocked_by = ?
			  WHERE ip_address = ? AND unblocked_at IS NULL
			  ORDER BY created_at DESC
			  LIMIT 1`

	if _, err := querier.ExecContext(ctx, query, unblockedAt, unblockedBy, ipAddress); err != nil {
		return apperrors.Wrap(err, "failed to mark blacklist entry unblocked")
	}
	return nil
}

// CountSince counts blocks issued at or after the given time.
func (m *MySQLBlacklistRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM ip_blacklist WHERE created_at >= ?`

	var count int64
	if err := querier.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count blacklist entries")
	}
	return count, nil
}

// CountCurrentlyBlocked counts blocks open at the given time.
func (m *MySQLBlacklistRepository) CountCurrentlyBlocked(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COUNT(*) FROM ip_blacklist WHERE blocked_until > ? AND unblocked_at IS NULL`

	var count int64
	if err := querier.QueryRowContext(ctx, query, now).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count currently blocked entries")
	}
	return count, nil
}

// GroupByReason groups blocks issued since the given time by reason.
func (m *MySQLBlacklistRepository) GroupByReason(
	ctx context.Context,
	since time.Time,
) (map[string]int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT COALESCE(reason, ''), COUNT(*)
			  FROM ip_blacklist
			  WHERE created_at >= ?
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
func (m *MySQLBlacklistRepository) RecentActivity(
	ctx context.Context,
	since time.Time,
	limit int,
) ([]*abuseDomain.BlacklistEntry, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, ip_address, blocked_until, reason, blocked_by, unblocked_at, unblocked_by, created_at
			  FROM ip_blacklist
			  WHERE created_at >= ?
			  ORDER BY created_at DESC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list recent blacklist activity")
	}
	defer rows.Close()

	return collectEntries(rows)
}
