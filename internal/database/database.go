// Package database owns the shared SQL connection pool and transaction
// plumbing used by the key metadata and IP blacklist repositories. Both the
// postgres and mysql drivers are registered; the configured driver name
// selects between them.
package database

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/tenantkit/secrets/internal/config"
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// Config carries the pool settings for a single database connection.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// ConfigFrom maps the application's database settings onto a pool Config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Driver:             cfg.DBDriver,
		ConnectionString:   cfg.DBConnectionString,
		MaxOpenConnections: cfg.DBMaxOpenConnections,
		MaxIdleConnections: cfg.DBMaxIdleConnections,
		ConnMaxLifetime:    cfg.DBConnMaxLifetime,
	}
}

// Connect opens the pool and verifies the connection with a ping, so a bad
// connection string fails at startup rather than on the first query.
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, apperrors.Wrap(err, "failed to ping database")
	}

	return db, nil
}
