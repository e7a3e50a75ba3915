// Package app provides the dependency injection container for assembling
// application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"

	abuseRepository "github.com/tenantkit/secrets/internal/abuse/repository"
	abuseUsecase "github.com/tenantkit/secrets/internal/abuse/usecase"
	"github.com/tenantkit/secrets/internal/cache"
	"github.com/tenantkit/secrets/internal/config"
	"github.com/tenantkit/secrets/internal/database"
	keymgmtRepository "github.com/tenantkit/secrets/internal/keymgmt/repository"
	keymgmtUsecase "github.com/tenantkit/secrets/internal/keymgmt/usecase"
	"github.com/tenantkit/secrets/internal/metrics"
	"github.com/tenantkit/secrets/internal/provider"
)

// Container holds all application dependencies and provides methods to access
// them. Components are created lazily on first access.
type Container struct {
	config *config.Config

	logger    *slog.Logger
	db        *sql.DB
	txManager database.TxManager
	cache     cache.Cache
	provider  provider.SecretStoreProvider

	keyRepo       keymgmtUsecase.KeyRepository
	blacklistRepo abuseUsecase.BlacklistRepository

	keyEngine keymgmtUsecase.KeyEngine
	guard     abuseUsecase.Guard

	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	txManagerInit       sync.Once
	cacheInit           sync.Once
	providerInit        sync.Once
	keyRepoInit         sync.Once
	blacklistRepoInit   sync.Once
	keyEngineInit       sync.Once
	guardInit           sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance, created on first access from
// the configured log level.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection, created and pooled on first access.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		db, err := database.Connect(database.ConfigFrom(c.config))
		if err != nil {
			c.initErrors["db"] = fmt.Errorf("failed to connect to database: %w", err)
			return
		}
		c.db = db
	})
	if err, exists := c.initErrors["db"]; exists {
		return nil, err
	}
	return c.db, nil
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["txManager"] = fmt.Errorf("failed to get database for tx manager: %w", err)
			return
		}
		c.txManager = database.NewTxManager(db)
	})
	if err, exists := c.initErrors["txManager"]; exists {
		return nil, err
	}
	return c.txManager, nil
}

// Cache returns the cache backend selected by configuration.
func (c *Container) Cache(ctx context.Context) (cache.Cache, error) {
	c.cacheInit.Do(func() {
		backend, err := cache.NewCache(ctx, c.config)
		if err != nil {
			c.initErrors["cache"] = fmt.Errorf("failed to create cache backend: %w", err)
			return
		}
		c.cache = backend
	})
	if err, exists := c.initErrors["cache"]; exists {
		return nil, err
	}
	return c.cache, nil
}

// Provider returns the initialized secret-store provider.
func (c *Container) Provider(ctx context.Context) (provider.SecretStoreProvider, error) {
	c.providerInit.Do(func() {
		p, err := provider.NewProvider(ctx, c.config)
		if err != nil {
			c.initErrors["provider"] = fmt.Errorf("failed to create secret-store provider: %w", err)
			return
		}
		c.provider = p
	})
	if err, exists := c.initErrors["provider"]; exists {
		return nil, err
	}
	return c.provider, nil
}

// KeyRepository returns the key-metadata repository for the configured driver.
func (c *Container) KeyRepository() (keymgmtUsecase.KeyRepository, error) {
	c.keyRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["keyRepo"] = fmt.Errorf("failed to get database for key repository: %w", err)
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.keyRepo = keymgmtRepository.NewMySQLKeyRepository(db)
		case "postgres":
			c.keyRepo = keymgmtRepository.NewPostgreSQLKeyRepository(db)
		default:
			c.initErrors["keyRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if err, exists := c.initErrors["keyRepo"]; exists {
		return nil, err
	}
	return c.keyRepo, nil
}

// BlacklistRepository returns the blacklist audit repository for the
// configured driver.
func (c *Container) BlacklistRepository() (abuseUsecase.BlacklistRepository, error) {
	c.blacklistRepoInit.Do(func() {
		db, err := c.DB()
		if err != nil {
			c.initErrors["blacklistRepo"] = fmt.Errorf("failed to get database for blacklist repository: %w", err)
			return
		}
		switch c.config.DBDriver {
		case "mysql":
			c.blacklistRepo = abuseRepository.NewMySQLBlacklistRepository(db)
		case "postgres":
			c.blacklistRepo = abuseRepository.NewPostgreSQLBlacklistRepository(db)
		default:
			c.initErrors["blacklistRepo"] = fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
		}
	})
	if err, exists := c.initErrors["blacklistRepo"]; exists {
		return nil, err
	}
	return c.blacklistRepo, nil
}

// KeyEngine returns the key and secret management engine, decorated with
// business metrics when enabled.
func (c *Container) KeyEngine(ctx context.Context) (keymgmtUsecase.KeyEngine, error) {
	c.keyEngineInit.Do(func() {
		txManager, err := c.TxManager()
		if err != nil {
			c.initErrors["keyEngine"] = fmt.Errorf("failed to get tx manager for key engine: %w", err)
			return
		}
		keyRepo, err := c.KeyRepository()
		if err != nil {
			c.initErrors["keyEngine"] = fmt.Errorf("failed to get key repository for key engine: %w", err)
			return
		}
		p, err := c.Provider(ctx)
		if err != nil {
			c.initErrors["keyEngine"] = fmt.Errorf("failed to get provider for key engine: %w", err)
			return
		}
		bm, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["keyEngine"] = fmt.Errorf("failed to get business metrics for key engine: %w", err)
			return
		}

		engine := keymgmtUsecase.NewKeyEngine(txManager, keyRepo, p, c.Logger(), c.config.MaxArchivedKeys)
		c.keyEngine = keymgmtUsecase.NewKeyEngineWithMetrics(engine, bm)
	})
	if err, exists := c.initErrors["keyEngine"]; exists {
		return nil, err
	}
	return c.keyEngine, nil
}

// Guard returns the abuse guard, decorated with business metrics when enabled.
func (c *Container) Guard(ctx context.Context) (abuseUsecase.Guard, error) {
	c.guardInit.Do(func() {
		backend, err := c.Cache(ctx)
		if err != nil {
			c.initErrors["guard"] = fmt.Errorf("failed to get cache for abuse guard: %w", err)
			return
		}
		repo, err := c.BlacklistRepository()
		if err != nil {
			c.initErrors["guard"] = fmt.Errorf("failed to get blacklist repository for abuse guard: %w", err)
			return
		}
		bm, err := c.BusinessMetrics()
		if err != nil {
			c.initErrors["guard"] = fmt.Errorf("failed to get business metrics for abuse guard: %w", err)
			return
		}

		guard := abuseUsecase.NewGuard(backend, repo, c.Logger())
		c.guard = abuseUsecase.NewGuardWithMetrics(guard, bm)
	})
	if err, exists := c.initErrors["guard"]; exists {
		return nil, err
	}
	return c.guard, nil
}

// MetricsProvider returns the OpenTelemetry/Prometheus metrics provider.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		p, err := metrics.NewProvider(c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["metricsProvider"] = fmt.Errorf("failed to create metrics provider: %w", err)
			return
		}
		c.metricsProvider = p
	})
	if err, exists := c.initErrors["metricsProvider"]; exists {
		return nil, err
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the business metrics recorder, or a no-op recorder
// when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		if !c.config.MetricsEnabled {
			c.businessMetrics = metrics.NewNoOpBusinessMetrics()
			return
		}
		p, err := c.MetricsProvider()
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to get metrics provider: %w", err)
			return
		}
		bm, err := metrics.NewBusinessMetrics(p.MeterProvider(), c.config.MetricsNamespace)
		if err != nil {
			c.initErrors["businessMetrics"] = fmt.Errorf("failed to create business metrics: %w", err)
			return
		}
		c.businessMetrics = bm
	})
	if err, exists := c.initErrors["businessMetrics"]; exists {
		return nil, err
	}
	return c.businessMetrics, nil
}

// Shutdown performs cleanup of all initialized resources.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("cache close: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}
	return nil
}

// initLogger creates a structured logger from the configured log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}
