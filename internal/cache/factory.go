package cache

import (
	"context"
	"fmt"

	"github.com/tenantkit/secrets/internal/config"
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// NewCache constructs the cache backend selected by configuration.
// Exactly one backend is built; unsupported selectors fail here rather than
// at first use, and the memory backend is refused in production.
func NewCache(ctx context.Context, cfg *config.Config) (Cache, error) {
	switch cfg.CacheBackend {
	case "redis":
		return NewRedisCache(ctx, RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "memory":
		if cfg.Environment == config.EnvProduction {
			return nil, apperrors.Wrap(
				apperrors.ErrUnsupported,
				"memory cache backend is not allowed in production",
			)
		}
		return NewMemoryCache(), nil
	default:
		return nil, apperrors.Wrap(
			apperrors.ErrUnsupported,
			fmt.Sprintf("unknown cache backend %q", cfg.CacheBackend),
		)
	}
}
