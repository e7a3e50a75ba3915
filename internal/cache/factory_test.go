package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantkit/secrets/internal/config"
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

func TestNewCache(t *testing.T) {
	ctx := context.Background()

	t.Run("memory backend in local environment", func(t *testing.T) {
		cfg := &config.Config{Environment: config.EnvLocal, CacheBackend: "memory"}

		c, err := NewCache(ctx, cfg)
		require.NoError(t, err)
		defer c.Close()

		assert.IsType(t, &MemoryCache{}, c)
	})

	t.Run("memory backend refused in production", func(t *testing.T) {
		cfg := &config.Config{Environment: config.EnvProduction, CacheBackend: "memory"}

		_, err := NewCache(ctx, cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnsupported)
	})

	t.Run("unknown backend fails at construction", func(t *testing.T) {
		cfg := &config.Config{Environment: config.EnvLocal, CacheBackend: "memcached"}

		_, err := NewCache(ctx, cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrUnsupported)
		assert.ErrorContains(t, err, "memcached")
	})
}
