package cache

import (
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// Cache-specific error definitions.
var (
	// ErrCacheMiss indicates the key is absent or expired.
	ErrCacheMiss = apperrors.Wrap(apperrors.ErrNotFound, "cache miss")

	// ErrNotAnInteger indicates Incr was called on a non-integer value.
	ErrNotAnInteger = apperrors.Wrap(apperrors.ErrInvalidInput, "value is not an integer")
)
