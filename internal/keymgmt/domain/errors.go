package domain

import (
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

// Key-lifecycle error definitions. The shared taxonomy lives in
// internal/errors; these aliases keep call sites in this module terse.
var (
	// ErrKeyNotFound indicates no key metadata exists for the given id.
	ErrKeyNotFound = apperrors.Wrap(apperrors.ErrNotFound, "encryption key not found")
)
