package domain

import (
	apperrors "github.com/tenantkit/secrets/internal/errors"
)

var (
	// ErrBlacklistEntryNotFound indicates no open blacklist entry exists for
	// the given IP.
	ErrBlacklistEntryNotFound = apperrors.Wrap(apperrors.ErrNotFound, "blacklist entry not found")
)
