// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"

	validation "github.com/jellydator/validation"

	apperrors "github.com/tenantkit/secrets/internal/errors"
)

var (
	// tenantIDRegex restricts tenant ids to path-safe characters. Tenant ids
	// become path segments, so no separators or metacharacters are allowed.
	tenantIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

	// secretNameRegex restricts secret names to a printable, path-safe subset.
	secretNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._/-]*$`)

	// ipRegex is a coarse shape check; callers needing strict parsing should
	// use net/netip on top of this.
	ipRegex = regexp.MustCompile(`^[0-9a-fA-F:.]+$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// TenantID validates that a value is a well-formed tenant identifier.
// Every path derivation must be preceded by this check.
var TenantID = []validation.Rule{
	validation.Required,
	validation.Length(1, 64),
	validation.Match(tenantIDRegex).
		Error("must start with an alphanumeric character and contain only alphanumerics, '_' and '-'"),
}

// SecretName validates a caller-supplied logical secret name.
var SecretName = []validation.Rule{
	validation.Required,
	validation.Length(1, 255),
	validation.Match(secretNameRegex).
		Error("must start with an alphanumeric character and contain only alphanumerics, '.', '_', '/' and '-'"),
}

// IPAddress validates the shape of an IP address string.
var IPAddress = []validation.Rule{
	validation.Required,
	validation.Length(1, 45),
	validation.Match(ipRegex).Error("must be an IPv4 or IPv6 address"),
}

// ValidateTenantID checks a tenant id against the TenantID rules and returns
// ErrInvalidTenantID on failure.
func ValidateTenantID(tenantID string) error {
	if err := validation.Validate(tenantID, TenantID...); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidTenantID, err.Error())
	}
	return nil
}
