// Package errors provides standardized domain errors that express business intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to caller-facing results by the consuming surfaces.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors shared across all modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupported indicates a requested capability is not supported by the
	// configured backend or build.
	ErrUnsupported = errors.New("unsupported")
)

// Secret-store and key-lifecycle error taxonomy. Backend failures are wrapped
// with tenant/secret/key context for logging but never carry plaintext secret
// values or key material.
var (
	// ErrProviderNotReady indicates the secret-store provider has not completed
	// initialization or has lost its backend connection.
	ErrProviderNotReady = errors.New("secret-store provider not ready")

	// ErrSecretNotFound indicates no secret exists at the derived path.
	ErrSecretNotFound = fmt.Errorf("secret %w", ErrNotFound)

	// ErrNoActiveKey indicates the tenant has no ACTIVE encryption key.
	ErrNoActiveKey = errors.New("no active encryption key for tenant")

	// ErrEncryptionFailed indicates the provider failed to encrypt a value.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed indicates the provider failed to decrypt a value.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidTenantID indicates the caller-supplied tenant identifier is not
	// well formed; no path derivation may happen from such an id.
	ErrInvalidTenantID = fmt.Errorf("%w: invalid tenant id", ErrInvalidInput)

	// ErrProviderOperationFailed wraps any backend transport or auth failure.
	ErrProviderOperationFailed = errors.New("provider operation failed")

	// ErrRotationConflict indicates a concurrent rotation was detected for the
	// same tenant.
	ErrRotationConflict = fmt.Errorf("%w: concurrent key rotation detected", ErrConflict)
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}
