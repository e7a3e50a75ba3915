package domain

import "time"

// Key lifecycle policy constants.
const (
	// Algorithm is the symmetric algorithm for all tenant keys.
	Algorithm = "AES-256-GCM"

	// KeySize is the key size in bits.
	KeySize = 256

	// DefaultRotationInterval is the default interval between scheduled key
	// rotations. The interval is enforced by an external scheduler; the
	// engine only records rotation dates.
	DefaultRotationInterval = 120 * 24 * time.Hour

	// MaxArchivedKeys is the per-tenant cap on retained archived keys.
	// When exceeded, the oldest-archived key is evicted first.
	MaxArchivedKeys = 3
)

// KeyStatus is the lifecycle status of an encryption key.
type KeyStatus string

// Key lifecycle statuses. A key is created ACTIVE, demoted to ARCHIVED on
// rotation, and removed by archive eviction. ROTATING and EXPIRED are
// transitional/terminal states recorded for observability.
const (
	KeyStatusActive   KeyStatus = "ACTIVE"
	KeyStatusRotating KeyStatus = "ROTATING"
	KeyStatusArchived KeyStatus = "ARCHIVED"
	KeyStatusExpired  KeyStatus = "EXPIRED"
)
