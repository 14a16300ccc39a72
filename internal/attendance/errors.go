package attendance

import (
	"errors"
	"fmt"

	"geoattend/internal/store"
)

var (
	// ErrSessionNotFound means the session id is unknown. Permanent for
	// that id, distinct from expiry so clients can tell a bad link from a
	// stale one.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired means the session exists but its validity window
	// has passed.
	ErrSessionExpired = errors.New("session expired")

	// Duplicate and device rejections surface from the ledger unchanged.
	ErrDuplicateCheckIn = store.ErrDuplicateCheckIn
	ErrDeviceUsed       = store.ErrDeviceUsed
)

// InvalidInputError wraps a field validation failure. Caller-fixable.
type InvalidInputError struct {
	Err error
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *InvalidInputError) Unwrap() error { return e.Err }

// TooFarError is a geofence rejection. It carries the measured distance so
// the client can show how far outside the radius the student was.
type TooFarError struct {
	DistanceMeters float64
	RadiusMeters   float64
}

func (e *TooFarError) Error() string {
	return fmt.Sprintf("too far from class: %.1fm (radius %.0fm)", e.DistanceMeters, e.RadiusMeters)
}
