package types

import (
	"errors"
)

var (
	ErrInvalidDriverType = errors.New("invalid driver type")
	ErrNoDriverType      = errors.New("no driver type available")
	ErrSingletonBusy     = errors.New("the singleton instance of the driver type is already in use")
	ErrNilDriver         = errors.New("driver is nil")
	ErrReleased          = errors.New("driver is already released")
	ErrRefCountOverflow  = errors.New("reference count overflow")
	ErrUnderrun          = errors.New("buffer underrun")
	ErrFill              = errors.New("fill callback failed")
)

// IsRecoverable reports whether a device write error is worth a recovery
// attempt.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnderrun)
}
