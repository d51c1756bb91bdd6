package types

import (
	"context"
)

// Backend is the backend-specific state of a driver instance. Its method set
// declares the capabilities of the driver type: see Initer, Deleter, Updater,
// LockHook and UnlockHook.
type Backend any

type Initer interface {
	Init(ctx context.Context, inst Instance) error
}

type Deleter interface {
	Del(ctx context.Context) error
}

// Updater is implemented by polling-style backends.
type Updater interface {
	Update(ctx context.Context) error
}

// LockHook together with UnlockHook is implemented by lock-style backends.
type LockHook interface {
	Lock(ctx context.Context) error
}

type UnlockHook interface {
	Unlock(ctx context.Context) error
}

// DriverType describes a kind of driver. Values are created once at process
// start and never mutated afterwards.
type DriverType struct {
	Name        string
	Description string

	// Priority orders the default driver list, higher first.
	Priority int

	// Singleton types allow at most one live instance at a time.
	Singleton bool

	// NewBackend allocates the zero state of a backend. It must not touch
	// any device: that is the job of Init.
	NewBackend func() Backend
}

func (t *DriverType) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}
