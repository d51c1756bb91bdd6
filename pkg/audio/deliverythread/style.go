package deliverythread

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

type Style int

const (
	StylePolling = Style(iota)
	StyleLocking
)

func (s Style) String() string {
	switch s {
	case StylePolling:
		return "polling"
	case StyleLocking:
		return "locking"
	default:
		return fmt.Sprintf("unknown_style_%d", int(s))
	}
}

// PollingBackend surfaces worker errors through Update and never exposes the
// buffer to the host.
type PollingBackend struct {
	*Backend
}

var (
	_ types.Initer  = (*PollingBackend)(nil)
	_ types.Deleter = (*PollingBackend)(nil)
	_ types.Updater = (*PollingBackend)(nil)
)

func NewPolling(cfg Config) *PollingBackend {
	return &PollingBackend{Backend: newBackend(cfg)}
}

// Update returns the latched worker error once, then clears it.
func (b *PollingBackend) Update(context.Context) error {
	return b.consumeLatchedError()
}

// LockingBackend lets the host exclude the fill callback with Lock/Unlock.
type LockingBackend struct {
	*Backend
	hostLocked atomic.Bool
}

var (
	_ types.Initer     = (*LockingBackend)(nil)
	_ types.Deleter    = (*LockingBackend)(nil)
	_ types.LockHook   = (*LockingBackend)(nil)
	_ types.UnlockHook = (*LockingBackend)(nil)
)

func NewLocking(cfg Config) *LockingBackend {
	return &LockingBackend{Backend: newBackend(cfg)}
}

// Lock waits until no fill callback is in progress and holds off the next
// one until Unlock. If the worker has latched an error, Lock returns it
// (once) and does not keep the lock.
//
// Do not release the driver while holding the lock: teardown waits for the
// worker, which may be waiting for the lock.
func (b *LockingBackend) Lock(context.Context) error {
	b.locker.Lock()
	if err := b.consumeLatchedError(); err != nil {
		b.locker.Unlock()
		return err
	}
	b.hostLocked.Store(true)
	return nil
}

func (b *LockingBackend) Unlock(context.Context) error {
	if !b.hostLocked.CompareAndSwap(true, false) {
		return fmt.Errorf("the driver is not locked")
	}
	b.locker.Unlock()
	return nil
}

type DriverTypeConfig struct {
	Name        string
	Description string
	Priority    int
	Singleton   bool
	Style       Style
	Config      Config
}

// NewDriverType describes a driver type backed by a delivery worker.
func NewDriverType(cfg DriverTypeConfig) *types.DriverType {
	return &types.DriverType{
		Name:        cfg.Name,
		Description: cfg.Description,
		Priority:    cfg.Priority,
		Singleton:   cfg.Singleton,
		NewBackend: func() types.Backend {
			switch cfg.Style {
			case StyleLocking:
				return NewLocking(cfg.Config)
			default:
				return NewPolling(cfg.Config)
			}
		},
	}
}

// WithLatency returns a copy of a delivery driver type whose backends use the
// given target latency. Other driver types are returned as is.
func WithLatency(t *types.DriverType, latency time.Duration) *types.DriverType {
	if t == nil || t.NewBackend == nil || latency <= 0 {
		return t
	}
	result := *t
	newBackend := t.NewBackend
	result.NewBackend = func() types.Backend {
		backend := newBackend()
		switch backend := backend.(type) {
		case *PollingBackend:
			backend.Config.TargetLatency = latency
		case *LockingBackend:
			backend.Config.TargetLatency = latency
		}
		return backend
	}
	return &result
}
