package registry

import (
	"fmt"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// Capabilities is the set of hooks a backend implements.
type Capabilities struct {
	Init   bool
	Del    bool
	Update bool
	Lock   bool
	Unlock bool
}

func CapabilitiesOf(backend types.Backend) Capabilities {
	var c Capabilities
	_, c.Init = backend.(types.Initer)
	_, c.Del = backend.(types.Deleter)
	_, c.Update = backend.(types.Updater)
	_, c.Lock = backend.(types.LockHook)
	_, c.Unlock = backend.(types.UnlockHook)
	return c
}

// IsPolling reports whether the capabilities describe a polling-style backend.
func (c Capabilities) IsPolling() bool {
	return c.Update && !c.Lock && !c.Unlock
}

// IsLocking reports whether the capabilities describe a lock-style backend.
func (c Capabilities) IsLocking() bool {
	return !c.Update && c.Lock && c.Unlock
}

// Validate checks that the driver type is complete and that its backend
// implements exactly one concurrency contract: either Update, or both Lock
// and Unlock.
func Validate(t *types.DriverType) error {
	if t == nil {
		return fmt.Errorf("driver type is nil: %w", types.ErrInvalidDriverType)
	}
	if t.Name == "" {
		return fmt.Errorf("driver type has no name: %w", types.ErrInvalidDriverType)
	}
	if t.NewBackend == nil {
		return fmt.Errorf("driver type '%s' has no backend constructor: %w", t.Name, types.ErrInvalidDriverType)
	}
	backend := t.NewBackend()
	if backend == nil {
		return fmt.Errorf("driver type '%s' constructed a nil backend: %w", t.Name, types.ErrInvalidDriverType)
	}

	c := CapabilitiesOf(backend)
	if c.IsPolling() == c.IsLocking() {
		return fmt.Errorf(
			"driver type '%s' (%T) implements neither exactly Update nor exactly Lock+Unlock (update:%v lock:%v unlock:%v): %w",
			t.Name, backend, c.Update, c.Lock, c.Unlock, types.ErrInvalidDriverType,
		)
	}
	return nil
}
