package audio

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const MaxRefCount = math.MaxInt32

// Driver is a reference-counted driver instance bound to a delegate.
type Driver struct {
	id       uuid.UUID
	typ      *types.DriverType
	delegate types.Delegate
	backend  types.Backend
	slot     *singletonSlot

	locker   sync.Mutex
	refCount int
}

var _ types.Instance = (*Driver)(nil)

// New constructs a driver of the given type. If driverType is nil, the
// default driver type (index 0 of the default registry) is used.
//
// The backend may start calling delegate.Fill before New returns.
func New(
	ctx context.Context,
	driverType *types.DriverType,
	delegate *types.Delegate,
) (_ret *Driver, _err error) {
	if driverType == nil {
		driverType = registry.Default().ByIndex(0)
		if driverType == nil {
			return nil, types.ErrNoDriverType
		}
	}
	logger.Debugf(ctx, "New(%s)", driverType.Name)
	defer func() { logger.Debugf(ctx, "/New(%s): %v", driverType.Name, _err) }()

	if err := registry.Validate(driverType); err != nil {
		return nil, fmt.Errorf("unable to use driver type '%s': %w", driverType.Name, err)
	}

	d := &Driver{
		id:       uuid.New(),
		typ:      driverType,
		refCount: 1,
	}
	if driverType.Singleton {
		slot, err := claimSingleton(driverType, d.id)
		if err != nil {
			return nil, fmt.Errorf("unable to construct driver '%s': %w", driverType.Name, err)
		}
		d.slot = slot
	}
	if delegate != nil {
		d.delegate = *delegate
	}
	d.delegate.ApplyDefaults()
	d.backend = driverType.NewBackend()

	if initer, ok := d.backend.(types.Initer); ok {
		if err := initer.Init(ctx, d); err != nil {
			d.locker.Lock()
			d.refCount = 0
			d.locker.Unlock()
			if delErr := d.teardown(ctx); delErr != nil {
				logger.Errorf(ctx, "unable to tear down driver '%s' after a failed initialization: %v", driverType.Name, delErr)
			}
			return nil, fmt.Errorf("unable to initialize driver '%s': %w", driverType.Name, err)
		}
	}

	logger.Debugf(ctx, "driver %s '%s' is ready: %s", d.id, driverType.Name, d.delegate.Format())
	return d, nil
}

// NewFromRegistry constructs a driver of the type with the given name. An
// empty name selects the default type of the registry.
func NewFromRegistry(
	ctx context.Context,
	reg *registry.Registry,
	name string,
	delegate *types.Delegate,
) (*Driver, error) {
	var driverType *types.DriverType
	if name == "" {
		driverType = reg.ByIndex(0)
	} else {
		driverType = reg.ByName(name)
	}
	if driverType == nil {
		return nil, fmt.Errorf("driver type '%s' is not found: %w", name, types.ErrNoDriverType)
	}
	return New(ctx, driverType, delegate)
}

func (d *Driver) ID() uuid.UUID {
	return d.id
}

func (d *Driver) Type() *types.DriverType {
	return d.typ
}

// Delegate returns the effective delegate. The backend writes the negotiated
// rate and channel count back into it during initialization.
func (d *Driver) Delegate() *types.Delegate {
	return &d.delegate
}

// Backend returns the backend state, mostly for diagnostics.
func (d *Driver) Backend() types.Backend {
	return d.backend
}

func (d *Driver) RefCount() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.refCount
}

// Retain adds a reference. It fails without changing anything if the driver
// is already released or the count would overflow.
func (d *Driver) Retain() error {
	if d == nil {
		return types.ErrNilDriver
	}
	d.locker.Lock()
	defer d.locker.Unlock()
	switch {
	case d.refCount == 0:
		return types.ErrReleased
	case d.refCount >= MaxRefCount:
		return types.ErrRefCountOverflow
	}
	d.refCount++
	return nil
}

// Release drops a reference. Dropping the last one stops the backend (waiting
// for its worker, if any) and frees the instance.
//
// Do not drop the last reference from inside the fill callback: the
// teardown waits for the goroutine that runs the callback.
func (d *Driver) Release(ctx context.Context) error {
	if d == nil {
		return nil
	}
	d.locker.Lock()
	if d.refCount == 0 {
		d.locker.Unlock()
		return types.ErrReleased
	}
	d.refCount--
	if d.refCount > 0 {
		d.locker.Unlock()
		return nil
	}
	d.locker.Unlock()
	return d.teardown(ctx)
}

func (d *Driver) teardown(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "teardown(%s)", d.id)
	defer func() { logger.Debugf(ctx, "/teardown(%s): %v", d.id, _err) }()

	var err error
	if deleter, ok := d.backend.(types.Deleter); ok {
		if delErr := deleter.Del(ctx); delErr != nil {
			err = fmt.Errorf("unable to delete the backend of driver '%s': %w", d.typ.Name, delErr)
		}
	}
	if d.slot != nil {
		d.slot.reset()
	}
	return err
}

func (d *Driver) isReleased() bool {
	d.locker.Lock()
	defer d.locker.Unlock()
	return d.refCount == 0
}

// Update polls a polling-style backend. It returns the error the backend
// latched since the previous call, if any, exactly once.
func (d *Driver) Update(ctx context.Context) error {
	if d == nil {
		return types.ErrNilDriver
	}
	if d.isReleased() {
		return types.ErrReleased
	}
	updater, ok := d.backend.(types.Updater)
	if !ok {
		return nil
	}
	return updater.Update(ctx)
}

// Lock prevents the backend from invoking the fill callback until Unlock.
// It is a no-op for polling-style backends.
func (d *Driver) Lock(ctx context.Context) error {
	if d == nil {
		return types.ErrNilDriver
	}
	if d.isReleased() {
		return types.ErrReleased
	}
	locker, ok := d.backend.(types.LockHook)
	if !ok {
		return nil
	}
	return locker.Lock(ctx)
}

func (d *Driver) Unlock(ctx context.Context) error {
	if d == nil {
		return types.ErrNilDriver
	}
	if d.isReleased() {
		return types.ErrReleased
	}
	unlocker, ok := d.backend.(types.UnlockHook)
	if !ok {
		return nil
	}
	return unlocker.Unlock(ctx)
}

func (d *Driver) String() string {
	return fmt.Sprintf("%s(%s)", d.typ.Name, d.id)
}
