package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

var (
	lastSuccessfulDriverType       *types.DriverType
	lastSuccessfulDriverTypeLocker sync.Mutex
)

func getLastSuccessfulDriverType() *types.DriverType {
	lastSuccessfulDriverTypeLocker.Lock()
	defer lastSuccessfulDriverTypeLocker.Unlock()
	return lastSuccessfulDriverType
}

func setLastSuccessfulDriverType(t *types.DriverType) {
	lastSuccessfulDriverTypeLocker.Lock()
	defer lastSuccessfulDriverTypeLocker.Unlock()
	lastSuccessfulDriverType = t
}

// NewAuto constructs a driver of the first registered type that initializes
// successfully, trying the previously successful type first.
func NewAuto(
	ctx context.Context,
	delegate *types.Delegate,
) (*Driver, error) {
	return NewAutoFromRegistry(ctx, registry.Default(), delegate)
}

// NewAutoFromRegistry is NewAuto over the types of the given registry.
func NewAutoFromRegistry(
	ctx context.Context,
	reg *registry.Registry,
	delegate *types.Delegate,
) (*Driver, error) {
	var mErr *multierror.Error

	last := getLastSuccessfulDriverType()
	if last != nil && reg.ByName(last.Name) == last {
		d, err := New(ctx, last, delegate)
		if err == nil {
			return d, nil
		}
		logger.Debugf(ctx, "the previously successful driver type '%s' failed: %v", last.Name, err)
		mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize '%s': %w", last.Name, err))
	} else {
		last = nil
	}

	for _, driverType := range reg.Types() {
		if driverType == last {
			continue
		}
		d, err := New(ctx, driverType, delegate)
		logger.Debugf(ctx, "initializing driver '%s' result is %v", driverType.Name, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize '%s': %w", driverType.Name, err))
			continue
		}
		setLastSuccessfulDriverType(driverType)
		return d, nil
	}

	if mErr == nil {
		return nil, types.ErrNoDriverType
	}
	logger.Infof(ctx, "was unable to initialize any driver: %v", mErr.ErrorOrNil())
	return nil, fmt.Errorf("unable to initialize any driver: %w", mErr.ErrorOrNil())
}
