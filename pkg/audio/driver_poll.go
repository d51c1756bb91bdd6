package audio

import (
	"context"
	"time"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// Check surfaces an error latched by the backend, whatever concurrency
// contract it implements: polling-style backends are updated, lock-style
// backends are locked and unlocked.
func (d *Driver) Check(ctx context.Context) error {
	if d == nil {
		return types.ErrNilDriver
	}
	if _, ok := d.backend.(types.Updater); ok {
		return d.Update(ctx)
	}
	if err := d.Lock(ctx); err != nil {
		return err
	}
	return d.Unlock(ctx)
}

// Poll calls Check every interval until ctx is done or an error surfaces.
// It returns nil if ctx ended without an error.
func (d *Driver) Poll(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := d.Check(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}
