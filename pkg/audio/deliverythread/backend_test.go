package deliverythread_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/pcmdriver/pkg/audio"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/backends/mock"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const (
	waitFor = 5 * time.Second
	tick    = time.Millisecond
)

func newDriverType(name string, style deliverythread.Style, svc *mock.Service) *types.DriverType {
	return deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
		Name:  name,
		Style: style,
		Config: deliverythread.Config{
			Service:    svc,
			MinSamples: 64,
			MaxSamples: 64,
		},
	})
}

func silence(types.Instance, []int16) error {
	return nil
}

func pollingBackend(t *testing.T, d *audio.Driver) *deliverythread.PollingBackend {
	b, ok := d.Backend().(*deliverythread.PollingBackend)
	require.True(t, ok, "%T", d.Backend())
	return b
}

func lockingBackend(t *testing.T, d *audio.Driver) *deliverythread.LockingBackend {
	b, ok := d.Backend().(*deliverythread.LockingBackend)
	require.True(t, ok, "%T", d.Backend())
	return b
}

func TestRenegotiation(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	svc.Negotiated = &types.Format{SampleRate: 44100, Channels: 1}

	var (
		fillLocker sync.Mutex
		bufLens    []int
	)
	d, err := audio.New(ctx, newDriverType("renegotiation", deliverythread.StylePolling, svc), &types.Delegate{
		SampleRate: 48000,
		Channels:   2,
		Device:     "default",
		Fill: func(inst types.Instance, buf []int16) error {
			fillLocker.Lock()
			defer fillLocker.Unlock()
			bufLens = append(bufLens, len(buf))
			return nil
		},
	})
	require.NoError(t, err)

	require.Equal(t, types.SampleRate(44100), d.Delegate().SampleRate)
	require.Equal(t, types.Channel(1), d.Delegate().Channels)
	b := pollingBackend(t, d)
	require.Equal(t, types.Format{SampleRate: 44100, Channels: 1}, b.Format())
	require.Equal(t, deliverythread.StateRunning, b.State())

	outputs := svc.Outputs()
	require.Len(t, outputs, 1)
	require.Equal(t, "default", outputs[0].Device)

	require.Eventually(t, func() bool { return b.Stats().FillCalls > 2 }, waitFor, tick)
	require.NoError(t, d.Release(ctx))
	require.Equal(t, deliverythread.StateStopped, b.State())
	require.Zero(t, b.BufferSamples(), "the buffer must be released")
	require.True(t, outputs[0].Closed())

	fillLocker.Lock()
	defer fillLocker.Unlock()
	for _, l := range bufLens {
		require.Equal(t, 64, l)
	}
}

func TestTeardownOrdering(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	svc.WriteDelay = 5 * time.Millisecond
	events := svc.Events

	d, err := audio.New(ctx, newDriverType("teardown", deliverythread.StylePolling, svc), &types.Delegate{
		SampleRate: 8000,
		Channels:   1,
		Fill: func(inst types.Instance, buf []int16) error {
			events.Add(mock.Event{Kind: mock.EventFillBegin, Samples: len(buf)})
			time.Sleep(time.Millisecond)
			events.Add(mock.Event{Kind: mock.EventFillEnd, Samples: len(buf)})
			return nil
		},
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return events.Count(mock.EventWriteEnd) >= 3 }, waitFor, tick)
	require.NoError(t, d.Release(ctx))

	log := events.Events()
	closeIdx := events.IndexOf(mock.EventClose)
	require.Equal(t, len(log)-1, closeIdx, "the device must be closed last: %v", log)
	require.Equal(t, 1, events.Count(mock.EventClose))

	// every started fill or write has finished before the close
	require.Equal(t, events.Count(mock.EventFillBegin), events.Count(mock.EventFillEnd))
	require.Equal(t, events.Count(mock.EventWriteBegin), events.Count(mock.EventWriteEnd))
	for _, ev := range log {
		if ev.Kind == mock.EventWriteEnd && ev.Err != nil {
			require.ErrorIs(t, ev.Err, context.Canceled, "only the aborted write may fail")
		}
	}
	require.ErrorIs(t, d.Update(ctx), types.ErrReleased)
}

func TestLockExcludesFill(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	svc.WriteDelay = time.Millisecond

	var (
		fills  atomic.Int64
		inFill atomic.Bool
	)
	d, err := audio.New(ctx, newDriverType("locking", deliverythread.StyleLocking, svc), &types.Delegate{
		Fill: func(inst types.Instance, buf []int16) error {
			inFill.Store(true)
			defer inFill.Store(false)
			fills.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		},
	})
	require.NoError(t, err)
	defer d.Release(ctx)
	_ = lockingBackend(t, d)

	require.Eventually(t, func() bool { return fills.Load() > 0 }, waitFor, tick)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Lock(ctx))
		require.False(t, inFill.Load(), "the fill callback runs while the host holds the lock")
		n := fills.Load()
		time.Sleep(20 * time.Millisecond)
		require.Equal(t, n, fills.Load(), "a fill began while the host held the lock")
		require.NoError(t, d.Unlock(ctx))
		require.Eventually(t, func() bool { return fills.Load() > n }, waitFor, tick)
	}

	require.Error(t, d.Unlock(ctx), "unlocking an unlocked driver must fail")
}

func TestLockSurfacesLatchedError(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	writeErr := errors.New("device is gone")
	svc.Write = func(call int, samples []int16) (int, error) {
		return 0, writeErr
	}

	d, err := audio.New(ctx, newDriverType("locking-error", deliverythread.StyleLocking, svc), &types.Delegate{Fill: silence})
	require.NoError(t, err)
	b := lockingBackend(t, d)
	require.Eventually(t, func() bool { return b.State() == deliverythread.StateStopped }, waitFor, tick)

	require.ErrorIs(t, d.Lock(ctx), writeErr)
	require.NoError(t, d.Lock(ctx), "the error must be reported once")
	require.NoError(t, d.Unlock(ctx))
	require.NoError(t, d.Release(ctx))
}

func TestUpdateReportsLatchedErrorOnce(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	writeErr := errors.New("device is gone")
	svc.Write = func(call int, samples []int16) (int, error) {
		if call < 2 {
			return len(samples), nil
		}
		return 0, writeErr
	}

	d, err := audio.New(ctx, newDriverType("polling-error", deliverythread.StylePolling, svc), &types.Delegate{Fill: silence})
	require.NoError(t, err)
	b := pollingBackend(t, d)
	require.Eventually(t, func() bool { return b.State() == deliverythread.StateStopped }, waitFor, tick)

	err = d.Update(ctx)
	require.ErrorIs(t, err, writeErr)
	require.NoError(t, d.Update(ctx))
	require.Zero(t, svc.Events.Count(mock.EventRecover), "a non-recoverable error must not be recovered")
	require.Equal(t, 3, svc.Events.Count(mock.EventWriteBegin), "the worker must stop after the error")

	// the instance stays intact for a clean teardown
	require.NoError(t, d.Release(ctx))
	require.True(t, svc.Outputs()[0].Closed())
}

func TestFillError(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	fillErr := errors.New("no more data")
	var calls atomic.Int64

	d, err := audio.New(ctx, newDriverType("fill-error", deliverythread.StylePolling, svc), &types.Delegate{
		Fill: func(types.Instance, []int16) error {
			if calls.Add(1) == 3 {
				return fillErr
			}
			return nil
		},
	})
	require.NoError(t, err)
	b := pollingBackend(t, d)
	require.Eventually(t, func() bool { return b.State() == deliverythread.StateStopped }, waitFor, tick)

	err = d.Update(ctx)
	require.ErrorIs(t, err, types.ErrFill)
	require.ErrorIs(t, err, fillErr)
	require.NoError(t, d.Update(ctx))
	require.Equal(t, int64(3), calls.Load(), "no automatic retry after a fill failure")
	require.Equal(t, 2, svc.Events.Count(mock.EventWriteBegin))
	require.NoError(t, d.Release(ctx))
}

func TestFillPanic(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()

	d, err := audio.New(ctx, newDriverType("fill-panic", deliverythread.StylePolling, svc), &types.Delegate{
		Fill: func(types.Instance, []int16) error {
			panic("oops")
		},
	})
	require.NoError(t, err)
	b := pollingBackend(t, d)
	require.Eventually(t, func() bool { return b.State() == deliverythread.StateStopped }, waitFor, tick)
	require.ErrorIs(t, d.Update(ctx), types.ErrFill)
	require.NoError(t, d.Release(ctx))
}

func TestRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("recovered", func(t *testing.T) {
		svc := mock.NewService()
		svc.Write = func(call int, samples []int16) (int, error) {
			if call == 1 {
				return 0, types.ErrUnderrun
			}
			return len(samples), nil
		}
		d, err := audio.New(ctx, newDriverType("recovered", deliverythread.StylePolling, svc), &types.Delegate{Fill: silence})
		require.NoError(t, err)
		b := pollingBackend(t, d)

		require.Eventually(t, func() bool { return svc.Events.Count(mock.EventWriteEnd) > 5 }, waitFor, tick)
		require.Equal(t, 1, svc.Events.Count(mock.EventRecover))
		require.Equal(t, uint64(1), b.Stats().Recoveries)
		require.Equal(t, deliverythread.StateRunning, b.State())
		require.NoError(t, d.Update(ctx))
		require.NoError(t, d.Release(ctx))
	})

	t.Run("recovery_failed", func(t *testing.T) {
		svc := mock.NewService()
		recoverErr := errors.New("unable to prepare")
		svc.RecoverError = recoverErr
		svc.Write = func(call int, samples []int16) (int, error) {
			return 0, types.ErrUnderrun
		}
		d, err := audio.New(ctx, newDriverType("recovery-failed", deliverythread.StylePolling, svc), &types.Delegate{Fill: silence})
		require.NoError(t, err)
		b := pollingBackend(t, d)
		require.Eventually(t, func() bool { return b.State() == deliverythread.StateStopped }, waitFor, tick)

		err = d.Update(ctx)
		require.ErrorIs(t, err, recoverErr)
		require.Equal(t, 1, svc.Events.Count(mock.EventRecover))
		require.NoError(t, d.Release(ctx))
	})

	t.Run("failed_again", func(t *testing.T) {
		svc := mock.NewService()
		svc.Write = func(call int, samples []int16) (int, error) {
			return 0, types.ErrUnderrun
		}
		d, err := audio.New(ctx, newDriverType("failed-again", deliverythread.StylePolling, svc), &types.Delegate{Fill: silence})
		require.NoError(t, err)
		b := pollingBackend(t, d)
		require.Eventually(t, func() bool { return b.State() == deliverythread.StateStopped }, waitFor, tick)

		require.ErrorIs(t, d.Update(ctx), types.ErrUnderrun)
		require.Equal(t, 1, svc.Events.Count(mock.EventRecover), "a transient error gets exactly one recovery")
		require.Equal(t, 2, svc.Events.Count(mock.EventWriteBegin))
		require.NoError(t, d.Release(ctx))
	})
}

func TestPartialWrites(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	svc.Write = func(call int, samples []int16) (int, error) {
		frames := len(samples) / 2
		if frames > 5 {
			frames = 5
		}
		return frames, nil
	}

	var next atomic.Int64
	d, err := audio.New(ctx, newDriverType("partial", deliverythread.StylePolling, svc), &types.Delegate{
		SampleRate: 8000,
		Channels:   2,
		Fill: func(inst types.Instance, buf []int16) error {
			for idx := range buf {
				buf[idx] = int16(next.Add(1))
			}
			return nil
		},
	})
	require.NoError(t, err)
	b := pollingBackend(t, d)
	require.Eventually(t, func() bool { return b.Stats().SamplesWritten >= 256 }, waitFor, tick)
	require.NoError(t, d.Release(ctx))

	written := svc.Outputs()[0].Written()
	require.NotEmpty(t, written)
	require.Zero(t, len(written)%2, "only whole frames are written")
	for idx, v := range written {
		if !assert.Equal(t, int16(idx+1), v, "sample #%d", idx) {
			break
		}
	}
}

func TestInitFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("negotiate", func(t *testing.T) {
		svc := mock.NewService()
		negotiateErr := errors.New("unsupported")
		svc.NegotiateError = negotiateErr
		typ := newDriverType("negotiate-failure", deliverythread.StylePolling, svc)
		typ.Singleton = true

		_, err := audio.New(ctx, typ, &types.Delegate{Fill: silence})
		require.ErrorIs(t, err, negotiateErr)
		require.Len(t, svc.Outputs(), 1)
		require.True(t, svc.Outputs()[0].Closed())

		// the singleton slot is free again
		svc.NegotiateError = nil
		d, err := audio.New(ctx, typ, &types.Delegate{Fill: silence})
		require.NoError(t, err)
		require.NoError(t, d.Release(ctx))
	})

	t.Run("open", func(t *testing.T) {
		svc := mock.NewService()
		svc.OpenError = errors.New("no such device")
		_, err := audio.New(ctx, newDriverType("open-failure", deliverythread.StyleLocking, svc), &types.Delegate{Fill: silence})
		require.ErrorIs(t, err, svc.OpenError)
		require.Empty(t, svc.Outputs())
	})

	t.Run("zero_format", func(t *testing.T) {
		svc := mock.NewService()
		svc.Negotiated = &types.Format{SampleRate: 0, Channels: 2}
		_, err := audio.New(ctx, newDriverType("zero-format", deliverythread.StylePolling, svc), &types.Delegate{Fill: silence})
		require.Error(t, err)
		require.True(t, svc.Outputs()[0].Closed())
	})

	t.Run("no_fill", func(t *testing.T) {
		svc := mock.NewService()
		_, err := audio.New(ctx, newDriverType("no-fill", deliverythread.StylePolling, svc), &types.Delegate{})
		require.Error(t, err)
		require.Empty(t, svc.Outputs())
	})
}

func TestBufferSamples(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cfg    deliverythread.Config
		format types.Format
		want   int
	}{
		{
			name:   "latency",
			cfg:    deliverythread.Config{TargetLatency: 50 * time.Millisecond},
			format: types.Format{SampleRate: 48000, Channels: 2},
			want:   4800,
		},
		{
			name:   "min",
			cfg:    deliverythread.Config{TargetLatency: 10 * time.Millisecond},
			format: types.Format{SampleRate: 8000, Channels: 1},
			want:   512,
		},
		{
			name:   "max_whole_frames",
			cfg:    deliverythread.Config{TargetLatency: time.Second, MinSamples: 1, MaxSamples: 1001},
			format: types.Format{SampleRate: 48000, Channels: 2},
			want:   1000,
		},
		{
			name:   "at_least_one_frame",
			cfg:    deliverythread.Config{TargetLatency: time.Millisecond, MinSamples: 1, MaxSamples: 1},
			format: types.Format{SampleRate: 8000, Channels: 2},
			want:   2,
		},
		{
			name:   "max_below_one_frame",
			cfg:    deliverythread.Config{TargetLatency: time.Second, MinSamples: 1, MaxSamples: 1},
			format: types.Format{SampleRate: 48000, Channels: 2},
			want:   2,
		},
		{
			name:   "min_above_max",
			cfg:    deliverythread.Config{TargetLatency: time.Millisecond, MinSamples: 3, MaxSamples: 1},
			format: types.Format{SampleRate: 8000, Channels: 2},
			want:   2,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.cfg.BufferSamples(tc.format))
		})
	}
}

func TestWithLatency(t *testing.T) {
	ctx := context.Background()
	svc := mock.NewService()
	base := newDriverType("latency", deliverythread.StylePolling, svc)
	derived := deliverythread.WithLatency(base, 200*time.Millisecond)
	require.NotSame(t, base, derived)
	require.Equal(t, base.Name, derived.Name)

	d, err := audio.New(ctx, derived, &types.Delegate{Fill: silence})
	require.NoError(t, err)
	defer d.Release(ctx)
	require.Equal(t, 200*time.Millisecond, pollingBackend(t, d).Config.TargetLatency)
}

func TestWithLatencyAutoSelection(t *testing.T) {
	ctx := context.Background()
	failing := mock.NewService()
	failing.OpenError = errors.New("busy")
	working := mock.NewService()

	reg, err := registry.New(
		deliverythread.WithLatency(deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
			Name:     "auto-failing",
			Priority: 10,
			Config:   deliverythread.Config{Service: failing},
		}), 120*time.Millisecond),
		deliverythread.WithLatency(deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
			Name:   "auto-working",
			Config: deliverythread.Config{Service: working},
		}), 120*time.Millisecond),
	)
	require.NoError(t, err)

	d, err := audio.NewAutoFromRegistry(ctx, reg, &types.Delegate{Fill: silence})
	require.NoError(t, err)
	defer d.Release(ctx)
	require.Equal(t, "auto-working", d.Type().Name)
	require.Equal(t, 120*time.Millisecond, pollingBackend(t, d).Config.TargetLatency)
	require.Len(t, working.Outputs(), 1)
}
