package deliverythread

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

var errAborted = errors.New("aborted")

// Backend delivers the buffers filled by the host callback to a native
// output on a dedicated worker goroutine.
//
// Use it through PollingBackend or LockingBackend, which add the host-facing
// hooks of the respective concurrency contract.
type Backend struct {
	Config Config

	inst           types.Instance
	driverTypeName string
	output         types.NativeOutput
	format         types.Format
	buffer         []int16

	// locker guards buffer and the fill callback invocation window.
	locker sync.Mutex

	abort      atomic.Bool
	cancelFunc context.CancelFunc
	done       chan struct{}

	stateLocker sync.Mutex
	state       State
	latchedErr  error

	fillCalls      atomic.Uint64
	samplesWritten atomic.Uint64
	recoveries     atomic.Uint64
}

func newBackend(cfg Config) *Backend {
	return &Backend{
		Config: cfg.withDefaults(),
	}
}

// Stats is a snapshot of the worker counters.
type Stats struct {
	FillCalls      uint64
	SamplesWritten uint64
	Recoveries     uint64
}

func (b *Backend) Stats() Stats {
	return Stats{
		FillCalls:      b.fillCalls.Load(),
		SamplesWritten: b.samplesWritten.Load(),
		Recoveries:     b.recoveries.Load(),
	}
}

func (b *Backend) State() State {
	b.stateLocker.Lock()
	defer b.stateLocker.Unlock()
	return b.state
}

// Format returns the negotiated format.
func (b *Backend) Format() types.Format {
	return b.format
}

// BufferSamples returns the sample capacity passed to the fill callback.
func (b *Backend) BufferSamples() int {
	b.locker.Lock()
	defer b.locker.Unlock()
	return len(b.buffer)
}

// Init opens the device, negotiates the format, writes the result back to
// the delegate and starts the worker.
func (b *Backend) Init(
	ctx context.Context,
	inst types.Instance,
) (_err error) {
	logger.Debugf(ctx, "Init")
	defer func() { logger.Debugf(ctx, "/Init: %v", _err) }()

	if b.Config.Service == nil {
		return fmt.Errorf("no native service is configured")
	}
	delegate := inst.Delegate()
	if delegate.Fill == nil {
		return fmt.Errorf("no fill callback is set")
	}
	b.inst = inst
	if t := inst.Type(); t != nil {
		b.driverTypeName = t.Name
	}

	want := delegate.Format()
	output, err := b.Config.Service.Open(ctx, delegate.Device, want)
	if err != nil {
		return fmt.Errorf("unable to open device '%s': %w", delegate.Device, err)
	}

	format, err := output.Negotiate(ctx, want)
	if err == nil && (format.SampleRate == 0 || format.Channels == 0) {
		err = fmt.Errorf("the device negotiated an invalid format %s", format)
	}
	if err != nil {
		if closeErr := output.Close(); closeErr != nil {
			logger.Errorf(ctx, "unable to close the device: %v", closeErr)
		}
		return fmt.Errorf("unable to negotiate format %s: %w", want, err)
	}
	if format != want {
		logger.Debugf(ctx, "the device renegotiated the format %s -> %s", want, format)
	}
	delegate.SampleRate = format.SampleRate
	delegate.Channels = format.Channels

	b.output = output
	b.format = format
	b.buffer = make([]int16, b.Config.BufferSamples(format))
	logger.Debugf(ctx, "buffer: %d samples (%v)", len(b.buffer), format.Duration(len(b.buffer)))

	// the worker lives until Del, not until the caller's context ends
	workerCtx, cancelFunc := context.WithCancel(context.WithoutCancel(ctx))
	b.cancelFunc = cancelFunc
	b.done = make(chan struct{})

	b.stateLocker.Lock()
	b.state = StateRunning
	b.stateLocker.Unlock()

	observability.Go(workerCtx, func() {
		defer close(b.done)
		defer b.setState(StateStopped)
		b.deliveryLoop(workerCtx)
	})
	return nil
}

func (b *Backend) setState(state State) {
	b.stateLocker.Lock()
	defer b.stateLocker.Unlock()
	b.state = state
}

func (b *Backend) isAborted(ctx context.Context) bool {
	return b.abort.Load() || ctx.Err() != nil
}

func (b *Backend) latch(ctx context.Context, err error) {
	logger.Errorf(ctx, "the delivery worker of '%s' stopped: %v", b.driverTypeName, err)
	add(ctx, getInstruments(ctx).latchedErrors, 1, b.driverTypeName)

	b.stateLocker.Lock()
	defer b.stateLocker.Unlock()
	if b.latchedErr == nil {
		b.latchedErr = err
	}
}

// consumeLatchedError returns the latched error and clears it.
func (b *Backend) consumeLatchedError() error {
	b.stateLocker.Lock()
	defer b.stateLocker.Unlock()
	err := b.latchedErr
	b.latchedErr = nil
	return err
}

func (b *Backend) deliveryLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "deliveryLoop")
	defer func() { logger.Debugf(ctx, "/deliveryLoop: %v", _ret) }()

	for {
		if b.isAborted(ctx) {
			return nil
		}

		b.locker.Lock()
		err := b.fill(ctx)
		b.locker.Unlock()
		if err != nil {
			err = fmt.Errorf("%w: %w", types.ErrFill, err)
			b.latch(ctx, err)
			return err
		}

		if b.isAborted(ctx) {
			return nil
		}

		err = b.writeAll(ctx)
		switch {
		case err == nil:
		case b.isAborted(ctx):
			return nil
		default:
			b.latch(ctx, err)
			return err
		}
	}
}

func (b *Backend) fill(ctx context.Context) (_err error) {
	defer func() {
		if r := recover(); r != nil {
			_err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	b.fillCalls.Add(1)
	add(ctx, getInstruments(ctx).fillCalls, 1, b.driverTypeName)
	return b.inst.Delegate().Fill(b.inst, b.buffer)
}

// writeAll plays the whole buffer, resuming partial writes from the
// unwritten offset. A recoverable error gets one recovery attempt; if the
// device fails again before accepting any frame, the error is final.
func (b *Backend) writeAll(ctx context.Context) error {
	channels := int(b.format.Channels)
	buf := b.buffer
	recovered := false
	for len(buf) > 0 {
		if b.isAborted(ctx) {
			return errAborted
		}

		logger.Tracef(ctx, "Write")
		frames, err := b.output.Write(ctx, buf)
		logger.Tracef(ctx, "/Write: %d %v", frames, err)
		if frames > 0 {
			written := frames * channels
			if written > len(buf) {
				written = len(buf)
			}
			buf = buf[written:]
			recovered = false
			b.samplesWritten.Add(uint64(written))
			add(ctx, getInstruments(ctx).samplesWritten, int64(written), b.driverTypeName)
		}
		if err == nil {
			if frames <= 0 {
				return fmt.Errorf("the device accepted no frames")
			}
			continue
		}
		if b.isAborted(ctx) {
			return errAborted
		}
		if !types.IsRecoverable(err) || recovered {
			return fmt.Errorf("unable to write to the device: %w", err)
		}

		logger.Debugf(ctx, "recovering the device after: %v", err)
		if recoverErr := b.output.Recover(ctx, err); recoverErr != nil {
			return fmt.Errorf("unable to recover the device after '%v': %w", err, recoverErr)
		}
		recovered = true
		b.recoveries.Add(1)
		add(ctx, getInstruments(ctx).recoveries, 1, b.driverTypeName)
	}
	return nil
}

// Del stops the worker and only then releases the device and the buffer.
//
// Del waits for the worker, so it must not be called from the fill
// callback: releasing the last reference of the driver from inside Fill
// deadlocks.
func (b *Backend) Del(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "Del")
	defer func() { logger.Debugf(ctx, "/Del: %v", _err) }()

	b.stateLocker.Lock()
	state := b.state
	if state == StateRunning {
		b.state = StateAborting
	}
	b.stateLocker.Unlock()

	if state == StateUnstarted {
		return nil
	}

	b.abort.Store(true)
	b.cancelFunc()
	// if the worker already stopped on a latched error, done is closed
	<-b.done
	b.setState(StateStopped)

	var err error
	if b.output != nil {
		if closeErr := b.output.Close(); closeErr != nil {
			err = fmt.Errorf("unable to close the device: %w", closeErr)
		}
	}
	b.locker.Lock()
	b.output = nil
	b.buffer = nil
	b.locker.Unlock()
	return err
}
