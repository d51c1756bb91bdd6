// Package pullbridge turns blocking sample writes into an io.Reader for
// audio sinks that pull data on their own schedule (oto, PulseAudio).
package pullbridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/smallnest/ringbuffer"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// Bridge is a bounded queue of little-endian s16 frames. Writers block while
// it is full; the reader never blocks and pads missing data with silence,
// which is reported to the next writer as types.ErrUnderrun.
type Bridge struct {
	locker    sync.Mutex
	cond      *sync.Cond
	ring      *ringbuffer.RingBuffer
	frameSize int
	scratch   []byte

	started   bool
	closed    bool
	underrun  bool
	underruns uint64
}

var _ io.Reader = (*Bridge)(nil)

// New creates a bridge holding up to capacityFrames frames.
func New(channels types.Channel, capacityFrames int) *Bridge {
	if channels == 0 {
		channels = 1
	}
	if capacityFrames <= 0 {
		capacityFrames = 1
	}
	frameSize := int(channels) * types.BytesPerSample
	b := &Bridge{
		ring:      ringbuffer.New(frameSize * capacityFrames),
		frameSize: frameSize,
	}
	b.cond = sync.NewCond(&b.locker)
	return b
}

// Write queues whole frames of samples and returns how many frames were
// queued. It blocks until there is room for at least one frame, the bridge
// is closed or ctx is done.
func (b *Bridge) Write(ctx context.Context, samples []int16) (int, error) {
	channels := b.frameSize / types.BytesPerSample
	totalFrames := len(samples) / channels
	if totalFrames == 0 {
		return 0, nil
	}

	stop := context.AfterFunc(ctx, func() {
		b.locker.Lock()
		defer b.locker.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	b.locker.Lock()
	defer b.locker.Unlock()
	b.started = true
	if b.underrun {
		b.underrun = false
		return 0, types.ErrUnderrun
	}
	for !b.closed && ctx.Err() == nil && b.ring.Free() < b.frameSize {
		b.cond.Wait()
	}
	switch {
	case b.closed:
		return 0, io.ErrClosedPipe
	case ctx.Err() != nil:
		return 0, ctx.Err()
	}

	frames := b.ring.Free() / b.frameSize
	if frames > totalFrames {
		frames = totalFrames
	}
	size := frames * b.frameSize
	if cap(b.scratch) < size {
		b.scratch = make([]byte, size)
	}
	buf := b.scratch[:size]
	for idx := 0; idx < frames*channels; idx++ {
		binary.LittleEndian.PutUint16(buf[idx*types.BytesPerSample:], uint16(samples[idx]))
	}
	n, err := b.ring.Write(buf)
	if err != nil {
		return n / b.frameSize, fmt.Errorf("unable to queue %d bytes: %w", len(buf), err)
	}
	b.cond.Broadcast()
	return frames, nil
}

// Read fills p with queued data and pads the rest with silence. After Close
// it returns io.EOF once the queue is drained.
func (b *Bridge) Read(p []byte) (int, error) {
	b.locker.Lock()
	defer b.locker.Unlock()

	available := b.ring.Length()
	if b.closed && available == 0 {
		return 0, io.EOF
	}

	n := len(p)
	if n > available {
		n = available
	}
	if n > 0 {
		var err error
		n, err = b.ring.Read(p[:n])
		if err != nil {
			return n, fmt.Errorf("unable to read the queue: %w", err)
		}
		b.cond.Broadcast()
	}
	if n < len(p) {
		clear(p[n:])
		if b.started && !b.closed {
			b.underrun = true
			b.underruns++
		}
	}
	return len(p), nil
}

// Underruns returns how many times the reader found the queue short.
func (b *Bridge) Underruns() uint64 {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.underruns
}

// Buffered returns the amount of queued frames.
func (b *Bridge) Buffered() int {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.ring.Length() / b.frameSize
}

// Reset drops the queued data and the pending underrun.
func (b *Bridge) Reset() {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.ring.Reset()
	b.underrun = false
	b.cond.Broadcast()
}

// Close unblocks writers; the reader drains what is left.
func (b *Bridge) Close() error {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.closed = true
	b.cond.Broadcast()
	return nil
}
