package rawpcm

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/backends/internal/pacer"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const Stdout = "-"

type Service struct {
	Realtime bool

	// Writer, if set, is used instead of opening the device path.
	Writer io.Writer
}

var _ types.NativeService = Service{}

func (s Service) Open(
	ctx context.Context,
	device string,
	_ types.Format,
) (types.NativeOutput, error) {
	o := &Output{
		ctx:      ctx,
		realtime: s.Realtime,
	}
	switch {
	case s.Writer != nil:
		o.writer = s.Writer
	case device == "" || device == "default" || device == Stdout:
		o.writer = os.Stdout
	default:
		f, err := os.Create(device)
		if err != nil {
			return nil, fmt.Errorf("unable to create file '%s': %w", device, err)
		}
		o.writer = f
		o.closer = f
	}
	o.counter = datacounter.NewWriterCounter(o.writer)
	return o, nil
}

type Output struct {
	ctx      context.Context
	realtime bool
	writer   io.Writer
	closer   io.Closer
	counter  *datacounter.WriterCounter
	format   types.Format
	pacer    *pacer.Pacer
	bytes    []byte
}

var _ types.NativeOutput = (*Output)(nil)

func (o *Output) Negotiate(_ context.Context, want types.Format) (types.Format, error) {
	o.format = want
	if o.realtime {
		o.pacer = pacer.New(want)
	}
	return want, nil
}

func (o *Output) Write(ctx context.Context, samples []int16) (int, error) {
	channels := int(o.format.Channels)
	frames := len(samples) / channels
	samples = samples[:frames*channels]

	size := len(samples) * types.BytesPerSample
	if cap(o.bytes) < size {
		o.bytes = make([]byte, size)
	}
	buf := o.bytes[:size]
	for idx, sample := range samples {
		binary.NativeEndian.PutUint16(buf[idx*types.BytesPerSample:], uint16(sample))
	}

	n, err := o.counter.Write(buf)
	frames = n / (types.BytesPerSample * channels)
	if err != nil {
		return frames, fmt.Errorf("unable to write: %w", err)
	}

	if o.pacer != nil {
		if err := o.pacer.Wait(ctx, frames); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

func (*Output) Recover(_ context.Context, err error) error {
	return fmt.Errorf("a stream does not recover from '%w'", err)
}

// BytesWritten returns the amount of bytes written so far.
func (o *Output) BytesWritten() uint64 {
	return o.counter.Count()
}

func (o *Output) Close() error {
	logger.Debugf(o.ctx, "written %d bytes", o.counter.Count())
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}
