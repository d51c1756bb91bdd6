package portaudio

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// Output is a blocking PortAudio stream. The stream is (re)opened on the
// first write of a given buffer size, because PortAudio binds the buffer at
// open time.
type Output struct {
	ctx    context.Context
	device *portaudio.DeviceInfo
	params portaudio.StreamParameters
	format types.Format
	stream *portaudio.Stream
	buffer []int16
}

var _ types.NativeOutput = (*Output)(nil)

func newOutput(ctx context.Context, device *portaudio.DeviceInfo) *Output {
	return &Output{
		ctx:    ctx,
		device: device,
	}
}

func (o *Output) Negotiate(
	ctx context.Context,
	want types.Format,
) (types.Format, error) {
	format := want
	if maxChannels := types.Channel(o.device.MaxOutputChannels); format.Channels > maxChannels {
		format.Channels = maxChannels
	}

	params := portaudio.HighLatencyParameters(nil, o.device)
	params.Output.Channels = int(format.Channels)
	params.SampleRate = float64(format.SampleRate)
	if err := portaudio.IsFormatSupported(params, []int16{}); err != nil {
		logger.Debugf(ctx, "%s is not supported (%v), falling back to the device default rate %v", format, err, o.device.DefaultSampleRate)
		format.SampleRate = types.SampleRate(o.device.DefaultSampleRate)
		params.SampleRate = o.device.DefaultSampleRate
		if err := portaudio.IsFormatSupported(params, []int16{}); err != nil {
			return types.Format{}, fmt.Errorf("the device supports neither %s nor its default rate: %w", want, err)
		}
	}

	o.params = params
	o.format = format
	return format, nil
}

func (o *Output) openStream(frames int) error {
	if o.stream != nil {
		if err := o.closeStream(); err != nil {
			return err
		}
	}

	o.buffer = make([]int16, frames*int(o.format.Channels))
	params := o.params
	params.FramesPerBuffer = frames
	stream, err := portaudio.OpenStream(params, &o.buffer)
	if err != nil {
		return fmt.Errorf("unable to open a stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("unable to start the stream: %w", err)
	}
	o.stream = stream
	return nil
}

func (o *Output) closeStream() error {
	stream := o.stream
	o.stream = nil
	if err := stream.Abort(); err != nil {
		logger.Debugf(o.ctx, "unable to abort the stream: %v", err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("unable to close the stream: %w", err)
	}
	return nil
}

func (o *Output) Write(
	ctx context.Context,
	samples []int16,
) (int, error) {
	channels := int(o.format.Channels)
	frames := len(samples) / channels
	if o.stream == nil || len(o.buffer) != frames*channels {
		if err := o.openStream(frames); err != nil {
			return 0, err
		}
	}

	copy(o.buffer, samples)
	logger.Tracef(ctx, "Write")
	err := o.stream.Write()
	logger.Tracef(ctx, "/Write: %v", err)
	switch {
	case err == nil:
		return frames, nil
	case errors.Is(err, portaudio.OutputUnderflowed):
		// the frames were queued anyway
		return frames, fmt.Errorf("%w: %w", types.ErrUnderrun, err)
	default:
		return 0, fmt.Errorf("unable to write: %w", err)
	}
}

// Recover does nothing for an underflow: the stream keeps running and the
// next write refills it. Anything else restarts the stream.
func (o *Output) Recover(ctx context.Context, err error) error {
	if o.stream == nil || errors.Is(err, portaudio.OutputUnderflowed) {
		return nil
	}
	logger.Debugf(ctx, "restarting the stream after: %v", err)
	if stopErr := o.stream.Stop(); stopErr != nil {
		logger.Debugf(ctx, "unable to stop the stream: %v", stopErr)
	}
	return o.stream.Start()
}

func (o *Output) Close() error {
	defer portaudio.Terminate()
	if o.stream == nil {
		return nil
	}
	return o.closeStream()
}
