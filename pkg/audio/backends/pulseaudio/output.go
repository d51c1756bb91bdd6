package pulseaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/pulse"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/pullbridge"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

type Output struct {
	ctx    context.Context
	client *pulse.Client
	sink   *pulse.Sink
	bridge *pullbridge.Bridge
	stream *pulse.PlaybackStream
}

var _ types.NativeOutput = (*Output)(nil)

func newOutput(
	ctx context.Context,
	client *pulse.Client,
	sink *pulse.Sink,
) *Output {
	return &Output{
		ctx:    ctx,
		client: client,
		sink:   sink,
	}
}

func (o *Output) Negotiate(
	ctx context.Context,
	want types.Format,
) (types.Format, error) {
	chanMap, channels := channelMap(want.Channels)
	format := types.Format{
		SampleRate: want.SampleRate,
		Channels:   channels,
	}

	bufferFrames := int(BufferSize.Seconds() * float64(format.SampleRate))
	o.bridge = pullbridge.New(format.Channels, bufferFrames)
	stream, err := o.client.NewPlayback(
		pulseReader{Bridge: o.bridge},
		pulse.PlaybackLatency(BufferSize.Seconds()),
		pulse.PlaybackSampleRate(int(format.SampleRate)),
		pulse.PlaybackChannels(chanMap),
		pulse.PlaybackSink(o.sink),
	)
	if err != nil {
		return types.Format{}, fmt.Errorf("unable to initialize a playback: %w", err)
	}

	stream.Start()
	if stream.Error() != nil {
		stream.Close()
		return types.Format{}, fmt.Errorf("an error occurred during playback: %w", stream.Error())
	}
	o.stream = stream
	logger.Debugf(ctx, "playing %s to sink %s", format, o.sink.ID())
	return format, nil
}

func (o *Output) Write(
	ctx context.Context,
	samples []int16,
) (int, error) {
	if err := o.stream.Error(); err != nil {
		return 0, fmt.Errorf("an error occurred during playback: %w", err)
	}
	return o.bridge.Write(ctx, samples)
}

// Recover restarts the stream if the server stopped it after an underflow.
func (o *Output) Recover(ctx context.Context, err error) error {
	logger.Debugf(ctx, "recovering after %v (underflow: %v)", err, o.stream.Underflow())
	if streamErr := o.stream.Error(); streamErr != nil {
		return fmt.Errorf("the stream failed: %w", streamErr)
	}
	if !o.stream.Running() {
		o.stream.Start()
	}
	return nil
}

func (o *Output) Close() (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("got a panic: %v", r)
		}
	}()
	if o.bridge != nil {
		o.bridge.Close()
	}
	if o.stream != nil {
		o.stream.Stop()
		o.stream.Close()
	}
	o.client.Close()
	return
}
