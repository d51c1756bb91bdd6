package oto

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/pullbridge"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const BufferSize = 100 * time.Millisecond

var (
	otoContextLocker sync.Mutex
	otoContext       *oto.Context
	otoReady         chan struct{}
	otoFormat        types.Format

	newOtoContext = oto.NewContext
)

// getOtoContext returns the process-wide oto context. Unfortunately, `oto`
// does not allow to initialize a context multiple times, so the format of
// the first call sticks, and the context is kept even if the caller stops
// waiting for it to become ready.
func getOtoContext(
	ctx context.Context,
	want types.Format,
) (*oto.Context, types.Format, error) {
	otoCtx, readyChan, format, err := initOtoContext(ctx, want)
	if err != nil {
		return nil, types.Format{}, err
	}
	select {
	case <-ctx.Done():
		return nil, types.Format{}, ctx.Err()
	case <-readyChan:
	}
	return otoCtx, format, nil
}

func initOtoContext(
	ctx context.Context,
	want types.Format,
) (*oto.Context, chan struct{}, types.Format, error) {
	otoContextLocker.Lock()
	defer otoContextLocker.Unlock()
	if otoReady != nil {
		return otoContext, otoReady, otoFormat, nil
	}

	format := want
	if format.Channels > 2 {
		format.Channels = 2
	}
	otoCtx, readyChan, err := newOtoContext(&oto.NewContextOptions{
		SampleRate:   int(format.SampleRate),
		ChannelCount: int(format.Channels),
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   BufferSize,
	})
	if err != nil {
		return nil, nil, types.Format{}, fmt.Errorf("unable to initialize an oto context: %w", err)
	}
	logger.Debugf(ctx, "initialized the oto context: %s", format)
	otoContext, otoReady, otoFormat = otoCtx, readyChan, format
	return otoContext, otoReady, otoFormat, nil
}

type Service struct{}

var _ types.NativeService = Service{}

func (Service) Open(
	ctx context.Context,
	device string,
	_ types.Format,
) (types.NativeOutput, error) {
	if device != "" && device != "default" {
		logger.Warnf(ctx, "oto cannot select device '%s', using the default one", device)
	}
	return &Output{}, nil
}

type Output struct {
	bridge *pullbridge.Bridge
	player *oto.Player
}

var _ types.NativeOutput = (*Output)(nil)

func (o *Output) Negotiate(
	ctx context.Context,
	want types.Format,
) (types.Format, error) {
	otoCtx, format, err := getOtoContext(ctx, want)
	if err != nil {
		return types.Format{}, err
	}
	bufferFrames := int(BufferSize.Seconds() * float64(format.SampleRate))
	o.bridge = pullbridge.New(format.Channels, bufferFrames)
	o.player = otoCtx.NewPlayer(o.bridge)
	o.player.Play()
	return format, nil
}

func (o *Output) Write(
	ctx context.Context,
	samples []int16,
) (int, error) {
	if err := o.player.Err(); err != nil {
		return 0, fmt.Errorf("the player failed: %w", err)
	}
	return o.bridge.Write(ctx, samples)
}

func (o *Output) Recover(ctx context.Context, err error) error {
	if playerErr := o.player.Err(); playerErr != nil {
		return fmt.Errorf("the player failed: %w", playerErr)
	}
	if !o.player.IsPlaying() {
		logger.Debugf(ctx, "resuming the player after: %v", err)
		o.player.Play()
	}
	return nil
}

func (o *Output) Close() error {
	if o.bridge != nil {
		o.bridge.Close()
	}
	if o.player == nil {
		return nil
	}
	return o.player.Close()
}
