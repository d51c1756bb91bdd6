package pulseaudio

import (
	"context"
	"fmt"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/pullbridge"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const (
	ApplicationName = "pcmdriver"
	BufferSize      = 100 * time.Millisecond
)

type Service struct{}

var _ types.NativeService = Service{}

func (Service) Open(
	ctx context.Context,
	device string,
	_ types.Format,
) (types.NativeOutput, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName(ApplicationName))
	if err != nil {
		return nil, fmt.Errorf("unable to open a client to Pulse: %w", err)
	}

	var sink *pulse.Sink
	if device == "" || device == "default" {
		sink, err = c.DefaultSink()
	} else {
		sink, err = c.SinkByID(device)
	}
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("unable to find sink '%s': %w", device, err)
	}
	return newOutput(ctx, c, sink), nil
}

func channelMap(channels types.Channel) (proto.ChannelMap, types.Channel) {
	switch channels {
	case 1:
		return proto.ChannelMap{proto.ChannelMono}, 1
	default:
		return proto.ChannelMap{proto.ChannelLeft, proto.ChannelRight}, 2
	}
}

// pulseReader feeds the bridge to a playback stream.
type pulseReader struct {
	*pullbridge.Bridge
}

var _ pulse.Reader = (*pulseReader)(nil)

func (pulseReader) Format() byte {
	return proto.FormatInt16LE
}
