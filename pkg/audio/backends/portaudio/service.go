package portaudio

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

type Service struct{}

var _ types.NativeService = Service{}

func (Service) Open(
	ctx context.Context,
	device string,
	_ types.Format,
) (_ types.NativeOutput, _err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("unable to initialize PortAudio: %w", err)
	}
	defer func() {
		if _err != nil {
			portaudio.Terminate()
		}
	}()

	info, err := findOutputDevice(ctx, device)
	if err != nil {
		return nil, err
	}
	logger.Debugf(ctx, "device info: %#+v", info)
	return newOutput(ctx, info), nil
}

func findOutputDevice(
	ctx context.Context,
	name string,
) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		info, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("unable to get the default output device: %w", err)
		}
		return info, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("unable to list devices: %w", err)
	}
	for idx, device := range devices {
		logger.Tracef(ctx, "devices[%d]: %#+v", idx, device)
		if device.Name == name && device.MaxOutputChannels > 0 {
			return device, nil
		}
	}
	return nil, fmt.Errorf("output device '%s' is not found", name)
}
