package pulseaudio

import (
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
)

const (
	Name     = "pulseaudio"
	Priority = 100
)

func init() {
	registry.RegisterDriverType(DriverType)
}

var DriverType = deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
	Name:        Name,
	Description: "PulseAudio playback stream; the device is a sink name",
	Priority:    Priority,
	Style:       deliverythread.StylePolling,
	Config: deliverythread.Config{
		Service: Service{},
	},
})
