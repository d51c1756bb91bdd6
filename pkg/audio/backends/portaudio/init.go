package portaudio

import (
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
)

const (
	Name     = "portaudio"
	Priority = 60
)

func init() {
	registry.RegisterDriverType(DriverType)
}

var DriverType = deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
	Name:        Name,
	Description: "PortAudio blocking output stream; the device is a PortAudio device name",
	Priority:    Priority,
	Style:       deliverythread.StyleLocking,
	Config: deliverythread.Config{
		Service: Service{},
	},
})
