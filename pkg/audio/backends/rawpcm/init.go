package rawpcm

import (
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
)

const (
	Name     = "raw"
	Priority = -20
)

func init() {
	registry.RegisterDriverType(DriverType)
}

var DriverType = deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
	Name:        Name,
	Description: "writes headerless s16 host-endian PCM; the device is a file path or '-' for stdout",
	Priority:    Priority,
	Style:       deliverythread.StyleLocking,
	Config: deliverythread.Config{
		Service: Service{Realtime: true},
	},
})
