package wavfile

import (
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
)

const (
	Name = "wav"

	// Priority is below the null driver: the automatic selection should
	// never start writing files.
	Priority = -10
)

func init() {
	registry.RegisterDriverType(DriverType)
}

var DriverType = deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
	Name:        Name,
	Description: "writes a WAV file; the device is the file path",
	Priority:    Priority,
	Style:       deliverythread.StylePolling,
	Config: deliverythread.Config{
		Service: Service{Realtime: true},
	},
})
