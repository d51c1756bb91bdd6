package null

import (
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
)

const (
	Name     = "null"
	Priority = 0
)

func init() {
	registry.RegisterDriverType(DriverType)
}

var DriverType = deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
	Name:        Name,
	Description: "discards the samples at the playback rate",
	Priority:    Priority,
	Style:       deliverythread.StylePolling,
	Config: deliverythread.Config{
		Service: Service{},
	},
})
