package oto

import (
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
)

const (
	Name     = "oto"
	Priority = 50
)

func init() {
	registry.RegisterDriverType(DriverType)
}

// DriverType is singleton-backed: oto allows one context per process.
var DriverType = deliverythread.NewDriverType(deliverythread.DriverTypeConfig{
	Name:        Name,
	Description: "oto output (one instance at a time); the device is ignored",
	Priority:    Priority,
	Singleton:   true,
	Style:       deliverythread.StylePolling,
	Config: deliverythread.Config{
		Service: Service{},
	},
})
