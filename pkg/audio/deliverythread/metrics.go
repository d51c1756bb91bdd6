package deliverythread

import (
	"context"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"

type instruments struct {
	fillCalls      metric.Int64Counter
	samplesWritten metric.Int64Counter
	recoveries     metric.Int64Counter
	latchedErrors  metric.Int64Counter
}

var (
	instrumentsOnce  sync.Once
	instrumentsValue *instruments
)

// getInstruments creates the instruments on first use, so that a meter
// provider installed by the host at startup is picked up.
func getInstruments(ctx context.Context) *instruments {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(meterName)
		inst := &instruments{}
		var err error
		if inst.fillCalls, err = meter.Int64Counter(
			"pcmdriver.fill.calls",
			metric.WithDescription("fill callback invocations"),
		); err != nil {
			logger.Errorf(ctx, "unable to create the fill calls counter: %v", err)
		}
		if inst.samplesWritten, err = meter.Int64Counter(
			"pcmdriver.samples.written",
			metric.WithDescription("interleaved samples accepted by the device"),
		); err != nil {
			logger.Errorf(ctx, "unable to create the written samples counter: %v", err)
		}
		if inst.recoveries, err = meter.Int64Counter(
			"pcmdriver.device.recoveries",
			metric.WithDescription("device recoveries after recoverable write errors"),
		); err != nil {
			logger.Errorf(ctx, "unable to create the recoveries counter: %v", err)
		}
		if inst.latchedErrors, err = meter.Int64Counter(
			"pcmdriver.errors.latched",
			metric.WithDescription("errors that stopped a delivery worker"),
		); err != nil {
			logger.Errorf(ctx, "unable to create the latched errors counter: %v", err)
		}
		instrumentsValue = inst
	})
	return instrumentsValue
}

func add(ctx context.Context, counter metric.Int64Counter, v int64, driverType string) {
	if counter == nil {
		return
	}
	counter.Add(ctx, v, metric.WithAttributes(attribute.String("driver.type", driverType)))
}
