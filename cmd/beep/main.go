package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/pcmdriver/pkg/audio"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/null"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/pulseaudio"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/rawpcm"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/wavfile"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/deliverythread"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
	"github.com/xaionaro-go/pcmdriver/pkg/config"
	"github.com/xaionaro-go/pcmdriver/pkg/telemetry"
)

const amplitude = 0.2 * math.MaxInt16

type sineGenerator struct {
	frequency float64
	phase     float64
}

func fillSine(inst types.Instance, buf []int16) error {
	delegate := inst.Delegate()
	gen := delegate.UserData.(*sineGenerator)
	channels := int(delegate.Channels)
	step := 2 * math.Pi * gen.frequency / float64(delegate.SampleRate)
	for idx := 0; idx+channels <= len(buf); idx += channels {
		v := int16(amplitude * math.Sin(gen.phase))
		for ch := 0; ch < channels; ch++ {
			buf[idx+ch] = v
		}
		gen.phase += step
		if gen.phase >= 2*math.Pi {
			gen.phase -= 2 * math.Pi
		}
	}
	return nil
}

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	configPath := pflag.String("config", "", "path to a YAML config file")
	driverName := pflag.String("driver", "", "driver type name (empty: automatic)")
	device := pflag.String("device", "", "output device (empty: default)")
	sampleRate := pflag.Uint32("rate", 0, "sample rate")
	channels := pflag.Uint32("channels", 0, "channel count (1 or 2)")
	latency := pflag.Duration("latency", 0, "target buffer latency")
	frequency := pflag.Float64("frequency", 440, "tone frequency in Hz")
	duration := pflag.Duration("duration", 2*time.Second, "how long to play")
	listDrivers := pflag.Bool("list-drivers", false, "list the available driver types and exit")
	metricsAddr := pflag.String("metrics-listen-addr", "", "an address to serve Prometheus metrics on")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	assertNoError(err)
	if !pflag.CommandLine.Changed("log-level") && cfg.LogLevel != "" {
		assertNoError(loggerLevel.Set(cfg.LogLevel))
	}
	overrideString(&cfg.Driver, "driver", *driverName)
	overrideString(&cfg.Device, "device", *device)
	overrideString(&cfg.MetricsListenAddr, "metrics-listen-addr", *metricsAddr)
	overrideUint32(&cfg.SampleRate, "rate", *sampleRate)
	overrideUint32(&cfg.Channels, "channels", *channels)
	if pflag.CommandLine.Changed("latency") {
		cfg.Latency = *latency
	}
	assertNoError(cfg.Validate())

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	if *listDrivers {
		for idx, t := range registry.Default().Types() {
			fmt.Printf("%d\t%s\t%s\n", idx, t.Name, t.Description)
		}
		return
	}

	if cfg.MetricsListenAddr != "" {
		handler, shutdown, err := telemetry.Setup(ctx, "pcmdriver-beep")
		assertNoError(err)
		defer shutdown(context.Background())
		observability.Go(ctx, func() {
			l.Error(http.ListenAndServe(cfg.MetricsListenAddr, handler))
		})
	}

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()

	delegate := &types.Delegate{
		SampleRate: types.SampleRate(cfg.SampleRate),
		Channels:   types.Channel(cfg.Channels),
		Device:     cfg.Device,
		Fill:       fillSine,
		UserData:   &sineGenerator{frequency: *frequency},
	}

	var d *audio.Driver
	if cfg.Driver == "" {
		// the latency applies to every candidate of the automatic selection
		var candidates []*types.DriverType
		for _, driverType := range registry.Default().Types() {
			candidates = append(candidates, deliverythread.WithLatency(driverType, cfg.Latency))
		}
		reg, regErr := registry.New(candidates...)
		assertNoError(regErr)
		d, err = audio.NewAutoFromRegistry(ctx, reg, delegate)
	} else {
		driverType := registry.Default().ByName(cfg.Driver)
		if driverType == nil {
			panic(fmt.Errorf("unknown driver '%s'", cfg.Driver))
		}
		d, err = audio.New(ctx, deliverythread.WithLatency(driverType, cfg.Latency), delegate)
	}
	assertNoError(err)
	defer func() {
		assertNoError(d.Release(context.WithoutCancel(ctx)))
	}()
	logger.Infof(ctx, "using driver %s: %s", d, d.Delegate().Format())
	logger.Tracef(ctx, "delegate: %s", spew.Sdump(d.Delegate()))

	ctx, cancelFn = context.WithTimeout(ctx, *duration)
	defer cancelFn()
	assertNoError(d.Poll(ctx, 20*time.Millisecond))
}

func overrideString(dst *string, flagName, value string) {
	if pflag.CommandLine.Changed(flagName) {
		*dst = value
	}
}

func overrideUint32(dst *uint32, flagName string, value uint32) {
	if pflag.CommandLine.Changed(flagName) {
		*dst = value
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
