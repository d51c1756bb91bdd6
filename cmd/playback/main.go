package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	"github.com/jfreymuth/oggvorbis"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/pcmdriver/pkg/audio"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/null"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/oto"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/portaudio"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/pulseaudio"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/rawpcm"
	_ "github.com/xaionaro-go/pcmdriver/pkg/audio/backends/wavfile"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/registry"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// vorbisSource decodes on the delivery worker; it is only touched by the
// fill callback, so it needs no locking.
type vorbisSource struct {
	reader  *oggvorbis.Reader
	scratch []float32
	ended   atomic.Bool
}

func fillVorbis(inst types.Instance, buf []int16) error {
	src := inst.Delegate().UserData.(*vorbisSource)
	if cap(src.scratch) < len(buf) {
		src.scratch = make([]float32, len(buf))
	}
	scratch := src.scratch[:len(buf)]

	n := 0
	for n < len(buf) && !src.ended.Load() {
		r, err := src.reader.Read(scratch[n:])
		n += r
		if errors.Is(err, io.EOF) {
			src.ended.Store(true)
			break
		}
		if err != nil {
			return fmt.Errorf("unable to decode: %w", err)
		}
	}
	for idx, v := range scratch[:n] {
		buf[idx] = int16(math.Max(-1, math.Min(1, float64(v))) * math.MaxInt16)
	}
	clear(buf[n:])
	return nil
}

func main() {
	loggerLevel := logger.LevelInfo
	pflag.Var(&loggerLevel, "log-level", "Log level")
	driverName := pflag.String("driver", "", "driver type name (empty: automatic)")
	device := pflag.String("device", "", "output device (empty: default)")
	pflag.Parse()

	if pflag.NArg() != 1 {
		panic("expected exactly one positional argument: path to an Ogg Vorbis file")
	}
	filePath := pflag.Arg(0)

	l := logrus.Default().WithLevel(loggerLevel)
	ctx := logger.CtxWithLogger(context.Background(), l)
	logger.Default = func() logger.Logger {
		return l
	}
	defer belt.Flush(ctx)

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt)
	defer cancelFn()

	file, err := os.Open(filePath)
	assertNoError(err)
	defer file.Close()

	reader, err := oggvorbis.NewReader(file)
	assertNoError(err)
	src := &vorbisSource{reader: reader}

	delegate := &types.Delegate{
		SampleRate: types.SampleRate(reader.SampleRate()),
		Channels:   types.Channel(reader.Channels()),
		Device:     *device,
		Fill:       fillVorbis,
		UserData:   src,
	}

	d, err := audio.NewFromRegistry(ctx, registry.Default(), *driverName, delegate)
	assertNoError(err)
	defer func() {
		assertNoError(d.Release(context.WithoutCancel(ctx)))
	}()

	got := d.Delegate().Format()
	if got.Channels != delegate.Channels {
		panic(fmt.Errorf("driver %s plays %d channels, the file has %d", d, got.Channels, delegate.Channels))
	}
	if got.SampleRate != delegate.SampleRate {
		logger.Warnf(ctx, "driver %s plays at %dHz, the file is %dHz; the speed will be off", d, got.SampleRate, delegate.SampleRate)
	}
	logger.Infof(ctx, "playing '%s' with %s", filePath, d)

	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for !src.ended.Load() {
		assertNoError(d.Check(ctx))
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func assertNoError(err error) {
	if err != nil {
		panic(err)
	}
}
