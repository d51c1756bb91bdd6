package deliverythread

import (
	"time"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const (
	DefaultTargetLatency = 50 * time.Millisecond
	DefaultMinSamples    = 512
	DefaultMaxSamples    = 65536
)

type Config struct {
	Service types.NativeService

	// TargetLatency is the playback duration of one buffer before clamping.
	TargetLatency time.Duration

	// MinSamples and MaxSamples clamp the buffer size, in interleaved samples.
	MinSamples int
	MaxSamples int
}

func (cfg Config) withDefaults() Config {
	if cfg.TargetLatency <= 0 {
		cfg.TargetLatency = DefaultTargetLatency
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MaxSamples <= 0 {
		cfg.MaxSamples = DefaultMaxSamples
	}
	if cfg.MaxSamples < cfg.MinSamples {
		cfg.MaxSamples = cfg.MinSamples
	}
	return cfg
}

// BufferSamples returns the size of the sample buffer for the given format:
// the target latency converted to samples, clamped to [MinSamples,
// MaxSamples] and rounded down to whole frames. The buffer always holds at
// least one frame, so a MaxSamples below the channel count is raised to one
// frame.
func (cfg Config) BufferSamples(format types.Format) int {
	cfg = cfg.withDefaults()
	channels := int(format.Channels)
	if channels <= 0 {
		channels = 1
	}

	if cfg.MaxSamples < channels {
		cfg.MaxSamples = channels
	}

	frames := int(time.Duration(format.SampleRate) * cfg.TargetLatency / time.Second)
	samples := frames * channels
	if samples < cfg.MinSamples {
		samples = cfg.MinSamples
	}
	if samples > cfg.MaxSamples {
		samples = cfg.MaxSamples
	}
	samples -= samples % channels
	if samples < channels {
		samples = channels
	}
	return samples
}
