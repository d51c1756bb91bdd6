package types

import (
	"fmt"
	"time"
)

const (
	DefaultSampleRate SampleRate = 44100
	DefaultChannels   Channel    = 1

	// BytesPerSample is the size of a single interleaved s16 sample.
	BytesPerSample = 2
)

type SampleRate uint32

type Channel uint32

// Format is the output format a native service plays: signed 16-bit
// interleaved samples in host byte order at the given rate.
type Format struct {
	SampleRate SampleRate
	Channels   Channel
}

func (f Format) String() string {
	return fmt.Sprintf("s16@%dHz/%dch", f.SampleRate, f.Channels)
}

// Duration returns the playback duration of the given amount of
// interleaved samples.
func (f Format) Duration(samples int) time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	frames := samples / int(f.Channels)
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}
