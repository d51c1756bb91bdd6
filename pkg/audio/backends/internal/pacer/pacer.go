package pacer

import (
	"context"
	"time"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// Pacer makes file-like sinks consume samples at the playback rate, the way
// a sound card would.
type Pacer struct {
	format  types.Format
	startTS time.Time
	frames  uint64
}

func New(format types.Format) *Pacer {
	return &Pacer{format: format}
}

// Wait accounts for the given amount of frames and sleeps until the wall
// clock catches up with the played duration.
func (p *Pacer) Wait(ctx context.Context, frames int) error {
	if p.startTS.IsZero() {
		p.startTS = time.Now()
	}
	p.frames += uint64(frames)
	deadline := p.startTS.Add(time.Duration(p.frames) * time.Second / time.Duration(p.format.SampleRate))
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
