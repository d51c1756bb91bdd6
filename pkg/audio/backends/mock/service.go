// Package mock provides a scriptable native output service that records
// everything happening to it.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

// WriteFunc decides the outcome of the call-th write (starting at 0).
type WriteFunc func(call int, samples []int16) (frames int, err error)

type Service struct {
	Events *EventLog

	// Negotiated overrides the format accepted by the device.
	Negotiated *types.Format

	OpenError      error
	NegotiateError error
	CloseError     error
	RecoverError   error

	// WriteDelay is how long every write blocks.
	WriteDelay time.Duration

	// Write scripts the writes; by default all frames are accepted.
	Write WriteFunc

	locker  sync.Mutex
	outputs []*Output
}

var _ types.NativeService = (*Service)(nil)

func NewService() *Service {
	return &Service{
		Events: &EventLog{},
	}
}

func (s *Service) Open(
	_ context.Context,
	device string,
	want types.Format,
) (types.NativeOutput, error) {
	s.Events.Add(Event{Kind: EventOpen, Err: s.OpenError})
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	o := &Output{
		Service: s,
		Device:  device,
	}
	s.locker.Lock()
	defer s.locker.Unlock()
	s.outputs = append(s.outputs, o)
	return o, nil
}

func (s *Service) Outputs() []*Output {
	s.locker.Lock()
	defer s.locker.Unlock()
	result := make([]*Output, len(s.outputs))
	copy(result, s.outputs)
	return result
}

type Output struct {
	Service *Service
	Device  string

	locker  sync.Mutex
	format  types.Format
	writes  int
	written []int16
	closed  bool
}

var _ types.NativeOutput = (*Output)(nil)

func (o *Output) Negotiate(_ context.Context, want types.Format) (types.Format, error) {
	s := o.Service
	s.Events.Add(Event{Kind: EventNegotiate, Err: s.NegotiateError})
	if s.NegotiateError != nil {
		return types.Format{}, s.NegotiateError
	}
	format := want
	if s.Negotiated != nil {
		format = *s.Negotiated
	}
	o.locker.Lock()
	defer o.locker.Unlock()
	o.format = format
	return format, nil
}

func (o *Output) Write(ctx context.Context, samples []int16) (_frames int, _err error) {
	s := o.Service
	s.Events.Add(Event{Kind: EventWriteBegin, Samples: len(samples)})
	defer func() {
		s.Events.Add(Event{Kind: EventWriteEnd, Samples: _frames, Err: _err})
	}()

	o.locker.Lock()
	if o.closed {
		o.locker.Unlock()
		return 0, fmt.Errorf("write to a closed output")
	}
	call := o.writes
	o.writes++
	channels := int(o.format.Channels)
	o.locker.Unlock()

	if s.WriteDelay > 0 {
		t := time.NewTimer(s.WriteDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	frames := len(samples) / channels
	var err error
	if s.Write != nil {
		frames, err = s.Write(call, samples)
	}
	if frames > 0 {
		o.locker.Lock()
		o.written = append(o.written, samples[:frames*channels]...)
		o.locker.Unlock()
	}
	return frames, err
}

func (o *Output) Recover(_ context.Context, err error) error {
	s := o.Service
	s.Events.Add(Event{Kind: EventRecover, Err: err})
	return s.RecoverError
}

func (o *Output) Close() error {
	o.locker.Lock()
	o.closed = true
	o.locker.Unlock()
	o.Service.Events.Add(Event{Kind: EventClose})
	return o.Service.CloseError
}

// Written returns all the samples the device accepted.
func (o *Output) Written() []int16 {
	o.locker.Lock()
	defer o.locker.Unlock()
	result := make([]int16, len(o.written))
	copy(result, o.written)
	return result
}

func (o *Output) Closed() bool {
	o.locker.Lock()
	defer o.locker.Unlock()
	return o.closed
}
