package null

import (
	"context"

	"github.com/xaionaro-go/pcmdriver/pkg/audio/backends/internal/pacer"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

type Service struct{}

var _ types.NativeService = Service{}

func (Service) Open(context.Context, string, types.Format) (types.NativeOutput, error) {
	return &Output{}, nil
}

type Output struct {
	format types.Format
	pacer  *pacer.Pacer
}

var _ types.NativeOutput = (*Output)(nil)

func (o *Output) Negotiate(_ context.Context, want types.Format) (types.Format, error) {
	o.format = want
	o.pacer = pacer.New(want)
	return want, nil
}

func (o *Output) Write(ctx context.Context, samples []int16) (int, error) {
	frames := len(samples) / int(o.format.Channels)
	if err := o.pacer.Wait(ctx, frames); err != nil {
		return 0, err
	}
	return frames, nil
}

func (*Output) Recover(context.Context, error) error {
	return nil
}

func (*Output) Close() error {
	return nil
}
