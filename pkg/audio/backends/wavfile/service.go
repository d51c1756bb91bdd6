package wavfile

import (
	"context"
	"fmt"
	"os"

	"github.com/facebookincubator/go-belt/tool/logger"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/backends/internal/pacer"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

const (
	DefaultPath = "pcmdriver.wav"

	bitDepth       = 16
	wavFormatPCM   = 1
	maxWAVChannels = 2
)

type Service struct {
	// Realtime makes writes take as long as the playback would.
	Realtime bool
}

var _ types.NativeService = Service{}

func (s Service) Open(
	ctx context.Context,
	device string,
	_ types.Format,
) (types.NativeOutput, error) {
	path := device
	if path == "" || path == "default" {
		path = DefaultPath
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create file '%s': %w", path, err)
	}
	logger.Debugf(ctx, "writing WAV into '%s'", path)
	return &Output{
		realtime: s.Realtime,
		file:     f,
	}, nil
}

type Output struct {
	realtime bool
	file     *os.File
	encoder  *wav.Encoder
	format   types.Format
	pacer    *pacer.Pacer
	intBuf   goaudio.IntBuffer
}

var _ types.NativeOutput = (*Output)(nil)

func (o *Output) Negotiate(_ context.Context, want types.Format) (types.Format, error) {
	format := want
	if format.Channels > maxWAVChannels {
		format.Channels = maxWAVChannels
	}
	o.format = format
	o.encoder = wav.NewEncoder(o.file, int(format.SampleRate), bitDepth, int(format.Channels), wavFormatPCM)
	o.intBuf = goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: int(format.Channels),
			SampleRate:  int(format.SampleRate),
		},
		SourceBitDepth: bitDepth,
	}
	if o.realtime {
		o.pacer = pacer.New(format)
	}
	return format, nil
}

func (o *Output) Write(ctx context.Context, samples []int16) (int, error) {
	channels := int(o.format.Channels)
	frames := len(samples) / channels
	samples = samples[:frames*channels]

	data := o.intBuf.Data[:0]
	for _, sample := range samples {
		data = append(data, int(sample))
	}
	o.intBuf.Data = data
	if err := o.encoder.Write(&o.intBuf); err != nil {
		return 0, fmt.Errorf("unable to encode %d frames: %w", frames, err)
	}

	if o.pacer != nil {
		if err := o.pacer.Wait(ctx, frames); err != nil {
			return frames, err
		}
	}
	return frames, nil
}

func (*Output) Recover(_ context.Context, err error) error {
	return fmt.Errorf("a file does not recover from '%w'", err)
}

// Close finalizes the WAV header and closes the file.
func (o *Output) Close() error {
	var encErr error
	if o.encoder != nil {
		encErr = o.encoder.Close()
	}
	if err := o.file.Close(); err != nil {
		return fmt.Errorf("unable to close the file: %w", err)
	}
	if encErr != nil {
		return fmt.Errorf("unable to finalize the WAV file: %w", encErr)
	}
	return nil
}
