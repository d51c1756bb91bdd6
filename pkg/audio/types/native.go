package types

import (
	"context"
	"io"
)

// NativeService is the operating system audio service a backend delivers
// buffers to.
type NativeService interface {
	Open(ctx context.Context, device string, want Format) (NativeOutput, error)
}

// NativeOutput is an opened output handle.
type NativeOutput interface {
	io.Closer

	// Negotiate returns the format the device actually plays, which may
	// differ from the requested one.
	Negotiate(ctx context.Context, want Format) (Format, error)

	// Write plays interleaved samples and returns the amount of frames
	// consumed. It may block for up to one buffer's playback duration.
	// Recoverable failures wrap ErrUnderrun.
	Write(ctx context.Context, samples []int16) (int, error)

	// Recover tries to bring the device back after a recoverable failure.
	Recover(ctx context.Context, err error) error
}
