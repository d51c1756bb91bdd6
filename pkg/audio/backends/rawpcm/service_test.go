package rawpcm

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/pcmdriver/pkg/audio/types"
)

func TestWriteRaw(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	output, err := Service{Writer: &buf}.Open(ctx, Stdout, types.Format{})
	require.NoError(t, err)
	_, err = output.Negotiate(ctx, types.Format{SampleRate: 8000, Channels: 2})
	require.NoError(t, err)

	frames, err := output.Write(ctx, []int16{1, -2, 3})
	require.NoError(t, err)
	require.Equal(t, 1, frames)
	require.NoError(t, output.Close())

	require.Equal(t, uint64(4), output.(*Output).BytesWritten())
	raw := buf.Bytes()
	require.Len(t, raw, 4)
	require.Equal(t, int16(1), int16(binary.NativeEndian.Uint16(raw[0:])))
	require.Equal(t, int16(-2), int16(binary.NativeEndian.Uint16(raw[2:])))
}

func TestWriteFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.pcm")

	output, err := Service{}.Open(ctx, path, types.Format{})
	require.NoError(t, err)
	_, err = output.Negotiate(ctx, types.Format{SampleRate: 8000, Channels: 1})
	require.NoError(t, err)
	_, err = output.Write(ctx, []int16{10, 20, 30})
	require.NoError(t, err)
	require.NoError(t, output.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, 6)
	require.Equal(t, int16(30), int16(binary.NativeEndian.Uint16(raw[4:])))
}
