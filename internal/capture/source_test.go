package capture

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderSource(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 1300)
	src := NewReaderSource(bytes.NewReader(data), 512)

	frames, err := src.Start(context.Background())
	require.NoError(t, err)

	var sizes []int
	for frame := range frames {
		sizes = append(sizes, len(frame))
	}
	assert.Equal(t, []int{512, 512, 276}, sizes)

	require.NoError(t, src.Stop())

	// One-shot: a second start is refused.
	_, err = src.Start(context.Background())
	assert.Error(t, err)
}

func TestReaderSource_DefaultFrameSize(t *testing.T) {
	data := make([]byte, defaultFrameBytes*2)
	src := NewReaderSource(bytes.NewReader(data), 0)

	frames, err := src.Start(context.Background())
	require.NoError(t, err)

	var count int
	for frame := range frames {
		assert.Len(t, frame, defaultFrameBytes)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestPipeSource_ReopensPerCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.raw")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x01}, 100), 0o644))

	src := NewPipeSource(path, 64)

	for i := 0; i < 2; i++ {
		frames, err := src.Start(context.Background())
		require.NoError(t, err)

		var total int
		for frame := range frames {
			total += len(frame)
		}
		assert.Equal(t, 100, total)
		require.NoError(t, src.Stop())
	}
}

func TestPipeSource_MissingPath(t *testing.T) {
	src := NewPipeSource(filepath.Join(t.TempDir(), "absent.raw"), 64)
	_, err := src.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open audio pipe")
}
