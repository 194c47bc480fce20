package audio

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwant/zizh/internal/config"
)

func TestFFmpegRecorder_Args(t *testing.T) {
	r := NewFFmpegRecorder(config.Default().Recording, nil, false)

	args := strings.Join(r.Args("/tmp/zizh/temp/temp.m4a"), " ")

	assert.True(t, strings.HasPrefix(args, "ffmpeg "), args)
	assert.Contains(t, args, "-f pulse -channels 2 -i default")
	assert.Contains(t, args, "-ar 44100 -ac 2 -c:a aac -b:a 192k -f mp4 -y /tmp/zizh/temp/temp.m4a")
}

func TestFFmpegRecorder_ArgsJACK(t *testing.T) {
	cfg := config.Default().Recording
	cfg.InputFormat = "jack"
	cfg.InputDevice = "system:capture_1"
	cfg.Channels = 1
	cfg.Quality = "low"
	r := NewFFmpegRecorder(cfg, nil, false)

	args := r.Args("out.m4a")

	require.GreaterOrEqual(t, len(args), 2)
	assert.Equal(t, "pw-jack", args[0])
	assert.Equal(t, "ffmpeg", args[1])
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-f jack -channels 1 -i zizh")
	assert.Contains(t, joined, "-b:a 96k")
}

func TestValidateOutputFile(t *testing.T) {
	dir := t.TempDir()

	assert.Error(t, validateOutputFile(filepath.Join(dir, "absent.m4a")))

	small := filepath.Join(dir, "small.m4a")
	require.NoError(t, os.WriteFile(small, []byte("ftyp"), 0o644))
	assert.ErrorContains(t, validateOutputFile(small), "too small")

	full := filepath.Join(dir, "full.m4a")
	require.NoError(t, os.WriteFile(full, make([]byte, minOutputSize), 0o644))
	assert.NoError(t, validateOutputFile(full))
}

func TestIsInterruptExit(t *testing.T) {
	assert.False(t, isInterruptExit(errors.New("plain error")))
}

func TestParseProbeDuration(t *testing.T) {
	d, err := parseProbeDuration([]byte(`{"format":{"filename":"a.m4a","duration":"12.345000","bit_rate":"192000"}}`))
	require.NoError(t, err)
	assert.Equal(t, 12345*time.Millisecond, d.Round(time.Millisecond))

	for _, bad := range []string{`{}`, `{"format":{"duration":"N/A"}}`, `{"format":{"duration":"-1"}}`, `not json`} {
		_, err := parseProbeDuration([]byte(bad))
		assert.Error(t, err, bad)
	}
}
