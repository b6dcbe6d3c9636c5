package media

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"vidcaption/internal/config"
)

// fakeBinary writes a shell script standing in for ffmpeg/ffprobe. The script
// records its arguments, one per line, to <dir>/args.
func fakeBinary(t *testing.T, body string) (binary, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	binary = filepath.Join(dir, "fake")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> " + argsFile + "; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(binary, []byte(script), 0755))
	return binary, argsFile
}

func readArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestNewFFmpegWithConfig(t *testing.T) {
	cfg := config.NewConfiguration()
	cfg.Set("ffmpeg.path", "/opt/ffmpeg")
	cfg.Set("video.codec", "libx265")

	f := NewFFmpegWithConfig(cfg, nil)

	assert.Equal(t, "/opt/ffmpeg", f.ffmpegPath)
	assert.Equal(t, "ffprobe", f.ffprobePath)
	assert.Equal(t, "libx265", f.VideoCodec())
	assert.Equal(t, "aac", f.AudioCodec())
}

func TestFFmpeg_Encode(t *testing.T) {
	t.Run("should prefix global flags and succeed on exit 0", func(t *testing.T) {
		// Arrange
		binary, argsFile := fakeBinary(t, "exit 0")
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary

		// Act
		err := f.Encode(context.Background(), "-i", "in.mp4", "out.mp4")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []string{"-hide_banner", "-nostdin", "-nostats", "-y", "-i", "in.mp4", "out.mp4"}, readArgs(t, argsFile))
	})

	t.Run("should include the stderr tail on failure and log errors as warnings", func(t *testing.T) {
		// Arrange
		binary, _ := fakeBinary(t, `echo "frame=1" >&2; echo "Error opening input file" >&2; exit 1`)
		core, logs := observer.New(zapcore.DebugLevel)
		f := NewFFmpeg(zap.New(core))
		f.ffmpegPath = binary

		// Act
		err := f.Encode(context.Background(), "-i", "missing.mp4")

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ffmpeg failed")
		assert.Contains(t, err.Error(), "Error opening input file")
		warnings := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage("ffmpeg stderr").All()
		require.Len(t, warnings, 1)
		assert.Equal(t, "Error opening input file", warnings[0].ContextMap()["output"])
	})

	t.Run("should keep only the last stderr lines", func(t *testing.T) {
		binary, _ := fakeBinary(t, `i=0; while [ $i -lt 20 ]; do echo "line $i" >&2; i=$((i+1)); done; exit 1`)
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary

		err := f.Encode(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 19")
		assert.NotContains(t, err.Error(), "line 11")
	})

	t.Run("should drain carriage-return progress longer than a scanner buffer", func(t *testing.T) {
		// Arrange
		binary, _ := fakeBinary(t, `i=0; while [ $i -lt 4000 ]; do printf 'frame=%d fps=25.0 q=28.0 size=512kB time=00:00:10.00 speed=1.0x \r' $i >&2; i=$((i+1)); done; exit 0`)
		f := NewFFmpeg(zaptest.NewLogger(t, zaptest.Level(zapcore.InfoLevel)))
		f.ffmpegPath = binary
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Act
		err := f.Encode(ctx)

		// Assert
		require.NoError(t, err)
	})

	t.Run("should keep draining after an oversized stderr line", func(t *testing.T) {
		// Arrange
		binary, _ := fakeBinary(t, `head -c 2000000 /dev/zero | tr '\000' 'x' >&2; echo "Error after overflow" >&2; exit 1`)
		core, logs := observer.New(zapcore.WarnLevel)
		f := NewFFmpeg(zap.New(core))
		f.ffmpegPath = binary
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Act
		err := f.Encode(ctx)

		// Assert
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ffmpeg failed")
		assert.Equal(t, 1, logs.FilterMessage("ffmpeg stderr unreadable, discarding the rest").Len())
	})

	t.Run("should fail to start a missing binary", func(t *testing.T) {
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = "/invalid/ffmpeg/path"

		err := f.Encode(context.Background())

		assert.ErrorContains(t, err, "failed to start ffmpeg")
	})

	t.Run("should report cancellation", func(t *testing.T) {
		binary, _ := fakeBinary(t, "sleep 5")
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := f.Encode(ctx)

		assert.Error(t, err)
	})
}

func TestFFmpeg_Commands(t *testing.T) {
	t.Run("should extract 16 kHz mono WAV audio", func(t *testing.T) {
		binary, argsFile := fakeBinary(t, "exit 0")
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary

		err := f.ExtractAudio(context.Background(), "talk.mp4", "talk.wav")

		require.NoError(t, err)
		args := strings.Join(readArgs(t, argsFile), " ")
		assert.Contains(t, args, "-i talk.mp4 -vn -acodec pcm_s16le -ar 16000 -ac 1 talk.wav")
	})

	t.Run("should seek before the input when slicing", func(t *testing.T) {
		binary, argsFile := fakeBinary(t, "exit 0")
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary

		err := f.Slice(context.Background(), "talk.wav", 4, 2, "chunk.wav")

		require.NoError(t, err)
		args := strings.Join(readArgs(t, argsFile), " ")
		assert.Contains(t, args, "-ss 4.000 -t 2.000 -i talk.wav -vn")
		assert.True(t, strings.HasSuffix(args, "chunk.wav"))
	})

	t.Run("should re-encode clips with the configured codecs", func(t *testing.T) {
		binary, argsFile := fakeBinary(t, "exit 0")
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary

		err := f.ExtractClip(context.Background(), "talk.mp4", 10, 25.5, "clip.mp4")

		require.NoError(t, err)
		args := strings.Join(readArgs(t, argsFile), " ")
		assert.Contains(t, args, "-ss 10.000 -i talk.mp4 -t 15.500 -c:v libx264 -c:a aac clip.mp4")
	})

	t.Run("should reject an empty clip range", func(t *testing.T) {
		f := NewFFmpeg(zaptest.NewLogger(t))

		err := f.ExtractClip(context.Background(), "talk.mp4", 10, 10, "clip.mp4")

		assert.ErrorContains(t, err, "invalid clip range")
	})

	t.Run("should wrap extraction failures", func(t *testing.T) {
		binary, _ := fakeBinary(t, "exit 1")
		f := NewFFmpeg(zaptest.NewLogger(t))
		f.ffmpegPath = binary

		err := f.ExtractAudio(context.Background(), "talk.mp4", "talk.wav")

		assert.ErrorContains(t, err, "extract audio from talk.mp4")
	})
}

func TestScanProgressLines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("frame=1 speed=1x\rframe=2 speed=1x\r\nError opening\ntrailing"))
	scanner.Split(scanProgressLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"frame=1 speed=1x", "frame=2 speed=1x", "", "Error opening", "trailing"}, lines)
}

func TestContainsFFmpegError(t *testing.T) {
	assert.True(t, containsFFmpegError("talk.mp4: No such file or directory"))
	assert.True(t, containsFFmpegError("Unknown encoder 'libx999'"))
	assert.False(t, containsFFmpegError("frame=  100 fps= 25 q=28.0 size=512kB"))
}
