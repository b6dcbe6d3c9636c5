package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"vidcaption/internal/config"
)

const (
	// stderrTail is how many trailing stderr lines are kept for error messages
	stderrTail = 8
	// maxStderrLine bounds a single stderr line
	maxStderrLine = 1 << 20
)

// FFmpeg runs ffmpeg and ffprobe child processes
type FFmpeg struct {
	logger      *zap.Logger
	ffmpegPath  string
	ffprobePath string
	videoCodec  string
	audioCodec  string
}

// NewFFmpeg creates an FFmpeg runner using binaries from PATH and libx264/aac
func NewFFmpeg(logger *zap.Logger) *FFmpeg {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{
		logger:      logger,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		videoCodec:  "libx264",
		audioCodec:  "aac",
	}
}

// NewFFmpegWithConfig creates an FFmpeg runner from configuration
func NewFFmpegWithConfig(cfg *config.Configuration, logger *zap.Logger) *FFmpeg {
	f := NewFFmpeg(logger)
	f.ffmpegPath = cfg.GetFFmpegPath()
	f.ffprobePath = cfg.GetFFprobePath()
	f.videoCodec = cfg.GetVideoCodec()
	f.audioCodec = cfg.GetAudioCodec()
	return f
}

// VideoCodec returns the codec used for re-encoded video
func (f *FFmpeg) VideoCodec() string {
	return f.videoCodec
}

// AudioCodec returns the codec used for re-encoded audio
func (f *FFmpeg) AudioCodec() string {
	return f.audioCodec
}

// Encode runs ffmpeg with args. Stderr is streamed to the logger and its tail
// is included in the returned error when ffmpeg exits non-zero.
func (f *FFmpeg) Encode(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-nostdin", "-nostats", "-y"}, args...)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, full...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	f.logger.Debug("starting ffmpeg", zap.Strings("args", full))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// stderr must be drained before Wait closes the pipe
	tail := f.handleStderr(stderr)

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctxErr)
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.Join(tail, "\n"))
	}

	f.logger.Debug("ffmpeg finished", zap.Int("pid", cmd.ProcessState.Pid()))
	return nil
}

// handleStderr logs ffmpeg stderr line by line and returns the last lines.
// The pipe is always read to EOF so ffmpeg never blocks on a full pipe.
func (f *FFmpeg) handleStderr(stderr io.Reader) []string {
	var tail []string
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStderrLine)
	scanner.Split(scanProgressLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if containsFFmpegError(line) {
			f.logger.Warn("ffmpeg stderr", zap.String("output", line))
		} else {
			f.logger.Debug("ffmpeg stderr", zap.String("output", line))
		}
		tail = append(tail, line)
		if len(tail) > stderrTail {
			tail = tail[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		f.logger.Warn("ffmpeg stderr unreadable, discarding the rest", zap.Error(err))
		io.Copy(io.Discard, stderr)
	}
	return tail
}

// scanProgressLines splits on \n or \r; ffmpeg ends progress stats with a bare \r
func scanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var ffmpegErrorIndicators = []string{
	"Error",
	"Invalid data",
	"No such file",
	"Permission denied",
	"Unknown encoder",
	"does not contain any stream",
}

// containsFFmpegError reports whether a stderr line looks like an error rather than progress
func containsFFmpegError(output string) bool {
	for _, indicator := range ffmpegErrorIndicators {
		if strings.Contains(output, indicator) {
			return true
		}
	}
	return false
}

// ExtractAudio writes the audio track of video to dst as 16 kHz mono PCM WAV
func (f *FFmpeg) ExtractAudio(ctx context.Context, video, dst string) error {
	f.logger.Info("extracting audio", zap.String("video", video), zap.String("audio", dst))
	if err := f.Encode(ctx, append([]string{"-loglevel", "error", "-i", video}, wavArgs(dst)...)...); err != nil {
		return fmt.Errorf("extract audio from %s: %w", video, err)
	}
	return nil
}

// Slice cuts [start, start+duration) seconds of src into a 16 kHz mono WAV at dst
func (f *FFmpeg) Slice(ctx context.Context, src string, start, duration float64, dst string) error {
	args := []string{
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", src,
	}
	return f.Encode(ctx, append(args, wavArgs(dst)...)...)
}

// ExtractClip re-encodes [start, end) seconds of src into dst
func (f *FFmpeg) ExtractClip(ctx context.Context, src string, start, end float64, dst string) error {
	if end <= start {
		return fmt.Errorf("invalid clip range %.3f-%.3f", start, end)
	}
	f.logger.Info("extracting clip",
		zap.String("source", src),
		zap.Float64("start", start),
		zap.Float64("end", end),
		zap.String("output", dst))
	return f.Encode(ctx,
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(end-start),
		"-c:v", f.videoCodec,
		"-c:a", f.audioCodec,
		dst,
	)
}

func wavArgs(dst string) []string {
	return []string{
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dst,
	}
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
