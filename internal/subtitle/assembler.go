package subtitle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// ErrOutputLocked is returned when another process is writing the same output file
var ErrOutputLocked = errors.New("output file is locked by another writer")

// Encoder runs ffmpeg with the given arguments
type Encoder interface {
	Encode(ctx context.Context, args ...string) error
}

// DefaultOutputPath returns <dir>/<stem>.subtitled.mp4 for a source video
func DefaultOutputPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".subtitled.mp4"
}

// OverlayFilter builds an ffmpeg filter graph compositing every overlay on
// input 0 in order, so later overlays are drawn on top. Overlay i is expected
// at input i+1. The final video is labelled [vout]. Returns "" for no overlays.
func OverlayFilter(overlays []Overlay) string {
	if len(overlays) == 0 {
		return ""
	}

	var b strings.Builder
	prev := "0:v"
	for i, o := range overlays {
		out := "v" + strconv.Itoa(i+1)
		if i == len(overlays)-1 {
			out = "vout"
		}
		if i > 0 {
			b.WriteString(";\n")
		}
		fmt.Fprintf(&b, "[%s][%d:v]overlay=0:0:enable='gte(t,%s)*lt(t,%s)'[%s]",
			prev, i+1, formatTime(o.Start), formatTime(o.End), out)
		prev = out
	}
	return b.String()
}

func formatTime(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// Assembler composites caption overlays onto a video and re-encodes it
type Assembler struct {
	encoder    Encoder
	videoCodec string
	audioCodec string
	logger     *zap.Logger
}

// NewAssembler creates an Assembler writing videoCodec/audioCodec output
func NewAssembler(encoder Encoder, videoCodec, audioCodec string, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		encoder:    encoder,
		videoCodec: videoCodec,
		audioCodec: audioCodec,
		logger:     logger,
	}
}

// Assemble writes video with overlays burned in to output. A failed encode
// removes whatever partial output was written; failures before ffmpeg starts
// leave an existing output untouched.
func (a *Assembler) Assemble(ctx context.Context, video string, overlays *OverlaySet, output string) error {
	if filepath.Clean(video) == filepath.Clean(output) {
		return fmt.Errorf("output %s would overwrite the source video", output)
	}

	lock := flock.New(output + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire output lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrOutputLocked, output)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			a.logger.Warn("failed to release output lock", zap.Error(uerr))
		}
		os.Remove(output + ".lock")
	}()

	args, cleanup, err := a.buildArgs(video, overlays, output)
	if err != nil {
		return err
	}
	defer cleanup()

	count := 0
	if overlays != nil {
		count = len(overlays.Overlays)
	}
	a.logger.Info("assembling subtitled video",
		zap.String("video", video),
		zap.Int("overlays", count),
		zap.String("output", output))

	if err := a.encoder.Encode(ctx, args...); err != nil {
		a.removePartial(output)
		return fmt.Errorf("encode %s: %w", output, err)
	}

	a.logger.Info("subtitled video written", zap.String("output", output))
	return nil
}

// removePartial deletes whatever a failed encode left at output
func (a *Assembler) removePartial(output string) {
	if err := os.Remove(output); err != nil && !errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("failed to remove partial output", zap.String("output", output), zap.Error(err))
	}
}

// buildArgs returns the ffmpeg arguments. The filter graph goes through a
// script file because it grows with the caption count.
func (a *Assembler) buildArgs(video string, overlays *OverlaySet, output string) ([]string, func(), error) {
	args := []string{"-i", video}
	noop := func() {}

	var list []Overlay
	if overlays != nil {
		list = overlays.Overlays
	}
	if len(list) == 0 {
		args = append(args, "-map", "0:v")
	} else {
		for _, o := range list {
			args = append(args, "-i", o.Path)
		}

		script, err := os.CreateTemp(overlays.Dir, "filter-*.txt")
		if err != nil {
			return nil, noop, fmt.Errorf("create filter script: %w", err)
		}
		_, werr := script.WriteString(OverlayFilter(list))
		if err := errors.Join(werr, script.Close()); err != nil {
			os.Remove(script.Name())
			return nil, noop, fmt.Errorf("write filter script: %w", err)
		}
		noop = func() { os.Remove(script.Name()) }

		args = append(args,
			"-filter_complex_script", script.Name(),
			"-map", "[vout]",
		)
	}

	args = append(args,
		"-map", "0:a?",
		"-c:v", a.videoCodec,
		"-c:a", a.audioCodec,
		"-movflags", "+faststart",
		output,
	)
	return args, noop, nil
}
