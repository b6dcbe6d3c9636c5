package subtitle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"vidcaption/internal/transcriber"
)

// CaptionRenderer draws caption text onto a transparent frame-sized canvas
type CaptionRenderer interface {
	Render(text string, width, height int) (*image.NRGBA, error)
}

// Overlay is one rendered caption shown during [Start, End)
type Overlay struct {
	Path  string
	Start float64
	End   float64
	Text  string
}

// OverlaySet owns the directory holding rendered overlay images
type OverlaySet struct {
	Dir      string
	Width    int
	Height   int
	Overlays []Overlay
}

// Close removes every overlay image
func (s *OverlaySet) Close() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Builder renders one overlay image per caption segment
type Builder struct {
	renderer CaptionRenderer
	tempDir  string
	logger   *zap.Logger
}

// NewBuilder creates a Builder. Overlay directories are created under tempDir,
// or the system temp directory when tempDir is empty.
func NewBuilder(renderer CaptionRenderer, tempDir string, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		renderer: renderer,
		tempDir:  tempDir,
		logger:   logger,
	}
}

// Build renders segments at frame size. The caller must Close the returned
// set; on error nothing is left on disk.
func (b *Builder) Build(ctx context.Context, segments []transcriber.Segment, width, height int) (set *OverlaySet, err error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	dir, err := os.MkdirTemp(b.tempDir, "vidcaption-overlays-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay directory: %w", err)
	}
	defer func() {
		if err != nil {
			if rerr := os.RemoveAll(dir); rerr != nil {
				b.logger.Warn("failed to remove overlay directory", zap.String("dir", dir), zap.Error(rerr))
			}
		}
	}()
	set = &OverlaySet{Dir: dir, Width: width, Height: height}

	for i, segment := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if segment.Start >= segment.End {
			b.logger.Warn("skipping empty caption interval",
				zap.Int("segment", i),
				zap.Float64("start", segment.Start),
				zap.Float64("end", segment.End))
			continue
		}

		img, err := b.renderer.Render(segment.Text, width, height)
		if err != nil {
			return nil, fmt.Errorf("render segment %d: %w", i, err)
		}

		path := filepath.Join(dir, fmt.Sprintf("caption-%05d.png", i))
		if err := writePNG(path, img); err != nil {
			return nil, fmt.Errorf("write segment %d: %w", i, err)
		}

		set.Overlays = append(set.Overlays, Overlay{
			Path:  path,
			Start: segment.Start,
			End:   segment.End,
			Text:  segment.Text,
		})
	}

	b.logger.Info("rendered caption overlays",
		zap.Int("overlays", len(set.Overlays)),
		zap.String("dir", dir))
	return set, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	return errors.Join(encoder.Encode(f, img), f.Close())
}
