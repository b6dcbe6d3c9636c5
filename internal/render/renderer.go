package render

import (
	"fmt"
	"image"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// referenceGlyph is measured to estimate the wrap column count
const referenceGlyph = "A"

// outlineOffsets are the diagonal directions used to stroke each word
var outlineOffsets = [4][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}

// Renderer rasterizes caption text onto transparent frame-sized canvases
type Renderer struct {
	settings FontSettings
	faces    *Faces
	logger   *zap.Logger
}

// NewRenderer creates a Renderer for the given settings and loaded faces
func NewRenderer(settings FontSettings, faces *Faces, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		settings: settings,
		faces:    faces,
		logger:   logger,
	}
}

// Settings returns the font settings the renderer was built with
func (r *Renderer) Settings() FontSettings {
	return r.settings
}

// Columns returns the estimated characters per line for a canvas width
func (r *Renderer) Columns(width int) int {
	boxWidth := float64(width) * r.settings.WidthPercent
	glyph := font.MeasureString(r.faces.Regular, referenceGlyph)
	return WrapColumns(boxWidth, fixedToFloat(glyph))
}

// Layout parses emphasis markers in text and wraps it for a canvas width
func (r *Renderer) Layout(text string, width int) []Line {
	return LayoutWords(ParseEmphasis(text), r.Columns(width))
}

// Render draws text as a bottom-anchored, horizontally centered block on a
// transparent canvas of exactly width x height pixels.
func (r *Renderer) Render(text string, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	if r.faces == nil || r.faces.Regular == nil || r.faces.Bold == nil {
		return nil, fmt.Errorf("renderer has no font faces loaded")
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	lines := r.Layout(text, width)
	if len(lines) == 0 {
		return img, nil
	}

	lineHeight := r.settings.FontSize + r.settings.LineSpacing
	startY := height - len(lines)*lineHeight - r.settings.BottomPadding
	ascent := r.faces.Regular.Metrics().Ascent.Ceil()

	fill := image.NewUniform(r.settings.FontColor)
	outline := image.NewUniform(r.settings.OutlineColor)
	space := font.MeasureString(r.faces.Regular, " ")

	for i, line := range lines {
		baseline := startY + i*lineHeight + ascent
		x := (fixed.I(width) - r.lineWidth(line, space)) / 2

		for _, word := range line {
			face := r.face(word)
			if r.settings.OutlineWidth > 0 {
				for _, off := range outlineOffsets {
					dot := fixed.Point26_6{
						X: x + fixed.I(off[0]*r.settings.OutlineWidth),
						Y: fixed.I(baseline + off[1]*r.settings.OutlineWidth),
					}
					drawString(img, outline, face, dot, word.Text)
				}
			}
			drawString(img, fill, face, fixed.Point26_6{X: x, Y: fixed.I(baseline)}, word.Text)
			x += font.MeasureString(face, word.Text) + space
		}
	}

	r.logger.Debug("rendered caption",
		zap.String("text", text),
		zap.Int("lines", len(lines)),
		zap.Int("start_y", startY))

	return img, nil
}

func (r *Renderer) face(w Word) font.Face {
	if w.Emphasized {
		return r.faces.Bold
	}
	return r.faces.Regular
}

func (r *Renderer) lineWidth(line Line, space fixed.Int26_6) fixed.Int26_6 {
	var total fixed.Int26_6
	for i, w := range line {
		if i > 0 {
			total += space
		}
		total += font.MeasureString(r.face(w), w.Text)
	}
	return total
}

func drawString(dst *image.NRGBA, src image.Image, face font.Face, dot fixed.Point26_6, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  src,
		Face: face,
		Dot:  dot,
	}
	d.DrawString(s)
}

func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}
