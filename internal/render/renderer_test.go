package render

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func testSettings() FontSettings {
	return FontSettings{
		FontPath:      "",
		BoldFontPath:  "",
		FontSize:      30,
		FontColor:     ParseColor("white"),
		OutlineColor:  ParseColor("red"),
		OutlineWidth:  0,
		LineSpacing:   4,
		BottomPadding: 50,
		WidthPercent:  0.8,
	}
}

func newTestRenderer(t *testing.T, settings FontSettings) *Renderer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	faces, err := LoadFaces(settings, logger)
	require.NoError(t, err)
	t.Cleanup(func() { faces.Close() })
	return NewRenderer(settings, faces, logger)
}

func inkBounds(img *image.NRGBA) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y).A == 0 {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func hasColor(img *image.NRGBA, want color.RGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			if c.A == 255 && c.R == want.R && c.G == want.G && c.B == want.B {
				return true
			}
		}
	}
	return false
}

func TestLoadFaces(t *testing.T) {
	t.Run("should fall back to built-in font and log a warning", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zapcore.WarnLevel)
		settings := testSettings()
		settings.FontPath = filepath.Join(t.TempDir(), "missing.ttf")

		// Act
		faces, err := LoadFaces(settings, zap.New(core))

		// Assert
		require.NoError(t, err)
		defer faces.Close()
		assert.NotNil(t, faces.Regular)
		assert.NotNil(t, faces.Bold)
		assert.Equal(t, 2, logs.FilterMessage("could not load custom font, using default").Len())
	})

	t.Run("should fall back when the file is not a font", func(t *testing.T) {
		// Arrange
		path := filepath.Join(t.TempDir(), "bogus.ttf")
		require.NoError(t, os.WriteFile(path, []byte("not a font"), 0644))
		settings := testSettings()
		settings.FontPath = path
		settings.BoldFontPath = path

		// Act
		faces, err := LoadFaces(settings, zaptest.NewLogger(t))

		// Assert
		require.NoError(t, err)
		defer faces.Close()
		assert.NotNil(t, faces.Regular)
	})
}

func TestFontSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FontSettings)
		errMsg string
	}{
		{name: "valid", mutate: func(*FontSettings) {}},
		{name: "zero size", mutate: func(fs *FontSettings) { fs.FontSize = 0 }, errMsg: "font size must be positive"},
		{name: "negative outline", mutate: func(fs *FontSettings) { fs.OutlineWidth = -1 }, errMsg: "outline width cannot be negative"},
		{name: "negative spacing", mutate: func(fs *FontSettings) { fs.LineSpacing = -2 }, errMsg: "line spacing cannot be negative"},
		{name: "negative padding", mutate: func(fs *FontSettings) { fs.BottomPadding = -2 }, errMsg: "bottom padding cannot be negative"},
		{name: "width above one", mutate: func(fs *FontSettings) { fs.WidthPercent = 1.5 }, errMsg: "width percent must be between 0.0 and 1.0"},
		{name: "zero width", mutate: func(fs *FontSettings) { fs.WidthPercent = 0 }, errMsg: "width percent must be between 0.0 and 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := testSettings()
			tt.mutate(&fs)

			err := fs.Validate()

			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.errMsg)
		})
	}
}

func TestRenderer_Layout(t *testing.T) {
	t.Run("should produce one line when text is narrower than the box", func(t *testing.T) {
		// Arrange
		r := newTestRenderer(t, testSettings())

		// Act
		lines := r.Layout("HELLO", 1280)

		// Assert
		assert.Len(t, lines, 1)
	})

	t.Run("should wrap long captions into several lines", func(t *testing.T) {
		// Arrange
		r := newTestRenderer(t, testSettings())
		text := "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG AND KEEPS RUNNING ACROSS THE FIELD"

		// Act
		lines := r.Layout(text, 320)

		// Assert
		assert.Greater(t, len(lines), 1)
		for _, line := range lines {
			assert.LessOrEqual(t, len(line.String()), r.Columns(320))
		}
	})
}

func TestRenderer_Render(t *testing.T) {
	t.Run("should return a transparent canvas of the frame size", func(t *testing.T) {
		// Arrange
		r := newTestRenderer(t, testSettings())

		// Act
		img, err := r.Render("HELLO WORLD", 640, 360)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 640, 360), img.Bounds())
		assert.Equal(t, uint8(0), img.NRGBAAt(0, 0).A)
	})

	t.Run("should anchor text above the bottom padding and center it", func(t *testing.T) {
		// Arrange
		settings := testSettings()
		r := newTestRenderer(t, settings)

		// Act
		img, err := r.Render("HELLO", 640, 360)

		// Assert
		require.NoError(t, err)
		ink, ok := inkBounds(img)
		require.True(t, ok)
		assert.LessOrEqual(t, ink.Max.Y, 360-settings.BottomPadding)
		assert.GreaterOrEqual(t, ink.Min.Y, 360-settings.BottomPadding-(settings.FontSize+settings.LineSpacing))
		center := (ink.Min.X + ink.Max.X) / 2
		assert.InDelta(t, 320, center, 4)
	})

	t.Run("should draw outline color only when outline width is positive", func(t *testing.T) {
		// Arrange
		plain := newTestRenderer(t, testSettings())
		outlined := testSettings()
		outlined.OutlineWidth = 2
		stroked := newTestRenderer(t, outlined)

		// Act
		imgPlain, err := plain.Render("HELLO", 640, 360)
		require.NoError(t, err)
		imgStroked, err := stroked.Render("HELLO", 640, 360)
		require.NoError(t, err)

		// Assert
		assert.False(t, hasColor(imgPlain, outlined.OutlineColor))
		assert.True(t, hasColor(imgStroked, outlined.OutlineColor))
		assert.True(t, hasColor(imgStroked, outlined.FontColor))
	})

	t.Run("should stack wrapped lines upward from the padding", func(t *testing.T) {
		// Arrange
		settings := testSettings()
		r := newTestRenderer(t, settings)
		text := "ONE TWO THREE FOUR FIVE SIX SEVEN EIGHT NINE TEN"

		// Act
		lines := r.Layout(text, 200)
		img, err := r.Render(text, 200, 400)

		// Assert
		require.NoError(t, err)
		require.Greater(t, len(lines), 1)
		ink, ok := inkBounds(img)
		require.True(t, ok)
		top := 400 - settings.BottomPadding - len(lines)*(settings.FontSize+settings.LineSpacing)
		assert.GreaterOrEqual(t, ink.Min.Y, top)
		assert.LessOrEqual(t, ink.Min.Y, top+settings.FontSize)
	})

	t.Run("should render empty text as blank canvas", func(t *testing.T) {
		r := newTestRenderer(t, testSettings())

		img, err := r.Render("", 100, 100)

		require.NoError(t, err)
		_, ok := inkBounds(img)
		assert.False(t, ok)
	})

	t.Run("should reject empty canvas", func(t *testing.T) {
		r := newTestRenderer(t, testSettings())

		_, err := r.Render("HELLO", 0, 100)

		assert.Error(t, err)
	})
}
