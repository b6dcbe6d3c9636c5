package render

import (
	"errors"
	"fmt"
	"image/color"
	"os"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"vidcaption/internal/config"
)

// FontSettings bundles everything the renderer needs to draw a caption.
// It is built once per run and treated as read-only afterwards.
type FontSettings struct {
	FontPath      string
	BoldFontPath  string
	FontSize      int
	FontColor     color.RGBA
	OutlineColor  color.RGBA
	OutlineWidth  int
	LineSpacing   int
	BottomPadding int
	WidthPercent  float64
}

// FontSettingsFromConfig reads the font.* settings, parsing both colors
func FontSettingsFromConfig(cfg *config.Configuration) FontSettings {
	return FontSettings{
		FontPath:      cfg.GetFontPath(),
		BoldFontPath:  cfg.GetBoldFontPath(),
		FontSize:      cfg.GetFontSize(),
		FontColor:     ParseColor(cfg.GetFontColor()),
		OutlineColor:  ParseColor(cfg.GetOutlineColor()),
		OutlineWidth:  cfg.GetOutlineWidth(),
		LineSpacing:   cfg.GetLineSpacing(),
		BottomPadding: cfg.GetBottomPadding(),
		WidthPercent:  cfg.GetWidthPercent(),
	}
}

// Validate checks if the FontSettings has usable values
func (fs FontSettings) Validate() error {
	if fs.FontSize <= 0 {
		return fmt.Errorf("font size must be positive")
	}
	if fs.OutlineWidth < 0 {
		return fmt.Errorf("outline width cannot be negative")
	}
	if fs.LineSpacing < 0 {
		return fmt.Errorf("line spacing cannot be negative")
	}
	if fs.BottomPadding < 0 {
		return fmt.Errorf("bottom padding cannot be negative")
	}
	if fs.WidthPercent <= 0 || fs.WidthPercent > 1 {
		return fmt.Errorf("width percent must be between 0.0 and 1.0")
	}
	return nil
}

// Faces holds the regular and bold faces used for plain and emphasized words
type Faces struct {
	Regular font.Face
	Bold    font.Face
}

// Close releases both faces
func (f *Faces) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	if f.Regular != nil {
		errs = append(errs, f.Regular.Close())
	}
	if f.Bold != nil && f.Bold != f.Regular {
		errs = append(errs, f.Bold.Close())
	}
	return errors.Join(errs...)
}

// LoadFaces opens the configured font files at the configured size. A font that
// cannot be read or parsed is replaced by the built-in Go font and a warning is logged.
func LoadFaces(settings FontSettings, logger *zap.Logger) (*Faces, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := float64(settings.FontSize)

	regular, err := loadFace(settings.FontPath, goregular.TTF, size, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load regular font: %w", err)
	}

	boldPath := settings.BoldFontPath
	if boldPath == "" {
		boldPath = settings.FontPath
	}
	bold, err := loadFace(boldPath, gobold.TTF, size, logger)
	if err != nil {
		regular.Close()
		return nil, fmt.Errorf("failed to load bold font: %w", err)
	}

	return &Faces{Regular: regular, Bold: bold}, nil
}

func loadFace(path string, fallback []byte, size float64, logger *zap.Logger) (font.Face, error) {
	var err error
	if path == "" {
		err = errors.New("no font path configured")
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err == nil {
			var face font.Face
			face, err = parseFace(data, size)
			if err == nil {
				return face, nil
			}
		}
	}

	logger.Warn("could not load custom font, using default",
		zap.String("path", path),
		zap.Error(err))
	return parseFace(fallback, size)
}

func parseFace(data []byte, size float64) (font.Face, error) {
	f, err := opentype.Parse(data)
	if err != nil {
		// .ttc collections: use the first font
		collection, cerr := opentype.ParseCollection(data)
		if cerr != nil || collection.NumFonts() == 0 {
			return nil, fmt.Errorf("parse font: %w", err)
		}
		f, err = collection.Font(0)
		if err != nil {
			return nil, fmt.Errorf("parse font collection: %w", err)
		}
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}
