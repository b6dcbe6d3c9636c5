package render

import (
	"image/color"
	"strconv"
	"strings"
)

var (
	// White is the fallback for unrecognized color tokens
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	namedColors = map[string]color.RGBA{
		"red":    {R: 255, A: 255},
		"white":  White,
		"black":  {A: 255},
		"yellow": {R: 255, G: 255, A: 255},
		"blue":   {B: 255, A: 255},
		"green":  {G: 255, A: 255},
	}
)

// ParseColor converts a "#RRGGBB" hex code or a named color into an opaque RGBA color.
// Unknown names and malformed hex codes resolve to white.
func ParseColor(token string) color.RGBA {
	token = strings.TrimSpace(token)
	if strings.HasPrefix(token, "#") {
		hex := token[1:]
		if len(hex) != 6 {
			return White
		}
		var rgb [3]uint8
		for i := range rgb {
			v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
			if err != nil {
				return White
			}
			rgb[i] = uint8(v)
		}
		return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}
	}
	if c, ok := namedColors[strings.ToLower(token)]; ok {
		return c
	}
	return White
}
