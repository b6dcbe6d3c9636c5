package render

import "regexp"

// TextSegment is a run of caption text that is either emphasized or plain
type TextSegment struct {
	Text       string
	Emphasized bool
}

var emphasisPattern = regexp.MustCompile(`\*(.*?)\*|([^*]+)`)

// ParseEmphasis splits text on paired *markers* into alternating runs.
// Whitespace inside plain runs is preserved so "A *B* C" yields "A ", "B", " C".
func ParseEmphasis(text string) []TextSegment {
	var segments []TextSegment
	for _, m := range emphasisPattern.FindAllStringSubmatchIndex(text, -1) {
		switch {
		case m[2] >= 0:
			if m[3] > m[2] {
				segments = append(segments, TextSegment{Text: text[m[2]:m[3]], Emphasized: true})
			}
		case m[4] >= 0:
			segments = append(segments, TextSegment{Text: text[m[4]:m[5]]})
		}
	}
	return segments
}
