package render

import (
	"strings"
	"unicode/utf8"
)

// Word is a single laid-out word with its emphasis flag
type Word struct {
	Text       string
	Emphasized bool
}

// Line is one row of laid-out words
type Line []Word

// String joins the words of the line with single spaces
func (l Line) String() string {
	parts := make([]string, len(l))
	for i, w := range l {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// WrapColumns estimates how many characters fit into boxWidth pixels given the
// advance of a reference glyph. It never returns less than one column.
func WrapColumns(boxWidth, glyphWidth float64) int {
	if glyphWidth <= 0 {
		return 1
	}
	cols := int(boxWidth / glyphWidth)
	if cols < 1 {
		return 1
	}
	return cols
}

// WrapText greedily wraps plain text by word so that each line, with single
// spaces between words, holds at most columns characters. A word longer than
// columns is placed on a line of its own.
func WrapText(text string, columns int) []string {
	lines := LayoutWords([]TextSegment{{Text: text}}, columns)
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.String()
	}
	return out
}

// LayoutWords packs the words of the emphasis runs onto lines using the same
// column budget as WrapText, carrying each word's emphasis flag.
func LayoutWords(segments []TextSegment, columns int) []Line {
	if columns < 1 {
		columns = 1
	}
	var (
		lines   []Line
		current Line
		length  int
	)
	for _, seg := range segments {
		for _, word := range strings.Fields(seg.Text) {
			n := utf8.RuneCountInString(word)
			if len(current) > 0 && length+1+n > columns {
				lines = append(lines, current)
				current, length = nil, 0
			}
			if len(current) > 0 {
				length++
			}
			current = append(current, Word{Text: word, Emphasized: seg.Emphasized})
			length += n
		}
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}
	return lines
}
