package transcriber

import (
	"cmp"
	"slices"
)

// Normalize orders segments by start time and removes overlap by clamping each
// start forward to the end of the previous kept segment. Segments left with
// start >= end are dropped. Gaps between segments are preserved. The input
// slice is not modified.
func Normalize(segments []Segment) []Segment {
	sorted := slices.Clone(segments)
	slices.SortStableFunc(sorted, func(a, b Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})

	out := make([]Segment, 0, len(sorted))
	for _, s := range sorted {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if s.Start < prev.End {
				s.Start = prev.End
			}
		}
		if s.Start >= s.End {
			continue
		}
		out = append(out, s)
	}
	return out
}
