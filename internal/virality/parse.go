package virality

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// RankedClip is one clip as ranked by the model
type RankedClip struct {
	Name      string  `json:"name"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Score     int     `json:"score"`
	Factors   string  `json:"factors,omitempty"`
	Platforms string  `json:"platforms,omitempty"`
}

var (
	clipHeaderRe = regexp.MustCompile(`^\d+\.\s\*\*Clip Name:`)
	clipNameRe   = regexp.MustCompile(`Clip Name: "(.*?)"`)
	clipTimeRe   = regexp.MustCompile(`Start: ([\d.]+)s, End: ([\d.]+)s`)
	clipScoreRe  = regexp.MustCompile(`Score: (\d+)`)
	clipFactorRe = regexp.MustCompile(`Factors: (.+)`)
	clipPlatRe   = regexp.MustCompile(`Platforms: (.+)`)
)

// ParseRankedClips reads the numbered clip blocks of a ranking reply:
//
//	1. **Clip Name: "Title"**
//	   Start: 12.5s, End: 30s
//	   Score: 8
//	   Factors: ...
//	   Platforms: ...
//
// Blocks without a name are dropped. The result is sorted by score, highest first.
func ParseRankedClips(text string) []RankedClip {
	var (
		clips   []RankedClip
		current *RankedClip
	)
	flush := func() {
		if current != nil && current.Name != "" {
			clips = append(clips, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if clipHeaderRe.MatchString(line) {
			flush()
			current = &RankedClip{}
			if m := clipNameRe.FindStringSubmatch(line); m != nil {
				current.Name = m[1]
			}
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.Contains(line, "Start:") && strings.Contains(line, "End:"):
			if m := clipTimeRe.FindStringSubmatch(line); m != nil {
				current.Start, _ = strconv.ParseFloat(m[1], 64)
				current.End, _ = strconv.ParseFloat(m[2], 64)
			}
		case strings.Contains(line, "Score:"):
			if m := clipScoreRe.FindStringSubmatch(line); m != nil {
				current.Score, _ = strconv.Atoi(m[1])
			}
		case strings.Contains(line, "Factors:"):
			if m := clipFactorRe.FindStringSubmatch(line); m != nil {
				current.Factors = strings.TrimSpace(m[1])
			}
		case strings.Contains(line, "Platforms:"):
			if m := clipPlatRe.FindStringSubmatch(line); m != nil {
				current.Platforms = strings.TrimSpace(m[1])
			}
		}
	}
	flush()

	slices.SortStableFunc(clips, func(a, b RankedClip) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return clips
}
