package transcriber

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Segment is one caption: text shown during [Start, End) seconds of the video
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Validate checks if the Segment has valid values
func (s Segment) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("text cannot be empty")
	}

	if s.Start < 0 {
		return fmt.Errorf("start cannot be negative")
	}

	if s.End <= s.Start {
		return fmt.Errorf("end must be greater than start")
	}

	return nil
}

// Duration returns the display length of the segment in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Window is one fixed-length slice of the source audio handed to a recognizer
type Window struct {
	Index int
	Start float64
	End   float64
}

// Duration returns the window length in seconds
func (w Window) Duration() float64 {
	return w.End - w.Start
}

// WindowResult is the raw recognizer output for one window. Err is set when
// recognition failed or the audio was unintelligible.
type WindowResult struct {
	Window
	Text string
	Err  error
}

// Windows partitions [0, total) into consecutive windows of chunk seconds.
// The last window may be shorter.
func Windows(total, chunk float64) []Window {
	if total <= 0 || chunk <= 0 {
		return nil
	}

	var windows []Window
	for i := 0; ; i++ {
		start := float64(i) * chunk
		if start >= total {
			break
		}
		windows = append(windows, Window{
			Index: i,
			Start: start,
			End:   min(start+chunk, total),
		})
	}
	return windows
}

// SplitWindowText uppercases text recognized in window and groups its words
// into segments of at most maxWords. Timings are linearly interpolated across
// chunk seconds assuming uniform pacing: a group covering words [i, i+k) of n
// starts at window.Start + chunk*i/n and lasts chunk*k/n.
func SplitWindowText(window Window, chunk float64, text string, maxWords int) []Segment {
	words := strings.Fields(cases.Upper(language.Und).String(text))
	n := len(words)
	if n == 0 || chunk <= 0 {
		return nil
	}
	if maxWords <= 0 {
		maxWords = n
	}

	segments := make([]Segment, 0, (n+maxWords-1)/maxWords)
	for i := 0; i < n; i += maxWords {
		k := min(maxWords, n-i)
		start := window.Start + chunk*float64(i)/float64(n)
		segments = append(segments, Segment{
			Start: start,
			End:   start + chunk*float64(k)/float64(n),
			Text:  strings.Join(words[i:i+k], " "),
		})
	}
	return segments
}
