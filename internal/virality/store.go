package virality

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// timestampLayout matches the "YYYY-MM-DD HH:MM:SS" stamp of saved rankings
const timestampLayout = "2006-01-02 15:04:05"

// TopClips is the saved ranking file
type TopClips struct {
	TopClips   []RankedClip `json:"top_clips"`
	TotalClips int          `json:"total_clips"`
	Timestamp  string       `json:"timestamp"`
}

// LoadClips reads a JSON array of candidate clip objects
func LoadClips(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("clips file not found: %s", path)
		}
		return nil, fmt.Errorf("read clips file: %w", err)
	}
	var clips []map[string]any
	if err := json.Unmarshal(data, &clips); err != nil {
		return nil, fmt.Errorf("invalid JSON format in file %s: %w", path, err)
	}
	return clips, nil
}

// SaveTopClips writes the first n clips plus the total count and a timestamp
func SaveTopClips(path string, clips []RankedClip, n int, now time.Time) error {
	top := clips
	if n >= 0 && n < len(top) {
		top = top[:n]
	}
	if top == nil {
		top = []RankedClip{}
	}

	data, err := json.MarshalIndent(TopClips{
		TopClips:   top,
		TotalClips: len(clips),
		Timestamp:  now.Format(timestampLayout),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode top clips: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to save top clips: %w", err)
	}
	return nil
}

// LoadTopClips reads a file written by SaveTopClips
func LoadTopClips(path string) (*TopClips, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ranked clips: %w", err)
	}
	var top TopClips
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("invalid ranked clips file %s: %w", path, err)
	}
	return &top, nil
}

// FormatTimestamp renders seconds as MM:SS
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

var unsafeNameChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\x00", "")

// ClipFileName returns a file name for the clip at rank index+1. The rank
// prefix keeps clips that share a name from overwriting each other.
func ClipFileName(index int, name string) string {
	name = strings.TrimSpace(unsafeNameChars.Replace(name))
	if name == "" || name == "." || name == ".." {
		return fmt.Sprintf("clip-%02d.mp4", index+1)
	}
	return fmt.Sprintf("%02d-%s.mp4", index+1, filepath.Base(name))
}
