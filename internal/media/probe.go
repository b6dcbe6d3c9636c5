package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type probeResult struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// MediaInfo is what the pipeline needs to know about a source video
type MediaInfo struct {
	Duration   float64
	Width      int
	Height     int
	VideoCodec string
	AudioCodec string
	FrameRate  string
}

// HasAudio reports whether the container carries an audio stream
func (m *MediaInfo) HasAudio() bool {
	return m.AudioCodec != ""
}

// Probe inspects path with ffprobe
func (f *FFmpeg) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	info, err := parseProbe(output)
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return info, nil
}

func parseProbe(output []byte) (*MediaInfo, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	info := &MediaInfo{}
	for _, s := range result.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec == "" {
				info.VideoCodec = s.CodecName
				info.Width = s.Width
				info.Height = s.Height
				info.FrameRate = s.RFrameRate
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("missing or invalid duration %q", result.Format.Duration)
	}
	info.Duration = duration

	if info.VideoCodec == "" || info.Width <= 0 || info.Height <= 0 {
		return nil, errors.New("no video stream found")
	}
	return info, nil
}
