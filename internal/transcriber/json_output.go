package transcriber

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrTranscriptionNotFound is returned when a saved transcription is requested but absent
var ErrTranscriptionNotFound = errors.New("transcription file not found")

// TranscriptionPath returns the sidecar path for a video: <dir>/<stem>.transcription.json
func TranscriptionPath(videoPath string) string {
	ext := filepath.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + ".transcription.json"
}

// JSONOutput writes transcription segments as a JSON array to a writer
type JSONOutput struct {
	writer io.Writer
	logger *zap.Logger
}

// NewJSONOutput creates a new JSONOutput instance
func NewJSONOutput(writer io.Writer, logger *zap.Logger) *JSONOutput {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONOutput{
		writer: writer,
		logger: logger,
	}
}

// WriteSegments validates every segment and writes them as one indented JSON array
func (jo *JSONOutput) WriteSegments(segments []Segment) error {
	for i, segment := range segments {
		if err := segment.Validate(); err != nil {
			jo.logger.Error("invalid segment", zap.Int("index", i), zap.Error(err))
			return fmt.Errorf("invalid segment %d: %w", i, err)
		}
	}

	if segments == nil {
		segments = []Segment{}
	}
	jsonBytes, err := json.MarshalIndent(segments, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal segments to JSON: %w", err)
	}

	if _, err := fmt.Fprintf(jo.writer, "%s\n", jsonBytes); err != nil {
		jo.logger.Error("failed to write JSON output", zap.Error(err))
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	jo.logger.Debug("wrote transcription JSON", zap.Int("segments", len(segments)))
	return nil
}

// SaveTranscription writes segments to path, replacing any existing file atomically
func SaveTranscription(path string, segments []Segment, logger *zap.Logger) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create transcription file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := NewJSONOutput(tmp, logger).WriteSegments(segments); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close transcription file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to save transcription to %s: %w", path, err)
	}
	return nil
}

// LoadTranscription reads a saved transcription. Records may be objects
// {"start","end","text"} or positional arrays [start, end, text].
func LoadTranscription(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTranscriptionNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcription %s: %w", path, err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse transcription %s: %w", path, err)
	}

	segments := make([]Segment, 0, len(records))
	for i, raw := range records {
		segment, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("transcription %s record %d: %w", path, i, err)
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

// decodeRecord accepts times as JSON numbers or numeric strings
func decodeRecord(raw json.RawMessage) (Segment, error) {
	var start, end, text json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var fields []json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return Segment{}, err
		}
		if len(fields) != 3 {
			return Segment{}, fmt.Errorf("expected [start, end, text], got %d fields", len(fields))
		}
		start, end, text = fields[0], fields[1], fields[2]
	} else {
		var obj struct {
			Start json.RawMessage `json:"start"`
			End   json.RawMessage `json:"end"`
			Text  json.RawMessage `json:"text"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Segment{}, err
		}
		start, end, text = obj.Start, obj.End, obj.Text
	}

	var s Segment
	var err error
	if s.Start, err = decodeSeconds(start); err != nil {
		return Segment{}, fmt.Errorf("start: %w", err)
	}
	if s.End, err = decodeSeconds(end); err != nil {
		return Segment{}, fmt.Errorf("end: %w", err)
	}
	if len(text) > 0 {
		if err := json.Unmarshal(text, &s.Text); err != nil {
			return Segment{}, fmt.Errorf("text: %w", err)
		}
	}
	return s, nil
}

func decodeSeconds(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	var sec float64
	if err := json.Unmarshal(raw, &sec); err == nil {
		return sec, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, fmt.Errorf("expected a number, got %s", raw)
	}
	sec, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
	if err != nil {
		return 0, fmt.Errorf("expected a number, got %q", str)
	}
	return sec, nil
}
