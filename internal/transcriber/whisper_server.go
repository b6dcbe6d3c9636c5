package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// WhisperServerRecognizer sends WAV files to a whisper.cpp server's /inference endpoint
type WhisperServerRecognizer struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWhisperServerRecognizer creates a recognizer for the whisper.cpp server at baseURL
func NewWhisperServerRecognizer(baseURL, language string, timeout time.Duration, logger *zap.Logger) *WhisperServerRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperServerRecognizer{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Name returns the backend name
func (r *WhisperServerRecognizer) Name() string {
	return BackendWhisperServer
}

type inferenceResponse struct {
	Text  string `json:"text"`
	Error string `json:"error"`
}

// Recognize uploads wavPath and returns the transcribed text
func (r *WhisperServerRecognizer) Recognize(ctx context.Context, wavPath string) (string, error) {
	var buf bytes.Buffer
	contentType, err := r.writeInferenceForm(&buf, wavPath)
	if err != nil {
		return "", err
	}

	url := r.baseURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	r.logger.Debug("sending audio to whisper server",
		zap.String("url", url),
		zap.String("audio", wavPath))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper server request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper server error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode whisper server response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("whisper server error: %s", parsed.Error)
	}

	text := cleanTranscript(parsed.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}

// nonSpeechMarkers are emitted by whisper for silence or noise
var nonSpeechMarkers = []string{"[BLANK_AUDIO]", "[MUSIC]", "[NOISE]", "(silence)", "[SILENCE]"}

// cleanTranscript trims whitespace and strips whisper non-speech markers
// writeInferenceForm writes the multipart body /inference expects and returns its content type
func (r *WhisperServerRecognizer) writeInferenceForm(w io.Writer, wavPath string) (string, error) {
	writer := multipart.NewWriter(w)

	audioFile, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer audioFile.Close()

	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audioFile); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}

	fields := [][2]string{
		{"response_format", "json"},
		{"temperature", "0.0"},
	}
	if r.language != "" && r.language != "auto" {
		fields = append(fields, [2]string{"language", r.language})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("write form field %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish form: %w", err)
	}
	return writer.FormDataContentType(), nil
}

func cleanTranscript(text string) string {
	for _, marker := range nonSpeechMarkers {
		text = strings.ReplaceAll(text, marker, " ")
	}
	return strings.Join(strings.Fields(text), " ")
}
