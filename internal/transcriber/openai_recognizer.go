package transcriber

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// OpenAIRecognizer calls an OpenAI-compatible /audio/transcriptions endpoint
type OpenAIRecognizer struct {
	client   openai.Client
	model    string
	language string
	logger   *zap.Logger
}

// NewOpenAIRecognizer creates a recognizer for the given API key and base URL
func NewOpenAIRecognizer(apiKey, baseURL, model, language string, timeout time.Duration, logger *zap.Logger) *OpenAIRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIRecognizer{
		client:   openai.NewClient(opts...),
		model:    model,
		language: language,
		logger:   logger,
	}
}

// Name returns the backend name
func (r *OpenAIRecognizer) Name() string {
	return BackendOpenAI
}

// Recognize uploads wavPath and returns the transcribed text
func (r *OpenAIRecognizer) Recognize(ctx context.Context, wavPath string) (string, error) {
	audioFile, err := os.Open(wavPath)
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer audioFile.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  audioFile,
		Model: openai.AudioModel(r.model),
	}
	if r.language != "" && r.language != "auto" {
		params.Language = openai.String(r.language)
	}

	r.logger.Debug("sending audio to transcription API",
		zap.String("model", r.model),
		zap.String("audio", wavPath))

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcription API request: %w", err)
	}

	text := cleanTranscript(resp.Text)
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}
