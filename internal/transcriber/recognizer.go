package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vidcaption/internal/config"
)

// ErrUnintelligible is returned by a Recognizer when the audio contained no
// speech it could understand. Callers treat it as an empty window.
var ErrUnintelligible = errors.New("speech unintelligible")

// Recognizer turns a short WAV file into text
type Recognizer interface {
	Recognize(ctx context.Context, wavPath string) (string, error)
	Name() string
}

// AudioSlicer cuts [start, start+duration) seconds of src into a 16 kHz mono WAV at dst
type AudioSlicer interface {
	Slice(ctx context.Context, src string, start, duration float64, dst string) error
}

// Recognizer backends selectable through recognizer.backend
const (
	BackendWhisperServer = "whisper-server"
	BackendWhisperCLI    = "whisper-cli"
	BackendOpenAI        = "openai"
)

// NewRecognizer builds the recognizer named by the configured backend. The
// whisper-cli backend downloads its model first; ctx aborts the download.
func NewRecognizer(ctx context.Context, cfg *config.Configuration, logger *zap.Logger) (Recognizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch backend := cfg.GetRecognizerBackend(); backend {
	case BackendWhisperServer, "":
		return NewWhisperServerRecognizer(
			cfg.GetRecognizerServerURL(),
			cfg.GetRecognizerLanguage(),
			cfg.GetRecognizerTimeout(),
			logger,
		), nil
	case BackendWhisperCLI:
		downloader := NewModelDownloader(logger, cfg.GetWhisperModelsDir())
		name := cfg.GetWhisperModelName()
		modelPath := cfg.GetWhisperModelPath()
		if modelPath == "" {
			if !downloader.IsValidModelName(name) {
				return nil, fmt.Errorf("unknown whisper model %q (available: %s)",
					name, strings.Join(downloader.GetAvailableModels(), ", "))
			}
			modelPath = downloader.GetModelPath(name)
		}
		if err := downloader.EnsureModelExists(ctx, name, modelPath); err != nil {
			return nil, fmt.Errorf("failed to prepare whisper model: %w", err)
		}
		return NewWhisperCLIRecognizer(
			cfg.GetWhisperCLIPath(),
			modelPath,
			cfg.GetRecognizerLanguage(),
			logger,
		), nil
	case BackendOpenAI:
		if cfg.GetOpenAIAPIKey() == "" {
			return nil, fmt.Errorf("openai backend requires an API key (OPENAI_API_KEY)")
		}
		return NewOpenAIRecognizer(
			cfg.GetOpenAIAPIKey(),
			cfg.GetOpenAIBaseURL(),
			cfg.GetOpenAITranscriptionModel(),
			cfg.GetRecognizerLanguage(),
			cfg.GetRecognizerTimeout(),
			logger,
		), nil
	default:
		return nil, fmt.Errorf("unknown recognizer backend %q", backend)
	}
}
