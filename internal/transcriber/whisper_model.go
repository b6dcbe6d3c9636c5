package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// WhisperCLIRecognizer runs the whisper.cpp command line binary once per window
type WhisperCLIRecognizer struct {
	binaryPath string
	modelPath  string
	language   string
	logger     *zap.Logger
}

// NewWhisperCLIRecognizer creates a recognizer that shells out to binaryPath with modelPath
func NewWhisperCLIRecognizer(binaryPath, modelPath, language string, logger *zap.Logger) *WhisperCLIRecognizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WhisperCLIRecognizer{
		binaryPath: binaryPath,
		modelPath:  modelPath,
		language:   language,
		logger:     logger,
	}
}

// Name returns the backend name
func (w *WhisperCLIRecognizer) Name() string {
	return BackendWhisperCLI
}

// buildArgs builds the whisper.cpp arguments: no timestamps, no progress output
func (w *WhisperCLIRecognizer) buildArgs(wavPath string) []string {
	args := []string{"-m", w.modelPath, "-f", wavPath, "-nt", "-np"}
	if w.language != "" {
		args = append(args, "-l", w.language)
	}
	return args
}

// Recognize runs whisper.cpp on wavPath and returns the text it prints
func (w *WhisperCLIRecognizer) Recognize(ctx context.Context, wavPath string) (string, error) {
	if w.modelPath == "" {
		return "", fmt.Errorf("model path cannot be empty")
	}

	args := w.buildArgs(wavPath)
	cmd := exec.CommandContext(ctx, w.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	w.logger.Debug("running whisper.cpp",
		zap.String("binary", w.binaryPath),
		zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper.cpp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := cleanTranscript(stdout.String())
	if text == "" {
		return "", ErrUnintelligible
	}
	return text, nil
}
