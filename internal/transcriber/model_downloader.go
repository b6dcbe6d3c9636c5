package transcriber

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultModelBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// knownModels maps whisper.cpp ggml model names to their approximate download size
var knownModels = map[string]string{
	"tiny.en":   "39 MB",
	"tiny":      "39 MB",
	"base.en":   "142 MB",
	"base":      "142 MB",
	"small.en":  "244 MB",
	"small":     "244 MB",
	"medium.en": "769 MB",
	"medium":    "769 MB",
	"large-v1":  "1.5 GB",
	"large-v2":  "1.5 GB",
	"large-v3":  "1.5 GB",
}

// ModelDownloader fetches whisper.cpp ggml models for the CLI backend
type ModelDownloader struct {
	logger    *zap.Logger
	modelsDir string
	client    *http.Client
	baseURL   string
}

// NewModelDownloader creates a downloader that stores models under modelsDir
func NewModelDownloader(logger *zap.Logger, modelsDir string) *ModelDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelDownloader{
		logger:    logger,
		modelsDir: modelsDir,
		client: &http.Client{
			Timeout: 10 * time.Minute,
		},
		baseURL: defaultModelBaseURL,
	}
}

// WithBaseURL points the downloader at a different model mirror
func (d *ModelDownloader) WithBaseURL(baseURL string) *ModelDownloader {
	d.baseURL = strings.TrimRight(baseURL, "/")
	return d
}

// GetAvailableModels returns the known model names, sorted
func (d *ModelDownloader) GetAvailableModels() []string {
	names := make([]string, 0, len(knownModels))
	for name := range knownModels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsValidModelName checks if a model name is in the list of known models
func (d *ModelDownloader) IsValidModelName(modelName string) bool {
	_, ok := knownModels[canonicalModelName(modelName)]
	return ok
}

// canonicalModelName maps a case-insensitive match onto the known spelling
func canonicalModelName(modelName string) string {
	modelName = strings.TrimSpace(modelName)
	for name := range knownModels {
		if strings.EqualFold(name, modelName) {
			return name
		}
	}
	return modelName
}

// GetModelSize returns approximate size information for common models
func (d *ModelDownloader) GetModelSize(modelName string) string {
	if size, ok := knownModels[modelName]; ok {
		return size
	}
	return "Unknown"
}

// GetModelPath returns the path a model is stored at inside the models directory
func (d *ModelDownloader) GetModelPath(modelName string) string {
	return filepath.Join(d.modelsDir, fmt.Sprintf("ggml-%s.bin", canonicalModelName(modelName)))
}

// EnsureModelExists downloads modelName to modelPath unless a file is already
// there. Only known model names are downloaded.
func (d *ModelDownloader) EnsureModelExists(ctx context.Context, modelName, modelPath string) error {
	if _, err := os.Stat(modelPath); err == nil {
		d.logger.Debug("model already present",
			zap.String("model", modelName),
			zap.String("path", modelPath))
		return nil
	}

	if !d.IsValidModelName(modelName) {
		return fmt.Errorf("unknown whisper model %q (available: %s)",
			modelName, strings.Join(d.GetAvailableModels(), ", "))
	}
	modelName = canonicalModelName(modelName)

	d.logger.Info("model not found locally, downloading",
		zap.String("model", modelName),
		zap.String("size", d.GetModelSize(modelName)),
		zap.String("path", modelPath))

	if err := os.MkdirAll(filepath.Dir(modelPath), 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	return d.downloadModel(ctx, modelName, modelPath)
}

func (d *ModelDownloader) downloadModel(ctx context.Context, modelName, modelPath string) error {
	url := fmt.Sprintf("%s/ggml-%s.bin", d.baseURL, modelName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", "vidcaption (Go HTTP Client)")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download model: HTTP %d", resp.StatusCode)
	}

	// Download next to the destination so the final rename is atomic
	tempFile := modelPath + ".tmp"
	defer os.Remove(tempFile)

	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	progress := &progressWriter{
		logger:   d.logger,
		model:    modelName,
		total:    resp.ContentLength,
		interval: 10 * time.Second,
		last:     time.Now(),
	}
	written, err := io.Copy(out, io.TeeReader(resp.Body, progress))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to download model data: %w", err)
	}

	if err := os.Rename(tempFile, modelPath); err != nil {
		return fmt.Errorf("failed to move downloaded model to final location: %w", err)
	}

	d.logger.Info("model download completed",
		zap.String("model", modelName),
		zap.String("path", modelPath),
		zap.Int64("bytes", written))
	return nil
}

// progressWriter logs download progress at most once per interval
type progressWriter struct {
	logger   *zap.Logger
	model    string
	total    int64
	written  int64
	interval time.Duration
	last     time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if now := time.Now(); now.Sub(p.last) >= p.interval {
		fields := []zap.Field{zap.String("model", p.model), zap.Int64("downloaded", p.written)}
		if p.total > 0 {
			fields = append(fields,
				zap.Int64("total", p.total),
				zap.Float64("percentage", float64(p.written)/float64(p.total)*100))
		}
		p.logger.Info("download progress", fields...)
		p.last = now
	}
	return len(b), nil
}
