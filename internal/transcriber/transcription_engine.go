package transcriber

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"vidcaption/internal/config"
	"vidcaption/internal/performance"
)

// Options controls how audio is windowed and how recognized text is split
type Options struct {
	// ChunkDuration is the window length in seconds
	ChunkDuration float64
	// MaxWords caps the words in one emitted segment
	MaxWords int
	// Concurrency caps parallel recognizer calls; 1 is sequential
	Concurrency int
	// TempDir is the parent for per-run scratch directories; empty means os.TempDir
	TempDir string
}

// DefaultOptions returns 2 second windows, 5 words per segment and sequential recognition
func DefaultOptions() Options {
	return Options{
		ChunkDuration: 2.0,
		MaxWords:      5,
		Concurrency:   1,
	}
}

// ChunkedTranscriber drives a Recognizer over fixed-length audio windows
type ChunkedTranscriber struct {
	logger             *zap.Logger
	recognizer         Recognizer
	slicer             AudioSlicer
	opts               Options
	performanceMonitor *performance.PerformanceMonitor
}

// NewChunkedTranscriber creates a ChunkedTranscriber. Zero option fields take their defaults.
func NewChunkedTranscriber(recognizer Recognizer, slicer AudioSlicer, opts Options, logger *zap.Logger) *ChunkedTranscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOptions()
	if opts.ChunkDuration <= 0 {
		opts.ChunkDuration = defaults.ChunkDuration
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = defaults.MaxWords
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	return &ChunkedTranscriber{
		logger:             logger,
		recognizer:         recognizer,
		slicer:             slicer,
		opts:               opts,
		performanceMonitor: performance.NewPerformanceMonitor(logger),
	}
}

// NewChunkedTranscriberWithConfig creates a ChunkedTranscriber from configuration
func NewChunkedTranscriberWithConfig(cfg *config.Configuration, recognizer Recognizer, slicer AudioSlicer, logger *zap.Logger) *ChunkedTranscriber {
	ct := NewChunkedTranscriber(recognizer, slicer, Options{
		ChunkDuration: cfg.GetChunkDurationSec(),
		MaxWords:      cfg.GetMaxWordsPerSegment(),
		Concurrency:   cfg.GetTranscriptionConcurrency(),
	}, logger)
	ct.performanceMonitor.BenchmarkMode(cfg.GetDebugMode())
	return ct
}

// Options returns the effective options
func (ct *ChunkedTranscriber) Options() Options {
	return ct.opts
}

// RecognizeWindows runs the recognizer over every window of audioPath and
// returns the raw results ordered by window start. Failed or unintelligible
// windows carry Err and are logged; they never abort the run. Cancelling ctx
// does.
func (ct *ChunkedTranscriber) RecognizeWindows(ctx context.Context, audioPath string, duration float64) ([]WindowResult, error) {
	windows := Windows(duration, ct.opts.ChunkDuration)
	if len(windows) == 0 {
		ct.logger.Warn("no audio to transcribe", zap.Float64("duration", duration))
		return nil, nil
	}

	workDir, err := os.MkdirTemp(ct.opts.TempDir, "vidcaption-chunks-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			ct.logger.Warn("failed to remove chunk directory", zap.String("path", workDir), zap.Error(err))
		}
	}()

	ct.logger.Info("starting chunked transcription",
		zap.String("audio", audioPath),
		zap.String("recognizer", ct.recognizer.Name()),
		zap.Float64("duration", duration),
		zap.Int("windows", len(windows)),
		zap.Int("concurrency", ct.opts.Concurrency))

	// metrics describe this run only
	ct.performanceMonitor.ResetMetrics()

	p := pool.NewWithResults[WindowResult]().WithMaxGoroutines(ct.opts.Concurrency)
	for _, w := range windows {
		p.Go(func() WindowResult {
			return ct.recognizeWindow(ctx, audioPath, workDir, w)
		})
	}
	results := p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transcription cancelled: %w", err)
	}

	slices.SortFunc(results, func(a, b WindowResult) int {
		return cmp.Compare(a.Start, b.Start)
	})

	ct.performanceMonitor.LogCurrentMetrics()
	return results, nil
}

// Transcribe recognizes every window and splits the text into timed segments.
// Segments come back ordered by window but are not yet normalized.
func (ct *ChunkedTranscriber) Transcribe(ctx context.Context, audioPath string, duration float64) ([]Segment, error) {
	results, err := ct.RecognizeWindows(ctx, audioPath, duration)
	if err != nil {
		return nil, err
	}

	var segments []Segment
	skipped := 0
	for _, r := range results {
		if r.Err != nil {
			skipped++
			continue
		}
		segments = append(segments, SplitWindowText(r.Window, ct.opts.ChunkDuration, r.Text, ct.opts.MaxWords)...)
	}

	ct.logger.Info("transcription completed",
		zap.Int("windows", len(results)),
		zap.Int("skipped_windows", skipped),
		zap.Int("segments", len(segments)))

	return segments, nil
}

func (ct *ChunkedTranscriber) recognizeWindow(ctx context.Context, audioPath, workDir string, w Window) WindowResult {
	result := WindowResult{Window: w}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}

	wavPath := filepath.Join(workDir, fmt.Sprintf("chunk-%05d.wav", w.Index))
	defer os.Remove(wavPath)

	if err := ct.slicer.Slice(ctx, audioPath, w.Start, w.Duration(), wavPath); err != nil {
		result.Err = fmt.Errorf("failed to slice window %d: %w", w.Index, err)
		ct.logger.Warn("skipping window, audio slice failed",
			zap.Int("window", w.Index),
			zap.Float64("start", w.Start),
			zap.Error(err))
		return result
	}

	timer := ct.performanceMonitor.StartRecognition(w.Duration(), ct.recognizer.Name())
	text, err := ct.recognizer.Recognize(ctx, wavPath)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrUnintelligible
	}

	switch {
	case err == nil:
		ct.performanceMonitor.EndRecognition(timer, performance.OutcomeRecognized)
		result.Text = text
		ct.logger.Debug("recognized window",
			zap.Int("window", w.Index),
			zap.Float64("start", w.Start),
			zap.String("text", text))
	case errors.Is(err, ErrUnintelligible):
		ct.performanceMonitor.EndRecognition(timer, performance.OutcomeUnintelligible)
		result.Err = err
		ct.logger.Info("could not understand audio",
			zap.Int("window", w.Index),
			zap.Float64("start", w.Start))
	default:
		ct.performanceMonitor.EndRecognition(timer, performance.OutcomeFailed)
		result.Err = err
		ct.logger.Warn("recognition request failed",
			zap.Int("window", w.Index),
			zap.Float64("start", w.Start),
			zap.Error(err))
	}
	return result
}

// GetPerformanceMetrics returns current recognition metrics
func (ct *ChunkedTranscriber) GetPerformanceMetrics() performance.PerformanceMetrics {
	return ct.performanceMonitor.GetMetrics()
}

// GetPerformanceSummary returns a formatted recognition summary
func (ct *ChunkedTranscriber) GetPerformanceSummary() string {
	return ct.performanceMonitor.GetPerformanceSummary()
}
