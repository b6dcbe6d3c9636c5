package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vidcaption/internal/config"
	"vidcaption/internal/logger"
	"vidcaption/internal/media"
	"vidcaption/internal/render"
	"vidcaption/internal/subtitle"
	"vidcaption/internal/transcriber"
	"vidcaption/internal/virality"
)

// MediaTool is the ffmpeg/ffprobe surface the pipeline needs
type MediaTool interface {
	Probe(ctx context.Context, path string) (*media.MediaInfo, error)
	ExtractAudio(ctx context.Context, video, dst string) error
	Slice(ctx context.Context, src string, start, duration float64, dst string) error
	ExtractClip(ctx context.Context, src string, start, end float64, dst string) error
	Encode(ctx context.Context, args ...string) error
	VideoCodec() string
	AudioCodec() string
}

// Application wires configuration, media tooling, recognizers and the LLM
// client into the subtitle, transcription and virality pipelines
type Application struct {
	config    *config.Configuration
	zapLogger *zap.Logger
	media     MediaTool

	recognizer transcriber.Recognizer
	chatClient virality.ChatClient
	rankerOpts []virality.RankerOption
	now        func() time.Time
}

// Option customizes an Application
type Option func(*Application)

// WithMedia replaces the ffmpeg runner
func WithMedia(m MediaTool) Option {
	return func(a *Application) {
		a.media = m
	}
}

// WithRecognizer replaces the configured speech recognizer
func WithRecognizer(r transcriber.Recognizer) Option {
	return func(a *Application) {
		a.recognizer = r
	}
}

// WithChatClient replaces the OpenRouter client
func WithChatClient(c virality.ChatClient) Option {
	return func(a *Application) {
		a.chatClient = c
	}
}

// WithRankerOptions passes options through to the clip ranker
func WithRankerOptions(opts ...virality.RankerOption) Option {
	return func(a *Application) {
		a.rankerOpts = append(a.rankerOpts, opts...)
	}
}

// WithClock overrides the time source used for saved timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Application) {
		a.now = now
	}
}

// NewApplication creates an application. Recognizer and LLM client are
// created lazily so commands that do not need them work without credentials.
func NewApplication(cfg *config.Configuration, zapLogger *zap.Logger, opts ...Option) *Application {
	a := &Application{
		config:    cfg,
		zapLogger: logger.OrNop(zapLogger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.media == nil {
		a.media = media.NewFFmpegWithConfig(cfg, a.zapLogger)
	}
	return a
}

// run carries the per-invocation logger and scratch directory
type run struct {
	id      string
	logger  *zap.Logger
	workDir string
}

// startRun tags the logger with a fresh run ID and creates a scratch directory
// that the returned cleanup removes
func (app *Application) startRun(operation string) (*run, func(), error) {
	id := uuid.NewString()
	logger := app.zapLogger.With(zap.String("run_id", id), zap.String("operation", operation))

	workDir, err := os.MkdirTemp("", "vidcaption-run-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to remove work directory", zap.String("dir", workDir), zap.Error(err))
		}
	}
	logger.Debug("run started", zap.String("work_dir", workDir))
	return &run{id: id, logger: logger, workDir: workDir}, cleanup, nil
}

func (app *Application) getRecognizer(ctx context.Context, logger *zap.Logger) (transcriber.Recognizer, error) {
	if app.recognizer != nil {
		return app.recognizer, nil
	}
	r, err := transcriber.NewRecognizer(ctx, app.config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create recognizer: %w", err)
	}
	app.recognizer = r
	return r, nil
}

func (app *Application) getChatClient() (virality.ChatClient, error) {
	if app.chatClient != nil {
		return app.chatClient, nil
	}
	c, err := virality.NewOpenRouterClient(virality.ClientConfigFromConfiguration(app.config))
	if err != nil {
		return nil, err
	}
	app.chatClient = c
	return c, nil
}

// extractAudio probes video and writes its audio track into the run's work dir
func (app *Application) extractAudio(ctx context.Context, r *run, video string) (*media.MediaInfo, string, error) {
	info, err := app.media.Probe(ctx, video)
	if err != nil {
		return nil, "", fmt.Errorf("failed to probe %s: %w", video, err)
	}
	r.logger.Info("probed video",
		zap.String("video", video),
		zap.Float64("duration", info.Duration),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Bool("has_audio", info.HasAudio()))

	if !info.HasAudio() {
		return info, "", nil
	}

	audio := filepath.Join(r.workDir, "audio.wav")
	if err := app.media.ExtractAudio(ctx, video, audio); err != nil {
		return nil, "", err
	}
	return info, audio, nil
}

func (app *Application) newTranscriber(ctx context.Context, r *run, chunkDuration float64) (*transcriber.ChunkedTranscriber, error) {
	recognizer, err := app.getRecognizer(ctx, r.logger)
	if err != nil {
		return nil, err
	}
	ct := transcriber.NewChunkedTranscriber(recognizer, app.media, transcriber.Options{
		ChunkDuration: chunkDuration,
		MaxWords:      app.config.GetMaxWordsPerSegment(),
		Concurrency:   app.config.GetTranscriptionConcurrency(),
		TempDir:       r.workDir,
	}, r.logger)
	return ct, nil
}

// transcribeVideo returns raw segments for video; a silent video yields none
func (app *Application) transcribeVideo(ctx context.Context, r *run, video string) (*media.MediaInfo, []transcriber.Segment, error) {
	info, audio, err := app.extractAudio(ctx, r, video)
	if err != nil {
		return nil, nil, err
	}
	if audio == "" {
		r.logger.Warn("video has no audio stream, nothing to transcribe", zap.String("video", video))
		return info, nil, nil
	}

	ct, err := app.newTranscriber(ctx, r, app.config.GetChunkDurationSec())
	if err != nil {
		return nil, nil, err
	}
	segments, err := ct.Transcribe(ctx, audio, info.Duration)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Info("transcription finished",
		zap.Int("segments", len(segments)),
		zap.String("backend", ct.GetPerformanceMetrics().LastBackend))
	r.logger.Debug("recognition summary", zap.String("summary", ct.GetPerformanceSummary()))
	return info, segments, nil
}

// SubtitleRequest describes one subtitle burn-in
type SubtitleRequest struct {
	VideoPath string
	// OutputPath defaults to <stem>.subtitled.mp4 next to the video
	OutputPath string
	// GenerateTranscription transcribes the video and saves the sidecar;
	// otherwise the sidecar must already exist
	GenerateTranscription bool
	// TranscriptionPath defaults to <stem>.transcription.json next to the video
	TranscriptionPath string
	Fonts             render.FontSettings
}

// SubtitleResult reports what Subtitle produced
type SubtitleResult struct {
	RunID             string
	OutputPath        string
	TranscriptionPath string
	Segments          int
}

// Subtitle burns captions into a video: transcribe or load the sidecar,
// normalize timing, render overlays and re-encode
func (app *Application) Subtitle(ctx context.Context, req SubtitleRequest) (*SubtitleResult, error) {
	if err := req.Fonts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid font settings: %w", err)
	}
	if req.OutputPath == "" {
		req.OutputPath = subtitle.DefaultOutputPath(req.VideoPath)
	}
	if req.TranscriptionPath == "" {
		req.TranscriptionPath = transcriber.TranscriptionPath(req.VideoPath)
	}

	r, cleanup, err := app.startRun("subtitle")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	r.logger.Info("subtitling video",
		zap.String("video", req.VideoPath),
		zap.String("output", req.OutputPath),
		zap.Bool("generate_transcription", req.GenerateTranscription))

	var (
		info     *media.MediaInfo
		segments []transcriber.Segment
	)
	if req.GenerateTranscription {
		info, segments, err = app.transcribeVideo(ctx, r, req.VideoPath)
		if err != nil {
			return nil, err
		}
		if err := transcriber.SaveTranscription(req.TranscriptionPath, segments, r.logger); err != nil {
			return nil, err
		}
	} else {
		segments, err = transcriber.LoadTranscription(req.TranscriptionPath)
		if err != nil {
			return nil, fmt.Errorf("no reusable transcription (run with --generate-transcription): %w", err)
		}
		r.logger.Info("loaded transcription",
			zap.String("path", req.TranscriptionPath),
			zap.Int("segments", len(segments)))
		info, err = app.media.Probe(ctx, req.VideoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to probe %s: %w", req.VideoPath, err)
		}
	}

	captions := transcriber.Normalize(segments)
	if dropped := len(segments) - len(captions); dropped > 0 {
		r.logger.Info("dropped segments with no remaining duration", zap.Int("dropped", dropped))
	}

	faces, err := render.LoadFaces(req.Fonts, r.logger)
	if err != nil {
		return nil, err
	}
	defer faces.Close()

	builder := subtitle.NewBuilder(render.NewRenderer(req.Fonts, faces, r.logger), r.workDir, r.logger)
	overlays, err := builder.Build(ctx, captions, info.Width, info.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to build caption overlays: %w", err)
	}
	defer overlays.Close()

	assembler := subtitle.NewAssembler(app.media, app.media.VideoCodec(), app.media.AudioCodec(), r.logger)
	if err := assembler.Assemble(ctx, req.VideoPath, overlays, req.OutputPath); err != nil {
		return nil, err
	}

	return &SubtitleResult{
		RunID:             r.id,
		OutputPath:        req.OutputPath,
		TranscriptionPath: req.TranscriptionPath,
		Segments:          len(captions),
	}, nil
}

// Transcribe writes the transcription sidecar for video and returns its path
func (app *Application) Transcribe(ctx context.Context, video, output string) (string, []transcriber.Segment, error) {
	if output == "" {
		output = transcriber.TranscriptionPath(video)
	}

	r, cleanup, err := app.startRun("transcribe")
	if err != nil {
		return "", nil, err
	}
	defer cleanup()

	_, segments, err := app.transcribeVideo(ctx, r, video)
	if err != nil {
		return "", nil, err
	}
	if err := transcriber.SaveTranscription(output, segments, r.logger); err != nil {
		return "", nil, err
	}
	return output, segments, nil
}

// Score transcribes video in virality windows and rates each one, highest first
func (app *Application) Score(ctx context.Context, video string) ([]virality.Moment, error) {
	client, err := app.getChatClient()
	if err != nil {
		return nil, err
	}

	r, cleanup, err := app.startRun("score")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	info, audio, err := app.extractAudio(ctx, r, video)
	if err != nil {
		return nil, err
	}
	if audio == "" {
		r.logger.Warn("video has no audio stream, nothing to score", zap.String("video", video))
		return nil, nil
	}

	ct, err := app.newTranscriber(ctx, r, app.config.GetViralityWindowSec())
	if err != nil {
		return nil, err
	}
	windows, err := ct.RecognizeWindows(ctx, audio, info.Duration)
	if err != nil {
		return nil, err
	}

	scorer := virality.NewScorer(client, app.config.GetLLMMaxContextTokens(), r.logger).
		WithConcurrency(app.config.GetTranscriptionConcurrency())
	moments := scorer.AnalyzeWindows(ctx, windows)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scoring cancelled: %w", err)
	}
	r.logger.Info("scored moments", zap.Int("moments", len(moments)))
	return moments, nil
}

// RankRequest describes one clip ranking run
type RankRequest struct {
	ClipsPath  string
	OutputPath string
	// TopN clips are kept in the output file; <= 0 uses the configured default
	TopN int
	// ChunkSize clips are ranked per request; <= 0 uses the configured default
	ChunkSize int
}

// RankClips ranks candidate clips with the LLM and saves the top ones
func (app *Application) RankClips(ctx context.Context, req RankRequest) ([]virality.RankedClip, error) {
	if req.TopN <= 0 {
		req.TopN = app.config.GetTopClips()
	}
	if req.ChunkSize <= 0 {
		req.ChunkSize = app.config.GetRankChunkSize()
	}

	clips, err := virality.LoadClips(req.ClipsPath)
	if err != nil {
		return nil, err
	}
	client, err := app.getChatClient()
	if err != nil {
		return nil, err
	}

	r, cleanup, err := app.startRun("rank")
	if err != nil {
		return nil, err
	}
	defer cleanup()
	r.logger.Info("ranking clips",
		zap.String("clips", req.ClipsPath),
		zap.Int("candidates", len(clips)),
		zap.Int("chunk_size", req.ChunkSize))

	opts := append([]virality.RankerOption{
		virality.WithRetryAttempts(app.config.GetLLMRetryAttempts()),
		virality.WithRetryBaseDelay(app.config.GetLLMRetryBaseDelay()),
	}, app.rankerOpts...)
	ranker := virality.NewRanker(client, r.logger, opts...)

	ranked, err := ranker.RankClips(ctx, clips, req.ChunkSize)
	if err != nil {
		return nil, err
	}
	if err := virality.SaveTopClips(req.OutputPath, ranked, req.TopN, app.now()); err != nil {
		return nil, err
	}
	r.logger.Info("saved top clips",
		zap.String("output", req.OutputPath),
		zap.Int("ranked", len(ranked)),
		zap.Int("kept", min(req.TopN, len(ranked))))
	return ranked, nil
}

// ExtractClips cuts the first limit ranked clips out of video into outDir.
// limit <= 0 extracts every clip.
func (app *Application) ExtractClips(ctx context.Context, video, rankedPath, outDir string, limit int) ([]string, error) {
	top, err := virality.LoadTopClips(rankedPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	r, cleanup, err := app.startRun("extract")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	clips := top.TopClips
	if limit > 0 && limit < len(clips) {
		clips = clips[:limit]
	}

	var written []string
	for i, clip := range clips {
		if clip.End <= clip.Start {
			r.logger.Warn("skipping clip with an empty time range",
				zap.String("name", clip.Name),
				zap.Float64("start", clip.Start),
				zap.Float64("end", clip.End))
			continue
		}
		dst := filepath.Join(outDir, virality.ClipFileName(i, clip.Name))
		if err := app.media.ExtractClip(ctx, video, clip.Start, clip.End, dst); err != nil {
			return written, fmt.Errorf("failed to extract clip %q: %w", clip.Name, err)
		}
		r.logger.Info("extracted clip",
			zap.String("name", clip.Name),
			zap.String("range", virality.FormatTimestamp(clip.Start)+"-"+virality.FormatTimestamp(clip.End)),
			zap.String("output", dst))
		written = append(written, dst)
	}

	if len(written) == 0 && len(clips) > 0 {
		return nil, errors.New("no ranked clip had a usable time range")
	}
	return written, nil
}
