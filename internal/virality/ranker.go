package virality

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 2 * time.Second
	defaultChunkSize      = 5
	rankMaxTokens         = 1000
)

const rankSystemPrompt = "You are a helpful assistant that ranks video clips. Keep explanations brief and focused on virality potential."

const rankPromptTemplate = `You are an expert content analyzer focusing on viral potential. Analyze these clips:
%s

For each clip, evaluate using:

1. Audio Engagement (40%% weight):
- Volume patterns and variations
- Voice intensity and emotional charge
- Acoustic characteristics

2. Content Analysis (60%% weight):
- Topic relevance and timeliness
- Controversial or debate-sparking elements
- "Quotable" phrases
- Discussion potential

For each clip, provide in this exact format:
1. **Clip Name: "[TITLE]"**
   Start: [START]s, End: [END]s
   Score: [1-10]
   Factors: [Key viral factors]
   Platforms: [Recommended platforms]

Rank clips by viral potential. Focus on measurable features in the data.`

// Ranker asks a chat model to rank candidate clips in small batches
type Ranker struct {
	client         ChatClient
	logger         *zap.Logger
	retryAttempts  int
	retryBaseDelay time.Duration
	sleeper        func(time.Duration)
}

// RankerOption customizes the ranker.
type RankerOption func(*Ranker)

// WithRetryAttempts overrides how many times each batch is attempted (defaults to 3).
func WithRetryAttempts(attempts int) RankerOption {
	return func(r *Ranker) {
		r.retryAttempts = attempts
	}
}

// WithRetryBaseDelay overrides the first backoff delay (defaults to 2s, doubling).
func WithRetryBaseDelay(delay time.Duration) RankerOption {
	return func(r *Ranker) {
		r.retryBaseDelay = delay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) RankerOption {
	return func(r *Ranker) {
		r.sleeper = sleeper
	}
}

// NewRanker creates a Ranker
func NewRanker(client ChatClient, logger *zap.Logger, opts ...RankerOption) *Ranker {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Ranker{
		client:         client,
		logger:         logger,
		retryAttempts:  defaultRetryAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.retryAttempts <= 0 {
		r.retryAttempts = 1
	}
	return r
}

// RankClips ranks clips in batches of chunkSize, highest score first. A batch
// that keeps failing is skipped; only cancellation is returned as an error.
func (r *Ranker) RankClips(ctx context.Context, clips []map[string]any, chunkSize int) ([]RankedClip, error) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var ranked []RankedClip
	batches := 0
	for batch := range slices.Chunk(clips, chunkSize) {
		batches++
		logger := r.logger.With(zap.Int("batch", batches), zap.Int("clips", len(batch)))

		reply, err := r.rankBatch(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("ranking cancelled: %w", ctxErr)
			}
			logger.Warn("skipping clip batch after retries", zap.Error(err))
			continue
		}

		parsed := ParseRankedClips(reply)
		logger.Info("ranked clip batch", zap.Int("parsed", len(parsed)))
		ranked = append(ranked, parsed...)
	}

	slices.SortStableFunc(ranked, func(a, b RankedClip) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return ranked, nil
}

func (r *Ranker) rankBatch(ctx context.Context, batch []map[string]any) (string, error) {
	payload, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode clips: %w", err)
	}
	req := ChatRequest{
		System:      rankSystemPrompt,
		User:        fmt.Sprintf(rankPromptTemplate, payload),
		Temperature: 1,
		MaxTokens:   rankMaxTokens,
	}

	var lastErr error
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		reply, err := r.client.Complete(ctx, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", err
		}
		if attempt == r.retryAttempts {
			break
		}

		delay := r.backoffDelay(attempt)
		r.logger.Warn("clip ranking attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := r.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("rank clips: failed after %d attempts: %w", r.retryAttempts, lastErr)
}

// backoffDelay doubles per attempt: attempt 1 -> base, 2 -> base*2, ...
func (r *Ranker) backoffDelay(attempt int) time.Duration {
	if r.retryBaseDelay <= 0 {
		return 0
	}
	return r.retryBaseDelay << (attempt - 1)
}

func (r *Ranker) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if r.sleeper != nil {
		r.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
