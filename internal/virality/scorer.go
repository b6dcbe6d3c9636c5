package virality

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"vidcaption/internal/transcriber"
)

const (
	// charsPerToken is the rough prompt size estimate used before sending
	charsPerToken = 4
	// truncationSafety shrinks truncated text below the estimated limit
	truncationSafety = 0.8
)

const scorePromptTemplate = `Analyze the following text from a video and rate its potential virality on a scale from 0 to 1,
where 0 is not viral at all and 1 is extremely viral.

Consider factors like:
- Emotional impact
- Uniqueness
- Relevance to current trends
- Potential for sharing

Provide only the numerical score as output.

Text: %s

Virality Score:`

// Moment is a transcript window with its virality score
type Moment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// Scorer rates transcript text for virality with a chat model
type Scorer struct {
	client           ChatClient
	maxContextTokens int
	concurrency      int
	logger           *zap.Logger
}

// NewScorer creates a Scorer. maxContextTokens <= 0 disables truncation.
func NewScorer(client ChatClient, maxContextTokens int, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		client:           client,
		maxContextTokens: maxContextTokens,
		concurrency:      1,
		logger:           logger,
	}
}

// WithConcurrency sets how many windows are scored in parallel
func (s *Scorer) WithConcurrency(n int) *Scorer {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// ScoreText returns a score in [0, 1]. Request or parse failures score 0.
func (s *Scorer) ScoreText(ctx context.Context, text string) float64 {
	prompt := s.buildPrompt(text)

	reply, err := s.client.Complete(ctx, ChatRequest{User: prompt, Temperature: 1})
	if err != nil {
		s.logger.Warn("virality scoring request failed", zap.Error(err))
		return 0
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(reply), 64)
	if err != nil {
		s.logger.Warn("failed to parse virality score", zap.String("reply", reply))
		return 0
	}
	return min(max(score, 0), 1)
}

// buildPrompt truncates text when the estimated prompt would overflow the context window
func (s *Scorer) buildPrompt(text string) string {
	prompt := fmt.Sprintf(scorePromptTemplate, text)
	if s.maxContextTokens <= 0 {
		return prompt
	}

	estimated := float64(len(prompt)) / charsPerToken
	if estimated <= float64(s.maxContextTokens) {
		return prompt
	}

	ratio := float64(s.maxContextTokens) / estimated
	runes := []rune(text)
	keep := int(float64(len(runes)) * ratio * truncationSafety)
	s.logger.Warn("prompt may exceed context window, truncating text",
		zap.Int("estimated_tokens", int(estimated)),
		zap.Int("max_context_tokens", s.maxContextTokens),
		zap.Int("kept_chars", keep))
	return fmt.Sprintf(scorePromptTemplate, string(runes[:keep])+"...")
}

// AnalyzeWindows scores every recognized window, highest score first.
// Windows without text are skipped.
func (s *Scorer) AnalyzeWindows(ctx context.Context, windows []transcriber.WindowResult) []Moment {
	p := pool.NewWithResults[Moment]().WithMaxGoroutines(s.concurrency)
	for _, w := range windows {
		if w.Err != nil || strings.TrimSpace(w.Text) == "" {
			continue
		}
		p.Go(func() Moment {
			m := Moment{Start: w.Window.Start, End: w.Window.End, Text: w.Text}
			if ctx.Err() == nil {
				m.Score = s.ScoreText(ctx, w.Text)
			}
			return m
		})
	}
	moments := p.Wait()

	if len(moments) == 0 {
		s.logger.Warn("no viral moments detected")
		return nil
	}

	slices.SortStableFunc(moments, func(a, b Moment) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Start, b.Start)
	})
	return moments
}
