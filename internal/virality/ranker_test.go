package virality

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const sampleRanking = `Here is the ranking:

1. **Clip Name: "Hot Take"**
   Start: 12.5s, End: 30s
   Score: 9
   Factors: controversy, quotable line
   Platforms: TikTok, YouTube Shorts

2. **Clip Name: "Slow Intro"**
   Start: 0s, End: 12.5s
   Score: 4
   Factors: context only
   Platforms: YouTube
`

func testClips(n int) []map[string]any {
	clips := make([]map[string]any, n)
	for i := range clips {
		clips[i] = map[string]any{"name": "clip", "start": float64(i * 10), "end": float64(i*10 + 10)}
	}
	return clips
}

func TestRanker_RankClips(t *testing.T) {
	t.Run("should batch clips and merge rankings by score", func(t *testing.T) {
		// Arrange
		client := &fakeChatClient{reply: func(call int, _ ChatRequest) (string, error) {
			if call == 2 {
				return "1. **Clip Name: \"Best\"**\n   Start: 60s, End: 70s\n   Score: 10\n", nil
			}
			return sampleRanking, nil
		}}
		ranker := NewRanker(client, zaptest.NewLogger(t))

		// Act
		ranked, err := ranker.RankClips(context.Background(), testClips(7), 5)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 2, client.calls())
		require.Len(t, ranked, 3)
		assert.Equal(t, "Best", ranked[0].Name)
		assert.Equal(t, "Hot Take", ranked[1].Name)
		assert.Equal(t, "Slow Intro", ranked[2].Name)

		first := client.requests[0]
		assert.Equal(t, rankSystemPrompt, first.System)
		assert.Equal(t, 1.0, first.Temperature)
		assert.EqualValues(t, 1000, first.MaxTokens)
		assert.Contains(t, first.User, `"start": 40`)
		assert.NotContains(t, first.User, `"start": 50`)
		assert.Contains(t, first.User, "Audio Engagement (40% weight)")
	})

	t.Run("should retry with doubling backoff", func(t *testing.T) {
		var delays []time.Duration
		client := &fakeChatClient{reply: func(call int, _ ChatRequest) (string, error) {
			if call < 3 {
				return "", errors.New("http 502")
			}
			return sampleRanking, nil
		}}
		ranker := NewRanker(client, zaptest.NewLogger(t),
			WithSleeper(func(d time.Duration) { delays = append(delays, d) }))

		ranked, err := ranker.RankClips(context.Background(), testClips(2), 5)

		require.NoError(t, err)
		assert.Len(t, ranked, 2)
		assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
	})

	t.Run("should skip a batch that fails every attempt", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zapcore.WarnLevel)
		client := &fakeChatClient{reply: func(call int, _ ChatRequest) (string, error) {
			if call <= 3 {
				return "", errors.New("http 500")
			}
			return sampleRanking, nil
		}}
		ranker := NewRanker(client, zap.New(core), WithSleeper(func(time.Duration) {}))

		// Act
		ranked, err := ranker.RankClips(context.Background(), testClips(4), 2)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 4, client.calls())
		assert.Len(t, ranked, 2)
		skipped := logs.FilterMessage("skipping clip batch after retries").All()
		require.Len(t, skipped, 1)
		assert.EqualValues(t, 1, skipped[0].ContextMap()["batch"])
	})

	t.Run("should honour a custom attempt count", func(t *testing.T) {
		client := &fakeChatClient{reply: func(int, ChatRequest) (string, error) { return "", errors.New("down") }}
		ranker := NewRanker(client, zaptest.NewLogger(t), WithRetryAttempts(1))

		ranked, err := ranker.RankClips(context.Background(), testClips(1), 5)

		require.NoError(t, err)
		assert.Empty(t, ranked)
		assert.Equal(t, 1, client.calls())
	})

	t.Run("should stop on cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		client := &fakeChatClient{reply: func(int, ChatRequest) (string, error) {
			cancel()
			return "", context.Canceled
		}}
		ranker := NewRanker(client, zaptest.NewLogger(t))

		_, err := ranker.RankClips(ctx, testClips(10), 5)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, client.calls())
	})

	t.Run("should default the batch size", func(t *testing.T) {
		client := &fakeChatClient{reply: replyWith("")}
		ranker := NewRanker(client, zaptest.NewLogger(t))

		_, err := ranker.RankClips(context.Background(), testClips(6), 0)

		require.NoError(t, err)
		assert.Equal(t, 2, client.calls())
	})
}

func TestRanker_BackoffDelay(t *testing.T) {
	ranker := NewRanker(nil, nil, WithRetryBaseDelay(time.Second))

	assert.Equal(t, time.Second, ranker.backoffDelay(1))
	assert.Equal(t, 2*time.Second, ranker.backoffDelay(2))
	assert.Equal(t, 4*time.Second, ranker.backoffDelay(3))
	assert.Zero(t, NewRanker(nil, nil, WithRetryBaseDelay(0)).backoffDelay(2))
}

func TestParseRankedClips(t *testing.T) {
	t.Run("should read every field of each block", func(t *testing.T) {
		clips := ParseRankedClips(sampleRanking)

		require.Len(t, clips, 2)
		assert.Equal(t, RankedClip{
			Name:      "Hot Take",
			Start:     12.5,
			End:       30,
			Score:     9,
			Factors:   "controversy, quotable line",
			Platforms: "TikTok, YouTube Shorts",
		}, clips[0])
		assert.Equal(t, 4, clips[1].Score)
	})

	t.Run("should sort by score", func(t *testing.T) {
		reply := strings.Join([]string{
			`1. **Clip Name: "Low"**`, "Start: 0s, End: 5s", "Score: 2",
			`2. **Clip Name: "High"**`, "Start: 5s, End: 9s", "Score: 8",
		}, "\n")

		clips := ParseRankedClips(reply)

		require.Len(t, clips, 2)
		assert.Equal(t, "High", clips[0].Name)
	})

	t.Run("should ignore text outside clip blocks and unnamed blocks", func(t *testing.T) {
		reply := "Score: 10\nStart: 1s, End: 2s\n1. **Clip Name: untitled**\nScore: 3\n"

		assert.Empty(t, ParseRankedClips(reply))
	})

	t.Run("should keep a named block with malformed fields", func(t *testing.T) {
		clips := ParseRankedClips("1. **Clip Name: \"Odd\"**\nStart: soon, End: later\nScore: high\n")

		require.Len(t, clips, 1)
		assert.Equal(t, RankedClip{Name: "Odd"}, clips[0])
	})
}
