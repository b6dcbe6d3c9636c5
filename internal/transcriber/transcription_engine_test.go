package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"vidcaption/internal/config"
)

// fakeSlicer writes the window start time into dst so the fake recognizer can
// tell windows apart
type fakeSlicer struct {
	err   error
	mu    sync.Mutex
	paths []string
}

func (s *fakeSlicer) Slice(ctx context.Context, src string, start, duration float64, dst string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.paths = append(s.paths, dst)
	s.mu.Unlock()
	return os.WriteFile(dst, []byte(strconv.FormatFloat(start, 'f', -1, 64)), 0644)
}

// fakeRecognizer answers per window start time
type fakeRecognizer struct {
	texts  map[float64]string
	errs   map[float64]error
	delay  func(start float64) time.Duration
	active atomic.Int32
	peak   atomic.Int32
}

func (r *fakeRecognizer) Name() string { return "fake" }

func (r *fakeRecognizer) Recognize(ctx context.Context, wavPath string) (string, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		peak := r.peak.Load()
		if n <= peak || r.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return "", err
	}
	start, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return "", err
	}
	if r.delay != nil {
		time.Sleep(r.delay(start))
	}
	if err := r.errs[start]; err != nil {
		return "", err
	}
	return r.texts[start], nil
}

func TestNewChunkedTranscriber(t *testing.T) {
	t.Run("should apply defaults for zero options", func(t *testing.T) {
		// Act
		ct := NewChunkedTranscriber(&fakeRecognizer{}, &fakeSlicer{}, Options{}, nil)

		// Assert
		assert.Equal(t, DefaultOptions(), ct.Options())
		assert.NotNil(t, ct.logger)
	})

	t.Run("should read options from configuration", func(t *testing.T) {
		// Arrange
		cfg := config.NewConfiguration()
		cfg.Set("transcription.chunk_duration_sec", 3.0)
		cfg.Set("transcription.max_words", 4)
		cfg.Set("transcription.concurrency", 2)

		// Act
		ct := NewChunkedTranscriberWithConfig(cfg, &fakeRecognizer{}, &fakeSlicer{}, zaptest.NewLogger(t))

		// Assert
		assert.Equal(t, 3.0, ct.Options().ChunkDuration)
		assert.Equal(t, 4, ct.Options().MaxWords)
		assert.Equal(t, 2, ct.Options().Concurrency)
	})
}

func TestChunkedTranscriber_Transcribe(t *testing.T) {
	t.Run("should split recognized windows into interpolated segments", func(t *testing.T) {
		// Arrange
		recognizer := &fakeRecognizer{texts: map[float64]string{
			0: "the quick brown fox jumps over",
			2: "the lazy dog",
		}}
		ct := NewChunkedTranscriber(recognizer, &fakeSlicer{}, Options{TempDir: t.TempDir()}, zaptest.NewLogger(t))

		// Act
		segments, err := ct.Transcribe(context.Background(), "audio.wav", 4)

		// Assert
		require.NoError(t, err)
		require.Len(t, segments, 3)
		assert.Equal(t, "THE QUICK BROWN FOX JUMPS", segments[0].Text)
		assert.InDelta(t, 0.0, segments[0].Start, 1e-9)
		assert.InDelta(t, 5.0/3.0, segments[0].End, 1e-9)
		assert.Equal(t, "OVER", segments[1].Text)
		assert.InDelta(t, 5.0/3.0, segments[1].Start, 1e-9)
		assert.InDelta(t, 2.0, segments[1].End, 1e-9)
		assert.Equal(t, Segment{Start: 2, End: 4, Text: "THE LAZY DOG"}, segments[2])
	})

	t.Run("should skip unintelligible and failed windows", func(t *testing.T) {
		// Arrange
		core, logs := observer.New(zapcore.InfoLevel)
		recognizer := &fakeRecognizer{
			texts: map[float64]string{0: "hello", 6: "goodbye"},
			errs: map[float64]error{
				2: ErrUnintelligible,
				4: errors.New("503 service unavailable"),
			},
		}
		ct := NewChunkedTranscriber(recognizer, &fakeSlicer{}, Options{TempDir: t.TempDir()}, zap.New(core))

		// Act
		segments, err := ct.Transcribe(context.Background(), "audio.wav", 8)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []Segment{
			{Start: 0, End: 2, Text: "HELLO"},
			{Start: 6, End: 8, Text: "GOODBYE"},
		}, segments)
		assert.Equal(t, 1, logs.FilterMessage("could not understand audio").Len())
		failed := logs.FilterMessage("recognition request failed").All()
		require.Len(t, failed, 1)
		assert.Equal(t, zapcore.WarnLevel, failed[0].Level)

		metrics := ct.GetPerformanceMetrics()
		assert.Equal(t, int64(4), metrics.TotalRecognitions)
		assert.Equal(t, int64(1), metrics.Unintelligible)
		assert.Equal(t, int64(1), metrics.Failures)
	})

	t.Run("should treat blank recognizer output as unintelligible", func(t *testing.T) {
		recognizer := &fakeRecognizer{texts: map[float64]string{0: "   "}}
		ct := NewChunkedTranscriber(recognizer, &fakeSlicer{}, Options{TempDir: t.TempDir()}, zaptest.NewLogger(t))

		results, err := ct.RecognizeWindows(context.Background(), "audio.wav", 2)

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.ErrorIs(t, results[0].Err, ErrUnintelligible)
	})

	t.Run("should skip every window when slicing fails", func(t *testing.T) {
		ct := NewChunkedTranscriber(&fakeRecognizer{}, &fakeSlicer{err: errors.New("ffmpeg exploded")}, Options{TempDir: t.TempDir()}, zaptest.NewLogger(t))

		segments, err := ct.Transcribe(context.Background(), "audio.wav", 4)

		require.NoError(t, err)
		assert.Empty(t, segments)
	})

	t.Run("should return nothing for zero duration", func(t *testing.T) {
		ct := NewChunkedTranscriber(&fakeRecognizer{}, &fakeSlicer{}, Options{TempDir: t.TempDir()}, zaptest.NewLogger(t))

		segments, err := ct.Transcribe(context.Background(), "audio.wav", 0)

		require.NoError(t, err)
		assert.Empty(t, segments)
	})
}

func TestChunkedTranscriber_RecognizeWindows(t *testing.T) {
	t.Run("should reorder results by window start under concurrency", func(t *testing.T) {
		// Arrange
		texts := map[float64]string{}
		for i := 0; i < 8; i++ {
			texts[float64(i*2)] = fmt.Sprintf("window %d", i)
		}
		recognizer := &fakeRecognizer{
			texts: texts,
			// earlier windows finish last
			delay: func(start float64) time.Duration { return time.Duration(16-start) * time.Millisecond },
		}
		ct := NewChunkedTranscriber(recognizer, &fakeSlicer{}, Options{Concurrency: 4, TempDir: t.TempDir()}, zaptest.NewLogger(t))

		// Act
		results, err := ct.RecognizeWindows(context.Background(), "audio.wav", 16)

		// Assert
		require.NoError(t, err)
		require.Len(t, results, 8)
		for i, r := range results {
			assert.Equal(t, i, r.Index)
			assert.Equal(t, fmt.Sprintf("window %d", i), r.Text)
		}
		assert.LessOrEqual(t, recognizer.peak.Load(), int32(4))
		assert.Greater(t, recognizer.peak.Load(), int32(1))
	})

	t.Run("should call the recognizer sequentially by default", func(t *testing.T) {
		recognizer := &fakeRecognizer{
			texts: map[float64]string{0: "a", 2: "b", 4: "c"},
			delay: func(float64) time.Duration { return 2 * time.Millisecond },
		}
		ct := NewChunkedTranscriber(recognizer, &fakeSlicer{}, Options{TempDir: t.TempDir()}, zaptest.NewLogger(t))

		_, err := ct.RecognizeWindows(context.Background(), "audio.wav", 6)

		require.NoError(t, err)
		assert.Equal(t, int32(1), recognizer.peak.Load())
	})

	t.Run("should report metrics for the latest run only", func(t *testing.T) {
		// Arrange
		recognizer := &fakeRecognizer{texts: map[float64]string{0: "a", 2: "b", 4: "c"}}
		ct := NewChunkedTranscriber(recognizer, &fakeSlicer{}, Options{TempDir: t.TempDir()}, zaptest.NewLogger(t))
		_, err := ct.RecognizeWindows(context.Background(), "audio.wav", 6)
		require.NoError(t, err)

		// Act
		_, err = ct.RecognizeWindows(context.Background(), "audio.wav", 4)

		// Assert
		require.NoError(t, err)
		metrics := ct.GetPerformanceMetrics()
		assert.Equal(t, int64(2), metrics.TotalRecognitions)
		assert.InDelta(t, 4.0, metrics.TotalAudioSeconds, 1e-9)
	})

	t.Run("should remove chunk files and the scratch directory", func(t *testing.T) {
		// Arrange
		tempRoot := t.TempDir()
		slicer := &fakeSlicer{}
		recognizer := &fakeRecognizer{
			texts: map[float64]string{0: "a"},
			errs:  map[float64]error{2: errors.New("boom")},
		}
		ct := NewChunkedTranscriber(recognizer, slicer, Options{TempDir: tempRoot}, zaptest.NewLogger(t))

		// Act
		_, err := ct.RecognizeWindows(context.Background(), "audio.wav", 4)

		// Assert
		require.NoError(t, err)
		require.Len(t, slicer.paths, 2)
		for _, p := range slicer.paths {
			assert.NoFileExists(t, p)
		}
		entries, err := os.ReadDir(tempRoot)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("should abort when the context is cancelled", func(t *testing.T) {
		// Arrange
		tempRoot := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ct := NewChunkedTranscriber(&fakeRecognizer{}, &fakeSlicer{}, Options{TempDir: tempRoot}, zaptest.NewLogger(t))

		// Act
		results, err := ct.RecognizeWindows(ctx, "audio.wav", 10)

		// Assert
		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, results)
		entries, _ := os.ReadDir(tempRoot)
		assert.Empty(t, entries)
	})

	t.Run("should fail when the scratch directory cannot be created", func(t *testing.T) {
		ct := NewChunkedTranscriber(&fakeRecognizer{}, &fakeSlicer{}, Options{TempDir: filepath.Join(t.TempDir(), "missing", "dir")}, zaptest.NewLogger(t))

		_, err := ct.RecognizeWindows(context.Background(), "audio.wav", 2)

		assert.ErrorContains(t, err, "failed to create chunk directory")
	})
}
