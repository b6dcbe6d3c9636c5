package performance

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PerformanceMetrics tracks speech recognition metrics for one run
type PerformanceMetrics struct {
	TotalRecognitions   int64
	Failures            int64
	Unintelligible      int64
	TotalAudioSeconds   float64
	TotalProcessingTime time.Duration
	AvgRecognitionTime  time.Duration
	MinRecognitionTime  time.Duration
	MaxRecognitionTime  time.Duration
	LastProcessingTime  time.Duration
	LastBackend         string
	LastTimestamp       time.Time
}

// Outcome classifies how a single recognition call ended
type Outcome int

const (
	OutcomeRecognized Outcome = iota
	OutcomeUnintelligible
	OutcomeFailed
)

// RecognitionTimer tracks timing for an individual recognizer call
type RecognitionTimer struct {
	StartTime      time.Time
	AudioSeconds   float64
	Backend        string
	ProcessingTime time.Duration
}

// PerformanceMonitor aggregates recognizer timings. Safe for concurrent use
// by the transcription worker pool.
type PerformanceMonitor struct {
	logger    *zap.Logger
	metrics   PerformanceMetrics
	mu        sync.RWMutex
	benchmark bool
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *zap.Logger) *PerformanceMonitor {
	return NewPerformanceMonitorWithBenchmark(logger, false)
}

// NewPerformanceMonitorWithBenchmark creates a performance monitor that logs every call when benchmark is set
func NewPerformanceMonitorWithBenchmark(logger *zap.Logger, benchmark bool) *PerformanceMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PerformanceMonitor{
		logger:    logger,
		metrics:   emptyMetrics(),
		benchmark: benchmark,
	}
}

func emptyMetrics() PerformanceMetrics {
	return PerformanceMetrics{
		MinRecognitionTime: time.Hour,
		LastTimestamp:      time.Now(),
	}
}

// StartRecognition begins timing a recognizer call over audioSeconds of audio
func (pm *PerformanceMonitor) StartRecognition(audioSeconds float64, backend string) *RecognitionTimer {
	return &RecognitionTimer{
		StartTime:    time.Now(),
		AudioSeconds: audioSeconds,
		Backend:      backend,
	}
}

// EndRecognition completes timing and updates metrics
func (pm *PerformanceMonitor) EndRecognition(timer *RecognitionTimer, outcome Outcome) {
	timer.ProcessingTime = time.Since(timer.StartTime)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	m := &pm.metrics
	m.TotalRecognitions++
	m.TotalAudioSeconds += timer.AudioSeconds
	m.TotalProcessingTime += timer.ProcessingTime
	m.LastProcessingTime = timer.ProcessingTime
	m.LastBackend = timer.Backend
	m.LastTimestamp = time.Now()

	switch outcome {
	case OutcomeUnintelligible:
		m.Unintelligible++
	case OutcomeFailed:
		m.Failures++
	}

	if timer.ProcessingTime < m.MinRecognitionTime {
		m.MinRecognitionTime = timer.ProcessingTime
	}
	if timer.ProcessingTime > m.MaxRecognitionTime {
		m.MaxRecognitionTime = timer.ProcessingTime
	}
	m.AvgRecognitionTime = time.Duration(int64(m.TotalProcessingTime) / m.TotalRecognitions)

	if pm.benchmark {
		pm.logger.Info("recognition performance",
			zap.String("backend", timer.Backend),
			zap.Float64("audio_seconds", timer.AudioSeconds),
			zap.Duration("processing_time", timer.ProcessingTime),
			zap.Float64("realtime_factor", realtimeFactor(timer.AudioSeconds, timer.ProcessingTime)),
		)
	}
}

// GetMetrics returns a copy of current metrics
func (pm *PerformanceMonitor) GetMetrics() PerformanceMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.metrics
}

// GetPerformanceSummary returns a formatted summary of performance metrics
func (pm *PerformanceMonitor) GetPerformanceSummary() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	m := pm.metrics
	if m.TotalRecognitions == 0 {
		return "No recognition metrics available"
	}

	return fmt.Sprintf(
		"Performance Summary:\n"+
			"  Total Recognitions: %d (%d unintelligible, %d failed)\n"+
			"  Avg Processing Time: %v\n"+
			"  Min/Max Processing Time: %v / %v\n"+
			"  Total Audio Processed: %.1f s\n"+
			"  Realtime Factor: %.2fx\n",
		m.TotalRecognitions,
		m.Unintelligible,
		m.Failures,
		m.AvgRecognitionTime,
		m.MinRecognitionTime,
		m.MaxRecognitionTime,
		m.TotalAudioSeconds,
		realtimeFactor(m.TotalAudioSeconds, m.TotalProcessingTime),
	)
}

// ResetMetrics clears all accumulated metrics
func (pm *PerformanceMonitor) ResetMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.metrics = emptyMetrics()
	pm.logger.Debug("performance metrics reset")
}

// BenchmarkMode enables or disables per-call performance logging
func (pm *PerformanceMonitor) BenchmarkMode(enabled bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.benchmark = enabled
	pm.logger.Info("benchmark mode", zap.Bool("enabled", enabled))
}

// LogCurrentMetrics logs the current performance metrics
func (pm *PerformanceMonitor) LogCurrentMetrics() {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pm.logger.Info("recognition metrics",
		zap.Int64("total_recognitions", pm.metrics.TotalRecognitions),
		zap.Int64("failures", pm.metrics.Failures),
		zap.Int64("unintelligible", pm.metrics.Unintelligible),
		zap.Float64("audio_seconds", pm.metrics.TotalAudioSeconds),
		zap.Duration("avg_processing_time", pm.metrics.AvgRecognitionTime),
		zap.Duration("total_processing_time", pm.metrics.TotalProcessingTime),
		zap.String("backend", pm.metrics.LastBackend),
	)
}

// realtimeFactor is audio seconds processed per wall-clock second
func realtimeFactor(audioSeconds float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return audioSeconds / elapsed.Seconds()
}
