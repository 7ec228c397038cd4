// Package inference drives the background read → detect → commit cycle.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dj-oyu/reefwatch/internal/detect"
	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
	"github.com/dj-oyu/reefwatch/internal/statecell"
	"github.com/dj-oyu/reefwatch/internal/video"
	"github.com/dj-oyu/reefwatch/pkg/types"
)

// Config tunes the loop.
type Config struct {
	Yield time.Duration // pause after each committed frame

	// EmptyPassBackoff is slept when a whole pass over the source yields no
	// frame, so an unreadable file does not spin the CPU.
	EmptyPassBackoff time.Duration
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		Yield:            10 * time.Millisecond,
		EmptyPassBackoff: time.Second,
	}
}

// Stats is a point-in-time view of the loop counters.
type Stats struct {
	Running         bool      `json:"running"`
	StartedAt       time.Time `json:"started_at"`
	FramesRead      uint64    `json:"frames_read"`
	FramesInferred  uint64    `json:"frames_inferred"`
	Rewinds         uint64    `json:"rewinds"`
	ReadErrors      uint64    `json:"read_errors"`
	InferenceErrors uint64    `json:"inference_errors"`
	CurrentFPS      float64   `json:"current_fps"`
	LastDetections  int       `json:"last_detection_count"`
	LastLatencyMs   int64     `json:"last_inference_ms"`
	Version         uint64    `json:"version"`
}

// Loop is the single writer of a statecell.Cell.
type Loop struct {
	cfg      Config
	source   video.Source
	detector detect.Detector
	cell     *statecell.Cell
	metrics  *metrics.Metrics

	running   atomic.Bool
	passReads int // frames read since the last rewind, loop goroutine only

	mu    sync.Mutex
	stats Stats
	fps   fpsMeter
}

// New wires a loop. m may be nil.
func New(cfg Config, source video.Source, detector detect.Detector, cell *statecell.Cell, m *metrics.Metrics) *Loop {
	if cfg.Yield < 0 {
		cfg.Yield = 0
	}
	if cfg.EmptyPassBackoff <= 0 {
		cfg.EmptyPassBackoff = DefaultConfig().EmptyPassBackoff
	}
	if m == nil {
		m = metrics.New()
	}
	return &Loop{
		cfg:      cfg,
		source:   source,
		detector: detector,
		cell:     cell,
		metrics:  m,
	}
}

// Run loops until ctx is cancelled and returns ctx.Err().
// End of stream rewinds the source; every other per-frame failure is logged
// and skipped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("inference loop already running")
	}
	defer l.running.Store(false)

	l.mu.Lock()
	l.stats.StartedAt = time.Now()
	l.mu.Unlock()

	logger.Info("Inference", "Loop started (yield=%s)", l.cfg.Yield)
	defer logger.Info("Inference", "Loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := l.step(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			if l.passReads == 0 {
				logger.Warn("Inference", "Source produced no frames in a full pass, retrying in %s", l.cfg.EmptyPassBackoff)
				if !sleep(ctx, l.cfg.EmptyPassBackoff) {
					return ctx.Err()
				}
			}
			l.passReads = 0
			l.rewind()
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		}

		// Transient failures were logged and counted by step.
		if !sleep(ctx, l.cfg.Yield) {
			return ctx.Err()
		}
	}
}

// step reads one frame and, if it is usable, detects and commits it.
func (l *Loop) step(ctx context.Context) (committed bool, err error) {
	frame, err := l.source.Next(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return false, err
		}
		l.metrics.ReadErrors.Add(1)
		l.bump(func(s *Stats) { s.ReadErrors++ })
		logger.Warn("Inference", "Skipping frame: %v", err)
		return false, err
	}
	l.passReads++
	l.metrics.FramesRead.Add(1)
	l.bump(func(s *Stats) { s.FramesRead++ })

	start := time.Now()
	result, err := l.detectSafe(ctx, frame)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		l.metrics.InferenceErrors.Add(1)
		l.bump(func(s *Stats) { s.InferenceErrors++ })
		logger.Warn("Inference", "Frame %d: detection failed: %v", frame.FrameNum, err)
		return false, err
	}

	annotated := *frame
	if result.Annotated != nil {
		annotated.Image = result.Annotated
	}
	version := l.cell.Write(&annotated, result.Detections)

	l.metrics.FramesInferred.Add(1)
	l.metrics.LastDetections.Store(uint64(len(result.Detections)))
	l.metrics.UpdateInferenceLatency(latency)
	l.metrics.UpdateFrameAge(frame.Timestamp)

	now := time.Now()
	l.mu.Lock()
	l.stats.FramesInferred++
	l.stats.LastDetections = len(result.Detections)
	l.stats.LastLatencyMs = latency.Milliseconds()
	l.stats.Version = version
	l.stats.CurrentFPS = l.fps.tick(now)
	l.mu.Unlock()

	logger.Debug("Inference", "Frame %d: %d detections in %s (v%d)", frame.FrameNum, len(result.Detections), latency, version)
	return true, nil
}

func (l *Loop) detectSafe(ctx context.Context, frame *types.Frame) (res types.InferenceResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.InferencePanics.Add(1)
			logger.Error("Inference", "Detector panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("detector panic: %v", r)
		}
	}()
	return l.detector.Detect(ctx, frame)
}

func (l *Loop) rewind() {
	if err := l.source.Rewind(); err != nil {
		logger.Warn("Inference", "Rewind: %v", err)
	}
	l.metrics.Rewinds.Add(1)
	l.bump(func(s *Stats) { s.Rewinds++ })
	logger.Debug("Inference", "Source rewound")
}

func (l *Loop) bump(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.Running = l.running.Load()
	return s
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
