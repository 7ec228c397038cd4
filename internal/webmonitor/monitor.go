package webmonitor

import (
	"sync"
	"time"
)

const historySize = 8

// Monitor keeps the recent non-empty detection events and the event rate
// for the status endpoints.
type Monitor struct {
	startTime time.Time

	mu      sync.Mutex
	latest  *DetectionEvent
	history []DetectionEvent
	fps     rateMeter
}

// NewMonitor creates an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

// Record stores a new detection event.
func (m *Monitor) Record(ev DetectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest = &ev
	m.fps.tick(time.Now())
	if len(ev.Detections) > 0 {
		m.history = append([]DetectionEvent{ev}, m.history...)
		if len(m.history) > historySize {
			m.history = m.history[:historySize]
		}
	}
}

// Snapshot returns the latest event (nil before the first) and a copy of
// the history, newest first.
func (m *Monitor) Snapshot() (*DetectionEvent, []DetectionEvent, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *DetectionEvent
	if m.latest != nil {
		cp := *m.latest
		latest = &cp
	}
	historyCopy := make([]DetectionEvent, len(m.history))
	copy(historyCopy, m.history)

	return latest, historyCopy, m.fps.rate(time.Now())
}

// Uptime returns the time since the monitor was created.
func (m *Monitor) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// rateMeter counts ticks in the last completed one-second window.
type rateMeter struct {
	windowStart time.Time
	count       int
	last        float64
}

func (r *rateMeter) tick(now time.Time) {
	if r.windowStart.IsZero() {
		r.windowStart = now
	}
	r.count++
	if elapsed := now.Sub(r.windowStart); elapsed >= time.Second {
		r.last = float64(r.count) / elapsed.Seconds()
		r.windowStart = now
		r.count = 0
	}
}

// rate decays to zero when no tick arrived for two windows.
func (r *rateMeter) rate(now time.Time) float64 {
	if r.windowStart.IsZero() || now.Sub(r.windowStart) > 2*time.Second {
		return 0
	}
	return r.last
}
