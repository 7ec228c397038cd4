package inference

import "time"

// fpsMeter reports the commit rate over a sliding one second window.
type fpsMeter struct {
	windowStart time.Time
	count       int
	last        float64
}

func (f *fpsMeter) tick(now time.Time) float64 {
	if f.windowStart.IsZero() {
		f.windowStart = now
	}
	f.count++
	if elapsed := now.Sub(f.windowStart); elapsed >= time.Second {
		f.last = float64(f.count) / elapsed.Seconds()
		f.windowStart = now
		f.count = 0
	}
	return f.last
}
