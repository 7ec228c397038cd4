// Package statecell holds the single most recent annotated frame and its
// detection list, shared between the inference loop and request handlers.
//
// The frame and detections are always committed together under one lock, so a
// reader never sees a frame from one inference cycle paired with detections
// from another. No history is kept: each Write discards the previous pair.
package statecell

import (
	"context"
	"sync"
	"time"

	"github.com/dj-oyu/reefwatch/pkg/types"
)

// Snapshot is one committed (frame, detections) pair.
// Callers must treat Frame and Detections as read-only.
type Snapshot struct {
	Frame      *types.Frame
	Detections []types.Detection
	Version    uint64    // 1 for the first write, incremented on every write
	UpdatedAt  time.Time // Commit time
}

// Cell is a current-value holder with one writer and any number of readers.
type Cell struct {
	mu      sync.RWMutex
	current Snapshot
	ready   bool
	changed chan struct{} // closed and replaced on every write
}

// New returns an empty cell. Read reports false until the first Write.
func New() *Cell {
	return &Cell{changed: make(chan struct{})}
}

// Write replaces the frame and detection list as one unit.
func (c *Cell) Write(frame *types.Frame, detections []types.Detection) uint64 {
	dets := make([]types.Detection, len(detections))
	copy(dets, detections)

	c.mu.Lock()
	c.current = Snapshot{
		Frame:      frame,
		Detections: dets,
		Version:    c.current.Version + 1,
		UpdatedAt:  time.Now(),
	}
	c.ready = true
	version := c.current.Version
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()

	return version
}

// Read returns the latest snapshot. ok is false before the first Write.
func (c *Cell) Read() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.ready
}

// Version returns the version of the latest write, 0 if none.
func (c *Cell) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current.Version
}

// Wait blocks until a snapshot newer than after exists, then returns it.
// Pass after=0 to wait for the first write.
func (c *Cell) Wait(ctx context.Context, after uint64) (Snapshot, error) {
	for {
		c.mu.RLock()
		snap, ready, changed := c.current, c.ready, c.changed
		c.mu.RUnlock()

		if ready && snap.Version > after {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-changed:
		}
	}
}
