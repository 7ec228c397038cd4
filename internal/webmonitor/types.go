package webmonitor

import (
	"time"

	"github.com/dj-oyu/reefwatch/internal/statecell"
	"github.com/dj-oyu/reefwatch/pkg/types"
)

// DetectionResult is the /detections payload.
type DetectionResult struct {
	Ready         bool              `json:"ready"`
	Version       uint64            `json:"version"`
	FrameNumber   uint64            `json:"frame_number"`
	Timestamp     float64           `json:"timestamp"`
	NumDetections int               `json:"num_detections"`
	Detections    []types.Detection `json:"detections"`
}

// DetectionEvent is pushed over SSE, WebSocket and the WebRTC data channel.
type DetectionEvent struct {
	Version     uint64            `json:"version"`
	FrameNumber uint64            `json:"frame_number"`
	Timestamp   float64           `json:"timestamp"`
	Detections  []types.Detection `json:"detections"`
}

// MonitorStats summarizes the stream side of the service.
type MonitorStats struct {
	StreamClients    int64   `json:"stream_clients"`
	EventSubscribers int64   `json:"event_subscribers"`
	WebRTCClients    int64   `json:"webrtc_clients"`
	CurrentFPS       float64 `json:"current_fps"`
	DetectionCount   int     `json:"detection_count"`
	Ready            bool    `json:"ready"`
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

// resultFromSnapshot builds the poller payload. An unready cell yields an
// empty, non-nil detection list.
func resultFromSnapshot(snap statecell.Snapshot, ready bool) DetectionResult {
	if !ready {
		return DetectionResult{Detections: []types.Detection{}}
	}
	res := DetectionResult{
		Ready:         true,
		Version:       snap.Version,
		Timestamp:     unixSeconds(snap.UpdatedAt),
		NumDetections: len(snap.Detections),
		Detections:    snap.Detections,
	}
	if snap.Frame != nil {
		res.FrameNumber = snap.Frame.FrameNum
	}
	return res
}

func eventFromSnapshot(snap statecell.Snapshot) DetectionEvent {
	ev := DetectionEvent{
		Version:    snap.Version,
		Timestamp:  unixSeconds(snap.UpdatedAt),
		Detections: snap.Detections,
	}
	if snap.Frame != nil {
		ev.FrameNumber = snap.Frame.FrameNum
	}
	return ev
}
