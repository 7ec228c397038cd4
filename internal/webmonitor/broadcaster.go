package webmonitor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
	"github.com/dj-oyu/reefwatch/internal/statecell"
)

// SerializedEvent holds pre-serialized data in both formats.
// This avoids redundant serialization when broadcasting to multiple clients.
type SerializedEvent struct {
	Version      uint64
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized Protobuf (base64 encoded for SSE)
	ProtobufRaw  []byte // Same message, binary (WebSocket)
}

// DetectionBroadcaster turns every new cell version into one serialized
// event and fans it out to SSE / WebSocket subscribers and extra sinks.
type DetectionBroadcaster struct {
	cell    *statecell.Cell
	monitor *Monitor
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[string]chan *SerializedEvent
	sinks   []func(*SerializedEvent)
}

// NewDetectionBroadcaster creates a broadcaster for detection events.
func NewDetectionBroadcaster(cell *statecell.Cell, monitor *Monitor, m *metrics.Metrics) *DetectionBroadcaster {
	return &DetectionBroadcaster{
		cell:    cell,
		monitor: monitor,
		metrics: m,
		clients: make(map[string]chan *SerializedEvent),
	}
}

// AddSink registers a callback receiving every event. Sinks must not block.
func (db *DetectionBroadcaster) AddSink(fn func(*SerializedEvent)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.sinks = append(db.sinks, fn)
}

// Subscribe adds a new client and returns a channel for receiving detection events.
func (db *DetectionBroadcaster) Subscribe() (string, <-chan *SerializedEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	db.clients[id] = ch
	db.metrics.EventSubscribers.Store(int64(len(db.clients)))

	logger.Debug("DetectionBroadcaster", "Client %s subscribed (total clients: %d)", id, len(db.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (db *DetectionBroadcaster) Unsubscribe(id string) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if ch, ok := db.clients[id]; ok {
		close(ch)
		delete(db.clients, id)
		db.metrics.EventSubscribers.Store(int64(len(db.clients)))
		logger.Debug("DetectionBroadcaster", "Client %s unsubscribed (remaining clients: %d)", id, len(db.clients))
	}
}

// ClientCount returns the number of subscribers.
func (db *DetectionBroadcaster) ClientCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.clients)
}

// Run waits on the cell and broadcasts each new version until ctx ends.
// Versions committed while an event is being built are coalesced.
func (db *DetectionBroadcaster) Run(ctx context.Context) {
	logger.Info("DetectionBroadcaster", "Starting detection event broadcaster...")
	defer logger.Info("DetectionBroadcaster", "Stopped")

	var last uint64
	for {
		snap, err := db.cell.Wait(ctx, last)
		if err != nil {
			return
		}
		last = snap.Version

		ev := eventFromSnapshot(snap)
		db.monitor.Record(ev)

		serialized, err := serializeEvent(ev)
		if err != nil {
			logger.Error("DetectionBroadcaster", "Serialize v%d: %v", ev.Version, err)
			continue
		}
		db.broadcast(serialized)
	}
}

func serializeEvent(ev DetectionEvent) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	pbData, err := marshalEventProto(ev)
	if err != nil {
		return nil, err
	}
	return &SerializedEvent{
		Version:      ev.Version,
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
		ProtobufRaw:  pbData,
	}, nil
}

func (db *DetectionBroadcaster) broadcast(event *SerializedEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, ch := range db.clients {
		select {
		case ch <- event:
		default:
			// Client too slow, skip this event for this client
			db.metrics.EventsDropped.Add(1)
		}
	}
	for _, sink := range db.sinks {
		sink(event)
	}
}
