package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dj-oyu/reefwatch/internal/httpx"
	"github.com/dj-oyu/reefwatch/internal/inference"
	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
	"github.com/dj-oyu/reefwatch/internal/recorder"
	"github.com/dj-oyu/reefwatch/internal/statecell"
	"github.com/dj-oyu/reefwatch/internal/webrtc"
)

const warmupText = "warming up: waiting for first frame"

// Server serves the fish stream endpoints from a shared state cell.
type Server struct {
	cfg         Config
	cell        *statecell.Cell
	frames      *FrameCache
	placeholder []byte
	metrics     *metrics.Metrics
	monitor     *Monitor
	detections  *DetectionBroadcaster
	recorder    *recorder.Recorder
	webrtc      *webrtc.Server
	pipeline    func() inference.Stats

	closeOnce sync.Once
}

// NewServer returns a configured server. pipeline may be nil when no
// inference loop runs in this process.
func NewServer(cfg Config, cell *statecell.Cell, m *metrics.Metrics, rtc *webrtc.Server, pipeline func() inference.Stats) (*Server, error) {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.New()
	}
	if pipeline == nil {
		pipeline = func() inference.Stats { return inference.Stats{} }
	}

	placeholder, err := placeholderJPEG(warmupText)
	if err != nil {
		return nil, err
	}

	monitor := NewMonitor()
	rec := recorder.NewRecorder(cfg.RecordingPath)
	rec.OnWrite = func(frames, bytes uint64) {
		m.RecordingFrames.Store(frames)
		m.RecordingBytes.Store(bytes)
	}

	s := &Server{
		cfg:         cfg,
		cell:        cell,
		frames:      NewFrameCache(cfg.JPEGQuality),
		placeholder: placeholder,
		metrics:     m,
		monitor:     monitor,
		detections:  NewDetectionBroadcaster(cell, monitor, m),
		recorder:    rec,
		webrtc:      rtc,
		pipeline:    pipeline,
	}

	if rtc != nil {
		rtc.OnClientCount = func(n int) { m.WebRTCClients.Store(int64(n)) }
		s.detections.AddSink(func(ev *SerializedEvent) { rtc.SendEvent(ev.JSONData) })
	}
	return s, nil
}

// Run drives the detection broadcaster and the recording feed until ctx ends.
func (s *Server) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.detections.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.feedRecorder(ctx)
	}()
	wg.Wait()
}

func (s *Server) feedRecorder(ctx context.Context) {
	var last uint64
	for {
		snap, err := s.cell.Wait(ctx, last)
		if err != nil {
			return
		}
		last = snap.Version
		if !s.recorder.IsRecording() {
			continue
		}
		data, err := s.frames.JPEG(snap)
		if err != nil {
			s.metrics.EncodeErrors.Add(1)
			continue
		}
		s.recorder.SendFrame(data)
	}
}

// Close stops recording and disconnects WebRTC clients.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.recorder.Close()
		s.metrics.RecordingActive.Store(0)
		if s.webrtc != nil {
			_ = s.webrtc.Close()
		}
	})
	return err
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger("HTTP"))
	r.Use(httpx.Metrics(s.metrics))
	r.Use(httpx.CORS)

	r.Get("/", s.handleIndex)
	r.Handle("/assets/*", http.StripPrefix("/assets/", newAssetHandler(s.cfg.AssetsDir)))

	r.Get("/video_feed", s.streamMJPEG)
	r.Get("/stream", s.streamMJPEG)
	r.Get("/detections", s.handleDetections)

	r.Get("/api/detections/stream", s.handleDetectionsStream)
	r.Get("/ws/detections", s.handleDetectionsWS)
	r.Post("/api/webrtc/offer", s.handleWebRTCOffer)

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/status/stream", s.handleStatusStream)

	r.Route("/api/recording", func(r chi.Router) {
		r.Post("/start", s.handleRecordingStart)
		r.Post("/stop", s.handleRecordingStop)
		r.Get("/status", s.handleRecordingStatus)
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// handleDetections answers with the latest detection list, verbatim.
func (s *Server) handleDetections(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.cell.Read()
	res := resultFromSnapshot(snap, ok)

	if wantsProtobuf(r.Header.Get("Accept")) {
		data, err := marshalResultProto(res)
		if err != nil {
			httpx.WriteError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", protobufContentType)
		_, _ = w.Write(data)
		return
	}
	httpx.WriteJSON(w, res)
}

func (s *Server) handleDetectionsStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.detections.Subscribe()
	defer s.detections.Unsubscribe(id)

	s.streamEvents(w, r, eventCh, wantsProtobuf(r.Header.Get("Accept")))
}

func (s *Server) statusPayload() map[string]any {
	latest, history, fps := s.monitor.Snapshot()
	_, ready := s.cell.Read()

	monitorStats := MonitorStats{
		StreamClients:    s.metrics.StreamClients.Load(),
		EventSubscribers: s.metrics.EventSubscribers.Load(),
		WebRTCClients:    s.metrics.WebRTCClients.Load(),
		CurrentFPS:       fps,
		Ready:            ready,
	}
	if latest != nil {
		monitorStats.DetectionCount = len(latest.Detections)
	}

	payload := map[string]any{
		"pipeline":          s.pipeline(),
		"monitor":           monitorStats,
		"latest_detection":  latest,
		"detection_history": history,
		"recording":         s.recorder.GetStatus(),
		"timestamp":         unixSeconds(time.Now()),
	}
	if s.webrtc != nil {
		payload["webrtc"] = s.webrtc.GetClientStats()
	}
	return payload
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, s.statusPayload())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.statusPayload()); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	filename, err := s.recorder.Start()
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.RecordingActive.Store(1)

	httpx.WriteJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": unixSeconds(time.Now()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	filename, err := s.recorder.Stop()
	if err != nil && filename == "" {
		httpx.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.RecordingActive.Store(0)
	if err != nil {
		httpx.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.recorder.GetStatus(),
		"stopped_at": unixSeconds(time.Now()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, s.recorder.GetStatus())
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if s.webrtc == nil {
		httpx.WriteError(w, "WebRTC disabled", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		httpx.WriteError(w, "Invalid offer data", http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload["sdp"] == nil || payload["type"] == nil {
		httpx.WriteError(w, "Invalid offer data", http.StatusBadRequest)
		return
	}

	answer, err := s.webrtc.HandleOffer(body)
	switch {
	case errors.Is(err, webrtc.ErrTooManyClients):
		httpx.WriteError(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		logger.Warn("HTTP", "WebRTC offer error: %v", err)
		httpx.WriteError(w, "Failed to handle offer: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.metrics.TotalWebRTCClient.Add(1)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap, ready := s.cell.Read()
	payload := map[string]any{
		"status":         "ok",
		"ready":          ready,
		"version":        snap.Version,
		"uptime_seconds": int64(s.monitor.Uptime().Seconds()),
		"recording":      s.recorder.IsRecording(),
	}
	if s.webrtc != nil {
		payload["webrtc_clients"] = s.webrtc.GetClientCount()
	}
	httpx.WriteJSON(w, payload)
}
