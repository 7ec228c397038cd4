package metrics

import (
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Pipeline counters
	FramesRead     atomic.Uint64
	FramesInferred atomic.Uint64
	Rewinds        atomic.Uint64

	// Error counters
	ReadErrors      atomic.Uint64
	InferenceErrors atomic.Uint64
	InferencePanics atomic.Uint64
	EncodeErrors    atomic.Uint64

	// Latency tracking
	InferenceLatencyMs atomic.Uint64 // Last detector round trip in ms
	FrameAgeMs         atomic.Uint64 // Read-to-commit time of the last frame

	// Latest cycle
	LastDetections atomic.Uint64

	// Client tracking
	StreamClients     atomic.Int64
	EventSubscribers  atomic.Int64
	WebRTCClients     atomic.Int64
	StreamFramesSent  atomic.Uint64
	EventsDropped     atomic.Uint64
	TotalWebRTCClient atomic.Uint64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes  atomic.Uint64
	RecordingFrames atomic.Uint64

	// Classifier (coral service)
	Predictions     *prometheus.CounterVec
	ClassifyErrors  atomic.Uint64
	CacheHits       atomic.Uint64
	ClassifyLatency prometheus.Histogram

	httpRequests *prometheus.CounterVec

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPipelineMetrics()
	m.registerClassifierMetrics()
	m.registerHTTPMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

func loadU(v *atomic.Uint64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

func loadI(v *atomic.Int64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

func (m *Metrics) registerPipelineMetrics() {
	// Frame processing metrics
	m.gauge("reefwatch_frames_read_total", "Total frames read from the video source", loadU(&m.FramesRead))
	m.gauge("reefwatch_frames_inferred_total", "Total frames committed to the state cell", loadU(&m.FramesInferred))
	m.gauge("reefwatch_source_rewinds_total", "Times the video source was rewound", loadU(&m.Rewinds))

	// Error metrics
	m.gauge("reefwatch_read_errors_total", "Transient frame read or decode errors", loadU(&m.ReadErrors))
	m.gauge("reefwatch_inference_errors_total", "Detector errors", loadU(&m.InferenceErrors))
	m.gauge("reefwatch_inference_panics_total", "Detector panics recovered by the loop", loadU(&m.InferencePanics))
	m.gauge("reefwatch_encode_errors_total", "JPEG encode failures in the stream publisher", loadU(&m.EncodeErrors))

	// Latency metrics
	m.gauge("reefwatch_inference_latency_ms", "Last detector latency in milliseconds", loadU(&m.InferenceLatencyMs))
	m.gauge("reefwatch_frame_age_ms", "Read-to-commit time of the last frame in milliseconds", loadU(&m.FrameAgeMs))
	m.gauge("reefwatch_last_detection_count", "Detections in the most recent cycle", loadU(&m.LastDetections))

	// Client metrics
	m.gauge("reefwatch_stream_clients", "Connected MJPEG stream clients", loadI(&m.StreamClients))
	m.gauge("reefwatch_event_subscribers", "Connected detection event subscribers (SSE/WebSocket)", loadI(&m.EventSubscribers))
	m.gauge("reefwatch_webrtc_clients", "Connected WebRTC data channel clients", loadI(&m.WebRTCClients))
	m.gauge("reefwatch_webrtc_clients_total", "Total WebRTC clients connected", loadU(&m.TotalWebRTCClient))
	m.gauge("reefwatch_stream_frames_sent_total", "MJPEG parts written to clients", loadU(&m.StreamFramesSent))
	m.gauge("reefwatch_events_dropped_total", "Detection events dropped for slow subscribers", loadU(&m.EventsDropped))

	// Recording metrics
	m.gauge("reefwatch_recording_active", "Recording active (0=inactive, 1=active)", loadU(&m.RecordingActive))
	m.gauge("reefwatch_recording_bytes", "Total bytes written to recording", loadU(&m.RecordingBytes))
	m.gauge("reefwatch_recording_frames", "Total frames written to recording", loadU(&m.RecordingFrames))
}

func (m *Metrics) registerClassifierMetrics() {
	m.Predictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coral_predictions_total",
		Help: "Predictions served, by label",
	}, []string{"label"})
	m.ClassifyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coral_classify_seconds",
		Help:    "Classifier round trip time",
		Buckets: prometheus.DefBuckets,
	})
	m.registry.MustRegister(m.Predictions, m.ClassifyLatency)

	m.gauge("coral_classify_errors_total", "Classifier failures", loadU(&m.ClassifyErrors))
	m.gauge("coral_cache_hits_total", "Predictions answered from the cache", loadU(&m.CacheHits))
}

func (m *Metrics) registerHTTPMetrics() {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by status class",
	}, []string{"code"})
	m.registry.MustRegister(m.httpRequests)
}

// UpdateFrameAge records how long ago the frame was read.
func (m *Metrics) UpdateFrameAge(readTime time.Time) {
	m.FrameAgeMs.Store(uint64(time.Since(readTime).Milliseconds()))
}

// UpdateInferenceLatency records the last detector round trip.
func (m *Metrics) UpdateInferenceLatency(d time.Duration) {
	m.InferenceLatencyMs.Store(uint64(d.Milliseconds()))
}

// ObservePrediction counts one classifier result.
func (m *Metrics) ObservePrediction(label string, d time.Duration) {
	m.Predictions.WithLabelValues(label).Inc()
	m.ClassifyLatency.Observe(d.Seconds())
}

// ObserveRequest counts a finished HTTP request by status class ("2xx", ...).
func (m *Metrics) ObserveRequest(status int) {
	m.httpRequests.WithLabelValues(strconv.Itoa(status/100) + "xx").Inc()
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
