package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not registered", name)
	return nil
}

func gaugeValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	f := family(t, m, name)
	require.NotEmpty(t, f.GetMetric())
	return f.GetMetric()[0].GetGauge().GetValue()
}

// counterByLabel maps the first label value of each series to its counter value.
func counterByLabel(t *testing.T, m *Metrics, name string) map[string]float64 {
	t.Helper()
	out := map[string]float64{}
	for _, metric := range family(t, m, name).GetMetric() {
		out[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	return out
}

func TestGaugesFollowCounters(t *testing.T) {
	m := New()
	m.FramesRead.Add(7)
	m.Rewinds.Add(2)
	m.StreamClients.Add(3)
	m.StreamClients.Add(-1)

	assert.Equal(t, 7.0, gaugeValue(t, m, "reefwatch_frames_read_total"))
	assert.Equal(t, 2.0, gaugeValue(t, m, "reefwatch_source_rewinds_total"))
	assert.Equal(t, 2.0, gaugeValue(t, m, "reefwatch_stream_clients"))
	assert.Equal(t, 0.0, gaugeValue(t, m, "reefwatch_recording_active"))
}

func TestLatencyHelpers(t *testing.T) {
	m := New()
	m.UpdateInferenceLatency(42 * time.Millisecond)
	m.UpdateFrameAge(time.Now().Add(-time.Second))

	assert.Equal(t, uint64(42), m.InferenceLatencyMs.Load())
	assert.GreaterOrEqual(t, m.FrameAgeMs.Load(), uint64(1000))
}

func TestObservePrediction(t *testing.T) {
	m := New()
	m.ObservePrediction("Healthy", 10*time.Millisecond)
	m.ObservePrediction("Healthy", 20*time.Millisecond)
	m.ObservePrediction("Bleached", 5*time.Millisecond)

	counts := counterByLabel(t, m, "coral_predictions_total")
	assert.Equal(t, 2.0, counts["Healthy"])
	assert.Equal(t, 1.0, counts["Bleached"])

	hist := family(t, m, "coral_classify_seconds").GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(3), hist.GetSampleCount())
}

func TestObserveRequestGroupsByClass(t *testing.T) {
	m := New()
	m.ObserveRequest(http.StatusOK)
	m.ObserveRequest(http.StatusNoContent)
	m.ObserveRequest(http.StatusNotFound)

	counts := counterByLabel(t, m, "http_requests_total")
	assert.Equal(t, 2.0, counts["2xx"])
	assert.Equal(t, 1.0, counts["4xx"])
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.FramesInferred.Add(5)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "reefwatch_frames_inferred_total 5"), text)
	assert.Contains(t, text, "coral_classify_errors_total")
}
