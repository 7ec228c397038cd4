package contract

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestLiveIndex(t *testing.T) {
	client := newFishClient(t)
	resp, body := client.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("GET / content-type = %q", resp.Header.Get("Content-Type"))
	}
	html := string(body)
	for _, needle := range []string{
		"<title>Live Fish Detection</title>",
		"/assets/monitor.css",
		"/video_feed",
		"/detections",
	} {
		if !strings.Contains(html, needle) {
			t.Fatalf("GET / missing %q", needle)
		}
	}
}

func TestLiveAssets(t *testing.T) {
	client := newFishClient(t)
	resp, body := client.get(t, "/assets/monitor.css")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /assets/monitor.css status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/css") {
		t.Fatalf("monitor.css content-type = %q", resp.Header.Get("Content-Type"))
	}
	if len(body) == 0 {
		t.Fatalf("monitor.css is empty")
	}

	resp, _ = client.get(t, "/assets/missing.js")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /assets/missing.js status = %d", resp.StatusCode)
	}
}

func TestLiveDetections(t *testing.T) {
	client := newFishClient(t)
	resp, body := client.get(t, "/detections")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /detections status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if _, ok := payload["ready"].(bool); !ok {
		t.Fatalf("ready: expected bool, got %T", payload["ready"])
	}
	detections := requireSlice(t, payload["detections"], "detections")
	count := requireNumber(t, payload["num_detections"], "num_detections")
	if int(count) != len(detections) {
		t.Fatalf("num_detections = %v, detections has %d", count, len(detections))
	}
	for i, raw := range detections {
		assertDetection(t, raw, fmt.Sprintf("detections[%d]", i))
	}
}

func TestLiveHealth(t *testing.T) {
	client := newFishClient(t)
	resp, body := client.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if requireString(t, payload["status"], "status") != "ok" {
		t.Fatalf("health status = %v", payload["status"])
	}
	requireNumber(t, payload["uptime_seconds"], "uptime_seconds")
}

func TestLiveStatus(t *testing.T) {
	client := newFishClient(t)
	resp, body := client.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/status status = %d", resp.StatusCode)
	}
	assertStatusPayload(t, decodeJSONMap(t, body))
}

func TestLiveWebRTCOfferInvalid(t *testing.T) {
	client := newFishClient(t)
	resp, body := client.postJSON(t, "/api/webrtc/offer", map[string]any{})
	if resp.StatusCode == http.StatusServiceUnavailable {
		t.Skip("webrtc disabled on target")
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /api/webrtc/offer status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if requireString(t, payload["error"], "error") != "Invalid offer data" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
}
