// Package httpx holds the HTTP middleware and JSON helpers shared by both services.
package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
)

// RequestLogger logs method, path, status, duration and size of each request.
// The wrapped writer keeps http.Flusher and http.Hijacker working for
// streaming and WebSocket handlers.
func RequestLogger(module string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debug(module, "%s %s %d %s %dB", r.Method, r.URL.Path, status, time.Since(start).Round(time.Microsecond), ww.BytesWritten())
		})
	}
}

// Metrics counts finished requests by status class.
func Metrics(m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(status)
		})
	}
}

// CORS allows any origin and answers preflight requests directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WriteJSON writes payload with status 200.
func WriteJSON(w http.ResponseWriter, payload any) {
	WriteJSONWithStatus(w, payload, http.StatusOK)
}

// WriteJSONWithStatus writes payload as JSON with the given status.
func WriteJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, msg string, status int) {
	WriteJSONWithStatus(w, map[string]any{"error": msg}, status)
}
