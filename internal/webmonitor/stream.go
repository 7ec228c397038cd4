package webmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dj-oyu/reefwatch/internal/logger"
)

const (
	mjpegBoundary    = "frame"
	mjpegContentType = "multipart/x-mixed-replace; boundary=" + mjpegBoundary
	mjpegPartHeader  = "--" + mjpegBoundary + "\r\nContent-Type: image/jpeg\r\n\r\n"
)

func writeSSE(w http.ResponseWriter, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func writeMJPEGPart(w http.ResponseWriter, jpegData []byte) error {
	if _, err := w.Write([]byte(mjpegPartHeader)); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// streamMJPEG publishes the cell to one client until it disconnects.
// Each part carries the newest committed frame; versions committed while a
// part is being written are skipped, never queued. Until the first frame
// exists, and whenever no new frame arrives for WarmupInterval, the client
// gets the current frame again (or the warming-up card) so it never waits
// silently.
func (s *Server) streamMJPEG(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", mjpegContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.StreamClients.Add(1)
	defer s.metrics.StreamClients.Add(-1)

	ctx := r.Context()
	var last uint64
	for {
		jpegData, version, err := s.nextPart(ctx, last)
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("MJPEG", "Client %s gone", r.RemoteAddr)
				return
			}
			s.metrics.EncodeErrors.Add(1)
			logger.Warn("MJPEG", "Skipping frame: %v", err)
			last = version
			continue
		}
		last = version

		if err := writeMJPEGPart(w, jpegData); err != nil {
			logger.Debug("MJPEG", "Client %s disconnected during write: %v", r.RemoteAddr, err)
			return
		}
		flusher.Flush()
		s.metrics.StreamFramesSent.Add(1)

		if s.cfg.StreamInterval > 0 && !sleepCtx(ctx, s.cfg.StreamInterval) {
			return
		}
	}
}

// nextPart blocks for a version newer than last, bounded by WarmupInterval.
// On timeout it returns the current frame, or the placeholder before the
// first frame. The returned version is the one the part shows.
func (s *Server) nextPart(ctx context.Context, last uint64) ([]byte, uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WarmupInterval)
	snap, err := s.cell.Wait(waitCtx, last)
	cancel()

	switch {
	case err == nil:
		data, encErr := s.frames.JPEG(snap)
		return data, snap.Version, encErr
	case ctx.Err() != nil:
		return nil, last, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		if snap, ok := s.cell.Read(); ok {
			data, encErr := s.frames.JPEG(snap)
			return data, snap.Version, encErr
		}
		logger.Debug("MJPEG", "No frame yet, sending placeholder")
		return s.placeholder, 0, nil
	default:
		return nil, last, err
	}
}

// streamEvents forwards pre-serialized events to an SSE client.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, eventCh <-chan *SerializedEvent, useProtobuf bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(s.cfg.KeepAlive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			data := event.JSONData
			if useProtobuf {
				data = event.ProtobufData
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", event.Version, data); err != nil {
				logger.Debug("SSE", "Client disconnected during event write: %v", err)
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
