package webmonitor

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dj-oyu/reefwatch/internal/logger"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same permissive policy as the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleDetectionsWS pushes detection events as text (JSON) or, with
// ?format=protobuf, binary protobuf messages.
func (s *Server) handleDetectionsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("WebSocket", "Upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	useProtobuf := r.URL.Query().Get("format") == "protobuf"

	id, eventCh := s.detections.Subscribe()
	defer s.detections.Unsubscribe(id)

	// Reader: handles pongs and notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send the current state first so a new client does not wait a cycle.
	if snap, ok := s.cell.Read(); ok {
		if ev, err := serializeEvent(eventFromSnapshot(snap)); err == nil {
			if err := writeWSEvent(conn, ev, useProtobuf); err != nil {
				return
			}
		}
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			logger.Debug("WebSocket", "Client %s closed", id)
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := writeWSEvent(conn, event, useProtobuf); err != nil {
				logger.Debug("WebSocket", "Client %s write failed: %v", id, err)
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeWSEvent(conn *websocket.Conn, event *SerializedEvent, useProtobuf bool) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if useProtobuf {
		return conn.WriteMessage(websocket.BinaryMessage, event.ProtobufRaw)
	}
	return conn.WriteMessage(websocket.TextMessage, event.JSONData)
}
