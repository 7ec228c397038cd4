package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/dj-oyu/reefwatch/internal/logger"
)

// DataChannelLabel is the label a browser must give the channel it opens in
// its offer to receive detection events.
const DataChannelLabel = "detections"

// ErrTooManyClients is returned by HandleOffer when the client limit is reached.
var ErrTooManyClients = errors.New("maximum clients reached")

// Client represents a connected WebRTC client
type Client struct {
	id       string
	peerConn *webrtc.PeerConnection

	dcMu sync.Mutex
	dc   *webrtc.DataChannel // set once the browser's channel opens

	eventChan chan []byte
	closeChan chan struct{}
	closeOnce sync.Once

	eventsSent    atomic.Uint64
	eventsDropped atomic.Uint64
}

// Server manages WebRTC peer connections that receive detection events
// over a data channel.
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	pending    int // Offers holding a slot while ICE gathers
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API

	// OnClientCount is called with the new count whenever a client joins or leaves.
	OnClientCount func(int)
}

// NewServer creates a new WebRTC server. An empty stunServers list means
// host candidates only.
func NewServer(stunServers []string, maxClients int) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}

	settingsEngine := webrtc.SettingEngine{}

	// Reduce DTLS retransmission timeout (faster connection, less CPU on retries)
	settingsEngine.SetDTLSRetransmissionInterval(time.Second * 2)
	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine))

	if maxClients <= 0 {
		maxClients = 10
	}

	return &Server{
		clients: make(map[string]*Client),
		config: webrtc.Configuration{
			ICEServers: iceServers,
		},
		maxClients: maxClients,
		api:        api,
	}
}

// HandleOffer handles a WebRTC offer and returns an answer
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, fmt.Errorf("failed to parse offer: expected type %q with sdp", "offer")
	}

	if err := s.reserveSlot(); err != nil {
		return nil, err
	}
	admitted := false
	defer func() {
		if !admitted {
			s.releaseSlot()
		}
	}()

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	client := &Client{
		id:        uuid.NewString(),
		peerConn:  peerConn,
		eventChan: make(chan []byte, 16),
		closeChan: make(chan struct{}),
	}

	peerConn.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			logger.Debug("WebRTC", "Client %s opened unexpected channel %q", client.id, dc.Label())
			return
		}
		dc.OnOpen(func() {
			client.dcMu.Lock()
			client.dc = dc
			client.dcMu.Unlock()
			logger.Info("WebRTC", "Client %s data channel open", client.id)
		})
		dc.OnClose(func() {
			s.RemoveClient(client.id)
		})
	})

	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("WebRTC", "Client %s connection state: %s", client.id, state.String())

		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			logger.Info("WebRTC", "Client %s connection lost (Peer: %s), removing...", client.id, state.String())
			// Closing the peer connection from its own callback can block.
			go s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)

	if err := peerConn.SetLocalDescription(answer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	<-gatherComplete
	logger.Debug("WebRTC", "ICE gathering complete for client %s", client.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		peerConn.Close()
		return nil, fmt.Errorf("no local description available")
	}
	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	s.clientsMu.Lock()
	s.pending--
	s.clients[client.id] = client
	count := len(s.clients)
	s.clientsMu.Unlock()
	admitted = true
	s.notifyCount(count)

	go s.sendEvents(client)

	logger.Info("WebRTC", "Client %s connected", client.id)
	return answerJSON, nil
}

// reserveSlot counts an offer against maxClients before the slow ICE
// gathering, so concurrent offers cannot overshoot the limit.
func (s *Server) reserveSlot() error {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if len(s.clients)+s.pending >= s.maxClients {
		return fmt.Errorf("%w (%d)", ErrTooManyClients, s.maxClients)
	}
	s.pending++
	return nil
}

func (s *Server) releaseSlot() {
	s.clientsMu.Lock()
	s.pending--
	s.clientsMu.Unlock()
}

// SendEvent queues a serialized detection event for every client.
// Slow clients drop events rather than block the caller.
func (s *Server) SendEvent(data []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.eventChan <- data:
		default:
			client.eventsDropped.Add(1)
		}
	}
}

func (s *Server) sendEvents(client *Client) {
	for {
		select {
		case <-client.closeChan:
			return

		case data := <-client.eventChan:
			client.dcMu.Lock()
			dc := client.dc
			client.dcMu.Unlock()

			if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
				client.eventsDropped.Add(1)
				continue
			}
			if err := dc.SendText(string(data)); err != nil {
				logger.Warn("WebRTC", "Error sending event to client %s: %v", client.id, err)
				client.eventsDropped.Add(1)
				continue
			}
			client.eventsSent.Add(1)
		}
	}
}

// RemoveClient removes a client by ID
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	count := len(s.clients)
	s.clientsMu.Unlock()

	if !exists {
		return
	}

	client.close()
	s.notifyCount(count)

	logger.Info("WebRTC", "Client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.eventsSent.Load(), client.eventsDropped.Load())
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		if err := c.peerConn.Close(); err != nil {
			logger.Debug("WebRTC", "Client %s close: %v", c.id, err)
		}
	})
}

func (s *Server) notifyCount(n int) {
	if s.OnClientCount != nil {
		s.OnClientCount(n)
	}
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// GetClientStats returns stats for all clients
func (s *Server) GetClientStats() map[string]map[string]uint64 {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]map[string]uint64)
	for id, client := range s.clients {
		stats[id] = map[string]uint64{
			"events_sent":    client.eventsSent.Load(),
			"events_dropped": client.eventsDropped.Load(),
		}
	}
	return stats
}

// Close closes all client connections
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
