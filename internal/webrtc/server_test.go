package webrtc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserOffer(t *testing.T) ([]byte, *webrtc.PeerConnection) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	_, err = pc.CreateDataChannel(DataChannelLabel, nil)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gather := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	select {
	case <-gather:
	case <-time.After(5 * time.Second):
		t.Fatal("ICE gathering timed out")
	}

	data, err := json.Marshal(pc.LocalDescription())
	require.NoError(t, err)
	return data, pc
}

func TestHandleOfferRejectsGarbage(t *testing.T) {
	s := NewServer(nil, 2)
	defer s.Close()

	_, err := s.HandleOffer([]byte("not json"))
	require.Error(t, err)

	_, err = s.HandleOffer([]byte(`{"type":"answer","sdp":"v=0"}`))
	require.Error(t, err)
	assert.Equal(t, 0, s.GetClientCount())
}

func TestHandleOfferReturnsAnswer(t *testing.T) {
	s := NewServer(nil, 1)
	counts := make(chan int, 4)
	s.OnClientCount = func(n int) { counts <- n }

	offer, _ := browserOffer(t)
	answerJSON, err := s.HandleOffer(offer)
	require.NoError(t, err)

	var answer webrtc.SessionDescription
	require.NoError(t, json.Unmarshal(answerJSON, &answer))
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "webrtc-datachannel")
	assert.Equal(t, 1, s.GetClientCount())
	assert.Equal(t, 1, <-counts)

	// The limit is one client.
	second, _ := browserOffer(t)
	_, err = s.HandleOffer(second)
	require.ErrorIs(t, err, ErrTooManyClients)

	// Queued events for a client whose channel never opened are dropped, not blocked on.
	for i := 0; i < 64; i++ {
		s.SendEvent([]byte(`{"detections":[]}`))
	}

	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.GetClientCount())
	assert.Equal(t, 0, <-counts)
}

func TestPendingOfferHoldsSlot(t *testing.T) {
	s := NewServer(nil, 1)
	defer s.Close()

	// An offer still gathering ICE candidates owns the only slot.
	require.NoError(t, s.reserveSlot())
	offer, _ := browserOffer(t)
	_, err := s.HandleOffer(offer)
	require.ErrorIs(t, err, ErrTooManyClients)

	s.releaseSlot()
	_, err = s.HandleOffer(offer)
	require.NoError(t, err)
	assert.Equal(t, 1, s.GetClientCount())
}

func TestFailedOfferReleasesSlot(t *testing.T) {
	s := NewServer(nil, 1)
	defer s.Close()

	_, err := s.HandleOffer([]byte(`{"type":"offer","sdp":"not sdp"}`))
	require.Error(t, err)

	offer, _ := browserOffer(t)
	_, err = s.HandleOffer(offer)
	require.NoError(t, err)
}

func TestRemoveUnknownClientIsNoop(t *testing.T) {
	s := NewServer([]string{"stun:stun.example.org:3478"}, 0)
	s.RemoveClient("missing")
	assert.Equal(t, 0, s.GetClientCount())
	assert.Empty(t, s.GetClientStats())
}
