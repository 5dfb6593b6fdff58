package realtime

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newHubClient builds a client with no underlying transport; deliveries are
// observed on the send channel.
func newHubClient(sessionID uuid.UUID, peerID string) *Client {
	return &Client{
		PeerID:    peerID,
		SessionID: sessionID,
		send:      make(chan WSMessage, 4),
	}
}

func tryRecv(c *Client) (WSMessage, bool) {
	select {
	case msg := <-c.send:
		return msg, true
	default:
		return WSMessage{}, false
	}
}

func TestSendToPeerDeliversToRegisteredClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	alice := newHubClient(sessionID, "alice")
	hub.Register(alice)

	ok := hub.SendToPeer(sessionID, "alice", EventSignal, SignalPayload{Origin: "bob"})
	require.True(t, ok)

	msg, got := tryRecv(alice)
	require.True(t, got)
	assert.Equal(t, EventSignal, msg.Event)

	var payload SignalPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "bob", payload.Origin)
}

func TestSendToPeerToUnknownTargetReturnsFalse(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	hub.Register(newHubClient(sessionID, "alice"))

	assert.False(t, hub.SendToPeer(sessionID, "ghost", EventSignal, nil))
	assert.False(t, hub.SendToPeer(uuid.New(), "alice", EventSignal, nil))
}

func TestSendToPeerWithStalledTransportReturnsFalse(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	alice := newHubClient(sessionID, "alice")
	hub.Register(alice)

	for i := 0; i < cap(alice.send); i++ {
		require.True(t, hub.SendToPeer(sessionID, "alice", EventSignal, nil))
	}
	assert.False(t, hub.SendToPeer(sessionID, "alice", EventSignal, nil),
		"a full send buffer must drop instead of block")
}

func TestReconnectReplacesConnectionAndKeepsPeerReachable(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()

	stale := newHubClient(sessionID, "alice")
	hub.Register(stale)
	current := newHubClient(sessionID, "alice")
	hub.Register(current)

	assert.Equal(t, 1, hub.ConnectionCount(sessionID))

	// The replaced connection's unregister must not evict the successor.
	assert.False(t, hub.Unregister(stale))
	assert.Equal(t, 1, hub.ConnectionCount(sessionID))

	require.True(t, hub.SendToPeer(sessionID, "alice", EventSignal, nil))
	_, got := tryRecv(current)
	assert.True(t, got)
	_, got = tryRecv(stale)
	assert.False(t, got)

	assert.True(t, hub.Unregister(current))
	assert.Equal(t, 0, hub.ConnectionCount(sessionID))
}

func TestBroadcastExcludesOnePeer(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	alice := newHubClient(sessionID, "alice")
	bob := newHubClient(sessionID, "bob")
	hub.Register(alice)
	hub.Register(bob)

	hub.Broadcast(sessionID, "alice", EventPeerJoined, PeerJoinedPayload{PeerID: "alice"})

	_, got := tryRecv(bob)
	assert.True(t, got)
	_, got = tryRecv(alice)
	assert.False(t, got)
}

func TestBroadcastSkipsConnectedNonMembers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	sessionID := uuid.New()
	members := map[string]bool{"alice": true, "bob": true}
	hub.SetMembershipFilter(func(_ uuid.UUID, peerID string) bool {
		return members[peerID]
	})

	bob := newHubClient(sessionID, "bob")
	lurker := newHubClient(sessionID, "lurker") // connected, never joined the room
	hub.Register(bob)
	hub.Register(lurker)

	hub.Broadcast(sessionID, "alice", EventPeerJoined, PeerJoinedPayload{PeerID: "alice"})

	_, got := tryRecv(bob)
	assert.True(t, got)
	_, got = tryRecv(lurker)
	assert.False(t, got, "room events must only reach members")
}
