package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// slowAppender simulates a transcript store with high write latency.
type slowAppender struct{ delay time.Duration }

func (s *slowAppender) Append(ctx context.Context, sessionID uuid.UUID, speaker, text string, producedAt time.Time) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	return nil
}

func newWsTestServer(t *testing.T, appender FragmentAppender) *httptest.Server {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	reg := NewRegistry()
	hub := NewHub(logger, nil, nil)
	hub.SetMembershipFilter(reg.IsMember)
	relay := NewRelay(reg, hub, 5*time.Millisecond, logger)

	// Tokens double as identities so each test peer dials as itself.
	validate := func(token string) (string, string, error) { return token, token, nil }

	r := gin.New()
	r.GET("/ws", ServeWs(hub, relay, appender, logger, validate))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialPeer(t *testing.T, srv *httptest.Server, sessionID uuid.UUID, peer string) *websocket.Conn {
	url := strings.Replace(srv.URL, "http", "ws", 1) +
		"/ws?session_id=" + sessionID.String() + "&token=" + peer
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(WSMessage{Event: event, Data: raw}))
}

func readUntil(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) WSMessage {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg
		}
	}
}

func TestSignalNotDelayedBySlowTranscriptStore(t *testing.T) {
	srv := newWsTestServer(t, &slowAppender{delay: time.Second})
	sessionID := uuid.New()

	alice := dialPeer(t, srv, sessionID, "alice")
	bob := dialPeer(t, srv, sessionID, "bob")

	sendEvent(t, alice, "join-room", struct{}{})
	readUntil(t, alice, EventExistingPeers, time.Second)
	sendEvent(t, bob, "join-room", struct{}{})
	readUntil(t, bob, EventExistingPeers, time.Second)

	// A fragment whose persistence stalls, immediately followed by a signal
	// on the same connection.
	sendEvent(t, alice, "transcript-fragment", fragmentData{Text: "hello room"})
	start := time.Now()
	sendEvent(t, alice, "signal", SignalPayload{
		Target:  "bob",
		Payload: json.RawMessage(`{"type":"offer"}`),
	})

	msg := readUntil(t, bob, EventSignal, 2*time.Second)
	elapsed := time.Since(start)

	var payload SignalPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "alice", payload.Origin)
	assert.Less(t, elapsed, 500*time.Millisecond,
		"signal must not queue behind transcript persistence")
}
