package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains session_id -> set of connections and delivers events to
// them. Broadcasts are mirrored through Redis pub/sub so instances sharing a
// Redis see each other's room events; targeted delivery (SendToPeer) is
// instance-local, matching the per-process room registry.
type Hub struct {
	// sessionID -> peerID -> *Client
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redisPub RedisPublisher
	redisSub RedisSubscriber
	isMember MembershipChecker
}

// RedisPublisher publishes room events for cross-instance broadcast.
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event, excludePeerID string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event, excludePeerID string, payload []byte)) (cancel func(), err error)
}

// MembershipChecker reports whether a peer is a current room member.
// Connections and memberships diverge: a client is connected from the
// upgrade, a member only once it sent join-room.
type MembershipChecker func(sessionID uuid.UUID, peerID string) bool

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for
// single-instance deployments.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redisPub: redisPub,
		redisSub: redisSub,
	}
}

// SetMembershipFilter restricts broadcast delivery to current room members.
// Without a filter every connected client of the session receives broadcasts,
// including ones that never joined the room.
func (h *Hub) SetMembershipFilter(fn MembershipChecker) {
	h.isMember = fn
}

// Register adds a client connection to a session. A reconnect with the same
// peer identity replaces (and closes) the previous connection. Starts the
// Redis subscription for this session on the first local client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(c.SessionID, func(event, exclude string, payload []byte) {
				h.broadcastLocal(c.SessionID, exclude, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.SessionID] = cancel
			}
		}
	}
	old := h.sessions[c.SessionID][c.PeerID]
	h.sessions[c.SessionID][c.PeerID] = c
	h.mu.Unlock()

	if old != nil {
		old.close()
		h.logger.Info("replaced connection for reconnecting peer",
			zap.String("peer_id", c.PeerID), zap.String("session_id", c.SessionID.String()))
	}
	h.logger.Debug("client connected", zap.String("peer_id", c.PeerID), zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client connection and reports whether it was the
// current connection for its peer (false for a stale connection already
// replaced by a reconnect, whose room membership must survive). Cancels the
// Redis subscription when the last local client of the session disconnects.
func (h *Hub) Unregister(c *Client) bool {
	current := false
	h.mu.Lock()
	if m, ok := h.sessions[c.SessionID]; ok {
		if m[c.PeerID] == c {
			delete(m, c.PeerID)
			current = true
		}
		if len(m) == 0 {
			delete(h.sessions, c.SessionID)
			if cancel, ok := h.subs[c.SessionID]; ok {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("peer_id", c.PeerID), zap.String("session_id", c.SessionID.String()))
	return current
}

// SendToPeer delivers an event to a single peer's transport. Returns false
// when the peer has no live local connection or its send buffer is full.
func (h *Hub) SendToPeer(sessionID uuid.UUID, peerID, event string, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	h.mu.RLock()
	c := h.sessions[sessionID][peerID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	select {
	case c.send <- WSMessage{Event: event, Data: data}:
		return true
	default:
		// buffer full; the transport is stalled, drop rather than block
		return false
	}
}

// Broadcast delivers an event to every member of a session except one, both
// locally and (when Redis is configured) on other instances.
func (h *Hub) Broadcast(sessionID uuid.UUID, excludePeerID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.broadcastLocal(sessionID, excludePeerID, event, json.RawMessage(data))
	if h.redisPub != nil {
		_ = h.redisPub.PublishSessionEvent(sessionID, event, excludePeerID, data)
	}
}

func (h *Hub) broadcastLocal(sessionID uuid.UUID, excludePeerID, event string, data json.RawMessage) {
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	targets := make([]*Client, 0, len(clients))
	for peerID, c := range clients {
		if peerID == excludePeerID {
			continue
		}
		if h.isMember != nil && !h.isMember(sessionID, peerID) {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// ConnectionCount returns the number of connected clients in a session.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
