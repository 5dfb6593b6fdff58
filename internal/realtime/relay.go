package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lucid-meet/backend/internal/models"
)

// Outbound event names on the client transport.
const (
	EventExistingPeers = "existing-peers"
	EventPeerJoined    = "peer-joined"
	EventPeerLeft      = "peer-left"
	EventSignal        = "signal"
	EventError         = "error"
)

// ExistingPeersPayload lists the members already present when a peer joins.
type ExistingPeersPayload struct {
	Peers []string `json:"peers"`
}

// PeerJoinedPayload announces a new member to the rest of the room.
type PeerJoinedPayload struct {
	PeerID string `json:"peer_id"`
	Name   string `json:"name,omitempty"`
}

// PeerLeftPayload announces a departed member to the rest of the room.
type PeerLeftPayload struct {
	PeerID string `json:"peer_id"`
}

// SignalPayload carries an opaque signaling envelope between two peers.
// The relay never interprets Payload.
type SignalPayload struct {
	Origin  string          `json:"origin,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Sender delivers events to connected peer transports. SendToPeer reports
// delivery success; Broadcast is fire-and-forget to every member except one.
type Sender interface {
	SendToPeer(sessionID uuid.UUID, peerID, event string, payload interface{}) bool
	Broadcast(sessionID uuid.UUID, excludePeerID, event string, payload interface{})
}

// FirstJoinFunc is invoked when a room goes from zero members to one.
type FirstJoinFunc func(sessionID uuid.UUID)

type pendingKey struct {
	sessionID uuid.UUID
	peerID    string
}

// Relay routes signaling events between peers in a room so that every pair
// of concurrently-present peers completes one offer/answer exchange.
//
// The join protocol is two-phase: the joiner first receives the current
// member list synchronously (so its receive path is registered before anyone
// calls it), and only after a grace interval are existing members told to
// call the joiner. The grace timer is cancelled if the joiner leaves first,
// so a peer-joined is never delivered for a peer that is already gone.
//
// Relay operations are synchronous and in-memory; nothing here waits on the
// store or AI collaborators.
type Relay struct {
	registry    *Registry
	sender      Sender
	joinGrace   time.Duration
	onFirstJoin FirstJoinFunc

	pending map[pendingKey]*time.Timer
	mu      sync.Mutex

	logger *zap.Logger
}

// NewRelay creates a signaling relay over the given registry and sender.
func NewRelay(registry *Registry, sender Sender, joinGrace time.Duration, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		registry:  registry,
		sender:    sender,
		joinGrace: joinGrace,
		pending:   make(map[pendingKey]*time.Timer),
		logger:    logger,
	}
}

// SetFirstJoinFunc registers the hook called when a room gains its first
// member. The hook runs on its own goroutine; it must not be relied on for
// signaling ordering.
func (r *Relay) SetFirstJoinFunc(fn FirstJoinFunc) {
	r.onFirstJoin = fn
}

// HandleJoin admits a peer and runs the two-phase join protocol.
//
// A repeated join of the same room resends the member snapshot to the joiner
// and triggers no broadcast. Joining while a member of another room returns
// models.ErrPeerBusy.
func (r *Relay) HandleJoin(sessionID uuid.UUID, peerID, name string) error {
	existing, err := r.registry.Join(sessionID, peerID, name)
	if errors.Is(err, models.ErrAlreadyMember) {
		r.sender.SendToPeer(sessionID, peerID, EventExistingPeers, ExistingPeersPayload{Peers: existing})
		return nil
	}
	if err != nil {
		return err
	}

	// Phase one: the joiner learns who is already here, before anyone is
	// told to call it.
	r.sender.SendToPeer(sessionID, peerID, EventExistingPeers, ExistingPeersPayload{Peers: existing})

	if len(existing) == 0 && r.onFirstJoin != nil {
		go r.onFirstJoin(sessionID)
	}

	// Phase two, after the grace interval: tell the room about the joiner,
	// unless it has already left.
	key := pendingKey{sessionID: sessionID, peerID: peerID}
	r.mu.Lock()
	if t, ok := r.pending[key]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(r.joinGrace, func() {
		// The membership check and the broadcast share the relay mutex with
		// HandleLeave, so a leave can never slip between them and make
		// peer-joined trail peer-left.
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.pending[key] != timer {
			return
		}
		delete(r.pending, key)
		if !r.registry.IsMember(sessionID, peerID) {
			return
		}
		r.sender.Broadcast(sessionID, peerID, EventPeerJoined, PeerJoinedPayload{PeerID: peerID, Name: name})
	})
	r.pending[key] = timer
	r.mu.Unlock()

	r.logger.Debug("peer joined room",
		zap.String("session_id", sessionID.String()),
		zap.String("peer_id", peerID),
		zap.Int("existing", len(existing)),
	)
	return nil
}

// HandleLeave removes a peer and broadcasts peer-left to the remaining
// members. It fires at most once per membership even if the transport
// reports the disconnect multiple times. Returns whether the peer was a
// member.
func (r *Relay) HandleLeave(sessionID uuid.UUID, peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.registry.Leave(sessionID, peerID) {
		return false
	}

	key := pendingKey{sessionID: sessionID, peerID: peerID}
	if t, ok := r.pending[key]; ok {
		t.Stop()
		delete(r.pending, key)
	}

	r.sender.Broadcast(sessionID, peerID, EventPeerLeft, PeerLeftPayload{PeerID: peerID})
	r.logger.Debug("peer left room",
		zap.String("session_id", sessionID.String()),
		zap.String("peer_id", peerID),
	)
	return true
}

// RelaySignal forwards an opaque signaling payload verbatim to the target
// peer's transport. Returns false when the target is no longer a room member
// or its transport is gone; the event is then dropped without retry, and the
// originator's own timeout handling is responsible for recovery.
func (r *Relay) RelaySignal(sessionID uuid.UUID, originPeerID, targetPeerID string, payload json.RawMessage) bool {
	if !r.registry.IsMember(sessionID, targetPeerID) {
		r.logger.Debug("signal target not in room, dropping",
			zap.String("session_id", sessionID.String()),
			zap.String("origin", originPeerID),
			zap.String("target", targetPeerID),
		)
		return false
	}
	return r.sender.SendToPeer(sessionID, targetPeerID, EventSignal, SignalPayload{
		Origin:  originPeerID,
		Payload: payload,
	})
}
