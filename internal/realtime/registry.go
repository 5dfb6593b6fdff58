package realtime

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucid-meet/backend/internal/models"
)

// Registry tracks live room membership: session ID -> set of peer IDs.
// Peer IDs are stable user identities reused as peer-connection identities,
// so a peer may be a member of at most one room at a time; Join enforces
// that explicitly instead of relying on transport behavior.
//
// Registry state is per-process. Deployments running multiple instances
// share broadcasts through Redis pub/sub (see Hub) but each instance only
// knows its own members; the one-room-per-peer invariant then holds per
// instance, not cluster-wide.
type Registry struct {
	rooms map[uuid.UUID]map[string]models.Participant
	// peerRoom is the reverse index enforcing one room per peer.
	peerRoom map[string]uuid.UUID
	mu       sync.Mutex
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[uuid.UUID]map[string]models.Participant),
		peerRoom: make(map[string]uuid.UUID),
	}
}

// Join admits a peer into a session's room and returns the peer IDs that
// were already members before this join.
//
// Joining a room the peer is already in returns the unchanged member set and
// models.ErrAlreadyMember; callers treat that as a no-op, not a failure.
// Joining while a member of a different room fails with models.ErrPeerBusy.
func (r *Registry) Join(sessionID uuid.UUID, peerID, name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.peerRoom[peerID]; ok {
		if current == sessionID {
			return r.membersLocked(sessionID, peerID), models.ErrAlreadyMember
		}
		return nil, models.ErrPeerBusy
	}

	existing := r.membersLocked(sessionID, peerID)
	room := r.rooms[sessionID]
	if room == nil {
		room = make(map[string]models.Participant)
		r.rooms[sessionID] = room
	}
	room[peerID] = models.Participant{PeerID: peerID, Name: name, JoinedAt: time.Now()}
	r.peerRoom[peerID] = sessionID
	return existing, nil
}

// Leave removes a peer from a session's room and reports whether the peer
// was actually a member. Removing an absent peer is a no-op, never an error;
// the boolean lets callers deduplicate transport-level double disconnects.
func (r *Registry) Leave(sessionID uuid.UUID, peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[sessionID]
	if !ok {
		return false
	}
	if _, ok := room[peerID]; !ok {
		return false
	}
	delete(room, peerID)
	delete(r.peerRoom, peerID)
	if len(room) == 0 {
		delete(r.rooms, sessionID)
	}
	return true
}

// MembersOf returns a sorted snapshot of the peer IDs in a session's room.
func (r *Registry) MembersOf(sessionID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membersLocked(sessionID, "")
}

// Participants returns a snapshot of the participants in a session's room.
func (r *Registry) Participants(sessionID uuid.UUID) []models.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[sessionID]
	out := make([]models.Participant, 0, len(room))
	for _, p := range room {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// IsMember reports whether the peer is currently in the session's room.
func (r *Registry) IsMember(sessionID uuid.UUID, peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peerRoom[peerID] == sessionID
}

func (r *Registry) membersLocked(sessionID uuid.UUID, exclude string) []string {
	room := r.rooms[sessionID]
	out := make([]string, 0, len(room))
	for id := range room {
		if id != exclude {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
