package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-meet/backend/internal/analysis"
	"github.com/lucid-meet/backend/internal/models"
	"github.com/lucid-meet/backend/internal/realtime"
)

// recordingSender captures relay deliveries per peer.
type recordingSender struct {
	mu     sync.Mutex
	events []relayEvent
}

type relayEvent struct {
	peerID  string
	exclude string
	event   string
	payload interface{}
}

func (s *recordingSender) SendToPeer(sessionID uuid.UUID, peerID, event string, payload interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, relayEvent{peerID: peerID, event: event, payload: payload})
	return true
}

func (s *recordingSender) Broadcast(sessionID uuid.UUID, excludePeerID, event string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, relayEvent{exclude: excludePeerID, event: event, payload: payload})
}

func (s *recordingSender) named(event string) []relayEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []relayEvent
	for _, e := range s.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// TestMeetingLifecycle drives a whole meeting end to end: schedule, first
// join flips the session live, peers exchange signals and transcript
// fragments, everyone leaves, and the analysis is generated on demand.
func TestMeetingLifecycle(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	memAnalysis := analysis.NewMemoryStore()
	agg := analysis.NewAggregator(memAnalysis, nil)
	summarizer := &fakeSummarizer{summary: "Standup recap.", actionItems: []string{"bob: fix the build"}}
	lc := NewLifecycle(store, agg, summarizer, nil)

	registry := realtime.NewRegistry()
	sender := &recordingSender{}
	relay := realtime.NewRelay(registry, sender, 10*time.Millisecond, nil)
	relay.SetFirstJoinFunc(lc.OnFirstJoin)

	sess := &models.Session{Title: "standup", ScheduledFor: time.Now(), CreatedBy: uuid.New()}
	require.NoError(t, store.Create(ctx, sess))
	require.Equal(t, models.StatusScheduled, sess.Status)

	// Alice joins an empty room: snapshot is empty, session goes live.
	require.NoError(t, relay.HandleJoin(sess.ID, "alice", "Alice"))
	waitForStatus(t, store, sess.ID, models.StatusLive)

	// Bob joins: he learns about alice before alice is told to call him.
	require.NoError(t, relay.HandleJoin(sess.ID, "bob", "Bob"))
	time.Sleep(50 * time.Millisecond)

	snapshots := sender.named(realtime.EventExistingPeers)
	require.Len(t, snapshots, 2)
	assert.Equal(t, []string{"alice"}, snapshots[1].payload.(realtime.ExistingPeersPayload).Peers)

	// Offer/answer exchange through the relay is opaque.
	require.True(t, relay.RelaySignal(sess.ID, "bob", "alice", json.RawMessage(`{"type":"offer"}`)))
	require.True(t, relay.RelaySignal(sess.ID, "alice", "bob", json.RawMessage(`{"type":"answer"}`)))
	assert.Len(t, sender.named(realtime.EventSignal), 2)

	// Speech is transcribed as the meeting runs.
	base := time.Now()
	require.NoError(t, agg.Append(ctx, sess.ID, "Bob", "build is red again", base.Add(time.Second)))
	require.NoError(t, agg.Append(ctx, sess.ID, "Alice", "morning folks", base))

	// Everyone hangs up.
	require.True(t, relay.HandleLeave(sess.ID, "bob"))
	require.True(t, relay.HandleLeave(sess.ID, "alice"))
	assert.Empty(t, registry.MembersOf(sess.ID))
	assert.Len(t, sender.named(realtime.EventPeerLeft), 2)

	// Analysis on demand: transcript ordered by speech time, session completed.
	rec, err := lc.GenerateAnalysis(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standup recap.", rec.Summary)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, "Alice", rec.Transcript[0].Speaker)
	assert.Equal(t, "Bob", rec.Transcript[1].Speaker)

	got, err := store.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	// The room can host a rerun; history survives.
	require.NoError(t, relay.HandleJoin(sess.ID, "carol", "Carol"))
	got, err = store.GetByID(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status, "completed sessions never go live again")
}
