package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucid-meet/backend/internal/models"
)

func TestRegistryJoinReturnsExistingMembers(t *testing.T) {
	reg := NewRegistry()
	sessionID := uuid.New()

	existing, err := reg.Join(sessionID, "alice", "Alice")
	require.NoError(t, err)
	assert.Empty(t, existing)

	existing, err = reg.Join(sessionID, "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, existing)

	existing, err = reg.Join(sessionID, "carol", "Carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, existing)
}

func TestRegistryRejoinSameRoomIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	sessionID := uuid.New()

	_, err := reg.Join(sessionID, "alice", "Alice")
	require.NoError(t, err)
	_, err = reg.Join(sessionID, "bob", "Bob")
	require.NoError(t, err)

	existing, err := reg.Join(sessionID, "alice", "Alice")
	assert.ErrorIs(t, err, models.ErrAlreadyMember)
	assert.Equal(t, []string{"bob"}, existing)
	assert.Equal(t, []string{"alice", "bob"}, reg.MembersOf(sessionID))
}

func TestRegistryRejectsJoinWhileInAnotherRoom(t *testing.T) {
	reg := NewRegistry()
	roomA := uuid.New()
	roomB := uuid.New()

	_, err := reg.Join(roomA, "alice", "Alice")
	require.NoError(t, err)

	_, err = reg.Join(roomB, "alice", "Alice")
	assert.ErrorIs(t, err, models.ErrPeerBusy)
	assert.Empty(t, reg.MembersOf(roomB))
	assert.True(t, reg.IsMember(roomA, "alice"))
}

func TestRegistryLeaveReportsMembership(t *testing.T) {
	reg := NewRegistry()
	sessionID := uuid.New()

	_, err := reg.Join(sessionID, "alice", "Alice")
	require.NoError(t, err)

	assert.True(t, reg.Leave(sessionID, "alice"))
	// Double disconnect: second leave is a no-op.
	assert.False(t, reg.Leave(sessionID, "alice"))
	assert.False(t, reg.Leave(sessionID, "never-joined"))
	assert.Empty(t, reg.MembersOf(sessionID))
}

func TestRegistryLeaveFreesPeerForNewRoom(t *testing.T) {
	reg := NewRegistry()
	roomA := uuid.New()
	roomB := uuid.New()

	_, err := reg.Join(roomA, "alice", "Alice")
	require.NoError(t, err)
	require.True(t, reg.Leave(roomA, "alice"))

	existing, err := reg.Join(roomB, "alice", "Alice")
	require.NoError(t, err)
	assert.Empty(t, existing)
	assert.True(t, reg.IsMember(roomB, "alice"))
}

func TestRegistryParticipantsSnapshot(t *testing.T) {
	reg := NewRegistry()
	sessionID := uuid.New()

	_, err := reg.Join(sessionID, "bob", "Bob")
	require.NoError(t, err)
	_, err = reg.Join(sessionID, "alice", "Alice")
	require.NoError(t, err)

	parts := reg.Participants(sessionID)
	require.Len(t, parts, 2)
	assert.Equal(t, "alice", parts[0].PeerID)
	assert.Equal(t, "Alice", parts[0].Name)
	assert.Equal(t, "bob", parts[1].PeerID)
	assert.False(t, parts[0].JoinedAt.IsZero())
}
