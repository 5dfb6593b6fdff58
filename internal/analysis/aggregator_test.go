package analysis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatorAppendCreatesRecordOnFirstFragment(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	rec, err := store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, agg.Append(ctx, sessionID, "alice", "hello everyone", time.Now()))

	rec, err = store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Len(t, rec.Transcript, 1)
	assert.Equal(t, "alice", rec.Transcript[0].Speaker)
	assert.Equal(t, "hello everyone", rec.Transcript[0].Text)
}

func TestAggregatorDiscardsEmptyText(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	require.NoError(t, agg.Append(ctx, sessionID, "alice", "", time.Now()))
	require.NoError(t, agg.Append(ctx, sessionID, "alice", "   \n\t", time.Now()))

	rec, err := store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	assert.Nil(t, rec, "blank fragments must not create a record")
}

func TestAggregatorKeepsRepeatedSpeech(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()
	at := time.Now()

	require.NoError(t, agg.Append(ctx, sessionID, "alice", "agreed", at))
	require.NoError(t, agg.Append(ctx, sessionID, "alice", "agreed", at))

	rec, err := store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, rec.Transcript, 2)
}

func TestOrderedTranscriptSortsByProducedAt(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()
	base := time.Now()

	// Fragments arrive out of order, as network jitter would deliver them.
	require.NoError(t, agg.Append(ctx, sessionID, "bob", "second", base.Add(2*time.Second)))
	require.NoError(t, agg.Append(ctx, sessionID, "alice", "first", base.Add(1*time.Second)))
	require.NoError(t, agg.Append(ctx, sessionID, "carol", "third", base.Add(3*time.Second)))

	// Stored record keeps arrival order.
	rec, err := store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Transcript[0].Text)

	ordered, err := agg.OrderedTranscript(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "first", ordered[0].Text)
	assert.Equal(t, "second", ordered[1].Text)
	assert.Equal(t, "third", ordered[2].Text)
}

func TestOrderedTranscriptEmptyWhenNoRecord(t *testing.T) {
	agg := NewAggregator(NewMemoryStore(), nil)

	ordered, err := agg.OrderedTranscript(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, ordered)
}

func TestAggregatorConcurrentFirstAppendsMergeIntoOneRecord(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = agg.Append(ctx, sessionID, "alice", fmt.Sprintf("fragment %d", i), time.Now())
		}(i)
	}
	wg.Wait()

	rec, err := store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Transcript, n)
}

func TestSetSummaryUpserts(t *testing.T) {
	store := NewMemoryStore()
	agg := NewAggregator(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	require.NoError(t, agg.Append(ctx, sessionID, "alice", "let's ship it", time.Now()))
	require.NoError(t, agg.SetSummary(ctx, sessionID, "Shipping decided.", []string{"alice ships it"}))

	rec, err := store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Shipping decided.", rec.Summary)
	assert.Equal(t, []string{"alice ships it"}, rec.ActionItems)
	require.NotNil(t, rec.SummaryGeneratedAt)

	// Regenerating replaces, never duplicates.
	require.NoError(t, agg.SetSummary(ctx, sessionID, "Updated.", nil))
	rec, err = store.GetAnalysis(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Updated.", rec.Summary)
	assert.Empty(t, rec.ActionItems)
	assert.Len(t, rec.Transcript, 1)
}
