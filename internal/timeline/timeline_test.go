package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync-client/internal/models"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func msg(sender int, text string, offset time.Duration) models.Message {
	return models.Message{
		RoomID:     1,
		Sender:     sender,
		SenderName: "user",
		Text:       text,
		CreatedAt:  models.NewTime(base.Add(offset)),
	}
}

func deleted(m models.Message) models.Message {
	m.Deleted = true
	return m
}

func texts(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestHistorySortedDefensively(t *testing.T) {
	tl := New()
	tl.ApplyHistory([]models.Message{
		msg(1, "third", 3*time.Second),
		msg(1, "first", 1*time.Second),
		msg(1, "second", 2*time.Second),
	}, nil)

	assert.Equal(t, []string{"first", "second", "third"}, texts(tl.Snapshot()))
}

func TestBufferedEventsMergeInTimestampOrder(t *testing.T) {
	tl := New()

	// Live events land before history resolves, out of timestamp order.
	tl.Apply(msg(2, "live-late", 5*time.Second))
	tl.Apply(msg(2, "live-early", 500*time.Millisecond))
	require.Equal(t, 0, tl.Len(), "nothing visible before history resolves")

	tl.ApplyHistory([]models.Message{
		msg(1, "hist-1", 1*time.Second),
		msg(1, "hist-2", 2*time.Second),
	}, nil)

	snap := tl.Snapshot()
	assert.Equal(t, []string{"live-early", "hist-1", "hist-2", "live-late"}, texts(snap))
	for i := 1; i < len(snap); i++ {
		assert.False(t, snap[i].CreatedAt.Before(snap[i-1].CreatedAt.Time),
			"snapshot out of order at %d", i)
	}
}

func TestEqualTimestampsKeepHistoryFirst(t *testing.T) {
	tl := New()
	tl.Apply(msg(2, "live-a", time.Second))
	tl.Apply(msg(3, "live-b", time.Second))
	tl.ApplyHistory([]models.Message{msg(1, "hist", time.Second)}, nil)

	assert.Equal(t, []string{"hist", "live-a", "live-b"}, texts(tl.Snapshot()))
}

func TestDuplicateLiveEventIsDropped(t *testing.T) {
	tl := New()
	tl.ApplyHistory(nil, nil)

	m := msg(1, "hello", time.Second)
	tl.Apply(m)
	tl.Apply(m)

	assert.Equal(t, 1, tl.Len())
}

func TestSoftDeleteIsIdempotentAndKeepsSlot(t *testing.T) {
	tl := New()
	m := msg(1, "secret", time.Second)
	tl.ApplyHistory([]models.Message{m, msg(2, "other", 2*time.Second)}, nil)

	tl.Apply(deleted(m))
	tl.Apply(deleted(m))

	snap := tl.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[0].Deleted)
	assert.Equal(t, "secret", snap[0].Text, "original text retained for audit")
	assert.Equal(t, models.DeletedPlaceholder, snap[0].DisplayText())
	assert.False(t, snap[1].Deleted)
}

func TestDuplicateNeverUndeletes(t *testing.T) {
	tl := New()
	m := msg(1, "gone", time.Second)
	tl.ApplyHistory([]models.Message{m}, nil)

	tl.Apply(deleted(m))
	tl.Apply(m)

	snap := tl.Snapshot()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Deleted)
}

func TestSteadyStateAppendsInArrivalOrder(t *testing.T) {
	tl := New()
	tl.ApplyHistory(nil, nil)

	tl.Apply(msg(1, "newer", 2*time.Second))
	tl.Apply(msg(1, "older", 1*time.Second))

	// No causal reordering after the initial merge.
	assert.Equal(t, []string{"newer", "older"}, texts(tl.Snapshot()))
}

// The scripted end-to-end merge: history, duplicate, append, soft delete.
func TestHistoryThenLiveScenario(t *testing.T) {
	tl := New()
	hi := msg(1, "hi", 0)
	tl.ApplyHistory([]models.Message{hi}, nil)
	require.Equal(t, 1, tl.Len())

	tl.Apply(hi)
	assert.Equal(t, 1, tl.Len(), "duplicate of history entry")

	tl.Apply(msg(2, "hey", time.Second))
	assert.Equal(t, []string{"hi", "hey"}, texts(tl.Snapshot()))

	tl.Apply(deleted(hi))
	snap := tl.Snapshot()
	require.Len(t, snap, 2)
	assert.True(t, snap[0].Deleted)
	assert.Equal(t, "hey", snap[1].Text)
}

func TestFailedHistoryLeavesTimelineLiveOnly(t *testing.T) {
	tl := New()
	tl.ApplyHistory(nil, assert.AnError)

	require.Error(t, tl.Err())
	tl.Apply(msg(1, "still works", time.Second))
	assert.Equal(t, 1, tl.Len())
}

func TestWatchReceivesSnapshotsAfterEveryMerge(t *testing.T) {
	tl := New()
	updates := tl.Watch()

	tl.ApplyHistory([]models.Message{msg(1, "hist", time.Second)}, nil)
	snap := <-updates
	require.Len(t, snap, 1)

	tl.Apply(msg(2, "live", 2*time.Second))
	snap = <-updates
	require.Len(t, snap, 2)
}

func TestWatchConflatesWhenReceiverLags(t *testing.T) {
	tl := New()
	tl.ApplyHistory(nil, nil)
	updates := tl.Watch()

	tl.Apply(msg(1, "a", 1*time.Second))
	tl.Apply(msg(1, "b", 2*time.Second))
	tl.Apply(msg(1, "c", 3*time.Second))

	// The lagging receiver sees the latest state, not the backlog.
	snap := <-updates
	assert.Len(t, snap, 3)
}

func TestCloseStopsDeliveryAndDiscardsState(t *testing.T) {
	tl := New()
	tl.ApplyHistory([]models.Message{msg(1, "hist", time.Second)}, nil)
	updates := tl.Watch()
	<-updates

	tl.Close()
	_, ok := <-updates
	assert.False(t, ok, "watch channel closed")

	tl.Apply(msg(1, "after close", 2*time.Second))
	assert.Equal(t, 0, tl.Len())
}
