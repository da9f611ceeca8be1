package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typewitness/internal/event"
)

func keydown(ts int64) event.TrackerEvent {
	return event.TrackerEvent{EventType: event.TypeKeyDown, Timestamp: ts}
}

func TestNewDefaults(t *testing.T) {
	sess := New(Options{ProjectID: "p1", ExternalUserID: "u1"})

	require.NotEmpty(t, sess.ID())
	assert.Equal(t, "p1", sess.ProjectID())
	assert.Equal(t, "u1", sess.ExternalUserID())
	assert.Equal(t, StateOpen, sess.State())
	assert.False(t, sess.Start().IsZero())
}

func TestAppendBumpsVersion(t *testing.T) {
	sess := New(Options{})

	require.Equal(t, uint64(0), sess.Version())

	sess.Append(keydown(100), keydown(200))
	assert.Equal(t, uint64(1), sess.Version())
	assert.Equal(t, 2, sess.EventCount())

	sess.Append(keydown(300))
	assert.Equal(t, uint64(2), sess.Version())

	// Empty append is a no-op.
	sess.Append()
	assert.Equal(t, uint64(2), sess.Version())
}

func TestAppendResequencesTimestamps(t *testing.T) {
	sess := New(Options{})
	sess.Append(keydown(1000))

	// Batch claiming to predate the accepted sequence is pulled forward.
	sess.Append(keydown(500), keydown(700), keydown(1200))

	events, _ := sess.Events()
	require.Len(t, events, 4)
	assert.Equal(t, int64(1000), events[1].Timestamp)
	assert.Equal(t, int64(1000), events[2].Timestamp)
	assert.Equal(t, int64(1200), events[3].Timestamp)

	// Stored sequence is monotonically non-decreasing.
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Timestamp, events[i-1].Timestamp)
	}
}

func TestAppendReturnsAcceptedBatch(t *testing.T) {
	sess := New(Options{})
	sess.Append(keydown(1000))

	accepted := sess.Append(keydown(500), keydown(1200))
	require.Len(t, accepted, 2)
	assert.Equal(t, int64(1000), accepted[0].Timestamp, "resequenced as accepted")
	assert.Equal(t, int64(1200), accepted[1].Timestamp)

	// The returned slice is a copy; a persister mutating it must not
	// touch stored history.
	accepted[1].Timestamp = 9999
	events, _ := sess.Events()
	assert.Equal(t, int64(1200), events[2].Timestamp)

	assert.Nil(t, sess.Append())
}

func TestConcurrentAppendsEachGetOwnBatch(t *testing.T) {
	sess := New(Options{})

	const writers = 8
	results := make([][]event.TrackerEvent, writers)
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			results[w] = sess.Append(
				event.TrackerEvent{EventType: event.TypeKeyDown, Timestamp: int64(w), Key: string(rune('a' + w))},
				event.TrackerEvent{EventType: event.TypeKeyDown, Timestamp: int64(w), Key: string(rune('a' + w))},
			)
		}(w)
	}
	wg.Wait()

	assert.Equal(t, writers*2, sess.EventCount())
	for w, batch := range results {
		require.Len(t, batch, 2)
		// Each writer got back its own events, not an interleaved slice.
		assert.Equal(t, string(rune('a'+w)), batch[0].Key)
		assert.Equal(t, string(rune('a'+w)), batch[1].Key)
	}
}

func TestEventsReturnsSnapshot(t *testing.T) {
	sess := New(Options{})
	sess.Append(keydown(100))

	events, version := sess.Events()
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), version)

	// Mutating the snapshot must not touch stored history.
	events[0].Timestamp = 999
	stored, _ := sess.Events()
	assert.Equal(t, int64(100), stored[0].Timestamp)
}

func TestSubmitHappensOnce(t *testing.T) {
	sess := New(Options{})
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, sess.Submit(first))
	assert.Equal(t, StateSubmitted, sess.State())

	submitted, at := sess.Submitted()
	require.True(t, submitted)
	assert.Equal(t, first, at)

	// A second submission is ignored and the original time stands.
	assert.False(t, sess.Submit(first.Add(time.Hour)))
	_, at = sess.Submitted()
	assert.Equal(t, first, at)
}

func TestLateEventsAfterSubmission(t *testing.T) {
	sess := New(Options{})
	sess.Append(keydown(100))
	require.True(t, sess.Submit(time.Now()))

	// Late network delivery: events still append, session stays submitted.
	sess.Append(keydown(200))

	assert.Equal(t, 2, sess.EventCount())
	assert.Equal(t, StateSubmitted, sess.State())
	assert.Equal(t, uint64(2), sess.Version())
}

func TestResetToken(t *testing.T) {
	sess := New(Options{})

	require.Equal(t, uint64(0), sess.ResetToken())
	assert.Equal(t, uint64(1), sess.ResetAnalytics())
	assert.Equal(t, uint64(2), sess.ResetAnalytics())
	assert.Equal(t, uint64(2), sess.ResetToken())

	// Reset never touches event history.
	assert.Equal(t, 0, sess.EventCount())
}

func TestInfoSnapshot(t *testing.T) {
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	sess := New(Options{
		ID:             "s1",
		ProjectID:      "p1",
		ExternalUserID: "u1",
		IPAddress:      "203.0.113.9",
		UserAgent:      "capture/1.0",
		Start:          start,
	})
	sess.Append(keydown(start.UnixMilli()), keydown(start.Add(time.Minute).UnixMilli()))

	info := sess.Info()
	assert.Equal(t, "s1", info.ID)
	assert.Equal(t, "p1", info.ProjectID)
	assert.Equal(t, 2, info.EventCount)
	assert.Equal(t, "203.0.113.9", info.IPAddress)
	assert.False(t, info.Submitted)
	assert.Equal(t, time.Minute.Milliseconds(), info.DurationMs)
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager()

	sess, created := m.GetOrCreate("s1", Options{ProjectID: "p1"})
	require.True(t, created)
	require.Equal(t, "s1", sess.ID())

	again, created := m.GetOrCreate("s1", Options{ProjectID: "ignored"})
	assert.False(t, created)
	assert.Same(t, sess, again)
	assert.Equal(t, 1, m.Len())
}

func TestManagerSubmit(t *testing.T) {
	m := NewManager()
	m.GetOrCreate("s1", Options{})

	require.NoError(t, m.Submit("s1", time.Now()))
	sess, _ := m.Get("s1")
	assert.Equal(t, StateSubmitted, sess.State())

	// Idempotent for known sessions, error for unknown.
	assert.NoError(t, m.Submit("s1", time.Now()))
	assert.Error(t, m.Submit("missing", time.Now()))
}

func TestManagerOpen(t *testing.T) {
	m := NewManager()
	m.GetOrCreate("s1", Options{})
	m.GetOrCreate("s2", Options{})
	require.NoError(t, m.Submit("s1", time.Now()))

	open := m.Open()
	require.Len(t, open, 1)
	assert.Equal(t, "s2", open[0].ID())
}
