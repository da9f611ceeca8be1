package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typewitness/internal/event"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "typewitness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testSession(id string) *Session {
	return &Session{
		ID:             id,
		ProjectID:      "p1",
		ExternalUserID: "u1",
		SessionStart:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		IPAddress:      "203.0.113.7",
		UserAgent:      "capture/1.0",
	}
}

func TestCreateAndGetSession(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.CreateSession(testSession("s1")))

	got, err := st.GetSession("s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ProjectID)
	assert.Equal(t, "u1", got.ExternalUserID)
	assert.False(t, got.Submitted)
	assert.Nil(t, got.SubmissionTime)
	assert.Equal(t, "203.0.113.7", got.IPAddress)

	missing, err := st.GetSession("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateSessionIdempotent(t *testing.T) {
	st := openTestStore(t)

	require.NoError(t, st.CreateSession(testSession("s1")))

	dup := testSession("s1")
	dup.ProjectID = "other"
	require.NoError(t, st.CreateSession(dup))

	got, err := st.GetSession("s1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProjectID, "first insert wins")
}

func TestMarkSubmittedFirstWins(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.CreateSession(testSession("s1")))

	first := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	changed, err := st.MarkSubmitted("s1", first)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = st.MarkSubmitted("s1", first.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := st.GetSession("s1")
	require.NoError(t, err)
	require.True(t, got.Submitted)
	assert.Equal(t, first.UnixMilli(), got.SubmissionTime.UnixMilli())
}

func TestAppendAndReadEvents(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.CreateSession(testSession("s1")))

	cursor := 12
	first := []event.TrackerEvent{
		{EventType: event.TypeKeyDown, Timestamp: 1000, Key: "a"},
		{EventType: event.TypeInput, Timestamp: 1000, Text: "a", CursorPosition: &cursor},
	}
	n, err := st.AppendEvents("s1", "p1", first)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	second := []event.TrackerEvent{
		{EventType: event.TypePaste, Timestamp: 2000, Text: "pasted", Metadata: map[string]any{"source": "clipboard"}},
	}
	_, err = st.AppendEvents("s1", "p1", second)
	require.NoError(t, err)

	events, err := st.EventsForSession("s1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Accepted order survives round-trip, including the equal-timestamp
	// pair from the first batch.
	assert.Equal(t, event.TypeKeyDown, events[0].EventType)
	assert.Equal(t, event.TypeInput, events[1].EventType)
	assert.Equal(t, event.TypePaste, events[2].EventType)

	require.NotNil(t, events[1].CursorPosition)
	assert.Equal(t, 12, *events[1].CursorPosition)
	assert.Equal(t, "clipboard", events[2].Metadata["source"])
}

func TestQueryEventsFilters(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.CreateSession(testSession("s1")))

	other := testSession("s2")
	other.ProjectID = "p2"
	other.ExternalUserID = "u2"
	require.NoError(t, st.CreateSession(other))

	_, err := st.AppendEvents("s1", "p1", []event.TrackerEvent{
		{EventType: event.TypeKeyDown, Timestamp: 1000},
		{EventType: event.TypePaste, Timestamp: 2000},
		{EventType: event.TypeKeyDown, Timestamp: 3000},
	})
	require.NoError(t, err)
	_, err = st.AppendEvents("s2", "p2", []event.TrackerEvent{
		{EventType: event.TypeKeyDown, Timestamp: 1500},
	})
	require.NoError(t, err)

	t.Run("by session", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{SessionID: "s1"})
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("by project", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{ProjectID: "p2"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "s2", events[0].SessionID)
	})

	t.Run("by external user", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{ExternalUserID: "u1"})
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

	t.Run("by event type", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{EventTypes: []string{"paste"}})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, event.TypePaste, events[0].EventType)
	})

	t.Run("by date range", func(t *testing.T) {
		start := time.UnixMilli(1500)
		end := time.UnixMilli(2500)
		events, err := st.QueryEvents(EventQueryFilters{StartDate: &start, EndDate: &end})
		require.NoError(t, err)
		require.Len(t, events, 2)
	})

	t.Run("limit and offset", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{SessionID: "s1", Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, event.TypePaste, events[0].EventType)
	})

	t.Run("offset without limit", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{SessionID: "s1", Offset: 1})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, event.TypePaste, events[0].EventType)
	})

	t.Run("no match", func(t *testing.T) {
		events, err := st.QueryEvents(EventQueryFilters{SessionID: "absent"})
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestListSessionsWithStats(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.CreateSession(testSession("s1")))
	require.NoError(t, st.CreateSession(testSession("s2")))

	_, err := st.AppendEvents("s1", "p1", []event.TrackerEvent{
		{EventType: event.TypeKeyDown, Timestamp: 1000},
		{EventType: event.TypeKeyDown, Timestamp: 61000},
	})
	require.NoError(t, err)

	sessions, err := st.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	byID := make(map[string]SessionWithStats)
	for _, s := range sessions {
		byID[s.ID] = s
	}

	assert.Equal(t, int64(2), byID["s1"].EventCount)
	assert.Equal(t, int64(60000), byID["s1"].DurationMs)
	assert.Equal(t, int64(0), byID["s2"].EventCount)
	assert.Equal(t, int64(0), byID["s2"].DurationMs)
}

func TestSessionStats(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.CreateSession(testSession("s1")))

	ws, err := st.SessionStats("s1")
	require.NoError(t, err)
	require.NotNil(t, ws)
	assert.Equal(t, int64(0), ws.EventCount)

	missing, err := st.SessionStats("absent")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
