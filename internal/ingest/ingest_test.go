package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typewitness/internal/event"
	"typewitness/internal/session"
	sessionstore "typewitness/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIngestor(t *testing.T) (*Ingestor, *session.Manager, *sessionstore.Store) {
	t.Helper()
	st, err := sessionstore.Open(filepath.Join(t.TempDir(), "typewitness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	manager := session.NewManager()
	return NewIngestor(st, manager, discardLogger()), manager, st
}

func TestParseBatchValid(t *testing.T) {
	raw := `{
		"sessionId": "s1",
		"projectId": "p1",
		"events": [
			{"eventType": "keydown", "timestamp": 1000, "key": "a"},
			{"eventType": "paste", "timestamp": 2000, "text": "hello"}
		]
	}`

	batch, err := ParseBatch([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "s1", batch.SessionID)
	require.Len(t, batch.Events, 2)
	assert.Equal(t, event.TypeKeyDown, batch.Events[0].EventType)
	assert.Equal(t, "hello", batch.Events[1].Text)
}

func TestParseBatchRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"missing session id", `{"events": []}`},
		{"empty session id", `{"sessionId": "", "events": []}`},
		{"missing events", `{"sessionId": "s1"}`},
		{"event without type", `{"sessionId": "s1", "events": [{"timestamp": 1}]}`},
		{"event without timestamp", `{"sessionId": "s1", "events": [{"eventType": "keydown"}]}`},
		{"negative timestamp", `{"sessionId": "s1", "events": [{"eventType": "keydown", "timestamp": -5}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatch([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseBatchAllowsUnknownEventType(t *testing.T) {
	// Newer capture layers may send tags this build does not know; the
	// wire contract is additive.
	raw := `{"sessionId": "s1", "events": [{"eventType": "hover", "timestamp": 1}]}`

	batch, err := ParseBatch([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, event.Type("hover"), batch.Events[0].EventType)
}

func TestIngestCreatesSessionAndPersists(t *testing.T) {
	in, manager, st := testIngestor(t)

	n, err := in.Ingest([]byte(`{
		"sessionId": "s1",
		"projectId": "p1",
		"externalUserId": "u1",
		"events": [
			{"eventType": "keydown", "timestamp": 1000},
			{"eventType": "keydown", "timestamp": 1200}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sess, ok := manager.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "p1", sess.ProjectID())
	assert.Equal(t, 2, sess.EventCount())

	stored, err := st.GetSession("s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.ExternalUserID)

	events, err := st.EventsForSession("s1")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestIngestAppendsAcrossBatchesInOrder(t *testing.T) {
	in, manager, st := testIngestor(t)

	_, err := in.Ingest([]byte(`{"sessionId": "s1", "events": [
		{"eventType": "keydown", "timestamp": 1000, "key": "a"},
		{"eventType": "keydown", "timestamp": 1100, "key": "b"}
	]}`))
	require.NoError(t, err)

	// Second batch claims an earlier timestamp; it is resequenced, never
	// reordered.
	_, err = in.Ingest([]byte(`{"sessionId": "s1", "events": [
		{"eventType": "keydown", "timestamp": 900, "key": "c"}
	]}`))
	require.NoError(t, err)

	sess, _ := manager.Get("s1")
	live, _ := sess.Events()
	require.Len(t, live, 3)
	assert.Equal(t, "c", live[2].Key)
	assert.Equal(t, int64(1100), live[2].Timestamp, "late timestamp pulled forward")

	// The persisted sequence matches what the live session accepted.
	stored, err := st.EventsForSession("s1")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, int64(1100), stored[2].Timestamp)
}

func TestIngestConcurrentBatchesSameSession(t *testing.T) {
	in, _, st := testIngestor(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, err := in.Ingest([]byte(fmt.Sprintf(
				`{"sessionId": "s1", "events": [
					{"eventType": "keydown", "timestamp": 1000, "key": %q},
					{"eventType": "keydown", "timestamp": 1001, "key": %q}
				]}`, string(rune('a'+w)), string(rune('a'+w)))))
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()

	// Every batch's own events land exactly once, regardless of how the
	// appends interleaved.
	stored, err := st.EventsForSession("s1")
	require.NoError(t, err)
	require.Len(t, stored, 16)

	perKey := make(map[string]int)
	for _, e := range stored {
		perKey[e.Key]++
	}
	for w := 0; w < 8; w++ {
		assert.Equal(t, 2, perKey[string(rune('a'+w))])
	}
}

func TestIngestSubmission(t *testing.T) {
	in, manager, st := testIngestor(t)

	_, err := in.Ingest([]byte(`{"sessionId": "s1", "submitted": true, "events": [
		{"eventType": "keydown", "timestamp": 1000}
	]}`))
	require.NoError(t, err)

	sess, _ := manager.Get("s1")
	assert.Equal(t, session.StateSubmitted, sess.State())

	stored, err := st.GetSession("s1")
	require.NoError(t, err)
	assert.True(t, stored.Submitted)

	// Late batch after submission still appends.
	_, err = in.Ingest([]byte(`{"sessionId": "s1", "events": [
		{"eventType": "keydown", "timestamp": 2000}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, sess.EventCount())
	assert.Equal(t, session.StateSubmitted, sess.State())
}

func TestIngestOnAppendCallback(t *testing.T) {
	in, _, _ := testIngestor(t)

	var got []string
	in.OnAppend(func(sess *session.Session) {
		got = append(got, sess.ID())
	})

	_, err := in.Ingest([]byte(`{"sessionId": "s1", "events": [{"eventType": "keydown", "timestamp": 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, got)
}

func TestIngestWithoutStore(t *testing.T) {
	manager := session.NewManager()
	in := NewIngestor(nil, manager, discardLogger())

	n, err := in.Ingest([]byte(`{"sessionId": "s1", "events": [{"eventType": "keydown", "timestamp": 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sess, ok := manager.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 1, sess.EventCount())
}
