// Package store persists sessions and their event sequences in SQLite.
//
// The store is a collaborator of the analytics core, not part of it: callers
// query the historical event sequence here and hand a fully materialized
// slice to the computation engine. Events are append-only; stored rows are
// never updated.
package store

import "time"

// Session is a persisted session row.
type Session struct {
	ID             string
	ProjectID      string
	ExternalUserID string
	SessionStart   time.Time
	SessionEnd     *time.Time
	Submitted      bool
	SubmissionTime *time.Time
	IPAddress      string
	UserAgent      string
}

// SessionWithStats extends Session with derived counters for listing and
// summary views. Informational; the computation engine does not consume it.
type SessionWithStats struct {
	Session

	// EventCount is the number of stored events.
	EventCount int64

	// DurationMs is the span from first to last stored event in
	// milliseconds.
	DurationMs int64
}

// EventQueryFilters narrows an event query. Zero values mean "no filter".
type EventQueryFilters struct {
	ProjectID      string
	SessionID      string
	ExternalUserID string
	StartDate      *time.Time
	EndDate        *time.Time
	EventTypes     []string
	Limit          int
	Offset         int
}
