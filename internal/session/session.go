// Package session aggregates one subject's tracked writing activity.
//
// A session holds an append-only ordered event sequence. It is created on
// the first captured interaction, accepts events while open, and transitions
// to submitted exactly once when the tracked document is finalized. Events
// arriving after submission (late network delivery is common) are still
// accepted and appended; they never reopen the session or move the
// submission time. Previously stored events are never mutated.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"typewitness/internal/event"
)

// State is the lifecycle state of a session.
type State int

const (
	// StateOpen means the session is accepting events.
	StateOpen State = iota
	// StateSubmitted means the subject finalized the tracked document.
	// Terminal for analytics purposes; late events are still appended.
	StateSubmitted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Session is the unit of aggregation for one subject's writing activity.
type Session struct {
	mu sync.RWMutex

	id             string
	projectID      string
	externalUserID string

	sessionStart   time.Time
	sessionEnd     time.Time
	submitted      bool
	submissionTime time.Time

	// Request metadata recorded at creation.
	ipAddress string
	userAgent string

	events        []event.TrackerEvent
	lastTimestamp int64

	// version increments on every append; it is the sequence identity the
	// recomputation layer compares against.
	version uint64

	// resetToken increments when a consumer requests a clean analytics
	// view without discarding event history.
	resetToken uint64
}

// Options carries optional metadata for a new session.
type Options struct {
	ID             string
	ProjectID      string
	ExternalUserID string
	IPAddress      string
	UserAgent      string
	Start          time.Time
}

// New creates an open session. A missing ID is generated; a zero Start
// defaults to now.
func New(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	return &Session{
		id:             opts.ID,
		projectID:      opts.ProjectID,
		externalUserID: opts.ExternalUserID,
		ipAddress:      opts.IPAddress,
		userAgent:      opts.UserAgent,
		sessionStart:   opts.Start,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// ProjectID returns the owning project identifier.
func (s *Session) ProjectID() string { return s.projectID }

// ExternalUserID returns the tracked subject's external identifier.
func (s *Session) ExternalUserID() string { return s.externalUserID }

// Start returns the session start time.
func (s *Session) Start() time.Time { return s.sessionStart }

// Append adds events to the sequence in order. Timestamps are resequenced
// against the last accepted timestamp so the stored sequence stays
// monotonically non-decreasing; relative order within the batch is
// preserved. Appending to a submitted session succeeds.
//
// It returns a copy of the batch as accepted, resequenced under the
// session lock, so callers persisting the batch see exactly what was
// appended even when another batch lands on the session concurrently.
func (s *Session) Append(events ...event.TrackerEvent) []event.TrackerEvent {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make([]event.TrackerEvent, len(events))
	copy(batch, events)
	s.lastTimestamp = event.Resequence(batch, s.lastTimestamp)
	s.events = append(s.events, batch...)
	s.version++

	accepted := make([]event.TrackerEvent, len(batch))
	copy(accepted, batch)
	return accepted
}

// Events returns a snapshot of the event sequence together with its version.
// The snapshot is a copy; the session's stored events are never exposed for
// mutation.
func (s *Session) Events() ([]event.TrackerEvent, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]event.TrackerEvent, len(s.events))
	copy(out, s.events)
	return out, s.version
}

// EventCount returns the number of stored events.
func (s *Session) EventCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Version returns the current sequence version. It changes exactly when the
// stored sequence changes.
func (s *Session) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Submit transitions the session to submitted at time t. Only the first
// call has any effect; it returns false if the session was already
// submitted.
func (s *Session) Submit(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submitted {
		return false
	}
	if t.IsZero() {
		t = time.Now()
	}
	s.submitted = true
	s.submissionTime = t
	s.sessionEnd = t
	return true
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.submitted {
		return StateSubmitted
	}
	return StateOpen
}

// Submitted reports whether the session has been submitted, and when.
func (s *Session) Submitted() (bool, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submitted, s.submissionTime
}

// ResetAnalytics bumps the reset token, forcing the next analytics request
// to recompute even though the event sequence is unchanged. Event history is
// untouched.
func (s *Session) ResetAnalytics() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetToken++
	return s.resetToken
}

// ResetToken returns the current reset token.
func (s *Session) ResetToken() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resetToken
}

// Duration returns the observed span of the session: submission time minus
// start for submitted sessions, last event (or now) minus start otherwise.
func (s *Session) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	end := s.sessionEnd
	if end.IsZero() {
		if n := len(s.events); n > 0 {
			end = time.UnixMilli(s.events[n-1].Timestamp)
		} else {
			end = time.Now()
		}
	}
	if end.Before(s.sessionStart) {
		return 0
	}
	return end.Sub(s.sessionStart)
}

// Info is an immutable snapshot of session metadata.
type Info struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	ExternalUserID string    `json:"externalUserId"`
	SessionStart   time.Time `json:"sessionStart"`
	SessionEnd     time.Time `json:"sessionEnd,omitempty"`
	Submitted      bool      `json:"submitted"`
	SubmissionTime time.Time `json:"submissionTime,omitempty"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	UserAgent      string    `json:"userAgent,omitempty"`
	EventCount     int       `json:"eventCount"`
	DurationMs     int64     `json:"duration"`
}

// Info returns a metadata snapshot of the session.
func (s *Session) Info() Info {
	duration := s.Duration()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ID:             s.id,
		ProjectID:      s.projectID,
		ExternalUserID: s.externalUserID,
		SessionStart:   s.sessionStart,
		SessionEnd:     s.sessionEnd,
		Submitted:      s.submitted,
		SubmissionTime: s.submissionTime,
		IPAddress:      s.ipAddress,
		UserAgent:      s.userAgent,
		EventCount:     len(s.events),
		DurationMs:     duration.Milliseconds(),
	}
}
