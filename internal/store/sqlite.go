package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"typewitness/internal/event"
)

// Schema for the typewitness event store.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL,
    external_user_id TEXT NOT NULL,
    session_start    INTEGER NOT NULL,
    session_end      INTEGER,
    submitted        INTEGER NOT NULL DEFAULT 0,
    submission_time  INTEGER,
    ip_address       TEXT,
    user_agent       TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(external_user_id);

CREATE TABLE IF NOT EXISTS events (
    id              TEXT PRIMARY KEY,
    session_id      TEXT NOT NULL REFERENCES sessions(id),
    project_id      TEXT NOT NULL,
    created_at      INTEGER NOT NULL,
    event_type      TEXT NOT NULL,
    timestamp_ms    INTEGER NOT NULL,
    target_element  TEXT,
    key             TEXT,
    text            TEXT,
    cursor_position INTEGER,
    selection_start INTEGER,
    selection_end   INTEGER,
    metadata        TEXT,
    seq             INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
`

// Store represents the SQLite session and event store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateSession inserts a session row if it does not already exist.
func (s *Store) CreateSession(sess *Session) error {
	var end, submission *int64
	if sess.SessionEnd != nil {
		v := sess.SessionEnd.UnixMilli()
		end = &v
	}
	if sess.SubmissionTime != nil {
		v := sess.SubmissionTime.UnixMilli()
		submission = &v
	}

	_, err := s.db.Exec(`
		INSERT INTO sessions (id, project_id, external_user_id, session_start, session_end, submitted, submission_time, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.ProjectID, sess.ExternalUserID, sess.SessionStart.UnixMilli(),
		end, boolToInt(sess.Submitted), submission, sess.IPAddress, sess.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id, nil if not found.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, external_user_id, session_start, session_end, submitted, submission_time, ip_address, user_agent
		FROM sessions WHERE id = ?`, id,
	)

	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// MarkSubmitted records the submission transition. Only the first call for
// a session has any effect; a later call leaves the original submission
// time in place and reports false.
func (s *Store) MarkSubmitted(id string, t time.Time) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE sessions
		SET submitted = 1, submission_time = ?, session_end = ?
		WHERE id = ? AND submitted = 0`,
		t.UnixMilli(), t.UnixMilli(), id,
	)
	if err != nil {
		return false, fmt.Errorf("mark submitted: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return n > 0, nil
}

// AppendEvents appends a batch of tracker events for a session, preserving
// batch order after any previously stored events. Returns the number of
// events written.
func (s *Store) AppendEvents(sessionID, projectID string, events []event.TrackerEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var nextSeq int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), -1) + 1 FROM events WHERE session_id = ?`, sessionID).Scan(&nextSeq); err != nil {
		return 0, fmt.Errorf("next sequence number: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (id, session_id, project_id, created_at, event_type, timestamp_ms, target_element, key, text, cursor_position, selection_start, selection_end, metadata, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for i, e := range events {
		var metadata any
		if len(e.Metadata) > 0 {
			data, err := json.Marshal(e.Metadata)
			if err != nil {
				return 0, fmt.Errorf("marshal event metadata: %w", err)
			}
			metadata = string(data)
		}

		_, err := stmt.Exec(
			uuid.NewString(), sessionID, projectID, now,
			string(e.EventType), e.Timestamp,
			nullString(e.TargetElement), nullString(e.Key), nullString(e.Text),
			nullIntPtr(e.CursorPosition), nullIntPtr(e.SelectionStart), nullIntPtr(e.SelectionEnd),
			metadata, nextSeq+int64(i),
		)
		if err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return len(events), nil
}

// EventsForSession returns a session's full tracker-event sequence in
// accepted order, ready to feed the computation engine.
func (s *Store) EventsForSession(sessionID string) ([]event.TrackerEvent, error) {
	rows, err := s.db.Query(`
		SELECT event_type, timestamp_ms, target_element, key, text, cursor_position, selection_start, selection_end, metadata
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []event.TrackerEvent
	for rows.Next() {
		e, err := scanTrackerEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}
	return events, nil
}

// QueryEvents retrieves persisted events matching the filters, in accepted
// order per session.
func (s *Store) QueryEvents(f EventQueryFilters) ([]event.Event, error) {
	var (
		conds []string
		args  []any
	)

	if f.ProjectID != "" {
		conds = append(conds, "e.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.SessionID != "" {
		conds = append(conds, "e.session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.ExternalUserID != "" {
		conds = append(conds, "s.external_user_id = ?")
		args = append(args, f.ExternalUserID)
	}
	if f.StartDate != nil {
		conds = append(conds, "e.timestamp_ms >= ?")
		args = append(args, f.StartDate.UnixMilli())
	}
	if f.EndDate != nil {
		conds = append(conds, "e.timestamp_ms <= ?")
		args = append(args, f.EndDate.UnixMilli())
	}
	if len(f.EventTypes) > 0 {
		placeholders := strings.Repeat("?,", len(f.EventTypes))
		conds = append(conds, fmt.Sprintf("e.event_type IN (%s)", placeholders[:len(placeholders)-1]))
		for _, t := range f.EventTypes {
			args = append(args, t)
		}
	}

	query := `
		SELECT e.id, e.session_id, e.project_id, e.created_at,
		       e.event_type, e.timestamp_ms, e.target_element, e.key, e.text,
		       e.cursor_position, e.selection_start, e.selection_end, e.metadata
		FROM events e
		JOIN sessions s ON s.id = e.session_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.session_id, e.seq ASC"
	if f.Limit > 0 || f.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded.
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, f.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var (
			e         event.Event
			createdAt int64
		)
		var target, key, text, metadata sql.NullString
		var cursor, selStart, selEnd sql.NullInt64
		var eventType string

		if err := rows.Scan(&e.ID, &e.SessionID, &e.ProjectID, &createdAt,
			&eventType, &e.Timestamp, &target, &key, &text,
			&cursor, &selStart, &selEnd, &metadata); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.CreatedAt = time.UnixMilli(createdAt)
		e.EventType = event.Type(eventType)
		e.TargetElement = target.String
		e.Key = key.String
		e.Text = text.String
		e.CursorPosition = intPtr(cursor)
		e.SelectionStart = intPtr(selStart)
		e.SelectionEnd = intPtr(selEnd)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}

		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListSessions returns all sessions with derived event counts and durations,
// most recent first.
func (s *Store) ListSessions() ([]SessionWithStats, error) {
	rows, err := s.db.Query(`
		SELECT s.id, s.project_id, s.external_user_id, s.session_start, s.session_end, s.submitted, s.submission_time, s.ip_address, s.user_agent,
		       COUNT(e.id),
		       COALESCE(MAX(e.timestamp_ms) - MIN(e.timestamp_ms), 0)
		FROM sessions s
		LEFT JOIN events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.session_start DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionWithStats
	for rows.Next() {
		var (
			ws                   SessionWithStats
			start                int64
			end, submission      sql.NullInt64
			submitted            int
			ipAddress, userAgent sql.NullString
		)
		if err := rows.Scan(&ws.ID, &ws.ProjectID, &ws.ExternalUserID, &start, &end, &submitted, &submission, &ipAddress, &userAgent,
			&ws.EventCount, &ws.DurationMs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ws.SessionStart = time.UnixMilli(start)
		ws.SessionEnd = timePtr(end)
		ws.Submitted = submitted != 0
		ws.SubmissionTime = timePtr(submission)
		ws.IPAddress = ipAddress.String
		ws.UserAgent = userAgent.String
		out = append(out, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// SessionStats returns a single session with derived counters, nil if the
// session does not exist.
func (s *Store) SessionStats(id string) (*SessionWithStats, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess                 Session
		start                int64
		end, submission      sql.NullInt64
		submitted            int
		ipAddress, userAgent sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.ProjectID, &sess.ExternalUserID, &start, &end, &submitted, &submission, &ipAddress, &userAgent); err != nil {
		return nil, err
	}
	sess.SessionStart = time.UnixMilli(start)
	sess.SessionEnd = timePtr(end)
	sess.Submitted = submitted != 0
	sess.SubmissionTime = timePtr(submission)
	sess.IPAddress = ipAddress.String
	sess.UserAgent = userAgent.String
	return &sess, nil
}

func scanTrackerEvent(rows *sql.Rows) (event.TrackerEvent, error) {
	var e event.TrackerEvent
	var eventType string
	var target, key, text, metadata sql.NullString
	var cursor, selStart, selEnd sql.NullInt64

	if err := rows.Scan(&eventType, &e.Timestamp, &target, &key, &text, &cursor, &selStart, &selEnd, &metadata); err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}

	e.EventType = event.Type(eventType)
	e.TargetElement = target.String
	e.Key = key.String
	e.Text = text.String
	e.CursorPosition = intPtr(cursor)
	e.SelectionStart = intPtr(selStart)
	e.SelectionEnd = intPtr(selEnd)
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
			return e, fmt.Errorf("unmarshal event metadata: %w", err)
		}
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIntPtr(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
