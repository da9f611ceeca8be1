package ingest

import (
	"fmt"
	"log/slog"
	"time"

	"typewitness/internal/event"
	"typewitness/internal/logging"
	"typewitness/internal/session"
	"typewitness/internal/store"
)

// Ingestor applies event batches to the live session manager and the
// persistent store.
type Ingestor struct {
	store   *store.Store
	manager *session.Manager
	log     *slog.Logger

	// onAppend is invoked after a batch lands on a session, with the
	// session it landed on. The daemon hooks analytics recomputation here.
	onAppend func(*session.Session)
}

// NewIngestor creates an ingestor. store may be nil for in-memory-only
// operation (tests); a nil logger falls back to the default logger.
func NewIngestor(st *store.Store, manager *session.Manager, log *slog.Logger) *Ingestor {
	if log == nil {
		log = logging.Default().Logger
	}
	return &Ingestor{store: st, manager: manager, log: log}
}

// OnAppend registers a callback invoked after each successfully ingested
// batch. Set before ingestion starts.
func (in *Ingestor) OnAppend(fn func(*session.Session)) {
	in.onAppend = fn
}

// Ingest validates and applies a raw JSON batch. Returns the number of
// events appended.
func (in *Ingestor) Ingest(data []byte) (int, error) {
	batch, err := ParseBatch(data)
	if err != nil {
		return 0, err
	}
	return in.IngestBatch(batch)
}

// IngestBatch applies a parsed batch: the session is created on first
// sight, the batch's events are resequenced and appended in order, and a
// submitted flag triggers the session's one-time submission transition.
// Batches for already-submitted sessions still append (late delivery is
// common) without reopening the session.
func (in *Ingestor) IngestBatch(batch *EventBatchInput) (int, error) {
	if batch.SessionID == "" {
		return 0, fmt.Errorf("batch has no session id")
	}

	sess, created := in.manager.GetOrCreate(batch.SessionID, session.Options{
		ProjectID:      batch.ProjectID,
		ExternalUserID: batch.ExternalUserID,
		IPAddress:      batch.IPAddress,
		UserAgent:      batch.UserAgent,
		Start:          firstEventTime(batch.Events),
	})
	if created {
		in.log.Info("session created",
			"session_id", batch.SessionID,
			"project_id", batch.ProjectID,
		)
	}

	accepted := sess.Append(batch.Events...)

	if in.store != nil {
		// CreateSession is a no-op on conflict, so persisting the row on
		// every batch keeps concurrent first batches from racing the
		// events foreign key against the creator's insert.
		info := sess.Info()
		if err := in.store.CreateSession(&store.Session{
			ID:             info.ID,
			ProjectID:      info.ProjectID,
			ExternalUserID: info.ExternalUserID,
			SessionStart:   info.SessionStart,
			IPAddress:      info.IPAddress,
			UserAgent:      info.UserAgent,
		}); err != nil {
			return 0, fmt.Errorf("persist session: %w", err)
		}

		// Persist the resequenced events, not the raw batch, so stored
		// timestamps match what the live session accepted.
		if _, err := in.store.AppendEvents(batch.SessionID, batch.ProjectID, accepted); err != nil {
			return 0, fmt.Errorf("persist events: %w", err)
		}
	}

	if batch.Submitted {
		now := time.Now()
		if sess.Submit(now) {
			in.log.Info("session submitted", "session_id", batch.SessionID)
			if in.store != nil {
				if _, err := in.store.MarkSubmitted(batch.SessionID, now); err != nil {
					return 0, fmt.Errorf("persist submission: %w", err)
				}
			}
		}
	}

	if in.onAppend != nil {
		in.onAppend(sess)
	}

	in.log.Debug("batch ingested",
		"session_id", batch.SessionID,
		"events", len(batch.Events),
	)
	return len(batch.Events), nil
}

// firstEventTime derives a session start from the first event of the
// creating batch, falling back to zero (now) for an empty batch.
func firstEventTime(events []event.TrackerEvent) time.Time {
	if len(events) == 0 {
		return time.Time{}
	}
	return events[0].Time()
}
