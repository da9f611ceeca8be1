package session

import (
	"fmt"
	"sync"
	"time"
)

// Manager tracks the live sessions of one process.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session with the given id, creating it with the
// supplied options on first sight. The returned bool reports whether the
// session was created.
func (m *Manager) GetOrCreate(id string, opts Options) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[id]; ok {
		return sess, false
	}

	opts.ID = id
	sess := New(opts)
	m.sessions[id] = sess
	return sess, true
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Submit marks a session submitted. Idempotent: submitting an already
// submitted session is not an error, the original submission time stands.
func (m *Manager) Submit(id string, t time.Time) error {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	sess.Submit(t)
	return nil
}

// List returns metadata snapshots of all tracked sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	return infos
}

// Open returns all sessions still accepting pre-submission events.
func (m *Manager) Open() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var open []*Session
	for _, sess := range m.sessions {
		if sess.State() == StateOpen {
			open = append(open, sess)
		}
	}
	return open
}

// Remove drops a session from the manager. Event history already persisted
// elsewhere is unaffected.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
