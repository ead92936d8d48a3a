package relay

import (
	"log/slog"
	"sync"
)

// SessionManager hosts many concurrent Sessions, keyed by session ID.
// It owns none of the negotiation that produces ingress/egress tracks;
// callers create a Session once both tracks exist and register it here
// for lifecycle and stats aggregation.
type SessionManager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty manager.
func NewSessionManager(logger *slog.Logger) *SessionManager {
	return &SessionManager{
		logger:   logger.With("component", "session_manager"),
		sessions: make(map[string]*Session),
	}
}

// Add registers a session under its ID, replacing any prior session
// with the same ID (the caller is responsible for stopping the old one
// first if that matters).
func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.id] = s
	m.logger.Info("session registered", "session_id", s.id, "session_count", len(m.sessions))
}

// Remove unregisters a session without stopping it. Use StopAndRemove
// for the common case of tearing a session down.
func (m *SessionManager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Get returns the session registered under id, if any.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// StopAndRemove stops the session registered under id and removes it
// from the manager.
func (m *SessionManager) StopAndRemove(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ok {
		s.Stop()
	}
}

// StopAll stops every registered session concurrently and waits for
// all of them to finish.
func (m *SessionManager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(sess *Session) {
			defer wg.Done()
			sess.Stop()
		}(s)
	}
	wg.Wait()

	m.logger.Info("all sessions stopped")
}

// AllStats returns a point-in-time snapshot of every registered
// session's stats.
func (m *SessionManager) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]Stats, 0, len(m.sessions))
	for _, s := range m.sessions {
		stats = append(stats, s.GetStats())
	}
	return stats
}

// Count returns the number of currently registered sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
