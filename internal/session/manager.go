// Package session keeps per-session conversation history in memory.
package session

import (
	"errors"
	"sync"

	"trialrag/internal/domain"
)

// DefaultContextTurns is how many recent turns feed classification.
const DefaultContextTurns = 5

// ErrEmptyID is returned for a blank session id.
var ErrEmptyID = errors.New("session id is empty")

// Session is one conversation. Its lock serializes whole turns, so callers
// hold it across classification, retrieval and the assistant append.
type Session struct {
	ID string

	mu    sync.Mutex
	turns []domain.Turn
}

// Lock serializes turns on this session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Manager is a registry of sessions. Different sessions never contend on
// anything but the brief registry lookup.
type Manager struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	contextTurns int
}

// NewManager returns an empty registry passing contextTurns turns as context.
func NewManager(contextTurns int) *Manager {
	if contextTurns <= 0 {
		contextTurns = DefaultContextTurns
	}
	return &Manager{sessions: make(map[string]*Session), contextTurns: contextTurns}
}

// Acquire returns the session for id, creating it on first use. The bool
// reports whether it was created.
func (m *Manager) Acquire(id string) (*Session, bool, error) {
	if id == "" {
		return nil, false, ErrEmptyID
	}
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, false, nil
	}
	s = &Session{ID: id}
	m.sessions[id] = s
	return s, true, nil
}

// Append adds a turn. The caller must hold the session lock.
func (m *Manager) Append(s *Session, t domain.Turn) {
	s.turns = append(s.turns, t)
}

// Context returns a copy of the last few turns. The caller must hold the session lock.
func (m *Manager) Context(s *Session) []domain.Turn {
	start := len(s.turns) - m.contextTurns
	if start < 0 {
		start = 0
	}
	return append([]domain.Turn(nil), s.turns[start:]...)
}

// History returns a copy of every turn of id for display, or nil for an unknown id.
func (m *Manager) History(id string) []domain.Turn {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	s.Lock()
	defer s.Unlock()
	return append([]domain.Turn(nil), s.turns...)
}

// Reset drops the session. A turn already running on it finishes against
// the detached session; later turns with the same id start fresh.
func (m *Manager) Reset(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
