package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"botforge/pkg/domain"
)

const defaultSessionIdleTTL = 30 * time.Minute

// Session holds the in-memory conversation state for one user chatting with
// one bot. Turns only ever grow; the transcript is reset by closing the
// session and opening a new one.
type Session struct {
	ID     string
	UserID string
	Bot    domain.Bot

	access bool

	mu       sync.Mutex
	turns    []domain.Turn
	sending  bool
	lastUsed time.Time
}

// AccessGranted reports whether the user may chat with this bot. Access is
// decided once, when the session is opened.
func (s *Session) AccessGranted() bool {
	return s.access
}

// Append adds a turn to the end of the transcript.
func (s *Session) Append(turn domain.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, turn)
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// Snapshot returns a copy of the transcript in order.
func (s *Session) Snapshot() []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// beginSend marks the session busy. It fails when a send is already running.
func (s *Session) beginSend() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return false
	}
	s.sending = true
	s.lastUsed = time.Now()
	return true
}

func (s *Session) endSend() {
	s.mu.Lock()
	s.sending = false
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.sending && now.Sub(s.lastUsed) > ttl
}

// SessionManager owns all live chat sessions. Sessions are keyed by a random
// ID and scoped to the opening user; idle sessions are swept after a TTL.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	idleTTL  time.Duration
}

// NewSessionManager builds a session manager. idleTTL <= 0 picks a default.
func NewSessionManager(idleTTL time.Duration) *SessionManager {
	if idleTTL <= 0 {
		idleTTL = defaultSessionIdleTTL
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
	}
}

// Open creates a fresh empty session for the user and bot.
func (m *SessionManager) Open(userID string, bot domain.Bot, accessGranted bool) *Session {
	sess := &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Bot:      bot,
		access:   accessGranted,
		lastUsed: time.Now(),
	}
	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
	return sess
}

// Get returns the session if it exists and belongs to the user.
func (m *SessionManager) Get(sessionID, userID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok || sess.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Close discards the session and its transcript.
func (m *SessionManager) Close(sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok || sess.UserID != userID {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

// Sweep drops sessions idle for longer than the TTL and returns how many were
// removed. Sessions with a send in flight are never swept.
func (m *SessionManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, sess := range m.sessions {
		if sess.idleSince(now, m.idleTTL) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions periodically until the context is cancelled.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}
