package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go-passport-capture/models"
)

// ErrSessionNotFound is returned for tokens the store has never seen or
// has already cleaned up.
var ErrSessionNotFound = errors.New("server: session not found")

type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusScanning  SessionStatus = "scanning"
	StatusCompleted SessionStatus = "completed"
	StatusExpired   SessionStatus = "expired"
	StatusError     SessionStatus = "error"
)

// Session is one scan-to-submit attempt as the server sees it.
type Session struct {
	Status    SessionStatus          `json:"status"`
	Record    *models.PassportRecord `json:"record,omitempty"`
	Message   string                 `json:"message,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// SessionStore persists scan sessions keyed by token. Should be safe to
// use concurrently. Expired sessions may be garbage collected at any
// time; callers must still check ExpiresAt on what they get back.
type SessionStore interface {
	// Create stores a fresh waiting session under token with the given
	// lifetime.
	Create(ctx context.Context, token string, ttl time.Duration) (*Session, error)

	// Get retrieves the session for token, or ErrSessionNotFound.
	Get(ctx context.Context, token string) (*Session, error)

	// Update replaces the stored session for token. The remaining
	// lifetime is unchanged.
	Update(ctx context.Context, token string, session *Session) error

	// Delete removes the session. Deleting an absent token is not an
	// error; completed sessions are deleted on retrieval.
	Delete(ctx context.Context, token string) error
}

// InMemorySessionStore is the development store: a mutex-guarded map
// with opportunistic expiry sweeps on every create.
type InMemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *InMemorySessionStore) Create(ctx context.Context, token string, ttl time.Duration) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, token)
		}
	}

	session := &Session{
		Status:    StatusWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	s.sessions[token] = session

	copied := *session
	return &copied, nil
}

func (s *InMemorySessionStore) Get(ctx context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *InMemorySessionStore) Update(ctx context.Context, token string, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[token]; !ok {
		return ErrSessionNotFound
	}
	copied := *session
	s.sessions[token] = &copied
	return nil
}

func (s *InMemorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
