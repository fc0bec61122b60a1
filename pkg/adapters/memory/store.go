package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultRetention is how long a session record lives after creation.
const DefaultRetention = 30 * 24 * time.Hour

// Store implements ports.SessionStore in memory.
// Expired sessions are hidden on read and dropped lazily on write.
// Safe for concurrent use.
type Store struct {
	data      map[string]*domain.Session
	mu        sync.RWMutex
	retention time.Duration
	clock     ports.Clock
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRetention sets the session lifetime counted from creation. Zero disables expiry.
func WithRetention(d time.Duration) StoreOption {
	return func(s *Store) {
		s.retention = d
	}
}

// WithClock sets the time source used for expiry.
func WithClock(c ports.Clock) StoreOption {
	return func(s *Store) {
		s.clock = c
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data:      make(map[string]*domain.Session),
		retention: DefaultRetention,
		clock:     ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a new session. Records are copied so callers cannot mutate store state.
func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	if _, ok := s.data[session.SessionID]; ok {
		return domain.ErrSessionExists
	}
	s.data[session.SessionID] = session.Clone()
	return nil
}

// UpdateBySessionID applies patch to a live record.
func (s *Store) UpdateBySessionID(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.data[sessionID]
	if !ok || s.expired(session) {
		return domain.ErrSessionNotFound
	}
	patch.Apply(session)
	return nil
}

// FindBySessionID returns a copy of a live record.
func (s *Store) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data[sessionID]
	if !ok || s.expired(session) {
		return nil, domain.ErrSessionNotFound
	}
	return session.Clone(), nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

// Query returns one page of session summaries, newest first.
func (s *Store) Query(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	q = q.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*domain.Session, 0)
	for _, session := range s.data {
		if !s.expired(session) && q.Matches(session) {
			matched = append(matched, session)
		}
	}
	return domain.PageSessions(q, matched), nil
}

func (s *Store) expired(session *domain.Session) bool {
	return session.Expired(s.retention, s.clock.Now())
}

func (s *Store) sweepLocked() {
	for id, session := range s.data {
		if s.expired(session) {
			delete(s.data, id)
		}
	}
}
