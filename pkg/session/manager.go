package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed session lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	engine ports.Interpreter
	store  ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	cacheMu sync.RWMutex
	live    map[string]*domain.Session // active sessions only

	locker       ports.DistributedLocker // Optional distributed locker
	lockTTL      time.Duration
	maxInputSize int
	logger       *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithMaxInputSize sets the largest accepted input in bytes. Zero disables the limit.
func WithMaxInputSize(n int) Option {
	return func(m *Manager) {
		m.maxInputSize = n
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a new Session Manager driving engine and reading sessions from store.
func NewManager(engine ports.Interpreter, store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		engine:       engine,
		store:        store,
		locks:        make(map[string]*lockEntry),
		live:         make(map[string]*domain.Session),
		lockTTL:      DefaultLockTTL,
		maxInputSize: DefaultMaxInputSize,
		logger:       logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// WithLock executes a function while holding the lock for the session.
// Only the per-session mutex is held while fn runs, so slow sessions never block others.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Start begins a new session on flowID. A session that ends with a fault is
// returned together with the error so callers can show the partial transcript.
func (m *Manager) Start(ctx context.Context, flowID, userID string, metadata map[string]any) (*domain.Session, error) {
	s, err := m.engine.StartSession(ctx, flowID, userID, metadata)
	if s == nil {
		return nil, err
	}
	m.remember(s)
	return s.Clone(), err
}

// ProcessInput sanitizes raw input and submits it to the session.
func (m *Manager) ProcessInput(ctx context.Context, sessionID, raw string) (*domain.Session, error) {
	input, err := SanitizeInput(raw, m.maxInputSize)
	if err != nil {
		return nil, err
	}

	var out *domain.Session
	err = m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		s, err = m.engine.ProcessUserInput(ctx, s, input)
		if err != nil && !s.Status.Terminal() {
			// The in-memory copy may be ahead of the store; reload on next access.
			m.forget(sessionID)
		} else {
			m.remember(s)
		}
		out = s.Clone()
		return err
	})
	return out, err
}

// Reset abandons the session and starts a new one on the same flow for the same
// user and metadata. The old session id cannot be resumed afterwards.
func (m *Manager) Reset(ctx context.Context, sessionID string) (*domain.Session, error) {
	var old *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := m.engine.EndSession(ctx, s, domain.SessionAbandoned); err != nil {
			return err
		}
		m.forget(sessionID)
		old = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("Session reset", "session_id", sessionID, "flow_id", old.FlowID)
	return m.Start(ctx, old.FlowID, old.UserID, old.Metadata)
}

// Abandon ends an active session without starting a new one.
func (m *Manager) Abandon(ctx context.Context, sessionID string) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := m.engine.EndSession(ctx, s, domain.SessionAbandoned); err != nil {
			return err
		}
		m.forget(sessionID)
		out = s.Clone()
		return nil
	})
	return out, err
}

// Get returns the current state of a session.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	var out *domain.Session
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		s, err := m.load(ctx, sessionID)
		if err != nil {
			return err
		}
		out = s.Clone()
		return nil
	})
	return out, err
}

// Messages returns the transcript of a session.
func (m *Manager) Messages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Messages, nil
}

// Query delegates paginated session listing to the store.
func (m *Manager) Query(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	return m.store.Query(ctx, q)
}

// Live returns the number of cached active sessions.
func (m *Manager) Live() int {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()
	return len(m.live)
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// load returns the cached session or reads it through from the store.
// The caller must hold the session lock.
func (m *Manager) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.cacheMu.RLock()
	s, ok := m.live[sessionID]
	m.cacheMu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := m.store.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	m.remember(s)
	return s, nil
}

// remember caches active sessions and evicts terminated ones.
func (m *Manager) remember(s *domain.Session) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if s.Status.Terminal() {
		delete(m.live, s.SessionID)
		return
	}
	m.live[s.SessionID] = s
}

func (m *Manager) forget(sessionID string) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	delete(m.live, sessionID)
}
