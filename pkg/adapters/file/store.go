package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
)

// DefaultSessionDir is used when no directory is configured.
var DefaultSessionDir = filepath.Join(".chatflow", "sessions")

// DefaultRetention is how long a session record lives after creation.
const DefaultRetention = 30 * 24 * time.Hour

const tmpPrefix = "tmp-"

// Store implements ports.SessionStore using the local filesystem.
// It stores sessions as JSON files in a configured directory.
// Expired records are treated as missing and overwritten on reuse.
type Store struct {
	BasePath  string
	retention time.Duration
	clock     ports.Clock

	// mu guards read-modify-write cycles within this process.
	mu sync.Mutex
}

var _ ports.SessionStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRetention sets the session lifetime counted from creation. Zero disables expiry.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// WithClock sets the time source used for expiry.
func WithClock(c ports.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to DefaultSessionDir.
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = DefaultSessionDir
	}
	s := &Store{BasePath: basePath, retention: DefaultRetention, clock: ports.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) path(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("sessionID cannot be empty")
	}
	if strings.ContainsAny(sessionID, `/\`) || sessionID == "." || sessionID == ".." || strings.HasPrefix(sessionID, tmpPrefix) {
		return "", fmt.Errorf("invalid sessionID %q", sessionID)
	}
	return filepath.Join(s.BasePath, sessionID+".json"), nil
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(session.SessionID); err == nil {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, session.SessionID)
	} else if !errors.Is(err, domain.ErrSessionNotFound) {
		return err
	}
	return s.write(session)
}

// UpdateBySessionID applies patch to a stored session.
func (s *Store) UpdateBySessionID(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.read(sessionID)
	if err != nil {
		return err
	}
	patch.Apply(session)
	return s.write(session)
}

// FindBySessionID retrieves the session from its JSON file.
func (s *Store) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.read(sessionID)
}

// Delete removes the session file.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	filePath, err := s.path(sessionID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// Query scans the directory and returns session summaries, newest first.
func (s *Store) Query(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	q = q.Normalize()

	entries, err := os.ReadDir(s.BasePath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	matched := make([]*domain.Session, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		session, err := s.read(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, domain.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if q.Matches(session) {
			matched = append(matched, session)
		}
	}
	return domain.PageSessions(q, matched), nil
}

func (s *Store) read(sessionID string) (*domain.Session, error) {
	filePath, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
	}
	if session.Expired(s.retention, s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return &session, nil
}

func (s *Store) write(session *domain.Session) error {
	destPath, err := s.path(session.SessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return writeAtomic(s.BasePath, destPath, tmpPrefix+session.SessionID+"-*.json", data)
}

// writeAtomic writes to a temporary file in dir, syncs it and renames it over dest.
// The temporary file lives in the same directory so the rename stays on one filesystem.
func writeAtomic(dir, dest, pattern string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath) // no-op once renamed
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
