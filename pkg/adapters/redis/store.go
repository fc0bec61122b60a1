package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the adapter.
const DefaultPrefix = "chatflow:"

// DefaultRetention is how long a session record lives after creation.
const DefaultRetention = 30 * 24 * time.Hour

// maxTxRetries bounds optimistic retries of a contended update.
const maxTxRetries = 16

// Store implements ports.SessionStore using Redis.
//
// Each session is a JSON string that expires retention after creation.
// Sorted sets scored by creation time index sessions globally, per flow and
// per user; entries older than the retention window are pruned lazily on query.
type Store struct {
	client    *backend.Client
	prefix    string
	retention time.Duration
	clock     ports.Clock
}

var _ ports.SessionStore = (*Store)(nil)

type Option func(*Store)

// WithRetention sets the session lifetime counted from creation. Zero disables expiry.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock sets the time source used for expiry and index pruning.
func WithClock(c ports.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client:    client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
		clock:     ports.SystemClock{},
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(sessionID string) string {
	return s.prefix + "session:" + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "sessions"
}

func (s *Store) flowKey(flowID string) string {
	return s.prefix + "flow:" + flowID + ":sessions"
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user:" + userID + ":sessions"
}

func (s *Store) indexes(session *domain.Session) []string {
	keys := []string{s.indexKey(), s.flowKey(session.FlowID)}
	if session.UserID != "" {
		keys = append(keys, s.userKey(session.UserID))
	}
	return keys
}

// Create persists a new session.
func (s *Store) Create(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	var ttl time.Duration
	if s.retention > 0 {
		ttl = s.retention - s.clock.Now().Sub(session.CreatedAt)
		if ttl <= 0 {
			return nil // born expired
		}
	}

	ok, err := s.client.SetNX(ctx, s.key(session.SessionID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionExists, session.SessionID)
	}

	score := float64(session.CreatedAt.UnixMilli())
	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		for _, idx := range s.indexes(session) {
			pipe.ZAdd(ctx, idx, backend.Z{Score: score, Member: session.SessionID})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// UpdateBySessionID applies patch with optimistic locking, keeping the key's TTL.
func (s *Store) UpdateBySessionID(ctx context.Context, sessionID string, patch domain.SessionPatch) error {
	key := s.key(sessionID)
	txf := func(tx *backend.Tx) error {
		session, err := s.get(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		patch.Apply(session)
		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			pipe.Set(ctx, key, data, backend.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("failed to update session %s: %w", sessionID, err)
		}
		return err
	}
	return fmt.Errorf("failed to update session %s: %w", sessionID, backend.TxFailedErr)
}

// getter is satisfied by both *backend.Client and *backend.Tx.
type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

// FindBySessionID retrieves the session from Redis.
func (s *Store) FindBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.get(ctx, s.client, sessionID)
}

func (s *Store) get(ctx context.Context, c getter, sessionID string) (*domain.Session, error) {
	val, err := c.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decode(val)
}

func decode(val []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete removes the session and its index entries. Deleting a missing session is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	session, err := s.FindBySessionID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return s.client.ZRem(ctx, s.indexKey(), sessionID).Err()
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(sessionID))
	for _, idx := range s.indexes(session) {
		pipe.ZRem(ctx, idx, sessionID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Query returns session summaries, newest first.
func (s *Store) Query(ctx context.Context, q domain.SessionQuery) (*domain.SessionPage, error) {
	q = q.Normalize()

	idx := s.indexKey()
	switch {
	case q.FlowID != "":
		idx = s.flowKey(q.FlowID)
	case q.UserID != "":
		idx = s.userKey(q.UserID)
	}
	if err := s.prune(ctx, idx); err != nil {
		return nil, err
	}

	// Both filters set: the flow index is narrowed by user in memory.
	if q.FlowID != "" && q.UserID != "" {
		return s.scan(ctx, idx, q)
	}

	total, err := s.client.ZCard(ctx, idx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	start, end := domain.PageBounds(q.Page, q.Limit, int(total))
	page := &domain.SessionPage{Sessions: []*domain.Session{}, Pagination: domain.NewPagination(q.Page, q.Limit, int(total))}
	if start >= end {
		return page, nil
	}

	ids, err := s.client.ZRevRange(ctx, idx, int64(start), int64(end-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	sessions, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		page.Sessions = append(page.Sessions, session.Summary())
	}
	return page, nil
}

func (s *Store) scan(ctx context.Context, idx string, q domain.SessionQuery) (*domain.SessionPage, error) {
	ids, err := s.client.ZRevRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	all, err := s.loadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	var matched []*domain.Session
	for _, session := range all {
		if q.Matches(session) {
			matched = append(matched, session)
		}
	}
	return domain.PageSessions(q, matched), nil
}

// loadMany fetches sessions in order, skipping keys that expired since indexing.
func (s *Store) loadMany(ctx context.Context, ids []string) ([]*domain.Session, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	out := make([]*domain.Session, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		session, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

// prune drops index entries created before the retention window.
func (s *Store) prune(ctx context.Context, idx string) error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := s.clock.Now().Add(-s.retention).UnixMilli()
	err := s.client.ZRemRangeByScore(ctx, idx, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err()
	if err != nil {
		return fmt.Errorf("failed to prune expired sessions: %w", err)
	}
	return nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
