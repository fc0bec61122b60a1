package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// DefaultStreamBuffer is the per-subscriber queue length.
const DefaultStreamBuffer = 32

// StreamManager fans session events out to SSE subscribers.
// It implements ports.EventSink; a full subscriber buffer drops events for that subscriber.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan domain.Event]struct{} // SessionID -> Set of Channels
	buffer      int
	logger      *slog.Logger
}

var _ ports.EventSink = (*StreamManager)(nil)

// StreamOption configures a StreamManager.
type StreamOption func(*StreamManager)

// WithStreamBuffer sets the per-subscriber queue length.
func WithStreamBuffer(n int) StreamOption {
	return func(sm *StreamManager) {
		if n > 0 {
			sm.buffer = n
		}
	}
}

// WithStreamLogger configures a logger for the StreamManager.
func WithStreamLogger(logger *slog.Logger) StreamOption {
	return func(sm *StreamManager) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

func NewStreamManager(opts ...StreamOption) *StreamManager {
	sm := &StreamManager{
		subscribers: make(map[string]map[chan domain.Event]struct{}),
		buffer:      DefaultStreamBuffer,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(sm)
	}
	return sm
}

// Subscribe registers a subscriber for sessionID. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(sessionID string) (<-chan domain.Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Event, sm.buffer)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan domain.Event]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[sessionID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, sessionID)
				}
			}
		})
	}
}

// Subscribers returns the number of subscribers of sessionID.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// Emit broadcasts the event to the subscribers of its session.
func (sm *StreamManager) Emit(ctx context.Context, ev domain.Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping event", "session_id", ev.SessionID, "type", ev.Type)
		}
	}
}

// SubscribeEvents handles GET /api/chat/sessions/{sessionID}/events.
// The optional types query parameter is a comma-separated list of event types to forward.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := s.Sessions.Get(r.Context(), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	var filter map[domain.EventType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		filter = make(map[domain.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			filter[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed to session events", "session_id", sessionID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "session_id", sessionID)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[ev.Type] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: Failed to encode event", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
			if ev.Type == domain.EventSessionEnded {
				return
			}
		}
	}
}
