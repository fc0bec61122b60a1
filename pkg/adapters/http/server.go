// Package http exposes flows and chat sessions over a JSON HTTP API with a
// Server-Sent Events stream per session.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/chatflow/internal/logging"
	"github.com/aretw0/chatflow/pkg/flows"
	"github.com/aretw0/chatflow/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// UserHeader carries the caller identity. Authentication happens upstream.
const UserHeader = "X-User-ID"

// Server serves the chat and flow management API.
type Server struct {
	Sessions *session.Manager
	Flows    *flows.Service
	Streams  *StreamManager

	metrics http.Handler
	version string
	logger  *slog.Logger
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares a StreamManager that is also registered as the engine's event sink.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.Streams = sm
		}
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a Server.
func NewServer(sessions *session.Manager, flowSvc *flows.Service, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		Flows:    flowSvc,
		version:  "dev",
		logger:   logging.NewNop(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(WithStreamLogger(s.logger))
	}
	return s
}

// NewHandler is a shortcut for NewServer(...).Handler().
func NewHandler(sessions *session.Manager, flowSvc *flows.Service, opts ...Option) http.Handler {
	return NewServer(sessions, flowSvc, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/flows", func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/", s.ListFlows)
			r.Post("/", s.CreateFlow)
			r.Get("/stats", s.FlowStats)
			r.Get("/templates", s.ListTemplates)
			r.Post("/import", s.ImportFlow)
			r.Route("/{flowID}", func(r chi.Router) {
				r.Get("/", s.GetFlow)
				r.Put("/", s.UpdateFlow)
				r.Patch("/", s.UpdateFlow)
				r.Delete("/", s.DeleteFlow)
				r.Post("/duplicate", s.DuplicateFlow)
				r.Post("/activate", s.ActivateFlow)
				r.Post("/deactivate", s.DeactivateFlow)
				r.Get("/validate", s.ValidateFlow)
				r.Get("/export", s.ExportFlow)
				r.Get("/versions", s.ListVersions)
				r.Post("/versions", s.CreateVersion)
				r.Get("/versions/{version}", s.GetVersion)
				r.Post("/versions/{version}/restore", s.RestoreVersion)
			})
		})

		r.Route("/chat", func(r chi.Router) {
			r.Get("/flows/{flowID}/analytics", s.FlowAnalytics)
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", s.StartSession)
				r.Get("/", s.QuerySessions)
				r.Route("/{sessionID}", func(r chi.Router) {
					r.Get("/", s.GetSession)
					r.Delete("/", s.AbandonSession)
					r.Get("/messages", s.GetMessages)
					r.Post("/messages", s.SendMessage)
					r.Post("/reset", s.ResetSession)
					r.Get("/events", s.SubscribeEvents)
				})
			})
		})
	})
	return r
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptimeSeconds":  int64(time.Since(s.started).Seconds()),
		"activeSessions": s.Sessions.Live(),
	})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "chatflow-http",
		"version": s.version,
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+UserHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(UserHeader) == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader + " header"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userID(r *http.Request) string {
	return r.Header.Get(UserHeader)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
