package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aretw0/chatflow/internal/runtime"
	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

type startRequest struct {
	FlowID   string         `json:"flowId"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type messageRequest struct {
	Input *string `json:"input"`
}

// writeSession answers with the session. A session that ended in a fault is a
// normal outcome for the client: the transcript already carries the notice.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *domain.Session, err error) {
	var execErr *runtime.ExecutionError
	if err != nil && sess != nil && errors.As(err, &execErr) {
		s.logger.Warn("Session ended with a fault", "session_id", sess.SessionID, "node_id", execErr.NodeID, "err", execErr.Err)
		err = nil
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, status, sess)
}

func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	var in startRequest
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.FlowID == "" {
		s.writeError(w, r, fmt.Errorf("%w: flowId is required", errBadRequest))
		return
	}
	sess, err := s.Sessions.Start(r.Context(), in.FlowID, userID(r), in.Metadata)
	s.writeSession(w, r, http.StatusCreated, sess, err)
}

func (s *Server) QuerySessions(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := domain.SessionQuery{
		FlowID: r.URL.Query().Get("flowId"),
		UserID: r.URL.Query().Get("userId"),
		Page:   page,
		Limit:  limit,
	}
	if q.FlowID == "" && q.UserID == "" {
		q.UserID = userID(r)
	}
	res, err := s.Sessions.Query(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	s.writeSession(w, r, http.StatusOK, sess, err)
}

func (s *Server) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.Sessions.Messages(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in messageRequest
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Input == nil {
		s.writeError(w, r, fmt.Errorf("%w: input is required", errBadRequest))
		return
	}
	sess, err := s.Sessions.ProcessInput(r.Context(), chi.URLParam(r, "sessionID"), *in.Input)
	s.writeSession(w, r, http.StatusOK, sess, err)
}

func (s *Server) ResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Reset(r.Context(), chi.URLParam(r, "sessionID"))
	s.writeSession(w, r, http.StatusCreated, sess, err)
}

func (s *Server) AbandonSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Abandon(r.Context(), chi.URLParam(r, "sessionID"))
	s.writeSession(w, r, http.StatusOK, sess, err)
}

func (s *Server) FlowAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.Sessions.Analytics(r.Context(), chi.URLParam(r, "flowID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
