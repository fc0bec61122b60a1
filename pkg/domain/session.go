package domain

import (
	"math"
	"sort"
	"time"
)

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
	SessionError     SessionStatus = "error"
)

// Terminal reports whether no further execution can happen in this status.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionAbandoned || s == SessionError
}

// Session is the Execution Context of one run of a flow against one conversant.
// WaitingForInput is true iff Status is active and CurrentNodeID is the input node in InputNodeID.
type Session struct {
	SessionID       string         `json:"sessionId"`
	FlowID          string         `json:"flowId"`
	UserID          string         `json:"userId,omitempty"`
	CurrentNodeID   string         `json:"currentNodeId,omitempty"`
	Variables       map[string]any `json:"variables"`
	Messages        []ChatMessage  `json:"messages"`
	Status          SessionStatus  `json:"status"`
	WaitingForInput bool           `json:"waitingForInput"`
	InputNodeID     string         `json:"inputNodeId,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	StartedAt       time.Time      `json:"startedAt"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	// Duration is the run length in whole seconds, set on termination.
	Duration  *int64    `json:"duration,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates an active session positioned on startNodeID with an empty transcript.
func NewSession(sessionID, flowID, startNodeID string, now time.Time) *Session {
	return &Session{
		SessionID:     sessionID,
		FlowID:        flowID,
		CurrentNodeID: startNodeID,
		Variables:     make(map[string]any),
		Messages:      []ChatMessage{},
		Status:        SessionActive,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Clone returns a copy that shares no mutable containers with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Variables != nil {
		c.Variables = cloneMap(s.Variables)
	}
	if s.Metadata != nil {
		c.Metadata = cloneMap(s.Metadata)
	}
	c.Messages = make([]ChatMessage, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m
		if m.Metadata != nil {
			c.Messages[i].Metadata = cloneMap(m.Metadata)
		}
	}
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Duration != nil {
		d := *s.Duration
		c.Duration = &d
	}
	return &c
}

// Summary returns a copy without the transcript, for list views.
func (s *Session) Summary() *Session {
	c := s.Clone()
	c.Messages = nil
	return c
}

// End stamps the terminal status, end time and duration.
func (s *Session) End(status SessionStatus, now time.Time) {
	s.Status = status
	s.WaitingForInput = false
	s.InputNodeID = ""
	s.EndedAt = &now
	d := int64(math.Floor(now.Sub(s.StartedAt).Seconds()))
	if d < 0 {
		d = 0
	}
	s.Duration = &d
	s.UpdatedAt = now
}

// Expired reports whether the session is past its retention window.
func (s *Session) Expired(retention time.Duration, now time.Time) bool {
	return retention > 0 && !now.Before(s.CreatedAt.Add(retention))
}

// SessionPatch is a partial update of a persisted session. Nil fields are left unchanged.
type SessionPatch struct {
	CurrentNodeID   *string
	Variables       map[string]any
	Messages        []ChatMessage
	Status          *SessionStatus
	WaitingForInput *bool
	InputNodeID     *string
	EndedAt         *time.Time
	Duration        *int64
	UpdatedAt       time.Time
}

// PatchFrom builds a patch carrying the full mutable state of s.
func PatchFrom(s *Session) SessionPatch {
	c := s.Clone()
	return SessionPatch{
		CurrentNodeID:   &c.CurrentNodeID,
		Variables:       c.Variables,
		Messages:        c.Messages,
		Status:          &c.Status,
		WaitingForInput: &c.WaitingForInput,
		InputNodeID:     &c.InputNodeID,
		EndedAt:         c.EndedAt,
		Duration:        c.Duration,
		UpdatedAt:       c.UpdatedAt,
	}
}

// Apply writes the non-nil fields of p into s.
func (p SessionPatch) Apply(s *Session) {
	if p.CurrentNodeID != nil {
		s.CurrentNodeID = *p.CurrentNodeID
	}
	if p.Variables != nil {
		s.Variables = cloneMap(p.Variables)
	}
	if p.Messages != nil {
		s.Messages = append([]ChatMessage(nil), p.Messages...)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.WaitingForInput != nil {
		s.WaitingForInput = *p.WaitingForInput
	}
	if p.InputNodeID != nil {
		s.InputNodeID = *p.InputNodeID
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		s.EndedAt = &t
	}
	if p.Duration != nil {
		d := *p.Duration
		s.Duration = &d
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
}

// SessionQuery selects sessions by flow or by user, newest first.
type SessionQuery struct {
	FlowID string
	UserID string
	Page   int
	Limit  int
}

// Normalize applies paging defaults (page 1, limit 10, limit capped at 100).
func (q SessionQuery) Normalize() SessionQuery {
	q.Page, q.Limit = NormalizePage(q.Page, q.Limit)
	return q
}

// Matches reports whether s satisfies the query filters.
func (q SessionQuery) Matches(s *Session) bool {
	if q.FlowID != "" && s.FlowID != q.FlowID {
		return false
	}
	if q.UserID != "" && s.UserID != q.UserID {
		return false
	}
	return true
}

// SessionPage is one page of session summaries.
type SessionPage struct {
	Sessions   []*Session `json:"sessions"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes a page of a larger result set.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes the page count for total items.
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// Paging defaults.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// NormalizePage applies paging defaults.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// PageBounds returns the [start, end) slice bounds of a page within total items.
func PageBounds(page, limit, total int) (int, int) {
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// SortNewestFirst orders sessions by creation time descending, ties broken by ID descending.
func SortNewestFirst(sessions []*Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.SessionID > b.SessionID
	})
}

// PageSessions sorts matched sessions newest first and returns the summaries of page q.
// q must be normalized.
func PageSessions(q SessionQuery, matched []*Session) *SessionPage {
	SortNewestFirst(matched)
	start, end := PageBounds(q.Page, q.Limit, len(matched))
	out := make([]*Session, 0, end-start)
	for _, s := range matched[start:end] {
		out = append(out, s.Summary())
	}
	return &SessionPage{Sessions: out, Pagination: NewPagination(q.Page, q.Limit, len(matched))}
}
