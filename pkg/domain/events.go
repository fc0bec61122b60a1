package domain

import (
	"context"
	"time"
)

// EventType defines the category of a session event.
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventBotMessage     EventType = "bot_message"
	EventWaitingInput   EventType = "waiting_input"
	EventSessionEnded   EventType = "session_ended"
	EventError          EventType = "error"
)

// Event is a typed notification about a running session, delivered to an EventSink
// in the order the interpreter produced it.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"sessionId"`
	FlowID    string        `json:"flowId"`
	UserID    string        `json:"userId,omitempty"`
	NodeID    string        `json:"nodeId,omitempty"`
	Message   *ChatMessage  `json:"message,omitempty"`
	Status    SessionStatus `json:"status,omitempty"`
	// Duration is the session length in seconds (session_ended only).
	Duration int64  `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	NodeType  NodeType  `json:"node_type"`
}

// APIEvent represents an outbound call made by an api node.
type APIEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	SessionID  string        `json:"session_id"`
	NodeID     string        `json:"node_id"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	IsError    bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter func(context.Context, *NodeEvent)
	OnNodeLeave func(context.Context, *NodeEvent)
	OnAPICall   func(context.Context, *APIEvent)
	OnAPIReturn func(context.Context, *APIEvent)
}
