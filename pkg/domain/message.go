package domain

import "time"

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser   Role = "user"
	RoleBot    Role = "bot"
	RoleSystem Role = "system"
)

// ChatMessage is one entry of a session transcript. Transcripts are append-only.
type ChatMessage struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	NodeID    string         `json:"nodeId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
