package session

import "time"

// Roles carried by chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single chat message
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Images    []string  `json:"images,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session represents one conversation thread
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	Messages  []Message `json:"messages"`
}
