package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted turn of a user's conversation log.
type Message struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Confidence *int      `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"timestamp"`
}
