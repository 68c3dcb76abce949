package model

// Sender roles for messages.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Conversation is an ordered transcript scoped to one workspace.
type Conversation struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspace_id"`
	Title       *string `json:"title,omitempty"`
	IsActive    bool    `json:"is_active"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Message is one append-only transcript entry.
type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SenderType     string  `json:"sender_type"`
	SenderID       *string `json:"sender_id,omitempty"`
	Content        string  `json:"content"`
	CreatedAt      string  `json:"created_at"`
}
