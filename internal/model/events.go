package model

// Event types sent over the workspace event channel.
const (
	EventChatMessage = "chat.message"
	EventChatTyping  = "chat.typing"

	EventAgentStreamDelta = "agent.stream_delta"
	EventAgentToolUse     = "agent.tool_use"
	EventAgentStreamEnd   = "agent.stream_end"

	EventFileCreated = "file.created"
	EventFileUpdated = "file.updated"
	EventFileDeleted = "file.deleted"

	EventError = "error"
)

// Envelope is the wire shape of every broadcast event.
type Envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}
