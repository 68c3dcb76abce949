package agent

import "context"

// Content block roles and types on the completion wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockImage      = "image"
)

// ContentBlock is one element of a message's content list. Fields are
// populated according to Type.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries an inline base64 attachment.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Message is one turn in the accumulated history sent to the model.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolSpec describes one catalogue tool to the model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Turn is the structured result of one completed model turn.
type Turn struct {
	Blocks     []ContentBlock
	StopReason string
}

// Text concatenates the turn's text blocks.
func (t *Turn) Text() string {
	var out string
	for _, b := range t.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolCalls returns the turn's tool_use blocks in order.
func (t *Turn) ToolCalls() []ContentBlock {
	var out []ContentBlock
	for _, b := range t.Blocks {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// TurnRequest is one streaming request against the completion service.
type TurnRequest struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Streamer opens one model turn, invoking onDelta for every text fragment
// in arrival order before returning the completed turn.
type Streamer interface {
	StreamTurn(ctx context.Context, req TurnRequest, onDelta func(string)) (*Turn, error)
}
