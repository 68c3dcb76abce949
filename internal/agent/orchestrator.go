package agent

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/model"
	"github.com/plainer/hub/internal/service"
)

// Attachment is an inline binary passed with an invocation.
type Attachment struct {
	MediaType string
	Data      string // base64
}

// RunInput identifies one agent invocation.
type RunInput struct {
	WorkspaceID    string
	OwnerID        string
	ConversationID string
	Attachments    []Attachment
}

// Orchestrator drives the iterative prompt -> stream -> execute-tools loop
// for one invocation. It streams partial text and tool activity to the hub
// as it happens; Run returns the final answer text.
type Orchestrator struct {
	streamer      Streamer
	content       *service.ContentService
	appTypes      *service.AppTypeService
	chat          *service.ChatService
	broadcaster   *hub.BroadcastHub
	maxIterations int
	log           zerolog.Logger
}

func NewOrchestrator(streamer Streamer, content *service.ContentService, appTypes *service.AppTypeService, chat *service.ChatService, broadcaster *hub.BroadcastHub, maxIterations int, log zerolog.Logger) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = 25
	}
	return &Orchestrator{
		streamer:      streamer,
		content:       content,
		appTypes:      appTypes,
		chat:          chat,
		broadcaster:   broadcaster,
		maxIterations: maxIterations,
		log:           log,
	}
}

// Run executes the loop until the model stops calling tools or the
// iteration ceiling is hit. Hitting the ceiling is a safety valve, not an
// error: whatever text accumulated is the answer.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (string, error) {
	messages, err := o.initialMessages(ctx, in)
	if err != nil {
		return "", err
	}

	dispatcher := NewDispatcher(o.content, o.appTypes, o.broadcaster, in.WorkspaceID, in.OwnerID, o.log)
	tools := Catalogue()

	var collected []string
	for iteration := 0; iteration < o.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		system, err := o.buildPrompt(ctx, in.WorkspaceID)
		if err != nil {
			return "", err
		}

		turn, err := o.streamer.StreamTurn(ctx, TurnRequest{
			System:   system,
			Messages: messages,
			Tools:    tools,
		}, func(delta string) {
			o.broadcaster.Broadcast(in.WorkspaceID, model.Envelope{
				Type: model.EventAgentStreamDelta,
				Payload: map[string]any{
					"conversation_id": in.ConversationID,
					"delta":           delta,
				},
			}, nil)
		})
		if err != nil {
			return "", err
		}

		if text := turn.Text(); text != "" {
			collected = append(collected, text)
		}

		calls := turn.ToolCalls()
		if len(calls) == 0 {
			break
		}

		messages = append(messages, Message{Role: RoleAssistant, Content: turn.Blocks})

		// Tool calls run one at a time: later calls in the same turn may
		// depend on the side effects of earlier ones.
		results := make([]ContentBlock, 0, len(calls))
		for _, call := range calls {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			label := Label(call.Name, call.Input)
			o.announceToolUse(in, call.Name, label, "started", "")

			result := dispatcher.Execute(ctx, call.Name, call.Input)

			o.announceToolUse(in, call.Name, label, "completed", result)
			results = append(results, ContentBlock{
				Type:      BlockToolResult,
				ToolUseID: call.ID,
				Content:   result,
			})
		}
		messages = append(messages, Message{Role: RoleUser, Content: results})
	}

	return strings.Join(collected, "\n\n"), nil
}

func (o *Orchestrator) buildPrompt(ctx context.Context, workspaceID string) (string, error) {
	files, err := o.content.List(ctx, workspaceID, service.ListOptions{})
	if err != nil {
		return "", err
	}
	appTypes, err := o.appTypes.List(ctx, workspaceID)
	if err != nil {
		return "", err
	}
	return BuildSystemPrompt(files, appTypes), nil
}

// initialMessages converts the persisted transcript to model turns,
// attaching any inline binaries to the final user message.
func (o *Orchestrator) initialMessages(ctx context.Context, in RunInput) ([]Message, error) {
	history, err := o.chat.History(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for _, msg := range history {
		role := RoleUser
		if msg.SenderType == model.SenderAssistant {
			role = RoleAssistant
		}
		messages = append(messages, Message{
			Role:    role,
			Content: []ContentBlock{{Type: BlockText, Text: msg.Content}},
		})
	}

	if len(in.Attachments) > 0 && len(messages) > 0 {
		last := &messages[len(messages)-1]
		if last.Role == RoleUser {
			for _, att := range in.Attachments {
				last.Content = append(last.Content, ContentBlock{
					Type: BlockImage,
					Source: &ImageSource{
						Type:      "base64",
						MediaType: att.MediaType,
						Data:      att.Data,
					},
				})
			}
		}
	}
	return messages, nil
}

func (o *Orchestrator) announceToolUse(in RunInput, tool, label, status, result string) {
	payload := map[string]any{
		"conversation_id": in.ConversationID,
		"tool":            tool,
		"label":           label,
		"status":          status,
	}
	if status == "completed" {
		payload["result"] = result
	}
	o.broadcaster.Broadcast(in.WorkspaceID, model.Envelope{
		Type:    model.EventAgentToolUse,
		Payload: payload,
	}, nil)
}
