package agent

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/model"
	"github.com/plainer/hub/internal/service"
)

// Runner binds the orchestrator to the task registry and owns terminal
// event emission: every run ends with exactly one stream_end (carrying the
// final text, or a stopped marker on cancellation) or one error event.
type Runner struct {
	registry     *TaskRegistry
	orchestrator *Orchestrator
	chat         *service.ChatService
	broadcaster  *hub.BroadcastHub
	log          zerolog.Logger
}

func NewRunner(registry *TaskRegistry, orchestrator *Orchestrator, chat *service.ChatService, broadcaster *hub.BroadcastHub, log zerolog.Logger) *Runner {
	return &Runner{
		registry:     registry,
		orchestrator: orchestrator,
		chat:         chat,
		broadcaster:  broadcaster,
		log:          log,
	}
}

// Invoke starts an orchestration run for the conversation, cancelling any
// prior run first. Returns immediately; progress flows through the hub.
func (r *Runner) Invoke(in RunInput) {
	r.registry.Start(in.ConversationID, func(ctx context.Context) {
		final, err := r.orchestrator.Run(ctx, in)

		switch {
		case errors.Is(err, context.Canceled):
			// Cancellation is not an error; subscribers still need a
			// terminal signal.
			r.broadcaster.Broadcast(in.WorkspaceID, model.Envelope{
				Type: model.EventAgentStreamEnd,
				Payload: map[string]any{
					"conversation_id": in.ConversationID,
					"stopped":         true,
				},
			}, nil)

		case err != nil:
			r.log.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("agent run failed")
			r.broadcaster.Broadcast(in.WorkspaceID, model.Envelope{
				Type: model.EventError,
				Payload: map[string]any{
					"conversation_id": in.ConversationID,
					"message":         "agent run failed",
				},
			}, nil)

		default:
			// Persistence outlives the run's own context.
			if _, err := r.chat.AppendMessage(context.Background(), in.ConversationID, model.SenderAssistant, nil, final); err != nil {
				r.log.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("persist assistant message")
			}
			r.broadcaster.Broadcast(in.WorkspaceID, model.Envelope{
				Type: model.EventAgentStreamEnd,
				Payload: map[string]any{
					"conversation_id": in.ConversationID,
					"final_text":      final,
				},
			}, nil)
		}
	})
}

// Stop cancels the conversation's in-flight run, if any.
func (r *Runner) Stop(conversationID string) {
	r.registry.Stop(conversationID)
}
