package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/plainer/hub/internal/agent"
	"github.com/plainer/hub/internal/hub"
	"github.com/plainer/hub/internal/model"
	"github.com/plainer/hub/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser origin checks are handled by the fronting proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket connection to the hub. Writes are serialized;
// gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WSHandler owns the duplex event channel for one workspace connection.
type WSHandler struct {
	workspaces  *service.WorkspaceService
	chat        *service.ChatService
	broadcaster *hub.BroadcastHub
	runner      *agent.Runner
	log         zerolog.Logger
}

func NewWSHandler(workspaces *service.WorkspaceService, chat *service.ChatService, broadcaster *hub.BroadcastHub, runner *agent.Runner, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		workspaces:  workspaces,
		chat:        chat,
		broadcaster: broadcaster,
		runner:      runner,
		log:         log,
	}
}

// Serve upgrades the request and pumps inbound events until the client
// disconnects.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	user := userID(r)
	ws, err := h.workspaces.EnsureDrive(r.Context(), user)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	conn := &wsConn{conn: raw}

	h.broadcaster.Connect(ws.ID, conn)
	defer func() {
		h.broadcaster.Disconnect(ws.ID, conn)
		conn.Close()
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		var env model.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.sendError(conn, "invalid event")
			continue
		}
		h.handleEvent(ws.ID, user, conn, env)
	}
}

func (h *WSHandler) handleEvent(workspaceID, user string, conn *wsConn, env model.Envelope) {
	switch env.Type {
	case "ping":
		// Heartbeat: echo directly, no broadcast, no logging.
		data, _ := json.Marshal(model.Envelope{Type: "pong"})
		_ = conn.Send(data)

	case model.EventChatMessage:
		conversationID, _ := env.Payload["conversation_id"].(string)
		content, _ := env.Payload["content"].(string)
		conv, err := h.chat.EnsureConversation(context.Background(), workspaceID, user, conversationID)
		if err != nil {
			h.sendError(conn, "conversation unavailable")
			return
		}
		msg, err := h.chat.AppendMessage(context.Background(), conv.ID, model.SenderUser, &user, content)
		if err != nil {
			h.sendError(conn, "message not saved")
			return
		}
		h.broadcaster.Broadcast(workspaceID, model.Envelope{
			Type:    model.EventChatMessage,
			Payload: map[string]any{"message": msg},
		}, conn)

	case "agent.invoke":
		conversationID, _ := env.Payload["conversation_id"].(string)
		message, _ := env.Payload["message"].(string)
		conv, err := h.chat.EnsureConversation(context.Background(), workspaceID, user, conversationID)
		if err != nil {
			h.sendError(conn, "conversation unavailable")
			return
		}
		msg, err := h.chat.AppendMessage(context.Background(), conv.ID, model.SenderUser, &user, message)
		if err != nil {
			h.sendError(conn, "message not saved")
			return
		}
		h.broadcaster.Broadcast(workspaceID, model.Envelope{
			Type:    model.EventChatMessage,
			Payload: map[string]any{"message": msg},
		}, conn)

		h.runner.Invoke(agent.RunInput{
			WorkspaceID:    workspaceID,
			OwnerID:        user,
			ConversationID: conv.ID,
			Attachments:    decodeAttachments(env.Payload["attachments"]),
		})

	case "agent.stop":
		conversationID, _ := env.Payload["conversation_id"].(string)
		h.runner.Stop(conversationID)

	case model.EventChatTyping:
		h.broadcaster.Broadcast(workspaceID, model.Envelope{
			Type:    model.EventChatTyping,
			Payload: env.Payload,
		}, conn)

	default:
		h.sendError(conn, "unknown event type: "+env.Type)
	}
}

func (h *WSHandler) sendError(conn *wsConn, message string) {
	data, err := json.Marshal(model.Envelope{
		Type:    model.EventError,
		Payload: map[string]any{"message": message},
	})
	if err != nil {
		return
	}
	_ = conn.Send(data)
}

func decodeAttachments(v any) []agent.Attachment {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []agent.Attachment
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		mediaType, _ := m["media_type"].(string)
		data, _ := m["data"].(string)
		if mediaType == "" || data == "" {
			continue
		}
		out = append(out, agent.Attachment{MediaType: mediaType, Data: data})
	}
	return out
}
