package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/plainer/hub/internal/model"
)

// ChatService persists conversations and their append-only transcripts.
type ChatService struct {
	db *sql.DB
}

func NewChatService(db *sql.DB) *ChatService {
	return &ChatService{db: db}
}

// EnsureConversation returns the conversation, creating it under the given
// workspace when the id is unknown. Clients mint conversation ids.
func (s *ChatService) EnsureConversation(ctx context.Context, workspaceID, userID, conversationID string) (*model.Conversation, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		if conv.WorkspaceID != workspaceID {
			return nil, &model.InvalidReferenceError{Field: "conversation_id", Reason: "conversation belongs to another workspace"}
		}
		return conv, nil
	}

	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, workspace_id, title, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, NULL, TRUE, ?, ?, ?)`,
		conversationID, workspaceID, userID, now, now)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return s.getConversation(ctx, conversationID)
}

func (s *ChatService) ListConversations(ctx context.Context, workspaceID string) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, title, is_active, created_by, created_at, updated_at
		FROM conversations WHERE workspace_id = ?
		ORDER BY updated_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

// AppendMessage stores one transcript entry and bumps the conversation's
// updated_at so listings sort by recency.
func (s *ChatService) AppendMessage(ctx context.Context, conversationID, senderType string, senderID *string, content string) (*model.Message, error) {
	conv, err := s.getConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, &model.NotFoundError{Resource: "conversation", ID: conversationID}
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_type, sender_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, conversationID, senderType, senderID, content, now)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_type, sender_id, content, created_at
		FROM messages WHERE id = ?`, id)
	return scanMessage(row)
}

// History returns the full transcript in insertion order.
func (s *ChatService) History(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_type, sender_id, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, rows.Err()
}

// Get looks up a conversation by id.
func (s *ChatService) Get(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.getConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, &model.NotFoundError{Resource: "conversation", ID: id}
	}
	return conv, nil
}

func (s *ChatService) getConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, title, is_active, created_by, created_at, updated_at
		FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return conv, err
}

func scanConversation(row rowScanner) (*model.Conversation, error) {
	var c model.Conversation
	var title sql.NullString
	if err := row.Scan(&c.ID, &c.WorkspaceID, &title, &c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if title.Valid {
		c.Title = &title.String
	}
	return &c, nil
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var senderID sql.NullString
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderType, &senderID, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	if senderID.Valid {
		m.SenderID = &senderID.String
	}
	return &m, nil
}
