package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Conversation groups the persisted messages of one chat or builder run.
type Conversation struct {
	ID        string
	ProjectID string
	CreatedAt time.Time
}

// MessageRecord is one immutable persisted conversation turn.
type MessageRecord struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// EnsureConversation returns the conversation with the given id, creating
// it when id is empty or unknown. New ids are nanoid-generated.
func (s *Store) EnsureConversation(ctx context.Context, id, projectID string) (*Conversation, error) {
	if id != "" {
		row := s.db.QueryRowContext(ctx,
			`SELECT id, project_id, created_at FROM conversations WHERE id = ?`, id)
		var conv Conversation
		var createdAt int64
		err := row.Scan(&conv.ID, &conv.ProjectID, &createdAt)
		if err == nil {
			conv.CreatedAt = time.UnixMilli(createdAt)
			return &conv, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to load conversation: %w", err)
		}
	}

	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate conversation id: %w", err)
		}
		id = generated
	}

	conv := Conversation{ID: id, ProjectID: projectID, CreatedAt: time.Now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, project_id, created_at) VALUES (?, ?, ?)`,
		conv.ID, conv.ProjectID, conv.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage persists one conversation turn. Messages are immutable
// once written.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) (*MessageRecord, error) {
	rec := MessageRecord{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ConversationID, rec.Role, rec.Content, rec.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return &rec, nil
}

// ListMessages returns a conversation's messages in append order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var records []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.Role, &rec.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}
