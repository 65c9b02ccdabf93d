package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

const createMessagingTables = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	advisor_id TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_client ON conversations(client_id);
CREATE INDEX IF NOT EXISTS idx_conversations_advisor ON conversations(advisor_id);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	body TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

const conversationColumns = `id, client_id, advisor_id, subject, status, created_at, updated_at`

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) repository.MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createMessagingTables); err != nil {
		return fmt.Errorf("create messaging tables: %w", err)
	}
	return nil
}

func (r *MessageRepository) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	now := time.Now().UTC()
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Status == "" {
		conv.Status = domain.ConversationOpen
	}
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO conversations (`+conversationColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.ClientID, conv.AdvisorID, conv.Subject, string(conv.Status), conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

func (r *MessageRepository) ListConversations(ctx context.Context, filter repository.ConversationFilter) ([]domain.Conversation, error) {
	var (
		where []string
		args  []any
	)
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	switch {
	case filter.AdvisorID != "" && filter.Unassigned:
		where = append(where, "(advisor_id = ? OR advisor_id = '')")
		args = append(args, filter.AdvisorID)
	case filter.AdvisorID != "":
		where = append(where, "advisor_id = ?")
		args = append(args, filter.AdvisorID)
	case filter.Unassigned:
		where = append(where, "advisor_id = ''")
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *conv)
	}
	return out, rows.Err()
}

func (r *MessageRepository) Claim(ctx context.Context, conversationID, advisorID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE conversations SET advisor_id = ?, updated_at = ?
WHERE id = ? AND advisor_id = ''`,
		advisorID, time.Now().UTC(), conversationID)
	if err != nil {
		return false, fmt.Errorf("claim conversation: %w", err)
	}
	aff, err := rowsAffected(res, "conversation claim")
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}

func (r *MessageRepository) Reassign(ctx context.Context, conversationID, advisorID string) error {
	return r.update(ctx, conversationID, `advisor_id = ?`, advisorID)
}

func (r *MessageRepository) SetStatus(ctx context.Context, conversationID string, status domain.ConversationStatus) error {
	return r.update(ctx, conversationID, `status = ?`, string(status))
}

func (r *MessageRepository) update(ctx context.Context, id, set string, value any) error {
	res, err := r.db.ExecContext(ctx, `UPDATE conversations SET `+set+`, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	aff, err := rowsAffected(res, "conversation update")
	if err != nil {
		return err
	}
	if aff == 0 {
		return fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (r *MessageRepository) AddMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages (id, conversation_id, sender_id, body, created_at)
VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Body, msg.CreatedAt,
	); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "foreign key") {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		msg.CreatedAt, msg.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

func (r *MessageRepository) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, conversation_id, sender_id, body, created_at
FROM messages
WHERE conversation_id = ?
ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanConversation(row scanner) (*domain.Conversation, error) {
	var (
		conv   domain.Conversation
		status string
	)
	if err := row.Scan(&conv.ID, &conv.ClientID, &conv.AdvisorID, &conv.Subject, &status, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, notFound(err, "conversation")
	}
	conv.Status = domain.ConversationStatus(status)
	return &conv, nil
}
