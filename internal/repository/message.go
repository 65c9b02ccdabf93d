package repository

import (
	"context"

	"bankcore/internal/domain"
)

// ConversationFilter narrows ListConversations; empty fields are ignored.
type ConversationFilter struct {
	ClientID   string
	AdvisorID  string
	Unassigned bool
}

type MessageRepository interface {
	Init(ctx context.Context) error
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, filter ConversationFilter) ([]domain.Conversation, error)
	// Claim assigns advisorID when nobody holds the conversation yet and
	// reports whether the caller won.
	Claim(ctx context.Context, conversationID, advisorID string) (bool, error)
	Reassign(ctx context.Context, conversationID, advisorID string) error
	SetStatus(ctx context.Context, conversationID string, status domain.ConversationStatus) error
	AddMessage(ctx context.Context, msg *domain.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
}

type NotificationRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, n *domain.Notification) error
	List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
}
