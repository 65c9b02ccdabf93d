package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

const maxMessageLength = 4000

// MessageService is the private messaging between clients and advisors. A
// conversation belongs to the first advisor who answers it.
type MessageService interface {
	Open(ctx context.Context, actorID, subject, body string) (*domain.Conversation, error)
	Reply(ctx context.Context, actorID, conversationID, body string) (*domain.Message, error)
	// Transfer hands a conversation over to another advisor.
	Transfer(ctx context.Context, actorID, conversationID, advisorID string) error
	Close(ctx context.Context, actorID, conversationID string) error
	List(ctx context.Context, actorID string) ([]domain.Conversation, error)
	Messages(ctx context.Context, actorID, conversationID string) ([]domain.Message, error)
}

type messageService struct {
	users         repository.UserRepository
	messages      repository.MessageRepository
	notifications NotificationService
	log           logrus.FieldLogger
}

func NewMessageService(users repository.UserRepository, messages repository.MessageRepository,
	notifications NotificationService, log logrus.FieldLogger) MessageService {
	return &messageService{
		users:         users,
		messages:      messages,
		notifications: notifications,
		log:           defaultLogger(log),
	}
}

func (s *messageService) Open(ctx context.Context, actorID, subject, body string) (*domain.Conversation, error) {
	client, err := loadActor(ctx, s.users, actorID, domain.RoleClient)
	if err != nil {
		return nil, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("subject is required: %w", domain.ErrInvalidInput)
	}
	body, err = cleanBody(body)
	if err != nil {
		return nil, err
	}

	conv := &domain.Conversation{ClientID: client.ID, Subject: subject}
	if err := s.messages.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	if err := s.messages.AddMessage(ctx, &domain.Message{ConversationID: conv.ID, SenderID: client.ID, Body: body}); err != nil {
		return nil, err
	}

	recipients := []string{client.AdvisorID}
	if client.AdvisorID == "" {
		advisors, err := s.users.List(ctx, domain.RoleAdvisor)
		if err != nil {
			s.log.WithError(err).Warn("list advisors for new conversation")
		}
		recipients = recipients[:0]
		for _, a := range advisors {
			recipients = append(recipients, a.ID)
		}
	}
	for _, id := range recipients {
		notify(ctx, s.notifications, s.log, id, domain.NotifyMessage,
			"New conversation", fmt.Sprintf("%s: %s", client.FullName(), subject))
	}
	return conv, nil
}

func (s *messageService) Reply(ctx context.Context, actorID, conversationID, body string) (*domain.Message, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	body, err = cleanBody(body)
	if err != nil {
		return nil, err
	}
	conv, err := s.messages.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == domain.ConversationClosed {
		return nil, fmt.Errorf("conversation %s is closed: %w", conv.ID, domain.ErrConflict)
	}

	switch actor.Role {
	case domain.RoleClient:
		if conv.ClientID != actor.ID {
			return nil, fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrForbidden)
		}
	case domain.RoleAdvisor:
		if conv.AdvisorID == "" {
			won, err := s.messages.Claim(ctx, conv.ID, actor.ID)
			if err != nil {
				return nil, err
			}
			if !won {
				return nil, fmt.Errorf("conversation %s was taken by another advisor: %w", conv.ID, domain.ErrForbidden)
			}
			conv.AdvisorID = actor.ID
			s.log.WithFields(logrus.Fields{"conversation_id": conv.ID, "advisor_id": actor.ID}).Info("conversation claimed")
		} else if conv.AdvisorID != actor.ID {
			return nil, fmt.Errorf("conversation %s belongs to another advisor: %w", conv.ID, domain.ErrForbidden)
		}
	default:
		// directors read and reassign conversations but do not write in them
		return nil, fmt.Errorf("%s may not reply: %w", actor.Role, domain.ErrForbidden)
	}

	msg := &domain.Message{ConversationID: conv.ID, SenderID: actor.ID, Body: body}
	if err := s.messages.AddMessage(ctx, msg); err != nil {
		return nil, err
	}

	recipient := conv.ClientID
	if actor.ID == conv.ClientID {
		recipient = conv.AdvisorID
	}
	notify(ctx, s.notifications, s.log, recipient, domain.NotifyMessage,
		"New message", fmt.Sprintf("%s replied in %q", actor.FullName(), conv.Subject))
	return msg, nil
}

func (s *messageService) Transfer(ctx context.Context, actorID, conversationID, advisorID string) error {
	actor, err := loadActor(ctx, s.users, actorID, domain.RoleAdvisor, domain.RoleDirector)
	if err != nil {
		return err
	}
	conv, err := s.messages.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if actor.Role == domain.RoleAdvisor && conv.AdvisorID != actor.ID {
		return fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrForbidden)
	}
	target, err := s.users.GetByID(ctx, advisorID)
	if err != nil {
		return err
	}
	if target.Role != domain.RoleAdvisor {
		return fmt.Errorf("%s is not an advisor: %w", advisorID, domain.ErrInvalidInput)
	}
	if target.ID == conv.AdvisorID {
		return nil
	}
	if err := s.messages.Reassign(ctx, conv.ID, target.ID); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{
		"conversation_id": conv.ID,
		"from":            conv.AdvisorID,
		"to":              target.ID,
	}).Info("conversation transferred")
	notify(ctx, s.notifications, s.log, target.ID, domain.NotifyMessage,
		"Conversation transferred to you", conv.Subject)
	return nil
}

func (s *messageService) Close(ctx context.Context, actorID, conversationID string) error {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return err
	}
	conv, err := s.messages.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !canSee(actor, conv) || (actor.Role == domain.RoleAdvisor && conv.AdvisorID != actor.ID) {
		return fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrForbidden)
	}
	if conv.Status == domain.ConversationClosed {
		return nil
	}
	return s.messages.SetStatus(ctx, conv.ID, domain.ConversationClosed)
}

func (s *messageService) List(ctx context.Context, actorID string) ([]domain.Conversation, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	var filter repository.ConversationFilter
	switch actor.Role {
	case domain.RoleClient:
		filter.ClientID = actor.ID
	case domain.RoleAdvisor:
		filter.AdvisorID = actor.ID
		filter.Unassigned = true
	}
	return s.messages.ListConversations(ctx, filter)
}

func (s *messageService) Messages(ctx context.Context, actorID, conversationID string) ([]domain.Message, error) {
	actor, err := loadActor(ctx, s.users, actorID)
	if err != nil {
		return nil, err
	}
	conv, err := s.messages.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, conv) {
		return nil, fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrForbidden)
	}
	return s.messages.ListMessages(ctx, conv.ID)
}

// canSee: clients see their own conversations, advisors theirs and the
// unassigned ones, directors everything.
func canSee(actor *domain.User, conv *domain.Conversation) bool {
	switch actor.Role {
	case domain.RoleClient:
		return conv.ClientID == actor.ID
	case domain.RoleAdvisor:
		return conv.AdvisorID == "" || conv.AdvisorID == actor.ID
	case domain.RoleDirector:
		return true
	}
	return false
}

func cleanBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", fmt.Errorf("message body is required: %w", domain.ErrInvalidInput)
	}
	if len(body) > maxMessageLength {
		return "", fmt.Errorf("message longer than %d bytes: %w", maxMessageLength, domain.ErrInvalidInput)
	}
	return body, nil
}
