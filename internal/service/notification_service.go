package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

const subscriberBuffer = 16

// NotificationService persists notifications and fans them out to
// in-process subscribers.
type NotificationService interface {
	Notify(ctx context.Context, userID string, kind domain.NotificationKind, title, body string) error
	List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	// Subscribe streams the user's new notifications until cancel is called.
	// A subscriber that does not keep up misses notifications; Notify never blocks.
	Subscribe(userID string) (<-chan domain.Notification, func())
}

type notificationService struct {
	repo repository.NotificationRepository

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan domain.Notification
}

func NewNotificationService(repo repository.NotificationRepository) NotificationService {
	return &notificationService{
		repo: repo,
		subs: make(map[string]map[int]chan domain.Notification),
	}
}

func (s *notificationService) Notify(ctx context.Context, userID string, kind domain.NotificationKind, title, body string) error {
	title = strings.TrimSpace(title)
	if userID == "" || title == "" {
		return fmt.Errorf("notification needs a user and a title: %w", domain.ErrInvalidInput)
	}
	n := &domain.Notification{
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   strings.TrimSpace(body),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs[userID] {
		select {
		case ch <- *n:
		default:
		}
	}
	return nil
}

func (s *notificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	list, err := s.repo.List(ctx, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id string) error {
	if err := s.repo.MarkRead(ctx, userID, id); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

func (s *notificationService) Subscribe(userID string) (<-chan domain.Notification, func()) {
	ch := make(chan domain.Notification, subscriberBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]chan domain.Notification)
	}
	s.subs[userID][id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[userID], id)
			if len(s.subs[userID]) == 0 {
				delete(s.subs, userID)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
