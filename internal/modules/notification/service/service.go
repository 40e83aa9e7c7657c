package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"anoa.com/drawsocial/internal/entity"
	notifRepo "anoa.com/drawsocial/internal/modules/notification/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const notifyTimeout = 5 * time.Second

// Channel is the redis pub/sub channel carrying a user's live notifications.
func Channel(userID string) string {
	return fmt.Sprintf("user_notifications:%s", userID)
}

// Publisher is satisfied by *redis.Client.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Sink is a user-bound notification target. actorID may be empty.
type Sink interface {
	Notify(actorID, title, body string)
}

type NotificationService interface {
	// Notify persists and publishes in the background. Failures are logged.
	Notify(ctx context.Context, userID, actorID, kind, title, body string)
	CreateNotification(ctx context.Context, notification *entity.Notification) error
	GetNotifications(ctx context.Context, userID string, limit, offset int) ([]entity.Notification, int64, error)
	MarkAsRead(ctx context.Context, userID string, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID string) error
	UnreadCount(ctx context.Context, userID string) (int64, error)
	SinkFor(userID string) Sink
	// Close waits for in-flight notifications. Later calls to Notify are
	// dropped.
	Close()
}

type notificationService struct {
	repo      notifRepo.NotificationRepository
	publisher Publisher
	logger    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewNotificationService(repo notifRepo.NotificationRepository, publisher Publisher, logger *slog.Logger) NotificationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &notificationService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *notificationService) Notify(ctx context.Context, userID, actorID, kind, title, body string) {
	notification := &entity.Notification{
		UserID: userID,
		Type:   kind,
		Title:  title,
		Body:   body,
	}
	if actorID != "" {
		notification.ActorID = &actorID
	}

	// Outlive the request that triggered the notification.
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("notification dropped after close",
			slog.String("user_id", userID),
			slog.String("type", kind),
		)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()

		if err := s.CreateNotification(ctx, notification); err != nil {
			s.logger.Error("notification failed",
				slog.String("user_id", userID),
				slog.String("type", kind),
				slog.String("error", err.Error()),
			)
		}
	}()
}

func (s *notificationService) CreateNotification(ctx context.Context, notification *entity.Notification) error {
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}

	if s.publisher != nil {
		payload, err := json.Marshal(notification)
		if err != nil {
			return err
		}
		if err := s.publisher.Publish(ctx, Channel(notification.UserID), payload).Err(); err != nil {
			// Stored already; the client sees it on the next list.
			s.logger.Warn("notification publish failed",
				slog.String("user_id", notification.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

func (s *notificationService) GetNotifications(ctx context.Context, userID string, limit, offset int) ([]entity.Notification, int64, error) {
	notifications, err := s.repo.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountByUserID(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return notifications, total, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID string, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, userID, id)
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID string) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

type userSink struct {
	service *notificationService
	userID  string
}

func (s *notificationService) SinkFor(userID string) Sink {
	return &userSink{service: s, userID: userID}
}

func (s *userSink) Notify(actorID, title, body string) {
	s.service.Notify(context.Background(), s.userID, actorID, entity.NotificationFriendRequest, title, body)
}
