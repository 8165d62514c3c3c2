package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/google/uuid"
)

const defaultNotificationLimit = 50

type NotificationService interface {
	List(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type notificationService struct {
	notificationRepo repositories.NotificationRepository
	logger           *slog.Logger
}

func NewNotificationService(notificationRepo repositories.NotificationRepository, logger *slog.Logger) NotificationService {
	return &notificationService{notificationRepo: notificationRepo, logger: logger}
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	list, err := s.notificationRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, mapRepositoryError("list notifications", err)
	}
	return list, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := s.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return 0, mapRepositoryError("count unread notifications", err)
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return mapRepositoryError("mark notification read", s.notificationRepo.MarkRead(ctx, id, userID))
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.notificationRepo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, mapRepositoryError("mark all notifications read", err)
	}
	s.logger.DebugContext(ctx, "Notifications marked read", slog.String("user_id", userID.String()), slog.Int64("count", n))
	return n, nil
}

func (s *notificationService) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return mapRepositoryError("delete notification", s.notificationRepo.Delete(ctx, id, userID))
}
