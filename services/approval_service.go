package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/google/uuid"
)

type ApprovalResult struct {
	Achievement  *models.Achievement      `json:"achievement"`
	Entry        *models.LeaderboardEntry `json:"leaderboard_entry,omitempty"`
	Notification *models.Notification     `json:"notification"`
}

type ApprovalService interface {
	Approve(ctx context.Context, achievementID, approverID uuid.UUID) (*ApprovalResult, error)
	Reject(ctx context.Context, achievementID, approverID uuid.UUID, remarks string) (*ApprovalResult, error)
}

type approvalService struct {
	achievementRepo  repositories.AchievementRepository
	notificationRepo repositories.NotificationRepository
	userRepo         repositories.UserRepository
	leaderboard      LeaderboardService
	tx               repositories.TxRunner
	publisher        EventPublisher
	metrics          MetricsRecorder
	logger           *slog.Logger
	now              func() time.Time
}

func NewApprovalService(
	achievementRepo repositories.AchievementRepository,
	notificationRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	leaderboard LeaderboardService,
	tx repositories.TxRunner,
	publisher EventPublisher,
	metrics MetricsRecorder,
	logger *slog.Logger,
) ApprovalService {
	return &approvalService{
		achievementRepo:  achievementRepo,
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		leaderboard:      leaderboard,
		tx:               tx,
		publisher:        orNopPublisher(publisher),
		metrics:          orNopMetrics(metrics),
		logger:           logger,
		now:              time.Now,
	}
}

func (s *approvalService) Approve(ctx context.Context, achievementID, approverID uuid.UUID) (*ApprovalResult, error) {
	return s.review(ctx, achievementID, approverID, models.StatusApproved, "")
}

func (s *approvalService) Reject(ctx context.Context, achievementID, approverID uuid.UUID, remarks string) (*ApprovalResult, error) {
	return s.review(ctx, achievementID, approverID, models.StatusRejected, remarks)
}

func reviewMessage(eventName string, status models.AchievementStatus, remarks string) string {
	msg := fmt.Sprintf("Your achievement \"%s\" has been %s", eventName, status)
	if r := strings.TrimSpace(remarks); r != "" {
		msg += ". Remarks: " + r
	}
	return msg
}

// review переводит заявку из pending. Смена статуса, начисление баллов и уведомление
// коммитятся вместе или не коммитятся вовсе.
func (s *approvalService) review(ctx context.Context, achievementID, approverID uuid.UUID, status models.AchievementStatus, remarks string) (*ApprovalResult, error) {
	approver, err := s.userRepo.GetByID(ctx, approverID)
	if err != nil {
		return nil, mapRepositoryError("load approver", err)
	}
	if !approver.IsAdmin {
		return nil, ErrForbiddenOperation
	}

	result := &ApprovalResult{}
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		achievement, err := s.achievementRepo.GetForUpdate(ctx, exec, achievementID)
		if err != nil {
			return mapRepositoryError("lock achievement", err)
		}
		if achievement.Status != models.StatusPending {
			return &InvalidStateError{AchievementID: achievementID, Current: achievement.Status, Required: models.StatusPending}
		}

		reviewedAt := s.now().UTC()
		if err := s.achievementRepo.UpdateReview(ctx, exec, achievementID, status, approverID, reviewedAt); err != nil {
			if errors.Is(err, repositories.ErrAchievementNotPending) {
				return &InvalidStateError{AchievementID: achievementID, Current: achievement.Status, Required: models.StatusPending}
			}
			return mapRepositoryError("update achievement status", err)
		}
		achievement.Status = status
		achievement.ApprovedAt = &reviewedAt
		achievement.ApprovedBy = &approverID
		result.Achievement = achievement

		notificationType := models.NotificationRejection
		if status == models.StatusApproved {
			notificationType = models.NotificationApproval
			entry, err := s.leaderboard.RecordApproval(ctx, exec, achievement.UserID, achievement.Points, achievement.Year())
			if err != nil {
				return err
			}
			result.Entry = entry
		}

		notification := &models.Notification{
			UserID:  achievement.UserID,
			Message: reviewMessage(achievement.EventName, status, remarks),
			Type:    notificationType,
		}
		if err := s.notificationRepo.Create(ctx, exec, notification); err != nil {
			return mapRepositoryError("create review notification", err)
		}
		result.Notification = notification
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Achievement review failed",
			slog.String("achievement_id", achievementID.String()),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
		return nil, upstream("review achievement", err)
	}

	s.metrics.AchievementReviewed(status)
	s.logger.InfoContext(ctx, "Achievement reviewed",
		slog.String("achievement_id", achievementID.String()),
		slog.String("status", string(status)),
		slog.String("approver_id", approverID.String()),
		slog.Int("points", result.Achievement.Points),
	)

	s.publisher.PublishToUser(result.Achievement.UserID, realtime.Event{Type: realtime.EventNotification, Payload: result.Notification})
	if result.Entry != nil {
		s.publisher.PublishToYear(result.Entry.Year, realtime.Event{Type: realtime.EventLeaderboardUpdated, Payload: result.Entry})
	}
	return result, nil
}
