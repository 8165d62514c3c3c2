package services

import (
	"errors"
	"strings"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/Dosada05/achievement-portal/storage"
	"github.com/google/uuid"
)

// EventPublisher доставляет события после коммита. Ошибки доставки не влияют на данные.
type EventPublisher interface {
	PublishToUser(userID uuid.UUID, event realtime.Event)
	PublishToYear(year int, event realtime.Event)
}

// MetricsRecorder is implemented by metrics.Metrics.
type MetricsRecorder interface {
	AchievementSubmitted()
	AchievementReviewed(status models.AchievementStatus)
	RanksRecomputed(err error)
	BulkRowsImported(success, failed int)
}

type nopPublisher struct{}

func (nopPublisher) PublishToUser(uuid.UUID, realtime.Event) {}
func (nopPublisher) PublishToYear(int, realtime.Event)       {}

type nopMetrics struct{}

func (nopMetrics) AchievementSubmitted()                        {}
func (nopMetrics) AchievementReviewed(models.AchievementStatus) {}
func (nopMetrics) RanksRecomputed(error)                        {}
func (nopMetrics) BulkRowsImported(int, int)                    {}

func orNopPublisher(p EventPublisher) EventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

func orNopMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

// mapRepositoryError переводит ошибки репозиториев в ошибки сервисного слоя.
func mapRepositoryError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrAchievementUserInvalid),
		errors.Is(err, repositories.ErrLeaderboardUserInvalid),
		errors.Is(err, repositories.ErrNotificationUserInvalid):
		return ErrUserNotFound
	case errors.Is(err, repositories.ErrAchievementNotFound):
		return ErrAchievementNotFound
	case errors.Is(err, repositories.ErrNotificationNotFound):
		return ErrNotificationNotFound
	case errors.Is(err, repositories.ErrLeaderboardEntryNotFound):
		return ErrLeaderboardEntryNotFound
	case errors.Is(err, repositories.ErrAchievementInvalidData):
		return ValidationError{Field: "achievement", Message: err.Error()}
	}
	return upstream(op, err)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func populateAchievementURLs(a *models.Achievement, uploader storage.FileUploader) {
	if a == nil || uploader == nil {
		return
	}
	if key := derefString(a.ProofFilePath); key != "" {
		if url := uploader.GetPublicURL(key); url != "" {
			a.ProofURL = &url
		}
	}
	if len(a.EventPhotosPaths) > 0 {
		a.PhotoURLs = make([]string, 0, len(a.EventPhotosPaths))
		for _, key := range a.EventPhotosPaths {
			if url := uploader.GetPublicURL(key); url != "" {
				a.PhotoURLs = append(a.PhotoURLs, url)
			}
		}
	}
}

func populateAchievementListURLs(list []*models.Achievement, uploader storage.FileUploader) {
	for _, a := range list {
		populateAchievementURLs(a, uploader)
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}
