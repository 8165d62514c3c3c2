package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/google/uuid"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	ErrValidationFailed    = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state transition")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// Ошибки аутентификации и авторизации
	ErrAuthInvalidCredentials = errors.New("invalid identifier or password")
	ErrUnauthenticated        = errors.New("authentication required")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")

	// Ошибки, специфичные для сущностей; все они errors.Is(err, ErrNotFound)
	ErrUserNotFound             = &NotFoundError{Resource: "user"}
	ErrAchievementNotFound      = &NotFoundError{Resource: "achievement"}
	ErrNotificationNotFound     = &NotFoundError{Resource: "notification"}
	ErrLeaderboardEntryNotFound = &NotFoundError{Resource: "leaderboard entry"}
)

type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError описывает одно нарушение. Row > 0 только для строк массовой загрузки.
type ValidationError struct {
	Row     int
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	var b strings.Builder
	if e.Row > 0 {
		fmt.Fprintf(&b, "row %d: ", e.Row)
	}
	if e.Field != "" {
		b.WriteString(e.Field)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e ValidationError) Is(target error) bool { return target == ErrValidationFailed }

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Is(target error) bool { return target == ErrValidationFailed }

// Fields группирует сообщения по полю для ответа 422.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// InvalidStateError возвращается при попытке перевести заявку не из того статуса.
type InvalidStateError struct {
	AchievementID uuid.UUID
	Current       models.AchievementStatus
	Required      models.AchievementStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("achievement %s is %s, expected %s", e.AchievementID, e.Current, e.Required)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// UpstreamError оборачивает отказ базы, хранилища или таймаут. Такие операции можно повторить.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrUpstreamUnavailable, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// upstream оставляет ошибки таксономии как есть, а всё остальное помечает как UpstreamError.
func upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidationFailed),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrUpstreamUnavailable),
		errors.Is(err, ErrForbiddenOperation),
		errors.Is(err, ErrAuthInvalidCredentials),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, context.Canceled):
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
