package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
	"github.com/google/uuid"
)

type contextKey string

const sessionContextKey contextKey = "session"

var errNoSession = errors.New("session not found in context")

// WithSession кладёт проверенную сессию в контекст запроса.
func WithSession(ctx context.Context, session services.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}

func SessionFromContext(ctx context.Context) (services.Session, bool) {
	session, ok := ctx.Value(sessionContextKey).(services.Session)
	if !ok || session.State != services.SessionAuthenticated || session.User == nil {
		return services.Session{}, false
	}
	return session, true
}

func GetActorFromContext(ctx context.Context) (services.Actor, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return services.Actor{}, errNoSession
	}
	return session.Actor(), nil
}

func GetUserIDFromContext(ctx context.Context) (uuid.UUID, error) {
	actor, err := GetActorFromContext(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return actor.UserID, nil
}

func GetUserRoleFromContext(ctx context.Context) (models.UserRole, error) {
	actor, err := GetActorFromContext(ctx)
	if err != nil {
		return "", err
	}
	return actor.Role, nil
}

func GetUserFromContext(ctx context.Context) (*models.User, error) {
	session, ok := SessionFromContext(ctx)
	if !ok {
		return nil, errNoSession
	}
	return session.User, nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
