package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
)

// SessionResolver is implemented by services.AuthService.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) services.Session
}

// TokenFromRequest достаёт токен из заголовка Authorization: Bearer,
// а для WebSocket из параметра token (браузер не умеет ставить заголовки на upgrade).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Authenticate проверяет сессию один раз на запрос. Недоступность хранилища
// отвечает 503, а не 401, чтобы клиент не разлогинивал пользователя.
func Authenticate(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := resolver.ResolveSession(r.Context(), TokenFromRequest(r))
			switch session.State {
			case services.SessionAuthenticated:
				next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
			case services.SessionFailed:
				logger.WarnContext(r.Context(), "Session backend unavailable", slog.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "5")
				writeError(w, http.StatusServiceUnavailable, "session could not be verified, try again")
			default:
				writeError(w, http.StatusUnauthorized, "authentication required")
			}
		})
	}
}

// Authorize пропускает только перечисленные роли. Должен стоять после Authenticate.
func Authorize(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole, err := GetUserRoleFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			for _, role := range roles {
				if role == userRole {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return Authorize(models.RoleAdmin)(next)
}

// RequireStaff: администратор или преподаватель.
func RequireStaff(next http.Handler) http.Handler {
	return Authorize(models.RoleAdmin, models.RoleFaculty)(next)
}
