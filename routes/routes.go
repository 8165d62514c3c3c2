package routes

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/achievement-portal/handlers"
	"github.com/Dosada05/achievement-portal/metrics"
	"github.com/Dosada05/achievement-portal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

type Handlers struct {
	Auth         *handlers.AuthHandler
	Achievement  *handlers.AchievementHandler
	Admin        *handlers.AdminHandler
	Leaderboard  *handlers.LeaderboardHandler
	Notification *handlers.NotificationHandler
	Dashboard    *handlers.DashboardHandler
	Student      *handlers.StudentHandler
	WebSocket    *handlers.WebSocketHandler
}

type Options struct {
	AllowedOrigins []string
	Resolver       middleware.SessionResolver
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	// LoginLimiter ограничивает попытки входа с одного IP; nil отключает лимит.
	LoginLimiter *middleware.IPRateLimiter
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	var observer middleware.RequestObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	router.Use(middleware.RequestLogger(opts.Logger, observer))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}

	authenticate := middleware.Authenticate(opts.Resolver, opts.Logger)

	router.Route("/auth", func(r chi.Router) {
		if opts.LoginLimiter != nil {
			r.With(middleware.RateLimit(opts.LoginLimiter)).Post("/login", h.Auth.Login)
		} else {
			r.Post("/login", h.Auth.Login)
		}
		r.Get("/session", h.Auth.Session)

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/logout", h.Auth.Logout)
			r.Get("/me", h.Auth.Me)
		})
	})

	// Токен для ws передаётся в ?token=, браузер не умеет ставить заголовок
	router.With(authenticate).Get("/ws", h.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/dashboard", h.Dashboard.UserDashboard)

		r.Route("/achievements", func(r chi.Router) {
			r.Get("/", h.Achievement.ListOwn)
			r.Post("/", h.Achievement.Submit)
			r.Get("/{id}", h.Achievement.Get)

			r.Get("/bulk/template", h.Achievement.BulkTemplate)
			r.Post("/bulk/preview", h.Achievement.BulkPreview)
			r.Post("/bulk", h.Achievement.BulkImport)
		})

		r.Route("/leaderboard", func(r chi.Router) {
			r.Get("/years", h.Leaderboard.Years)
			r.Get("/standings", h.Leaderboard.Standings)
			r.Get("/me", h.Leaderboard.Me)
			r.Get("/{year}", h.Leaderboard.ListYear)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.Notification.List)
			r.Get("/unread-count", h.Notification.UnreadCount)
			r.Post("/read-all", h.Notification.MarkAllRead)
			r.Patch("/{id}/read", h.Notification.MarkRead)
			r.Delete("/{id}", h.Notification.Delete)
		})

		r.Route("/students", func(r chi.Router) {
			r.Use(middleware.RequireStaff)
			r.Get("/", h.Student.List)
			r.Get("/{id}/achievements", h.Student.Achievements)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/stats", h.Admin.Stats)
			r.Get("/achievements", h.Admin.ListForReview)
			r.Post("/achievements/{id}/approve", h.Admin.Approve)
			r.Post("/achievements/{id}/reject", h.Admin.Reject)
			r.Get("/export/{entity}", h.Admin.Export)
			r.Post("/leaderboard/{year}/recompute", h.Admin.RecomputeRanks)
			r.Post("/leaderboard/{year}/rebuild", h.Admin.Rebuild)
		})
	})
}
