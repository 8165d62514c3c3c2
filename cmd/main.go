package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/achievement-portal/config"
	"github.com/Dosada05/achievement-portal/db"
	"github.com/Dosada05/achievement-portal/handlers"
	"github.com/Dosada05/achievement-portal/metrics"
	"github.com/Dosada05/achievement-portal/middleware"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	api "github.com/Dosada05/achievement-portal/routes"
	"github.com/Dosada05/achievement-portal/services"
	"github.com/Dosada05/achievement-portal/storage"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout   = 15 * time.Second
	loginRateInterval = 6 * time.Second
	loginBurst        = 5
)

func main() {
	// Загрузка конфигурации (до логгера: от неё зависит уровень)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("log_level", cfg.LogLevel.String()))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, cfg.DBConnectTimeout)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(ctx, dbConn); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("database schema is up to date")

	// Инициализация загрузчика файлов (Cloudflare R2)
	cloudflareUploader, err := storage.NewCloudflareR2Uploader(ctx, storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	// Инициализация WebSocket Hub
	wsHub := realtime.NewHub(logger)
	go wsHub.Run(ctx)
	logger.Info("WebSocket Hub started")

	appMetrics := metrics.New()

	// Инициализация репозиториев
	txRunner := repositories.NewTxRunner(dbConn, logger)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	achievementRepo := repositories.NewPostgresAchievementRepository(dbConn)
	leaderboardRepo := repositories.NewPostgresLeaderboardRepository(dbConn)
	notificationRepo := repositories.NewPostgresNotificationRepository(dbConn)
	logger.Info("Repositories initialized")

	// Инициализация сервисов
	authService := services.NewAuthService(userRepo, wsHub, services.AuthConfig{
		JWTSecret:      cfg.JWTSecretKey,
		TokenTTL:       cfg.TokenTTL,
		SessionTimeout: cfg.SessionTimeout,
	}, logger)
	leaderboardService := services.NewLeaderboardService(leaderboardRepo, achievementRepo, txRunner, wsHub, appMetrics, logger)
	achievementService := services.NewAchievementService(
		achievementRepo,
		notificationRepo,
		userRepo,
		txRunner,
		cloudflareUploader,
		wsHub,
		appMetrics,
		logger,
	)
	approvalService := services.NewApprovalService(
		achievementRepo,
		notificationRepo,
		userRepo,
		leaderboardService,
		txRunner,
		wsHub,
		appMetrics,
		logger,
	)
	notificationService := services.NewNotificationService(notificationRepo, logger)
	dashboardService := services.NewDashboardService(userRepo, achievementRepo, leaderboardRepo, logger)
	bulkService := services.NewBulkService(achievementRepo, userRepo, appMetrics, logger)
	exportService := services.NewExportService(achievementRepo, leaderboardRepo, userRepo, logger)
	studentService := services.NewStudentService(userRepo, achievementService, logger)
	logger.Info("Services initialized")

	// Периодическая сверка лидерборда текущего года с одобренными достижениями
	if cfg.ReconcileInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.ReconcileInterval)
			defer ticker.Stop()
			logger.Info("leaderboard reconcile scheduler started", slog.Duration("interval", cfg.ReconcileInterval))

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					year := time.Now().Year()
					if err := leaderboardService.Rebuild(ctx, year); err != nil {
						logger.Error("Scheduler: leaderboard rebuild failed", slog.Int("year", year), slog.Any("error", err))
					}
				}
			}
		}()
	}

	// Инициализация обработчиков HTTP
	h := api.Handlers{
		Auth:         handlers.NewAuthHandler(authService),
		Achievement:  handlers.NewAchievementHandler(achievementService, bulkService),
		Admin:        handlers.NewAdminHandler(achievementService, approvalService, leaderboardService, dashboardService, exportService),
		Leaderboard:  handlers.NewLeaderboardHandler(leaderboardService),
		Notification: handlers.NewNotificationHandler(notificationService),
		Dashboard:    handlers.NewDashboardHandler(dashboardService),
		Student:      handlers.NewStudentHandler(studentService),
		WebSocket:    handlers.NewWebSocketHandler(wsHub, cfg.CORSAllowedOrigins, logger),
	}
	logger.Info("HTTP handlers initialized")

	// Настройка маршрутизатора
	router := chi.NewRouter()
	api.SetupRoutes(router, h, api.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Resolver:       authService,
		Metrics:        appMetrics,
		Logger:         logger,
		LoginLimiter:   middleware.NewIPRateLimiter(rate.Every(loginRateInterval), loginBurst),
	})
	logger.Info("Routes configured")

	// Настройка и запуск HTTP-сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  60 * time.Second, // загрузка фото и xlsx
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			stop()
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	stop()
	logger.Info("application exited")
}
