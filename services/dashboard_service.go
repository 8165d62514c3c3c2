package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const recentAchievementsLimit = 5

type DashboardService interface {
	UserDashboard(ctx context.Context, userID uuid.UUID) (*models.UserDashboard, error)
	AdminStats(ctx context.Context) (*models.AdminStats, error)
}

type dashboardService struct {
	userRepo        repositories.UserRepository
	achievementRepo repositories.AchievementRepository
	leaderboardRepo repositories.LeaderboardRepository
	logger          *slog.Logger
	now             func() time.Time
}

func NewDashboardService(
	userRepo repositories.UserRepository,
	achievementRepo repositories.AchievementRepository,
	leaderboardRepo repositories.LeaderboardRepository,
	logger *slog.Logger,
) DashboardService {
	return &dashboardService{
		userRepo:        userRepo,
		achievementRepo: achievementRepo,
		leaderboardRepo: leaderboardRepo,
		logger:          logger,
		now:             time.Now,
	}
}

func (s *dashboardService) UserDashboard(ctx context.Context, userID uuid.UUID) (*models.UserDashboard, error) {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, mapRepositoryError("load dashboard user", err)
	}

	now := s.now()
	monthStart := startOfMonth(now)
	dash := &models.UserDashboard{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		dash.TotalAchievements, err = s.achievementRepo.Count(gctx, models.AchievementFilter{UserID: &userID})
		return err
	})
	g.Go(func() (err error) {
		dash.PendingApprovals, err = s.achievementRepo.Count(gctx, models.AchievementFilter{UserID: &userID, Status: models.StatusPending})
		return err
	})
	g.Go(func() (err error) {
		dash.MonthlyAchievements, err = s.achievementRepo.Count(gctx, models.AchievementFilter{UserID: &userID, From: &monthStart})
		return err
	})
	g.Go(func() error {
		approved, err := s.achievementRepo.List(gctx, models.AchievementFilter{UserID: &userID, Status: models.StatusApproved})
		if err != nil {
			return err
		}
		for _, a := range approved {
			dash.TotalPoints += a.Points
		}
		return nil
	})
	g.Go(func() error {
		entry, err := s.leaderboardRepo.GetByUserAndYear(gctx, nil, userID, now.Year())
		if errors.Is(err, repositories.ErrLeaderboardEntryNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		dash.LeaderboardPosition = entry.Rank
		return nil
	})
	g.Go(func() (err error) {
		dash.RecentAchievements, err = s.achievementRepo.List(gctx, models.AchievementFilter{UserID: &userID, Limit: recentAchievementsLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, upstream("load user dashboard", err)
	}
	return dash, nil
}

func (s *dashboardService) AdminStats(ctx context.Context) (*models.AdminStats, error) {
	now := s.now()
	today := startOfDay(now)
	monthStart := startOfMonth(now)
	stats := &models.AdminStats{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.UsersTotal, err = s.userRepo.Count(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalAchievements, err = s.achievementRepo.Count(gctx, models.AchievementFilter{})
		return err
	})
	g.Go(func() (err error) {
		stats.PendingApprovals, err = s.achievementRepo.Count(gctx, models.AchievementFilter{Status: models.StatusPending})
		return err
	})
	g.Go(func() (err error) {
		stats.ApprovedToday, err = s.achievementRepo.Count(gctx, models.AchievementFilter{Status: models.StatusApproved, ApprovedFrom: &today})
		return err
	})
	g.Go(func() (err error) {
		stats.ThisMonthAchievements, err = s.achievementRepo.Count(gctx, models.AchievementFilter{From: &monthStart})
		return err
	})
	g.Go(func() (err error) {
		stats.Categories, err = s.achievementRepo.CountBy(gctx, "category")
		return err
	})
	g.Go(func() (err error) {
		stats.Levels, err = s.achievementRepo.CountBy(gctx, "level")
		return err
	})
	g.Go(func() (err error) {
		stats.RecentAchievements, err = s.achievementRepo.List(gctx, models.AchievementFilter{WithOwner: true, Limit: recentAchievementsLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, upstream("load admin stats", err)
	}
	return stats, nil
}
