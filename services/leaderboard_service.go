package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/Dosada05/achievement-portal/scoring"
	"github.com/google/uuid"
)

const (
	minLeaderboardYear = 1900
	maxLeaderboardYear = 9999
)

// StandingsFilter выбирает период живого рейтинга. Category пустая = все категории.
type StandingsFilter struct {
	Period   models.StandingsPeriod
	Category models.AchievementCategory
}

type LeaderboardService interface {
	// RecordApproval начисляет points пользователю за year и пересчитывает места года.
	// Если exec == nil, открывается собственная транзакция.
	RecordApproval(ctx context.Context, exec repositories.SQLExecutor, userID uuid.UUID, points, year int) (*models.LeaderboardEntry, error)
	RecomputeRanks(ctx context.Context, year int) (int64, error)
	Rebuild(ctx context.Context, year int) error
	GetEntry(ctx context.Context, userID uuid.UUID, year int) (*models.LeaderboardEntry, error)
	ListYear(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error)
	Years(ctx context.Context) ([]int, error)
	Standings(ctx context.Context, filter StandingsFilter) ([]*models.Standing, error)
}

type leaderboardService struct {
	leaderboardRepo repositories.LeaderboardRepository
	achievementRepo repositories.AchievementRepository
	tx              repositories.TxRunner
	publisher       EventPublisher
	metrics         MetricsRecorder
	logger          *slog.Logger
	now             func() time.Time
}

func NewLeaderboardService(
	leaderboardRepo repositories.LeaderboardRepository,
	achievementRepo repositories.AchievementRepository,
	tx repositories.TxRunner,
	publisher EventPublisher,
	metrics MetricsRecorder,
	logger *slog.Logger,
) LeaderboardService {
	return &leaderboardService{
		leaderboardRepo: leaderboardRepo,
		achievementRepo: achievementRepo,
		tx:              tx,
		publisher:       orNopPublisher(publisher),
		metrics:         orNopMetrics(metrics),
		logger:          logger,
		now:             time.Now,
	}
}

func validateYear(year int) error {
	if year < minLeaderboardYear || year > maxLeaderboardYear {
		return ValidationError{Field: "year", Message: fmt.Sprintf("must be between %d and %d", minLeaderboardYear, maxLeaderboardYear)}
	}
	return nil
}

func (s *leaderboardService) RecordApproval(ctx context.Context, exec repositories.SQLExecutor, userID uuid.UUID, points, year int) (*models.LeaderboardEntry, error) {
	if points < 0 {
		return nil, ValidationError{Field: "points", Message: "must not be negative"}
	}
	if err := validateYear(year); err != nil {
		return nil, err
	}
	if exec == nil {
		var entry *models.LeaderboardEntry
		err := s.tx.WithinTx(ctx, func(txExec repositories.SQLExecutor) error {
			var err error
			entry, err = s.recordApproval(ctx, txExec, userID, points, year)
			return err
		})
		if err != nil {
			return nil, upstream("record approval", err)
		}
		s.publishYear(year)
		return entry, nil
	}
	return s.recordApproval(ctx, exec, userID, points, year)
}

// recordApproval: блокировка года, атомарный upsert, пересчёт мест. Всё в транзакции exec.
func (s *leaderboardService) recordApproval(ctx context.Context, exec repositories.SQLExecutor, userID uuid.UUID, points, year int) (*models.LeaderboardEntry, error) {
	if err := s.leaderboardRepo.LockYear(ctx, exec, year); err != nil {
		return nil, upstream("lock leaderboard year", err)
	}
	if _, err := s.leaderboardRepo.AddPoints(ctx, exec, userID, year, points); err != nil {
		return nil, mapRepositoryError("add leaderboard points", err)
	}
	_, err := s.leaderboardRepo.RecomputeRanks(ctx, exec, year)
	s.metrics.RanksRecomputed(err)
	if err != nil {
		return nil, upstream("recompute ranks", err)
	}

	entry, err := s.leaderboardRepo.GetByUserAndYear(ctx, exec, userID, year)
	if err != nil {
		return nil, mapRepositoryError("reload leaderboard entry", err)
	}
	s.logger.InfoContext(ctx, "Leaderboard entry updated",
		slog.String("user_id", userID.String()),
		slog.Int("year", year),
		slog.Int("points_delta", points),
		slog.Int("total_points", entry.TotalPoints),
		slog.Int("rank", entry.Rank),
	)
	return entry, nil
}

// RecomputeRanks можно запускать повторно: результат зависит только от сумм года.
func (s *leaderboardService) RecomputeRanks(ctx context.Context, year int) (int64, error) {
	if err := validateYear(year); err != nil {
		return 0, err
	}
	var changed int64
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.leaderboardRepo.LockYear(ctx, exec, year); err != nil {
			return err
		}
		var err error
		changed, err = s.leaderboardRepo.RecomputeRanks(ctx, exec, year)
		return err
	})
	s.metrics.RanksRecomputed(err)
	if err != nil {
		return 0, upstream("recompute ranks", err)
	}
	if changed > 0 {
		s.logger.InfoContext(ctx, "Leaderboard ranks rewritten", slog.Int("year", year), slog.Int64("changed", changed))
		s.publishYear(year)
	}
	return changed, nil
}

// Rebuild восстанавливает суммы года из одобренных заявок и заново расставляет места.
func (s *leaderboardService) Rebuild(ctx context.Context, year int) error {
	if err := validateYear(year); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.leaderboardRepo.LockYear(ctx, exec, year); err != nil {
			return err
		}
		totals, err := s.achievementRepo.ApprovedTotalsForYear(ctx, exec, year)
		if err != nil {
			return err
		}
		if err := s.leaderboardRepo.ReplaceYear(ctx, exec, year, totals); err != nil {
			return err
		}
		_, err = s.leaderboardRepo.RecomputeRanks(ctx, exec, year)
		return err
	})
	s.metrics.RanksRecomputed(err)
	if err != nil {
		return upstream("rebuild leaderboard", err)
	}
	s.logger.InfoContext(ctx, "Leaderboard rebuilt from approved achievements", slog.Int("year", year))
	s.publishYear(year)
	return nil
}

func (s *leaderboardService) GetEntry(ctx context.Context, userID uuid.UUID, year int) (*models.LeaderboardEntry, error) {
	entry, err := s.leaderboardRepo.GetByUserAndYear(ctx, nil, userID, year)
	if err != nil {
		return nil, mapRepositoryError("get leaderboard entry", err)
	}
	return entry, nil
}

func (s *leaderboardService) ListYear(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}
	entries, err := s.leaderboardRepo.ListByYear(ctx, year, limit)
	if err != nil {
		return nil, upstream("list leaderboard", err)
	}
	return entries, nil
}

func (s *leaderboardService) Years(ctx context.Context) ([]int, error) {
	years, err := s.leaderboardRepo.Years(ctx)
	if err != nil {
		return nil, upstream("list leaderboard years", err)
	}
	return years, nil
}

// periodBounds возвращает [from, to) для периода относительно now. Семестры: январь-июнь и июль-декабрь.
func periodBounds(period models.StandingsPeriod, now time.Time) (from, to *time.Time) {
	y, m, _ := now.Date()
	loc := now.Location()
	var start, end time.Time
	switch period {
	case models.PeriodMonth:
		start = time.Date(y, m, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	case models.PeriodSemester:
		startMonth := time.January
		if m >= time.July {
			startMonth = time.July
		}
		start = time.Date(y, startMonth, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 6, 0)
	case models.PeriodYear:
		start = time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
		end = start.AddDate(1, 0, 0)
	default:
		return nil, nil
	}
	return &start, &end
}

func (s *leaderboardService) Standings(ctx context.Context, filter StandingsFilter) ([]*models.Standing, error) {
	if filter.Period == "" {
		filter.Period = models.PeriodYear
	}
	var errs ValidationErrors
	if !filter.Period.Valid() {
		errs = append(errs, ValidationError{Field: "period", Message: "must be one of month, semester, year, all"})
	}
	if filter.Category != "" && !filter.Category.Valid() {
		errs = append(errs, ValidationError{Field: "category", Message: "must be one of Curricular, Co-curricular, Extracurricular, Other"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	from, to := periodBounds(filter.Period, s.now())
	standings, err := s.achievementRepo.Standings(ctx, repositories.StandingsQuery{From: from, To: to, Category: filter.Category})
	if err != nil {
		return nil, upstream("compute standings", err)
	}

	scoring.AssignRanks(standings,
		func(st *models.Standing) scoring.RankKey {
			return scoring.RankKey{TotalPoints: st.TotalPoints, AchievementCount: st.AchievementCount, UserID: st.UserID}
		},
		func(st *models.Standing, rank int) { st.Rank = rank },
	)
	return standings, nil
}

func (s *leaderboardService) publishYear(year int) {
	s.publisher.PublishToYear(year, realtime.Event{
		Type:    realtime.EventLeaderboardUpdated,
		Payload: map[string]int{"year": year},
	})
}
