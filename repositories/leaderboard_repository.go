package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrLeaderboardEntryNotFound = errors.New("leaderboard entry not found")
	ErrLeaderboardUserInvalid   = errors.New("leaderboard user conflict or invalid")
)

type LeaderboardRepository interface {
	// LockYear сериализует все изменения лидерборда за year до конца транзакции exec.
	LockYear(ctx context.Context, exec SQLExecutor, year int) error
	AddPoints(ctx context.Context, exec SQLExecutor, userID uuid.UUID, year, points int) (*models.LeaderboardEntry, error)
	RecomputeRanks(ctx context.Context, exec SQLExecutor, year int) (int64, error)
	ReplaceYear(ctx context.Context, exec SQLExecutor, year int, totals []UserYearTotal) error
	GetByUserAndYear(ctx context.Context, exec SQLExecutor, userID uuid.UUID, year int) (*models.LeaderboardEntry, error)
	ListByYear(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error)
	Years(ctx context.Context) ([]int, error)
}

type postgresLeaderboardRepository struct {
	db *sql.DB
}

func NewPostgresLeaderboardRepository(db *sql.DB) LeaderboardRepository {
	return &postgresLeaderboardRepository{db: db}
}

const leaderboardColumns = `l.id, l.user_id, l.year, l.total_points, l.achievement_count, l.rank, l.updated_at`

func (r *postgresLeaderboardRepository) LockYear(ctx context.Context, exec SQLExecutor, year int) error {
	_, err := getExecutor(r.db, exec).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('leaderboard'), $1)`, year)
	if err != nil {
		return fmt.Errorf("failed to lock leaderboard year %d: %w", year, err)
	}
	return nil
}

// AddPoints атомарно создаёт или увеличивает запись (user_id, year). Чтение и запись выполняются одним запросом,
// поэтому параллельные одобрения не теряют обновления.
func (r *postgresLeaderboardRepository) AddPoints(ctx context.Context, exec SQLExecutor, userID uuid.UUID, year, points int) (*models.LeaderboardEntry, error) {
	query := `
		INSERT INTO leaderboard AS l (id, user_id, year, total_points, achievement_count, rank, updated_at)
		VALUES ($1, $2, $3, $4, 1, 0, NOW())
		ON CONFLICT ON CONSTRAINT leaderboard_user_year_key DO UPDATE
		SET total_points = l.total_points + EXCLUDED.total_points,
			achievement_count = l.achievement_count + 1,
			updated_at = NOW()
		RETURNING ` + leaderboardColumns

	var e models.LeaderboardEntry
	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, uuid.New(), userID, year, points).Scan(
		&e.ID, &e.UserID, &e.Year, &e.TotalPoints, &e.AchievementCount, &e.Rank, &e.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
			return nil, ErrLeaderboardUserInvalid
		}
		return nil, fmt.Errorf("failed to upsert leaderboard entry: %w", err)
	}
	return &e, nil
}

// RecomputeRanks переписывает rank для всех строк года одним запросом.
// Порядок совпадает с scoring.RankKey: total_points DESC, achievement_count DESC, user_id ASC.
func (r *postgresLeaderboardRepository) RecomputeRanks(ctx context.Context, exec SQLExecutor, year int) (int64, error) {
	query := `
		UPDATE leaderboard l
		SET rank = ranked.position
		FROM (
			SELECT id, ROW_NUMBER() OVER (ORDER BY total_points DESC, achievement_count DESC, user_id ASC) AS position
			FROM leaderboard
			WHERE year = $1
		) ranked
		WHERE l.id = ranked.id AND l.rank IS DISTINCT FROM ranked.position`

	result, err := getExecutor(r.db, exec).ExecContext(ctx, query, year)
	if err != nil {
		return 0, fmt.Errorf("failed to recompute ranks for %d: %w", year, err)
	}
	changed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return changed, nil
}

// ReplaceYear выставляет абсолютные суммы из totals и удаляет строки пользователей без одобренных заявок.
func (r *postgresLeaderboardRepository) ReplaceYear(ctx context.Context, exec SQLExecutor, year int, totals []UserYearTotal) error {
	executor := getExecutor(r.db, exec)

	userIDs := make([]string, 0, len(totals))
	for _, t := range totals {
		userIDs = append(userIDs, t.UserID.String())
	}
	if _, err := executor.ExecContext(ctx,
		`DELETE FROM leaderboard WHERE year = $1 AND NOT (user_id = ANY($2::uuid[]))`,
		year, pq.Array(userIDs),
	); err != nil {
		return fmt.Errorf("failed to prune leaderboard year %d: %w", year, err)
	}

	query := `
		INSERT INTO leaderboard AS l (id, user_id, year, total_points, achievement_count, rank, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
		ON CONFLICT ON CONSTRAINT leaderboard_user_year_key DO UPDATE
		SET total_points = EXCLUDED.total_points,
			achievement_count = EXCLUDED.achievement_count,
			updated_at = NOW()
		WHERE l.total_points <> EXCLUDED.total_points OR l.achievement_count <> EXCLUDED.achievement_count`

	for _, t := range totals {
		if _, err := executor.ExecContext(ctx, query, uuid.New(), t.UserID, year, t.TotalPoints, t.AchievementCount); err != nil {
			return fmt.Errorf("failed to write leaderboard total for user %s: %w", t.UserID, err)
		}
	}
	return nil
}

func (r *postgresLeaderboardRepository) GetByUserAndYear(ctx context.Context, exec SQLExecutor, userID uuid.UUID, year int) (*models.LeaderboardEntry, error) {
	query := `SELECT ` + leaderboardColumns + ` FROM leaderboard l WHERE l.user_id = $1 AND l.year = $2`

	var e models.LeaderboardEntry
	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, userID, year).Scan(
		&e.ID, &e.UserID, &e.Year, &e.TotalPoints, &e.AchievementCount, &e.Rank, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLeaderboardEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
	}
	return &e, nil
}

func (r *postgresLeaderboardRepository) ListByYear(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT ` + leaderboardColumns + `, u.name, u.roll_number_faculty_id, u.school, u.branch, u.batch
		FROM leaderboard l
		JOIN users u ON u.id = l.user_id
		WHERE l.year = $1
		ORDER BY l.rank ASC, l.total_points DESC, l.achievement_count DESC, l.user_id ASC`
	args := []interface{}{year}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard for %d: %w", year, err)
	}
	defer rows.Close()

	entries := make([]*models.LeaderboardEntry, 0)
	for rows.Next() {
		var (
			e models.LeaderboardEntry
			u models.User
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Year, &e.TotalPoints, &e.AchievementCount, &e.Rank, &e.UpdatedAt,
			&u.Name, &u.RollNumberFacultyID, &u.School, &u.Branch, &u.Batch); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		u.ID = e.UserID
		e.User = &u
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard rows: %w", err)
	}
	return entries, nil
}

func (r *postgresLeaderboardRepository) Years(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM leaderboard ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard years: %w", err)
	}
	defer rows.Close()

	years := make([]int, 0)
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("failed to scan year: %w", err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}
