package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrAchievementNotFound    = errors.New("achievement not found")
	ErrAchievementNotPending  = errors.New("achievement is not pending")
	ErrAchievementUserInvalid = errors.New("achievement user conflict or invalid")
	ErrAchievementInvalidData = errors.New("achievement violates a table constraint")
)

// UserYearTotal is the approved sum for one user in one calendar year.
type UserYearTotal struct {
	UserID           uuid.UUID
	TotalPoints      int
	AchievementCount int
}

// StandingsQuery limits the live standings aggregation. Nil bounds are open.
type StandingsQuery struct {
	From     *time.Time
	To       *time.Time
	Category models.AchievementCategory
}

type AchievementRepository interface {
	Create(ctx context.Context, exec SQLExecutor, achievement *models.Achievement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Achievement, error)
	GetForUpdate(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Achievement, error)
	UpdateReview(ctx context.Context, exec SQLExecutor, id uuid.UUID, status models.AchievementStatus, reviewerID uuid.UUID, reviewedAt time.Time) error
	List(ctx context.Context, filter models.AchievementFilter) ([]*models.Achievement, error)
	Count(ctx context.Context, filter models.AchievementFilter) (int, error)
	CountBy(ctx context.Context, column string) (map[string]int, error)
	ApprovedTotalsForYear(ctx context.Context, exec SQLExecutor, year int) ([]UserYearTotal, error)
	Standings(ctx context.Context, q StandingsQuery) ([]*models.Standing, error)
}

type postgresAchievementRepository struct {
	db *sql.DB
}

func NewPostgresAchievementRepository(db *sql.DB) AchievementRepository {
	return &postgresAchievementRepository{db: db}
}

const achievementColumns = `a.id, a.user_id, a.event_name, a.category, a.level, a.date, a.position, a.school, a.branch,
	a.specialization, a.batch, a.organizer, a.place, a.proof_file_path, a.event_photos_paths, a.remarks, a.status,
	a.submitted_at, a.approved_at, a.approved_by, a.points`

func scanAchievement(row rowScanner, extra ...interface{}) (*models.Achievement, error) {
	var a models.Achievement
	dest := []interface{}{
		&a.ID, &a.UserID, &a.EventName, &a.Category, &a.Level, &a.Date, &a.Position, &a.School, &a.Branch,
		&a.Specialization, &a.Batch, &a.Organizer, &a.Place, &a.ProofFilePath, pq.Array(&a.EventPhotosPaths), &a.Remarks, &a.Status,
		&a.SubmittedAt, &a.ApprovedAt, &a.ApprovedBy, &a.Points,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &a, nil
}

func mapAchievementWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23503": // foreign_key_violation
			return ErrAchievementUserInvalid
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrAchievementInvalidData, pqErr.Constraint)
		}
	}
	return err
}

func (r *postgresAchievementRepository) Create(ctx context.Context, exec SQLExecutor, a *models.Achievement) error {
	executor := getExecutor(r.db, exec)
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = models.StatusPending
	}

	query := `
		INSERT INTO achievements (id, user_id, event_name, category, level, date, position, school, branch,
			specialization, batch, organizer, place, proof_file_path, event_photos_paths, remarks, status, points)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING submitted_at`

	err := executor.QueryRowContext(ctx, query,
		a.ID, a.UserID, a.EventName, a.Category, a.Level, a.Date, a.Position, a.School, a.Branch,
		a.Specialization, a.Batch, a.Organizer, a.Place, a.ProofFilePath, pq.Array(a.EventPhotosPaths), a.Remarks, a.Status, a.Points,
	).Scan(&a.SubmittedAt)
	if err != nil {
		return mapAchievementWriteError(err)
	}
	return nil
}

func (r *postgresAchievementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements a WHERE a.id = $1`

	a, err := scanAchievement(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAchievementNotFound
		}
		return nil, fmt.Errorf("failed to scan achievement: %w", err)
	}
	return a, nil
}

// GetForUpdate блокирует строку до конца транзакции exec, чтобы два ревьюера не обработали одну заявку.
func (r *postgresAchievementRepository) GetForUpdate(ctx context.Context, exec SQLExecutor, id uuid.UUID) (*models.Achievement, error) {
	query := `SELECT ` + achievementColumns + ` FROM achievements a WHERE a.id = $1 FOR UPDATE`

	a, err := scanAchievement(getExecutor(r.db, exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAchievementNotFound
		}
		return nil, fmt.Errorf("failed to lock achievement: %w", err)
	}
	return a, nil
}

// UpdateReview переводит заявку из pending в конечный статус. Если заявка уже не pending, возвращает ErrAchievementNotPending.
func (r *postgresAchievementRepository) UpdateReview(ctx context.Context, exec SQLExecutor, id uuid.UUID, status models.AchievementStatus, reviewerID uuid.UUID, reviewedAt time.Time) error {
	query := `
		UPDATE achievements
		SET status = $2, approved_at = $3, approved_by = $4
		WHERE id = $1 AND status = 'pending'`

	result, err := getExecutor(r.db, exec).ExecContext(ctx, query, id, status, reviewedAt, reviewerID)
	if err != nil {
		return mapAchievementWriteError(err)
	}
	return checkAffectedRows(result, ErrAchievementNotPending)
}

func buildAchievementWhere(filter models.AchievementFilter) (string, []interface{}) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argID := 1

	if filter.UserID != nil {
		where += fmt.Sprintf(" AND a.user_id = $%d", argID)
		args = append(args, *filter.UserID)
		argID++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND a.status = $%d", argID)
		args = append(args, filter.Status)
		argID++
	}
	if filter.Category != "" {
		where += fmt.Sprintf(" AND a.category = $%d", argID)
		args = append(args, filter.Category)
		argID++
	}
	if filter.Level != "" {
		where += fmt.Sprintf(" AND a.level = $%d", argID)
		args = append(args, filter.Level)
		argID++
	}
	if filter.From != nil {
		where += fmt.Sprintf(" AND a.date >= $%d", argID)
		args = append(args, *filter.From)
		argID++
	}
	if filter.To != nil {
		where += fmt.Sprintf(" AND a.date < $%d", argID)
		args = append(args, *filter.To)
		argID++
	}
	if filter.ApprovedFrom != nil {
		where += fmt.Sprintf(" AND a.approved_at >= $%d", argID)
		args = append(args, *filter.ApprovedFrom)
	}
	return where, args
}

func (r *postgresAchievementRepository) List(ctx context.Context, filter models.AchievementFilter) ([]*models.Achievement, error) {
	query := `SELECT ` + achievementColumns
	if filter.WithOwner {
		query += `, u.name, u.roll_number_faculty_id, u.email FROM achievements a JOIN users u ON u.id = a.user_id`
	} else {
		query += ` FROM achievements a`
	}

	where, args := buildAchievementWhere(filter)
	query += where

	if filter.OrderByEventDate {
		query += " ORDER BY a.date DESC, a.submitted_at DESC"
	} else {
		query += " ORDER BY a.submitted_at DESC"
	}
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	achievements := make([]*models.Achievement, 0)
	for rows.Next() {
		var (
			a     *models.Achievement
			owner models.User
		)
		if filter.WithOwner {
			a, err = scanAchievement(rows, &owner.Name, &owner.RollNumberFacultyID, &owner.Email)
		} else {
			a, err = scanAchievement(rows)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement row: %w", err)
		}
		if filter.WithOwner {
			owner.ID = a.UserID
			owner.School, owner.Branch = a.School, a.Branch
			a.Owner = &owner
		}
		achievements = append(achievements, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievement rows: %w", err)
	}
	return achievements, nil
}

func (r *postgresAchievementRepository) Count(ctx context.Context, filter models.AchievementFilter) (int, error) {
	where, args := buildAchievementWhere(filter)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM achievements a`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count achievements: %w", err)
	}
	return n, nil
}

// CountBy группирует все заявки по category или level.
func (r *postgresAchievementRepository) CountBy(ctx context.Context, column string) (map[string]int, error) {
	switch column {
	case "category", "level":
	default:
		return nil, fmt.Errorf("unsupported group column %q", column)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM achievements GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("failed to group achievements by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

// ApprovedTotalsForYear пересчитывает суммы с нуля по одобренным заявкам, дата события которых попадает в year.
func (r *postgresAchievementRepository) ApprovedTotalsForYear(ctx context.Context, exec SQLExecutor, year int) ([]UserYearTotal, error) {
	query := `
		SELECT user_id, SUM(points), COUNT(*)
		FROM achievements
		WHERE status = 'approved' AND date >= make_date($1, 1, 1) AND date < make_date($1 + 1, 1, 1)
		GROUP BY user_id`

	rows, err := getExecutor(r.db, exec).QueryContext(ctx, query, year)
	if err != nil {
		return nil, fmt.Errorf("failed to sum approved achievements for %d: %w", year, err)
	}
	defer rows.Close()

	totals := make([]UserYearTotal, 0)
	for rows.Next() {
		var t UserYearTotal
		if err := rows.Scan(&t.UserID, &t.TotalPoints, &t.AchievementCount); err != nil {
			return nil, fmt.Errorf("failed to scan year total: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// Standings агрегирует одобренные заявки не-преподавателей за период. Rank здесь не заполняется.
func (r *postgresAchievementRepository) Standings(ctx context.Context, q StandingsQuery) ([]*models.Standing, error) {
	query := `
		SELECT u.id, u.name, u.roll_number_faculty_id, u.school, u.branch,
			SUM(a.points), COUNT(a.id),
			(array_agg(a.event_name ORDER BY a.date DESC, a.submitted_at DESC))[1]
		FROM achievements a
		JOIN users u ON u.id = a.user_id
		WHERE a.status = 'approved' AND u.is_faculty = FALSE
			AND ($1::date IS NULL OR a.date >= $1::date)
			AND ($2::date IS NULL OR a.date < $2::date)
			AND ($3 = '' OR a.category = $3)
		GROUP BY u.id, u.name, u.roll_number_faculty_id, u.school, u.branch
		ORDER BY SUM(a.points) DESC, COUNT(a.id) DESC, u.id ASC`

	rows, err := r.db.QueryContext(ctx, query, q.From, q.To, string(q.Category))
	if err != nil {
		return nil, fmt.Errorf("failed to query standings: %w", err)
	}
	defer rows.Close()

	standings := make([]*models.Standing, 0)
	for rows.Next() {
		var s models.Standing
		if err := rows.Scan(&s.UserID, &s.Name, &s.RollNumberFacultyID, &s.School, &s.Branch,
			&s.TotalPoints, &s.AchievementCount, &s.RecentAchievement); err != nil {
			return nil, fmt.Errorf("failed to scan standing: %w", err)
		}
		standings = append(standings, &s)
	}
	return standings, rows.Err()
}
