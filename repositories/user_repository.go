package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrUserNotFound           = errors.New("user not found")
	ErrUserEmailConflict      = errors.New("user email conflict")
	ErrUserIdentifierConflict = errors.New("user roll number or faculty id conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByRollNumber(ctx context.Context, rollNumber string) (*models.User, error)
	ListStudents(ctx context.Context, search string) ([]*models.StudentSummary, error)
	Count(ctx context.Context) (int, error)
}

type postgresUserRepository struct {
	db *sql.DB
}

func NewPostgresUserRepository(db *sql.DB) UserRepository {
	return &postgresUserRepository{db: db}
}

const userColumns = `u.id, u.name, u.roll_number_faculty_id, u.batch, u.school, u.branch, u.specialization,
	u.year_designation, u.email, u.contact, u.profile_photo, u.password_hash, u.is_admin, u.is_faculty, u.created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner, extra ...interface{}) (*models.User, error) {
	var u models.User
	dest := []interface{}{
		&u.ID, &u.Name, &u.RollNumberFacultyID, &u.Batch, &u.School, &u.Branch, &u.Specialization,
		&u.YearDesignation, &u.Email, &u.Contact, &u.ProfilePhoto, &u.PasswordHash, &u.IsAdmin, &u.IsFaculty, &u.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create используется только для первичного наполнения и тестов: справочник пользователей ведётся снаружи.
func (r *postgresUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `
		INSERT INTO users (id, name, roll_number_faculty_id, batch, school, branch, specialization,
			year_designation, email, contact, profile_photo, password_hash, is_admin, is_faculty)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Name, user.RollNumberFacultyID, user.Batch, user.School, user.Branch, user.Specialization,
		user.YearDesignation, user.Email, user.Contact, user.ProfilePhoto, user.PasswordHash, user.IsAdmin, user.IsFaculty,
	).Scan(&user.CreatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			switch pqErr.Constraint {
			case "users_email_key":
				return ErrUserEmailConflict
			case "users_roll_number_faculty_id_key":
				return ErrUserIdentifierConflict
			}
		}
		return err
	}
	return nil
}

func (r *postgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

func (r *postgresUserRepository) GetByRollNumber(ctx context.Context, rollNumber string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.roll_number_faculty_id = $1`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, rollNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user by roll number: %w", err)
	}
	return user, nil
}

// ListStudents возвращает студентов (не админов и не преподавателей) с агрегатами по одобренным достижениям.
func (r *postgresUserRepository) ListStudents(ctx context.Context, search string) ([]*models.StudentSummary, error) {
	query := `
		SELECT ` + userColumns + `,
			COUNT(a.id),
			COUNT(a.id) FILTER (WHERE a.status = 'approved'),
			COALESCE(SUM(a.points) FILTER (WHERE a.status = 'approved'), 0)
		FROM users u
		LEFT JOIN achievements a ON a.user_id = u.id
		WHERE u.is_admin = FALSE AND u.is_faculty = FALSE
			AND ($1 = '' OR u.name ILIKE $1 OR u.roll_number_faculty_id ILIKE $1)
		GROUP BY u.id
		ORDER BY u.name ASC`

	pattern := ""
	if s := strings.TrimSpace(search); s != "" {
		pattern = "%" + s + "%"
	}

	rows, err := r.db.QueryContext(ctx, query, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to query students: %w", err)
	}
	defer rows.Close()

	students := make([]*models.StudentSummary, 0)
	for rows.Next() {
		var s models.StudentSummary
		user, err := scanUser(rows, &s.AchievementCount, &s.ApprovedCount, &s.ApprovedPoints)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student row: %w", err)
		}
		user.PasswordHash = ""
		s.User = *user
		students = append(students, &s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating student rows: %w", err)
	}
	return students, nil
}

func (r *postgresUserRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
