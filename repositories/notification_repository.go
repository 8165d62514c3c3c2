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
	ErrNotificationNotFound    = errors.New("notification not found")
	ErrNotificationUserInvalid = errors.New("notification user conflict or invalid")
)

type NotificationRepository interface {
	Create(ctx context.Context, exec SQLExecutor, n *models.Notification) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
}

type postgresNotificationRepository struct {
	db *sql.DB
}

func NewPostgresNotificationRepository(db *sql.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) Create(ctx context.Context, exec SQLExecutor, n *models.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO notifications (id, user_id, message, type, read_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := getExecutor(r.db, exec).QueryRowContext(ctx, query, n.ID, n.UserID, n.Message, n.Type, n.Read).Scan(&n.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrNotificationUserInvalid
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *postgresNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, message, type, created_at, read_status
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Type, &n.CreatedAt, &n.Read); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (r *postgresNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_status = FALSE`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead и Delete фильтруют по user_id: чужое уведомление неотличимо от несуществующего.
func (r *postgresNotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_status = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return checkAffectedRows(result, ErrNotificationNotFound)
}

func (r *postgresNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_status = TRUE WHERE user_id = $1 AND read_status = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return result.RowsAffected()
}

func (r *postgresNotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	return checkAffectedRows(result, ErrNotificationNotFound)
}
