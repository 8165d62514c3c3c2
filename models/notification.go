package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationBadge     NotificationType = "badge"
	NotificationApproval  NotificationType = "approval"
	NotificationRejection NotificationType = "rejection"
	NotificationHighlight NotificationType = "highlight"
)

type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read_status"`
}
