package models

import (
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleFaculty UserRole = "faculty"
	RoleStudent UserRole = "student"
)

// User принадлежит внешнему справочнику пользователей; сервис его только читает.
type User struct {
	ID                  uuid.UUID `json:"id"`
	Name                string    `json:"name"`
	RollNumberFacultyID string    `json:"roll_number_faculty_id"`
	Batch               *string   `json:"batch,omitempty"`
	School              string    `json:"school"`
	Branch              string    `json:"branch"`
	Specialization      *string   `json:"specialization,omitempty"`
	YearDesignation     string    `json:"year_designation"`
	Email               string    `json:"email"`
	Contact             *string   `json:"contact,omitempty"`
	ProfilePhoto        *string   `json:"profile_photo,omitempty"`
	PasswordHash        string    `json:"-"`
	IsAdmin             bool      `json:"is_admin"`
	IsFaculty           bool      `json:"is_faculty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Role сводит флаги is_admin/is_faculty к одной роли. Админ важнее преподавателя.
func (u *User) Role() UserRole {
	switch {
	case u.IsAdmin:
		return RoleAdmin
	case u.IsFaculty:
		return RoleFaculty
	default:
		return RoleStudent
	}
}

// StudentSummary is a roster row: a student plus their approved totals.
type StudentSummary struct {
	User
	AchievementCount int `json:"achievement_count"`
	ApprovedCount    int `json:"approved_count"`
	ApprovedPoints   int `json:"approved_points"`
}
