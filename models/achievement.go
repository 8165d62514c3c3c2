package models

import (
	"time"

	"github.com/google/uuid"
)

type AchievementCategory string

const (
	CategoryCurricular      AchievementCategory = "Curricular"
	CategoryCoCurricular    AchievementCategory = "Co-curricular"
	CategoryExtracurricular AchievementCategory = "Extracurricular"
	CategoryOther           AchievementCategory = "Other"
)

// Categories lists the accepted categories in display order.
var Categories = []AchievementCategory{CategoryCurricular, CategoryCoCurricular, CategoryExtracurricular, CategoryOther}

func (c AchievementCategory) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type AchievementLevel string

const (
	LevelCollege       AchievementLevel = "College"
	LevelState         AchievementLevel = "State"
	LevelNational      AchievementLevel = "National"
	LevelInternational AchievementLevel = "International"
)

var Levels = []AchievementLevel{LevelCollege, LevelState, LevelNational, LevelInternational}

func (l AchievementLevel) Valid() bool {
	for _, known := range Levels {
		if l == known {
			return true
		}
	}
	return false
}

type AchievementPosition string

const (
	PositionFirst         AchievementPosition = "1st"
	PositionSecond        AchievementPosition = "2nd"
	PositionThird         AchievementPosition = "3rd"
	PositionParticipation AchievementPosition = "Participation"
	PositionOther         AchievementPosition = "Other"
)

var Positions = []AchievementPosition{PositionFirst, PositionSecond, PositionThird, PositionParticipation, PositionOther}

func (p AchievementPosition) Valid() bool {
	for _, known := range Positions {
		if p == known {
			return true
		}
	}
	return false
}

// AchievementStatus: pending -> approved | rejected. Оба конечных статуса терминальные.
type AchievementStatus string

const (
	StatusPending  AchievementStatus = "pending"
	StatusApproved AchievementStatus = "approved"
	StatusRejected AchievementStatus = "rejected"
)

func (s AchievementStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Achievement представляет заявку пользователя о достижении.
// Points вычисляется один раз при подаче и дальше не меняется.
type Achievement struct {
	ID               uuid.UUID           `json:"id"`
	UserID           uuid.UUID           `json:"user_id"`
	EventName        string              `json:"event_name"`
	Category         AchievementCategory `json:"category"`
	Level            AchievementLevel    `json:"level"`
	Date             time.Time           `json:"date"`
	Position         AchievementPosition `json:"position"`
	School           string              `json:"school"`
	Branch           string              `json:"branch"`
	Specialization   *string             `json:"specialization,omitempty"`
	Batch            *string             `json:"batch,omitempty"`
	Organizer        string              `json:"organizer"`
	Place            string              `json:"place"`
	ProofFilePath    *string             `json:"proof_file_path,omitempty"`
	EventPhotosPaths []string            `json:"event_photos_paths,omitempty"`
	Remarks          *string             `json:"remarks,omitempty"`
	Status           AchievementStatus   `json:"status"`
	SubmittedAt      time.Time           `json:"submitted_at"`
	ApprovedAt       *time.Time          `json:"approved_at,omitempty"`
	ApprovedBy       *uuid.UUID          `json:"approved_by,omitempty"`
	Points           int                 `json:"points"`

	// Заполняются сервисом, в таблице не хранятся
	ProofURL  *string  `json:"proof_url,omitempty"`
	PhotoURLs []string `json:"photo_urls,omitempty"`
	Owner     *User    `json:"user,omitempty"`
}

// Year is the leaderboard year the achievement counts toward: the year of the event, not of the approval.
func (a *Achievement) Year() int {
	return a.Date.Year()
}

// AchievementFilter narrows achievement listings. Zero values mean "no filter".
type AchievementFilter struct {
	UserID       *uuid.UUID
	Status       AchievementStatus
	Category     AchievementCategory
	Level        AchievementLevel
	From         *time.Time // date >= From
	To           *time.Time // date < To
	ApprovedFrom *time.Time
	WithOwner    bool
	// По умолчанию сортировка по submitted_at DESC
	OrderByEventDate bool
	Limit            int
}
