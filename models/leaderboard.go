package models

import (
	"time"

	"github.com/google/uuid"
)

// LeaderboardEntry хранит сумму одобренных баллов пользователя за год и его место.
type LeaderboardEntry struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	Year             int       `json:"year"`
	TotalPoints      int       `json:"total_points"`
	AchievementCount int       `json:"achievement_count"`
	Rank             int       `json:"rank"`
	UpdatedAt        time.Time `json:"updated_at"`

	User *User `json:"user,omitempty"`
}

type StandingsPeriod string

const (
	PeriodMonth    StandingsPeriod = "month"
	PeriodSemester StandingsPeriod = "semester"
	PeriodYear     StandingsPeriod = "year"
	PeriodAll      StandingsPeriod = "all"
)

func (p StandingsPeriod) Valid() bool {
	switch p {
	case PeriodMonth, PeriodSemester, PeriodYear, PeriodAll:
		return true
	}
	return false
}

// Standing is a live (not stored) leaderboard row aggregated from approved achievements.
type Standing struct {
	UserID              uuid.UUID `json:"user_id"`
	Name                string    `json:"name"`
	RollNumberFacultyID string    `json:"roll_number_faculty_id"`
	School              string    `json:"school"`
	Branch              string    `json:"branch"`
	TotalPoints         int       `json:"total_points"`
	AchievementCount    int       `json:"achievement_count"`
	RecentAchievement   string    `json:"recent_achievement,omitempty"`
	Rank                int       `json:"rank"`
}
