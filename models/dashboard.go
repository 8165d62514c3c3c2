package models

// UserDashboard is the per-user summary shown after sign in.
type UserDashboard struct {
	TotalAchievements   int            `json:"total_achievements"`
	PendingApprovals    int            `json:"pending_approvals"`
	MonthlyAchievements int            `json:"monthly_achievements"`
	TotalPoints         int            `json:"total_points"`
	LeaderboardPosition int            `json:"leaderboard_position"`
	RecentAchievements  []*Achievement `json:"recent_achievements"`
}

// AdminStats is the review-desk summary.
type AdminStats struct {
	UsersTotal            int            `json:"users_total"`
	TotalAchievements     int            `json:"total_achievements"`
	PendingApprovals      int            `json:"pending_approvals"`
	ApprovedToday         int            `json:"approved_today"`
	ThisMonthAchievements int            `json:"this_month_achievements"`
	Categories            map[string]int `json:"categories"`
	Levels                map[string]int `json:"levels"`
	RecentAchievements    []*Achievement `json:"recent_achievements"`
}
