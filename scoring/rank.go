package scoring

import (
	"sort"

	"github.com/google/uuid"
)

// RankKey is what a leaderboard row is ordered by.
type RankKey struct {
	TotalPoints      int
	AchievementCount int
	UserID           uuid.UUID
}

// Less orders by total points desc, achievement count desc, user id asc.
// The same ordering is used by the SQL re-rank in repositories.
func (k RankKey) Less(other RankKey) bool {
	if k.TotalPoints != other.TotalPoints {
		return k.TotalPoints > other.TotalPoints
	}
	if k.AchievementCount != other.AchievementCount {
		return k.AchievementCount > other.AchievementCount
	}
	return k.UserID.String() < other.UserID.String()
}

// AssignRanks sorts items in place and calls setRank with 1..N in that order.
func AssignRanks[T any](items []T, key func(T) RankKey, setRank func(T, int)) {
	sort.SliceStable(items, func(i, j int) bool {
		return key(items[i]).Less(key(items[j]))
	})
	for i, item := range items {
		setRank(item, i+1)
	}
}
