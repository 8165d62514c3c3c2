// Package scoring holds the pure parts of the leaderboard: points per achievement and rank ordering.
package scoring

import (
	"strings"

	"github.com/Dosada05/achievement-portal/models"
)

const (
	// DefaultBase is used when the level is not one of the known levels.
	DefaultBase = 10
	// DefaultPercent is used when the position is not one of the known positions.
	DefaultPercent = 30
)

var levelBase = map[models.AchievementLevel]int{
	models.LevelInternational: 100,
	models.LevelNational:      75,
	models.LevelState:         50,
	models.LevelCollege:       25,
}

// Множители хранятся в процентах, чтобы округление было точным.
var positionPercent = map[models.AchievementPosition]int{
	models.PositionFirst:         100,
	models.PositionSecond:        80,
	models.PositionThird:         60,
	models.PositionParticipation: 30,
	models.PositionOther:         50,
}

// PointsBreakdown describes how a points value was derived.
type PointsBreakdown struct {
	Base          int
	Percent       int
	Points        int
	KnownLevel    bool
	KnownPosition bool
}

// Defaulted reports whether either input fell back to a default weight.
func (b PointsBreakdown) Defaulted() bool {
	return !b.KnownLevel || !b.KnownPosition
}

// Breakdown computes points for (level, position). Unknown values degrade to DefaultBase / DefaultPercent.
func Breakdown(level models.AchievementLevel, position models.AchievementPosition) PointsBreakdown {
	b := PointsBreakdown{Base: DefaultBase, Percent: DefaultPercent}
	if base, ok := levelBase[level]; ok {
		b.Base, b.KnownLevel = base, true
	}
	if pct, ok := positionPercent[position]; ok {
		b.Percent, b.KnownPosition = pct, true
	}
	// round half up: base*pct/100 с точностью до целого
	b.Points = (b.Base*b.Percent + 50) / 100
	return b
}

// Calculate returns the immutable points value for an achievement.
func Calculate(level models.AchievementLevel, position models.AchievementPosition) int {
	return Breakdown(level, position).Points
}

// NormalizePosition maps free-text positions ("1st Place", "participation") onto the enum.
// Exact matches win, then a case-insensitive prefix match, then PositionOther.
func NormalizePosition(raw string) models.AchievementPosition {
	s := strings.TrimSpace(raw)
	if p := models.AchievementPosition(s); p.Valid() {
		return p
	}
	lower := strings.ToLower(s)
	for _, p := range []models.AchievementPosition{
		models.PositionFirst,
		models.PositionSecond,
		models.PositionThird,
		models.PositionParticipation,
	} {
		if strings.HasPrefix(lower, strings.ToLower(string(p))) {
			return p
		}
	}
	return models.PositionOther
}
