package handlers

import (
	"net/http"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
)

const maxLeaderboardLimit = 500

type LeaderboardHandler struct {
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(leaderboardService services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: leaderboardService}
}

func (h *LeaderboardHandler) ListYear(w http.ResponseWriter, r *http.Request) {
	year, err := getYearFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	limit := toInt(r.URL.Query().Get("limit"), 100)
	if limit <= 0 || limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	entries, err := h.leaderboardService.ListYear(r.Context(), year, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"year": year, "entries": entries}, nil)
}

func (h *LeaderboardHandler) Years(w http.ResponseWriter, r *http.Request) {
	years, err := h.leaderboardService.Years(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"years": years}, nil)
}

func (h *LeaderboardHandler) Standings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.StandingsFilter{
		Period:   models.StandingsPeriod(q.Get("period")),
		Category: models.AchievementCategory(q.Get("category")),
	}
	standings, err := h.leaderboardService.Standings(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if standings == nil {
		standings = []*models.Standing{}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"standings": standings}, nil)
}

// Me возвращает строку текущего пользователя за ?year= (по умолчанию текущий год).
func (h *LeaderboardHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	year := toInt(r.URL.Query().Get("year"), time.Now().Year())

	entry, err := h.leaderboardService.GetEntry(r.Context(), actor.UserID, year)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry, nil)
}
