package handlers

import (
	"net/http"
	"strconv"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	achievementService services.AchievementService
	approvalService    services.ApprovalService
	leaderboardService services.LeaderboardService
	dashboardService   services.DashboardService
	exportService      services.ExportService
}

func NewAdminHandler(
	achievementService services.AchievementService,
	approvalService services.ApprovalService,
	leaderboardService services.LeaderboardService,
	dashboardService services.DashboardService,
	exportService services.ExportService,
) *AdminHandler {
	return &AdminHandler{
		achievementService: achievementService,
		approvalService:    approvalService,
		leaderboardService: leaderboardService,
		dashboardService:   dashboardService,
		exportService:      exportService,
	}
}

func (h *AdminHandler) ListForReview(w http.ResponseWriter, r *http.Request) {
	status := models.AchievementStatus(r.URL.Query().Get("status"))
	list, err := h.achievementService.ListForReview(r.Context(), status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"achievements": list}, nil)
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.approvalService.Approve(r.Context(), id, actor.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result, nil)
}

type rejectRequest struct {
	Remarks string `json:"remarks"`
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var req rejectRequest
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &req); err != nil {
			badRequestResponse(w, r, err)
			return
		}
	}

	result, err := h.approvalService.Reject(r.Context(), id, actor.UserID, req.Remarks)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result, nil)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboardService.AdminStats(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats, nil)
}

func (h *AdminHandler) RecomputeRanks(w http.ResponseWriter, r *http.Request) {
	year, err := getYearFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	changed, err := h.leaderboardService.RecomputeRanks(r.Context(), year)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"year": year, "changed": changed}, nil)
}

func (h *AdminHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	year, err := getYearFromURL(r)
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.leaderboardService.Rebuild(r.Context(), year); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"year": year, "rebuilt": true}, nil)
}

// Export отдаёт xlsx вложением. Для leaderboard можно передать ?year=.
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	entity := services.ExportEntity(chi.URLParam(r, "entity"))
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		var err error
		if year, err = strconv.Atoi(raw); err != nil {
			failedValidationResponse(w, r, map[string]string{"year": "must be a number"})
			return
		}
	}

	file, err := h.exportService.Export(r.Context(), entity, year)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeAttachment(w, file.Filename, file.Content)
}
