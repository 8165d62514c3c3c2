package handlers

import (
	"net/http"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
)

type NotificationHandler struct {
	notificationService services.NotificationService
}

func NewNotificationHandler(notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	list, err := h.notificationService.List(r.Context(), actor.UserID, toInt(r.URL.Query().Get("limit"), 0))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"notifications": list}, nil)
}

func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	count, err := h.notificationService.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"unread": count}, nil)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.notificationService.MarkRead(r.Context(), id, actor.UserID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	changed, err := h.notificationService.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"updated": changed}, nil)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if err := h.notificationService.Delete(r.Context(), id, actor.UserID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
