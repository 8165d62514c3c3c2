package handlers

import (
	"net/http"

	"github.com/Dosada05/achievement-portal/middleware"
	"github.com/Dosada05/achievement-portal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result, nil)
}

// Session отвечает состоянием сессии и не требует Authenticate: unauthenticated - нормальный ответ.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	session := h.authService.ResolveSession(r.Context(), middleware.TokenFromRequest(r))

	status := http.StatusOK
	var headers http.Header
	if session.State == services.SessionFailed {
		status = http.StatusServiceUnavailable
		headers = http.Header{"Retry-After": []string{upstreamRetryAfterSeconds}}
	}
	writeJSON(w, status, session, headers)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	h.authService.SignOut(r.Context(), actor.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.GetUserFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "failed to identify current user")
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"user": user}, nil)
}
