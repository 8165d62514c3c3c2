package handlers

import (
	"net/http"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
)

type StudentHandler struct {
	studentService services.StudentService
}

func NewStudentHandler(studentService services.StudentService) *StudentHandler {
	return &StudentHandler{studentService: studentService}
}

func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	students, err := h.studentService.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if students == nil {
		students = []*models.StudentSummary{}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"students": students}, nil)
}

func (h *StudentHandler) Achievements(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}
	list, err := h.studentService.Achievements(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Achievement{}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"achievements": list}, nil)
}
