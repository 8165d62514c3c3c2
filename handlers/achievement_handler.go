package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
)

const (
	maxSubmissionBytes = (services.MaxEventPhotos+1)*services.MaxUploadSize + 1<<20
	maxBulkFileBytes   = 10 << 20
	multipartMemory    = 32 << 20
	bulkTemplateName   = "achievements_bulk_template.xlsx"
)

type AchievementHandler struct {
	achievementService services.AchievementService
	bulkService        services.BulkService
}

func NewAchievementHandler(achievementService services.AchievementService, bulkService services.BulkService) *AchievementHandler {
	return &AchievementHandler{achievementService: achievementService, bulkService: bulkService}
}

func openUpload(fh *multipart.FileHeader) (services.FileUpload, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return services.FileUpload{}, nil, err
	}
	return services.FileUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Reader:      f,
	}, f, nil
}

// Submit принимает multipart: поля заявки, один файл proof и до пяти photos.
func (h *AchievementHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		badRequestResponse(w, r, fmt.Errorf("invalid multipart form: %w", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	input := services.SubmitAchievementInput{
		EventName: r.FormValue("event_name"),
		Category:  r.FormValue("category"),
		Level:     r.FormValue("level"),
		Date:      r.FormValue("date"),
		Position:  r.FormValue("position"),
		Organizer: r.FormValue("organizer"),
		Place:     r.FormValue("place"),
		Remarks:   r.FormValue("remarks"),
	}

	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	if proofs := r.MultipartForm.File["proof"]; len(proofs) > 0 {
		if len(proofs) > 1 {
			failedValidationResponse(w, r, map[string]string{"proof": "only one proof file is allowed"})
			return
		}
		upload, f, err := openUpload(proofs[0])
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		opened = append(opened, f)
		input.Proof = &upload
	}
	for _, fh := range r.MultipartForm.File["photos"] {
		upload, f, err := openUpload(fh)
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		opened = append(opened, f)
		input.Photos = append(input.Photos, upload)
	}

	achievement, err := h.achievementService.Submit(r.Context(), actor.UserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, achievement, nil)
}

func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date in YYYY-MM-DD format", name)
	}
	return &t, nil
}

func (h *AchievementHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	input := services.ListAchievementsInput{
		Status:   models.AchievementStatus(q.Get("status")),
		Category: models.AchievementCategory(q.Get("category")),
		Level:    models.AchievementLevel(q.Get("level")),
	}
	problems := map[string]string{}
	var err error
	if input.From, err = parseDateParam(r, "from"); err != nil {
		problems["from"] = err.Error()
	}
	if input.To, err = parseDateParam(r, "to"); err != nil {
		problems["to"] = err.Error()
	}
	if len(problems) > 0 {
		failedValidationResponse(w, r, problems)
		return
	}
	if input.To != nil {
		// to включительно
		end := input.To.AddDate(0, 0, 1)
		input.To = &end
	}

	list, err := h.achievementService.ListOwn(r.Context(), actor.UserID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jsonResponse{"achievements": list}, nil)
}

func (h *AchievementHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	id, err := getIDFromURL(r, "id")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	achievement, err := h.achievementService.Get(r.Context(), id, actor)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, achievement, nil)
}

func bulkFile(w http.ResponseWriter, r *http.Request) (multipart.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBulkFileBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		badRequestResponse(w, r, fmt.Errorf("invalid multipart form: %w", err))
		return nil, false
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			failedValidationResponse(w, r, map[string]string{"file": "an .xlsx file is required"})
			return nil, false
		}
		badRequestResponse(w, r, err)
		return nil, false
	}
	return file, true
}

// BulkPreview проверяет таблицу без записи в базу.
func (h *AchievementHandler) BulkPreview(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentActor(w, r); !ok {
		return
	}
	file, ok := bulkFile(w, r)
	if !ok {
		return
	}
	defer file.Close()
	defer r.MultipartForm.RemoveAll()

	results, err := h.bulkService.Preview(r.Context(), file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	valid := 0
	for _, res := range results {
		if res.Valid() {
			valid++
		}
	}
	writeJSON(w, http.StatusOK, jsonResponse{"total": len(results), "valid": valid, "invalid": len(results) - valid, "results": results}, nil)
}

func (h *AchievementHandler) BulkImport(w http.ResponseWriter, r *http.Request) {
	actor, ok := currentActor(w, r)
	if !ok {
		return
	}
	file, ok := bulkFile(w, r)
	if !ok {
		return
	}
	defer file.Close()
	defer r.MultipartForm.RemoveAll()

	result, err := h.bulkService.Import(r.Context(), actor.UserID, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result, nil)
}

func (h *AchievementHandler) BulkTemplate(w http.ResponseWriter, r *http.Request) {
	content, err := h.bulkService.Template()
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	writeAttachment(w, bulkTemplateName, content)
}

func writeAttachment(w http.ResponseWriter, filename string, content []byte) {
	w.Header().Set("Content-Type", services.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
