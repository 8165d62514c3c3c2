package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/Dosada05/achievement-portal/scoring"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const (
	MaxBulkRows       = 1000
	bulkRowValid      = "valid"
	bulkRowInvalid    = "invalid"
	firstDataRow      = 2
	bulkTemplateSheet = "Achievements"
)

// BulkColumns - порядок колонок шаблона. При чтении порядок не важен, колонки ищутся по имени.
var BulkColumns = []string{
	"event_name", "category", "level", "date", "position", "school", "branch",
	"organizer", "place", "proof_file_path", "remarks", "points",
}

var requiredBulkColumns = []string{"event_name", "category", "level", "date", "position", "points"}

// Допустимые форматы даты в таблице, кроме серийного номера Excel.
var bulkDateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/06", "1/2/2006", "02-01-2006", "2006/01/02"}

// BulkRow - строка таблицы как есть, до проверки.
type BulkRow struct {
	EventName     string `json:"event_name"`
	Category      string `json:"category"`
	Level         string `json:"level"`
	Date          string `json:"date"`
	Position      string `json:"position"`
	School        string `json:"school"`
	Branch        string `json:"branch"`
	Organizer     string `json:"organizer"`
	Place         string `json:"place"`
	ProofFilePath string `json:"proof_file_path"`
	Remarks       string `json:"remarks"`
	Points        string `json:"points"`

	// Номер строки в листе, начиная с 2
	Row int `json:"-"`
}

type BulkRowResult struct {
	Row         int      `json:"row"`
	Achievement BulkRow  `json:"achievement"`
	Errors      []string `json:"errors"`
	Status      string   `json:"status"`

	AchievementID *uuid.UUID `json:"achievement_id,omitempty"`
	InsertError   string     `json:"insert_error,omitempty"`

	eventDate time.Time
}

func (r BulkRowResult) Valid() bool { return r.Status == bulkRowValid }

type BulkImportResult struct {
	Success int             `json:"success"`
	Failed  int             `json:"failed"`
	Invalid int             `json:"invalid"`
	Results []BulkRowResult `json:"results"`
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Join(strings.Fields(h), "_")
}

// ParseWorkbook читает первый лист. Строка 1 - заголовок, пустые строки пропускаются.
func ParseWorkbook(r io.Reader) ([]BulkRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ValidationError{Field: "file", Message: fmt.Sprintf("failed to open XLSX file: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ValidationError{Field: "file", Message: "XLSX file has no sheets"}
	}
	sheetName := sheets[0]
	// RawCellValue: даты приходят серийным номером, а не в формате отображения
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, ValidationError{Field: "file", Message: fmt.Sprintf("failed to read sheet %q: %v", sheetName, err)}
	}
	if len(rows) == 0 {
		return nil, ValidationError{Field: "file", Message: fmt.Sprintf("sheet %q is empty", sheetName)}
	}

	columns := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		if name := normalizeHeader(h); name != "" {
			if _, dup := columns[name]; !dup {
				columns[name] = i
			}
		}
	}
	var missing []string
	for _, c := range requiredBulkColumns {
		if _, ok := columns[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, ValidationError{Field: "file", Message: "missing columns: " + strings.Join(missing, ", ")}
	}

	cell := func(row []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	out := make([]BulkRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		out = append(out, BulkRow{
			EventName:     cell(row, "event_name"),
			Category:      cell(row, "category"),
			Level:         cell(row, "level"),
			Date:          cell(row, "date"),
			Position:      cell(row, "position"),
			School:        cell(row, "school"),
			Branch:        cell(row, "branch"),
			Organizer:     cell(row, "organizer"),
			Place:         cell(row, "place"),
			ProofFilePath: cell(row, "proof_file_path"),
			Remarks:       cell(row, "remarks"),
			Points:        cell(row, "points"),
			Row:           i + firstDataRow,
		})
		if len(out) > MaxBulkRows {
			return nil, ValidationError{Field: "file", Message: fmt.Sprintf("at most %d rows can be imported at once", MaxBulkRows)}
		}
	}
	return out, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseBulkDate принимает текстовую дату или серийный номер Excel.
func parseBulkDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range bulkDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial >= 1 && serial < 2958466 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func parseBulkPoints(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

func joinCategories() string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func joinLevels() string {
	names := make([]string, len(models.Levels))
	for i, l := range models.Levels {
		names[i] = string(l)
	}
	return strings.Join(names, ", ")
}

// ValidateRows проверяет каждую строку независимо: без дедупликации и без проверок между строками.
func ValidateRows(rows []BulkRow) []BulkRowResult {
	results := make([]BulkRowResult, 0, len(rows))
	for i, row := range rows {
		if row.Row == 0 {
			row.Row = i + firstDataRow
		}
		res := BulkRowResult{Row: row.Row, Achievement: row, Errors: []string{}}

		if len(strings.TrimSpace(row.EventName)) < 3 {
			res.Errors = append(res.Errors, "Event name must be at least 3 characters")
		}
		if !models.AchievementCategory(row.Category).Valid() {
			res.Errors = append(res.Errors, "Category must be one of: "+joinCategories())
		}
		if !models.AchievementLevel(row.Level).Valid() {
			res.Errors = append(res.Errors, "Level must be one of: "+joinLevels())
		}
		if d, ok := parseBulkDate(row.Date); ok {
			res.eventDate = d
		} else {
			res.Errors = append(res.Errors, "Invalid date format. Use YYYY-MM-DD")
		}
		if len(strings.TrimSpace(row.Position)) < 2 {
			res.Errors = append(res.Errors, "Position/Rank is required")
		}
		if _, ok := parseBulkPoints(row.Points); !ok {
			res.Errors = append(res.Errors, "Points must be a non-negative number")
		}

		res.Status = bulkRowValid
		if len(res.Errors) > 0 {
			res.Status = bulkRowInvalid
		}
		results = append(results, res)
	}
	return results
}

type BulkService interface {
	Preview(ctx context.Context, r io.Reader) ([]BulkRowResult, error)
	Import(ctx context.Context, userID uuid.UUID, r io.Reader) (*BulkImportResult, error)
	Template() ([]byte, error)
}

type bulkService struct {
	achievementRepo repositories.AchievementRepository
	userRepo        repositories.UserRepository
	metrics         MetricsRecorder
	logger          *slog.Logger
}

func NewBulkService(achievementRepo repositories.AchievementRepository, userRepo repositories.UserRepository, metrics MetricsRecorder, logger *slog.Logger) BulkService {
	return &bulkService{
		achievementRepo: achievementRepo,
		userRepo:        userRepo,
		metrics:         orNopMetrics(metrics),
		logger:          logger,
	}
}

func (s *bulkService) Preview(ctx context.Context, r io.Reader) ([]BulkRowResult, error) {
	rows, err := ParseWorkbook(r)
	if err != nil {
		return nil, err
	}
	return ValidateRows(rows), nil
}

// Import вставляет каждую валидную строку отдельно. Частичный успех - ожидаемый результат.
func (s *bulkService) Import(ctx context.Context, userID uuid.UUID, r io.Reader) (*BulkImportResult, error) {
	owner, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError("load uploader", err)
	}
	rows, err := ParseWorkbook(r)
	if err != nil {
		return nil, err
	}

	result := &BulkImportResult{Results: ValidateRows(rows)}
	for i := range result.Results {
		res := &result.Results[i]
		if !res.Valid() {
			result.Invalid++
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		achievement := bulkRowToAchievement(res, owner)
		if err := s.achievementRepo.Create(ctx, nil, achievement); err != nil {
			result.Failed++
			res.InsertError = mapRepositoryError("insert bulk row", err).Error()
			s.logger.WarnContext(ctx, "Bulk row insert failed",
				slog.Int("row", res.Row),
				slog.String("user_id", userID.String()),
				slog.Any("error", err),
			)
			continue
		}
		result.Success++
		res.AchievementID = &achievement.ID
	}

	s.metrics.BulkRowsImported(result.Success, result.Failed)
	s.logger.InfoContext(ctx, "Bulk import finished",
		slog.String("user_id", userID.String()),
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
		slog.Int("invalid", result.Invalid),
	)
	return result, nil
}

// bulkRowToAchievement: баллы всегда считаются калькулятором, колонка points только проверяется.
func bulkRowToAchievement(res *BulkRowResult, owner *models.User) *models.Achievement {
	row := res.Achievement
	position := scoring.NormalizePosition(row.Position)
	level := models.AchievementLevel(row.Level)

	school, branch := owner.School, owner.Branch
	if row.School != "" {
		school = row.School
	}
	if row.Branch != "" {
		branch = row.Branch
	}

	return &models.Achievement{
		ID:             uuid.New(),
		UserID:         owner.ID,
		EventName:      strings.TrimSpace(row.EventName),
		Category:       models.AchievementCategory(row.Category),
		Level:          level,
		Date:           res.eventDate,
		Position:       position,
		School:         school,
		Branch:         branch,
		Specialization: owner.Specialization,
		Batch:          owner.Batch,
		Organizer:      row.Organizer,
		Place:          row.Place,
		ProofFilePath:  optionalString(row.ProofFilePath),
		Remarks:        optionalString(row.Remarks),
		Status:         models.StatusPending,
		Points:         scoring.Calculate(level, position),
	}
}

func (s *bulkService) Template() ([]byte, error) {
	example := []interface{}{
		"Example Hackathon", string(models.CategoryCurricular), string(models.LevelNational), "2024-10-15", "1st",
		"School of Technology", "Computer Science Engineering", "IIT Delhi", "New Delhi",
		"https://example.com/certificate.pdf", "Won first prize", scoring.Calculate(models.LevelNational, models.PositionFirst),
	}
	header := make([]interface{}, len(BulkColumns))
	for i, c := range BulkColumns {
		header[i] = c
	}
	return buildWorkbook(bulkTemplateSheet, header, [][]interface{}{example}, nil)
}
