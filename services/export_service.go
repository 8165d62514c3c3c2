package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/xuri/excelize/v2"
)

type ExportEntity string

const (
	ExportAchievements ExportEntity = "achievements"
	ExportLeaderboard  ExportEntity = "leaderboard"
	ExportStudents     ExportEntity = "students"
)

func (e ExportEntity) Valid() bool {
	switch e {
	case ExportAchievements, ExportLeaderboard, ExportStudents:
		return true
	}
	return false
}

type ExportFile struct {
	Filename string
	Content  []byte
	Rows     int
}

const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ExportService interface {
	// Export строит xlsx для entity. year используется только для лидерборда (0 = текущий год).
	Export(ctx context.Context, entity ExportEntity, year int) (*ExportFile, error)
}

type exportService struct {
	achievementRepo repositories.AchievementRepository
	leaderboardRepo repositories.LeaderboardRepository
	userRepo        repositories.UserRepository
	logger          *slog.Logger
	now             func() time.Time
}

func NewExportService(
	achievementRepo repositories.AchievementRepository,
	leaderboardRepo repositories.LeaderboardRepository,
	userRepo repositories.UserRepository,
	logger *slog.Logger,
) ExportService {
	return &exportService{
		achievementRepo: achievementRepo,
		leaderboardRepo: leaderboardRepo,
		userRepo:        userRepo,
		logger:          logger,
		now:             time.Now,
	}
}

// ExportFilename: {entity}_export_{YYYY-MM-DD}.xlsx
func ExportFilename(entity ExportEntity, at time.Time) string {
	return fmt.Sprintf("%s_export_%s.xlsx", entity, at.UTC().Format("2006-01-02"))
}

func (s *exportService) Export(ctx context.Context, entity ExportEntity, year int) (*ExportFile, error) {
	if !entity.Valid() {
		return nil, ValidationError{Field: "entity", Message: "must be one of achievements, leaderboard, students"}
	}

	var (
		sheet  string
		header []interface{}
		rows   [][]interface{}
		widths []float64
		err    error
	)
	switch entity {
	case ExportAchievements:
		sheet = "Achievements"
		header, rows, err = s.achievementRows(ctx)
		widths = []float64{20, 15, 15, 15, 25, 15, 10, 10, 8, 12, 20, 10, 18, 18}
	case ExportLeaderboard:
		if year == 0 {
			year = s.now().Year()
		}
		if err := validateYear(year); err != nil {
			return nil, err
		}
		sheet = "Leaderboard"
		header, rows, err = s.leaderboardRows(ctx, year)
		widths = []float64{6, 20, 15, 15, 15, 12, 18}
	case ExportStudents:
		sheet = "Students"
		header, rows, err = s.studentRows(ctx)
		widths = []float64{20, 15, 25, 15, 15, 10, 12, 18, 12}
	}
	if err != nil {
		return nil, upstream("export "+string(entity), err)
	}

	content, err := buildWorkbook(sheet, header, rows, widths)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s workbook: %w", entity, err)
	}

	file := &ExportFile{Filename: ExportFilename(entity, s.now()), Content: content, Rows: len(rows)}
	s.logger.InfoContext(ctx, "Export generated", slog.String("entity", string(entity)), slog.Int("rows", file.Rows), slog.String("filename", file.Filename))
	return file, nil
}

func (s *exportService) achievementRows(ctx context.Context) ([]interface{}, [][]interface{}, error) {
	list, err := s.achievementRepo.List(ctx, models.AchievementFilter{WithOwner: true})
	if err != nil {
		return nil, nil, err
	}
	header := []interface{}{"Student Name", "Roll Number/ID", "School", "Branch", "Event Name", "Category", "Level",
		"Position", "Points", "Date", "Organizer", "Status", "Submitted Date", "Approved Date"}
	rows := make([][]interface{}, 0, len(list))
	for _, a := range list {
		name, roll := "Unknown", "Unknown"
		if a.Owner != nil {
			name, roll = a.Owner.Name, a.Owner.RollNumberFacultyID
		}
		approved := "Not approved"
		if a.Status == models.StatusApproved && a.ApprovedAt != nil {
			approved = a.ApprovedAt.UTC().Format("2006-01-02 15:04")
		}
		rows = append(rows, []interface{}{
			name, roll, a.School, a.Branch, a.EventName, string(a.Category), string(a.Level),
			string(a.Position), a.Points, a.Date.Format("2006-01-02"), a.Organizer, string(a.Status),
			a.SubmittedAt.UTC().Format("2006-01-02 15:04"), approved,
		})
	}
	return header, rows, nil
}

func (s *exportService) leaderboardRows(ctx context.Context, year int) ([]interface{}, [][]interface{}, error) {
	entries, err := s.leaderboardRepo.ListByYear(ctx, year, 0)
	if err != nil {
		return nil, nil, err
	}
	header := []interface{}{"Rank", "Name", "Roll Number/ID", "School", "Branch", "Total Points", "Achievement Count"}
	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		var u models.User
		if e.User != nil {
			u = *e.User
		}
		rows = append(rows, []interface{}{e.Rank, u.Name, u.RollNumberFacultyID, u.School, u.Branch, e.TotalPoints, e.AchievementCount})
	}
	return header, rows, nil
}

func (s *exportService) studentRows(ctx context.Context) ([]interface{}, [][]interface{}, error) {
	students, err := s.userRepo.ListStudents(ctx, "")
	if err != nil {
		return nil, nil, err
	}
	header := []interface{}{"Name", "Roll Number/ID", "Email", "School", "Branch", "Type", "Total Points", "Achievement Count", "Joined Date"}
	rows := make([][]interface{}, 0, len(students))
	for _, st := range students {
		userType := "Student"
		if st.IsFaculty {
			userType = "Faculty"
		}
		rows = append(rows, []interface{}{
			st.Name, st.RollNumberFacultyID, st.Email, st.School, st.Branch, userType,
			st.ApprovedPoints, st.AchievementCount, st.CreatedAt.UTC().Format("2006-01-02"),
		})
	}
	return header, rows, nil
}

// buildWorkbook пишет один лист: заголовок в строке 1, данные со строки 2.
func buildWorkbook(sheet string, header []interface{}, rows [][]interface{}, widths []float64) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return nil, err
		}
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
