package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/Dosada05/achievement-portal/middleware"
	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/services"
	"github.com/google/uuid"
)

// withUser кладёт в контекст запроса аутентифицированную сессию, как это делает Authenticate.
func withUser(r *http.Request, user *models.User) *http.Request {
	session := services.Session{State: services.SessionAuthenticated, User: user}
	return r.WithContext(middleware.WithSession(r.Context(), session))
}

func newUser(admin bool) *models.User {
	return &models.User{ID: uuid.New(), Name: "Test User", RollNumberFacultyID: "21CS001", IsAdmin: admin}
}

type FakeAuthService struct {
	LoginFunc func(ctx context.Context, input services.LoginInput) (*services.LoginResult, error)
	Session   services.Session
	SignedOut []uuid.UUID
	LastToken string
}

func (f *FakeAuthService) Login(ctx context.Context, input services.LoginInput) (*services.LoginResult, error) {
	return f.LoginFunc(ctx, input)
}

func (f *FakeAuthService) ResolveSession(_ context.Context, token string) services.Session {
	f.LastToken = token
	return f.Session
}

func (f *FakeAuthService) SignOut(_ context.Context, userID uuid.UUID) {
	f.SignedOut = append(f.SignedOut, userID)
}

type FakeAchievementService struct {
	SubmitFunc  func(ctx context.Context, userID uuid.UUID, input services.SubmitAchievementInput) (*models.Achievement, error)
	GetFunc     func(ctx context.Context, id uuid.UUID, actor services.Actor) (*models.Achievement, error)
	ListOwnFunc func(ctx context.Context, userID uuid.UUID, input services.ListAchievementsInput) ([]*models.Achievement, error)

	ReviewStatus models.AchievementStatus
	Review       []*models.Achievement
	ForStudent   []*models.Achievement
}

func (f *FakeAchievementService) Submit(ctx context.Context, userID uuid.UUID, input services.SubmitAchievementInput) (*models.Achievement, error) {
	return f.SubmitFunc(ctx, userID, input)
}

func (f *FakeAchievementService) Get(ctx context.Context, id uuid.UUID, actor services.Actor) (*models.Achievement, error) {
	return f.GetFunc(ctx, id, actor)
}

func (f *FakeAchievementService) ListOwn(ctx context.Context, userID uuid.UUID, input services.ListAchievementsInput) ([]*models.Achievement, error) {
	return f.ListOwnFunc(ctx, userID, input)
}

func (f *FakeAchievementService) ListForReview(_ context.Context, status models.AchievementStatus) ([]*models.Achievement, error) {
	f.ReviewStatus = status
	return f.Review, nil
}

func (f *FakeAchievementService) ListForStudent(_ context.Context, _ uuid.UUID) ([]*models.Achievement, error) {
	return f.ForStudent, nil
}

type FakeBulkService struct {
	PreviewFunc func(ctx context.Context, r io.Reader) ([]services.BulkRowResult, error)
	ImportFunc  func(ctx context.Context, userID uuid.UUID, r io.Reader) (*services.BulkImportResult, error)
	Content     []byte
}

func (f *FakeBulkService) Preview(ctx context.Context, r io.Reader) ([]services.BulkRowResult, error) {
	return f.PreviewFunc(ctx, r)
}

func (f *FakeBulkService) Import(ctx context.Context, userID uuid.UUID, r io.Reader) (*services.BulkImportResult, error) {
	return f.ImportFunc(ctx, userID, r)
}

func (f *FakeBulkService) Template() ([]byte, error) { return f.Content, nil }

type FakeApprovalService struct {
	ApproveFunc func(ctx context.Context, achievementID, approverID uuid.UUID) (*services.ApprovalResult, error)
	RejectFunc  func(ctx context.Context, achievementID, approverID uuid.UUID, remarks string) (*services.ApprovalResult, error)
}

func (f *FakeApprovalService) Approve(ctx context.Context, achievementID, approverID uuid.UUID) (*services.ApprovalResult, error) {
	return f.ApproveFunc(ctx, achievementID, approverID)
}

func (f *FakeApprovalService) Reject(ctx context.Context, achievementID, approverID uuid.UUID, remarks string) (*services.ApprovalResult, error) {
	return f.RejectFunc(ctx, achievementID, approverID, remarks)
}

type FakeExportService struct {
	ExportFunc func(ctx context.Context, entity services.ExportEntity, year int) (*services.ExportFile, error)
}

func (f *FakeExportService) Export(ctx context.Context, entity services.ExportEntity, year int) (*services.ExportFile, error) {
	return f.ExportFunc(ctx, entity, year)
}

type FakeLeaderboardService struct {
	services.LeaderboardService // вызовы неописанных методов паникуют

	ListYearFunc func(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error)
	StandingsErr error
	Filter       services.StandingsFilter
}

func (f *FakeLeaderboardService) ListYear(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error) {
	return f.ListYearFunc(ctx, year, limit)
}

func (f *FakeLeaderboardService) Years(context.Context) ([]int, error) { return nil, nil }

func (f *FakeLeaderboardService) Standings(_ context.Context, filter services.StandingsFilter) ([]*models.Standing, error) {
	f.Filter = filter
	return nil, f.StandingsErr
}

type FakeNotificationService struct {
	services.NotificationService

	MarkReadFunc func(ctx context.Context, id, userID uuid.UUID) error
}

func (f *FakeNotificationService) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return f.MarkReadFunc(ctx, id, userID)
}
