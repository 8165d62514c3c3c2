package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/Dosada05/achievement-portal/scoring"
	"github.com/Dosada05/achievement-portal/storage"
	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ------------------------
// Fake transaction runner
// ------------------------

// fakeExec отличает "внутри транзакции" от nil. SQL не выполняет.
type fakeExec struct{}

func (fakeExec) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, errors.New("fakeExec: no database")
}

func (fakeExec) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("fakeExec: no database")
}

func (fakeExec) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }

// FakeTxRunner выполняет транзакции по одной, как будто все они берут одну блокировку.
type FakeTxRunner struct {
	mu        sync.Mutex
	stats     sync.Mutex
	commits   int
	rollbacks int
}

func (f *FakeTxRunner) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := fn(fakeExec{})

	f.stats.Lock()
	defer f.stats.Unlock()
	if err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

func (f *FakeTxRunner) Counts() (commits, rollbacks int) {
	f.stats.Lock()
	defer f.stats.Unlock()
	return f.commits, f.rollbacks
}

// ------------------------
// Fake user repository
// ------------------------

type FakeUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User

	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListStudentsFunc func(ctx context.Context, search string) ([]*models.StudentSummary, error)
}

func NewFakeUserRepository(users ...*models.User) *FakeUserRepository {
	f := &FakeUserRepository{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *FakeUserRepository) Create(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	for _, u := range f.users {
		if u.RollNumberFacultyID == user.RollNumberFacultyID {
			return repositories.ErrUserIdentifierConflict
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *FakeUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if f.GetByIDFunc != nil {
		return f.GetByIDFunc(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *FakeUserRepository) GetByRollNumber(ctx context.Context, rollNumber string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.RollNumberFacultyID == rollNumber {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (f *FakeUserRepository) ListStudents(ctx context.Context, search string) ([]*models.StudentSummary, error) {
	if f.ListStudentsFunc != nil {
		return f.ListStudentsFunc(ctx, search)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.StudentSummary
	for _, u := range f.users {
		if u.IsAdmin || u.IsFaculty {
			continue
		}
		out = append(out, &models.StudentSummary{User: *u})
	}
	return out, nil
}

func (f *FakeUserRepository) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

// ------------------------
// Fake achievement repository
// ------------------------

type FakeAchievementRepository struct {
	mu           sync.Mutex
	achievements map[uuid.UUID]*models.Achievement
	trace        []string

	CreateFunc       func(ctx context.Context, exec repositories.SQLExecutor, a *models.Achievement) error
	UpdateReviewFunc func(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID, status models.AchievementStatus) error
	StandingsFunc    func(ctx context.Context, q repositories.StandingsQuery) ([]*models.Standing, error)
	CountFunc        func(ctx context.Context, filter models.AchievementFilter) (int, error)
}

func NewFakeAchievementRepository(list ...*models.Achievement) *FakeAchievementRepository {
	f := &FakeAchievementRepository{achievements: make(map[uuid.UUID]*models.Achievement)}
	for _, a := range list {
		f.achievements[a.ID] = a
	}
	return f
}

func (f *FakeAchievementRepository) record(step string) {
	f.trace = append(f.trace, step)
}

func (f *FakeAchievementRepository) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.trace...)
}

func (f *FakeAchievementRepository) Create(ctx context.Context, exec repositories.SQLExecutor, a *models.Achievement) error {
	if f.CreateFunc != nil {
		if err := f.CreateFunc(ctx, exec, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create")
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now().UTC()
	}
	cp := *a
	f.achievements[a.ID] = &cp
	return nil
}

func (f *FakeAchievementRepository) Get(id uuid.UUID) *models.Achievement {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.achievements[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

func (f *FakeAchievementRepository) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.achievements)
}

func (f *FakeAchievementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Achievement, error) {
	if a := f.Get(id); a != nil {
		return a, nil
	}
	return nil, repositories.ErrAchievementNotFound
}

func (f *FakeAchievementRepository) GetForUpdate(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID) (*models.Achievement, error) {
	if exec == nil {
		return nil, errors.New("GetForUpdate called outside a transaction")
	}
	f.mu.Lock()
	f.record("GetForUpdate")
	f.mu.Unlock()
	return f.GetByID(ctx, id)
}

func (f *FakeAchievementRepository) UpdateReview(ctx context.Context, exec repositories.SQLExecutor, id uuid.UUID, status models.AchievementStatus, reviewerID uuid.UUID, reviewedAt time.Time) error {
	if f.UpdateReviewFunc != nil {
		if err := f.UpdateReviewFunc(ctx, exec, id, status); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateReview")
	a, ok := f.achievements[id]
	if !ok {
		return repositories.ErrAchievementNotFound
	}
	if a.Status != models.StatusPending {
		return repositories.ErrAchievementNotPending
	}
	a.Status = status
	a.ApprovedAt = &reviewedAt
	a.ApprovedBy = &reviewerID
	return nil
}

func (f *FakeAchievementRepository) matching(filter models.AchievementFilter) []*models.Achievement {
	var out []*models.Achievement
	for _, a := range f.achievements {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Category != "" && a.Category != filter.Category {
			continue
		}
		if filter.Level != "" && a.Level != filter.Level {
			continue
		}
		if filter.From != nil && a.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.Date.Before(*filter.To) {
			continue
		}
		if filter.ApprovedFrom != nil && (a.ApprovedAt == nil || a.ApprovedAt.Before(*filter.ApprovedFrom)) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.OrderByEventDate {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (f *FakeAchievementRepository) List(ctx context.Context, filter models.AchievementFilter) ([]*models.Achievement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matching(filter), nil
}

func (f *FakeAchievementRepository) Count(ctx context.Context, filter models.AchievementFilter) (int, error) {
	if f.CountFunc != nil {
		return f.CountFunc(ctx, filter)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	filter.Limit = 0
	return len(f.matching(filter)), nil
}

func (f *FakeAchievementRepository) CountBy(ctx context.Context, column string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, a := range f.achievements {
		switch column {
		case "category":
			out[string(a.Category)]++
		case "level":
			out[string(a.Level)]++
		default:
			return nil, fmt.Errorf("unsupported column %q", column)
		}
	}
	return out, nil
}

func (f *FakeAchievementRepository) ApprovedTotalsForYear(ctx context.Context, exec repositories.SQLExecutor, year int) ([]repositories.UserYearTotal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byUser := make(map[uuid.UUID]*repositories.UserYearTotal)
	for _, a := range f.achievements {
		if a.Status != models.StatusApproved || a.Year() != year {
			continue
		}
		t, ok := byUser[a.UserID]
		if !ok {
			t = &repositories.UserYearTotal{UserID: a.UserID}
			byUser[a.UserID] = t
		}
		t.TotalPoints += a.Points
		t.AchievementCount++
	}
	out := make([]repositories.UserYearTotal, 0, len(byUser))
	for _, t := range byUser {
		out = append(out, *t)
	}
	return out, nil
}

func (f *FakeAchievementRepository) Standings(ctx context.Context, q repositories.StandingsQuery) ([]*models.Standing, error) {
	if f.StandingsFunc != nil {
		return f.StandingsFunc(ctx, q)
	}
	return nil, nil
}

// ------------------------
// Fake leaderboard repository
// ------------------------

type leaderboardKey struct {
	userID uuid.UUID
	year   int
}

type FakeLeaderboardRepository struct {
	mu      sync.Mutex
	entries map[leaderboardKey]*models.LeaderboardEntry
	// known: пользователи, для которых есть строка users. nil = любой пользователь существует
	known map[uuid.UUID]bool

	AddPointsFunc      func(ctx context.Context, userID uuid.UUID, year, points int) error
	RecomputeRanksFunc func(ctx context.Context, year int) (int64, error)
}

func NewFakeLeaderboardRepository() *FakeLeaderboardRepository {
	return &FakeLeaderboardRepository{entries: make(map[leaderboardKey]*models.LeaderboardEntry)}
}

func (f *FakeLeaderboardRepository) LockYear(ctx context.Context, exec repositories.SQLExecutor, year int) error {
	if exec == nil {
		return errors.New("LockYear called outside a transaction")
	}
	return nil
}

func (f *FakeLeaderboardRepository) AddPoints(ctx context.Context, exec repositories.SQLExecutor, userID uuid.UUID, year, points int) (*models.LeaderboardEntry, error) {
	if f.AddPointsFunc != nil {
		if err := f.AddPointsFunc(ctx, userID, year, points); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.known != nil && !f.known[userID] {
		return nil, repositories.ErrLeaderboardUserInvalid
	}
	key := leaderboardKey{userID, year}
	e, ok := f.entries[key]
	if !ok {
		e = &models.LeaderboardEntry{ID: uuid.New(), UserID: userID, Year: year}
		f.entries[key] = e
	}
	e.TotalPoints += points
	e.AchievementCount++
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

func (f *FakeLeaderboardRepository) RecomputeRanks(ctx context.Context, exec repositories.SQLExecutor, year int) (int64, error) {
	if f.RecomputeRanksFunc != nil {
		return f.RecomputeRanksFunc(ctx, year)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*models.LeaderboardEntry
	for _, e := range f.entries {
		if e.Year == year {
			rows = append(rows, e)
		}
	}
	var changed int64
	scoring.AssignRanks(rows,
		func(e *models.LeaderboardEntry) scoring.RankKey {
			return scoring.RankKey{TotalPoints: e.TotalPoints, AchievementCount: e.AchievementCount, UserID: e.UserID}
		},
		func(e *models.LeaderboardEntry, rank int) {
			if e.Rank != rank {
				e.Rank = rank
				changed++
			}
		},
	)
	return changed, nil
}

func (f *FakeLeaderboardRepository) ReplaceYear(ctx context.Context, exec repositories.SQLExecutor, year int, totals []repositories.UserYearTotal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.entries {
		if key.year == year {
			delete(f.entries, key)
		}
	}
	for _, t := range totals {
		f.entries[leaderboardKey{t.UserID, year}] = &models.LeaderboardEntry{
			ID: uuid.New(), UserID: t.UserID, Year: year, TotalPoints: t.TotalPoints, AchievementCount: t.AchievementCount,
		}
	}
	return nil
}

func (f *FakeLeaderboardRepository) GetByUserAndYear(ctx context.Context, exec repositories.SQLExecutor, userID uuid.UUID, year int) (*models.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[leaderboardKey{userID, year}]
	if !ok {
		return nil, repositories.ErrLeaderboardEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *FakeLeaderboardRepository) ListByYear(ctx context.Context, year, limit int) ([]*models.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.LeaderboardEntry
	for _, e := range f.entries {
		if e.Year == year {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeLeaderboardRepository) Years(ctx context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[int]bool)
	var years []int
	for key := range f.entries {
		if !seen[key.year] {
			seen[key.year] = true
			years = append(years, key.year)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years, nil
}

// ------------------------
// Fake notification repository
// ------------------------

type FakeNotificationRepository struct {
	mu            sync.Mutex
	notifications []*models.Notification

	CreateFunc func(ctx context.Context, exec repositories.SQLExecutor, n *models.Notification) error
}

func (f *FakeNotificationRepository) Create(ctx context.Context, exec repositories.SQLExecutor, n *models.Notification) error {
	if f.CreateFunc != nil {
		if err := f.CreateFunc(ctx, exec, n); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	cp := *n
	f.notifications = append(f.notifications, &cp)
	return nil
}

func (f *FakeNotificationRepository) All() []*models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Notification(nil), f.notifications...)
}

func (f *FakeNotificationRepository) find(id, userID uuid.UUID) (*models.Notification, int) {
	for i, n := range f.notifications {
		if n.ID == id && n.UserID == userID {
			return n, i
		}
	}
	return nil, -1
}

func (f *FakeNotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Notification
	for i := len(f.notifications) - 1; i >= 0; i-- {
		if n := f.notifications[i]; n.UserID == userID {
			cp := *n
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeNotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (f *FakeNotificationRepository) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := f.find(id, userID)
	if n == nil {
		return repositories.ErrNotificationNotFound
	}
	n.Read = true
	return nil
}

func (f *FakeNotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var changed int64
	for _, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (f *FakeNotificationRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, idx := f.find(id, userID)
	if idx < 0 {
		return repositories.ErrNotificationNotFound
	}
	f.notifications = append(f.notifications[:idx], f.notifications[idx+1:]...)
	return nil
}

// ------------------------
// Fake uploader, publisher, metrics
// ------------------------

type FakeUploader struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string

	UploadFunc func(ctx context.Context, key, contentType string) error
}

func (f *FakeUploader) Upload(ctx context.Context, key, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if f.UploadFunc != nil {
		if err := f.UploadFunc(ctx, key, contentType); err != nil {
			return nil, err
		}
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploaded = append(f.uploaded, key)
	return &storage.UploadResult{Key: key, Location: f.GetPublicURL(key)}, nil
}

func (f *FakeUploader) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *FakeUploader) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (f *FakeUploader) Uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploaded...)
}

func (f *FakeUploader) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type publishedEvent struct {
	Room  string
	Event realtime.Event
}

type FakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *FakePublisher) PublishToUser(userID uuid.UUID, event realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Room: realtime.UserRoom(userID), Event: event})
}

func (f *FakePublisher) PublishToYear(year int, event realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Room: realtime.YearRoom(year), Event: event})
}

func (f *FakePublisher) Events() []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedEvent(nil), f.events...)
}

type FakeMetrics struct {
	mu         sync.Mutex
	submitted  int
	reviewed   map[models.AchievementStatus]int
	recomputes int
	failures   int
	bulkOK     int
	bulkFailed int
}

func (f *FakeMetrics) AchievementSubmitted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
}

func (f *FakeMetrics) AchievementReviewed(status models.AchievementStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewed == nil {
		f.reviewed = make(map[models.AchievementStatus]int)
	}
	f.reviewed[status]++
}

func (f *FakeMetrics) RanksRecomputed(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recomputes++
	if err != nil {
		f.failures++
	}
}

func (f *FakeMetrics) BulkRowsImported(success, failed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkOK += success
	f.bulkFailed += failed
}

func (f *FakeMetrics) Reviewed(status models.AchievementStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reviewed[status]
}

// ------------------------
// Fixtures
// ------------------------

func newStudent(name, roll string) *models.User {
	return &models.User{
		ID:                  uuid.New(),
		Name:                name,
		RollNumberFacultyID: roll,
		School:              "School of Technology",
		Branch:              "Computer Science Engineering",
		YearDesignation:     "3rd Year",
		Email:               roll + "@college.test",
	}
}

func newAdmin() *models.User {
	return &models.User{
		ID:                  uuid.New(),
		Name:                "Admin",
		RollNumberFacultyID: "ADMIN001",
		Email:               "admin@college.test",
		IsAdmin:             true,
	}
}

func newPendingAchievement(owner *models.User, level models.AchievementLevel, position models.AchievementPosition, date time.Time) *models.Achievement {
	return &models.Achievement{
		ID:          uuid.New(),
		UserID:      owner.ID,
		EventName:   "Smart India Hackathon",
		Category:    models.CategoryCurricular,
		Level:       level,
		Date:        date,
		Position:    position,
		School:      owner.School,
		Branch:      owner.Branch,
		Status:      models.StatusPending,
		SubmittedAt: time.Now().UTC(),
		Points:      scoring.Calculate(level, position),
	}
}
