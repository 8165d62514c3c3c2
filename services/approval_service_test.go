package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type approvalFixture struct {
	users         *FakeUserRepository
	achievements  *FakeAchievementRepository
	leaderboard   *FakeLeaderboardRepository
	notifications *FakeNotificationRepository
	tx            *FakeTxRunner
	publisher     *FakePublisher
	metrics       *FakeMetrics
	service       ApprovalService

	admin   *models.User
	student *models.User
}

func newApprovalFixture(t *testing.T) *approvalFixture {
	t.Helper()
	f := &approvalFixture{
		admin:         newAdmin(),
		student:       newStudent("Asha Verma", "22BCS001"),
		achievements:  NewFakeAchievementRepository(),
		leaderboard:   NewFakeLeaderboardRepository(),
		notifications: &FakeNotificationRepository{},
		tx:            &FakeTxRunner{},
		publisher:     &FakePublisher{},
		metrics:       &FakeMetrics{},
	}
	f.users = NewFakeUserRepository(f.admin, f.student)
	logger := discardLogger()
	lb := NewLeaderboardService(f.leaderboard, f.achievements, f.tx, f.publisher, f.metrics, logger)
	f.service = NewApprovalService(f.achievements, f.notifications, f.users, lb, f.tx, f.publisher, f.metrics, logger)
	return f
}

func (f *approvalFixture) addPending(t *testing.T, owner *models.User, level models.AchievementLevel, position models.AchievementPosition, date time.Time) *models.Achievement {
	t.Helper()
	a := newPendingAchievement(owner, level, position, date)
	require.NoError(t, f.achievements.Create(context.Background(), nil, a))
	return a
}

func TestApprovalService_Approve(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelNational, models.PositionFirst, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	res, err := f.service.Approve(ctx, a.ID, f.admin.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, res.Achievement.Status)
	require.NotNil(t, res.Achievement.ApprovedBy)
	assert.Equal(t, f.admin.ID, *res.Achievement.ApprovedBy)
	assert.NotNil(t, res.Achievement.ApprovedAt)

	require.NotNil(t, res.Entry)
	assert.Equal(t, 2024, res.Entry.Year)
	assert.Equal(t, 75, res.Entry.TotalPoints)
	assert.Equal(t, 1, res.Entry.AchievementCount)
	assert.Equal(t, 1, res.Entry.Rank)

	require.NotNil(t, res.Notification)
	assert.Equal(t, models.NotificationApproval, res.Notification.Type)
	assert.Equal(t, `Your achievement "Smart India Hackathon" has been approved`, res.Notification.Message)
	assert.Equal(t, f.student.ID, res.Notification.UserID)

	stored := f.achievements.Get(a.ID)
	assert.Equal(t, models.StatusApproved, stored.Status)

	commits, rollbacks := f.tx.Counts()
	assert.Equal(t, 1, commits)
	assert.Zero(t, rollbacks)
	assert.Equal(t, 1, f.metrics.Reviewed(models.StatusApproved))

	events := f.publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.UserRoom(f.student.ID), events[0].Room)
	assert.Equal(t, realtime.EventNotification, events[0].Event.Type)
	assert.Equal(t, realtime.YearRoom(2024), events[1].Room)
	assert.Equal(t, realtime.EventLeaderboardUpdated, events[1].Event.Type)
}

func TestApprovalService_ApproveTwiceIsInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelState, models.PositionSecond, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.service.Approve(ctx, a.ID, f.admin.ID)
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, a.ID, f.admin.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidState))

	var stateErr *InvalidStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, models.StatusApproved, stateErr.Current)
	assert.Equal(t, models.StatusPending, stateErr.Required)

	entry, err := f.leaderboard.GetByUserAndYear(ctx, nil, f.student.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, 40, entry.TotalPoints, "points must be credited once")
	assert.Equal(t, 1, entry.AchievementCount)
	assert.Len(t, f.notifications.All(), 1)
}

func TestApprovalService_RejectAfterApproveIsInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelCollege, models.PositionOther, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.service.Approve(ctx, a.ID, f.admin.ID)
	require.NoError(t, err)

	_, err = f.service.Reject(ctx, a.ID, f.admin.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestApprovalService_Reject(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelInternational, models.PositionFirst, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	res, err := f.service.Reject(ctx, a.ID, f.admin.ID, "  Certificate unreadable ")
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, res.Achievement.Status)
	assert.Nil(t, res.Entry)
	assert.Equal(t, models.NotificationRejection, res.Notification.Type)
	assert.Equal(t, `Your achievement "Smart India Hackathon" has been rejected. Remarks: Certificate unreadable`, res.Notification.Message)

	_, err = f.leaderboard.GetByUserAndYear(ctx, nil, f.student.ID, 2024)
	assert.ErrorIs(t, err, repositories.ErrLeaderboardEntryNotFound)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, realtime.UserRoom(f.student.ID), events[0].Room)
	assert.Equal(t, 1, f.metrics.Reviewed(models.StatusRejected))
}

func TestApprovalService_Forbidden(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	faculty := newStudent("Dr. Rao", "FAC001")
	faculty.IsFaculty = true
	require.NoError(t, f.users.Create(ctx, faculty))
	a := f.addPending(t, f.student, models.LevelState, models.PositionFirst, time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name       string
		approverID uuid.UUID
		wantErr    error
	}{
		{name: "student cannot approve", approverID: f.student.ID, wantErr: ErrForbiddenOperation},
		{name: "faculty cannot approve", approverID: faculty.ID, wantErr: ErrForbiddenOperation},
		{name: "unknown approver", approverID: uuid.New(), wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Approve(ctx, a.ID, tt.approverID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, models.StatusPending, f.achievements.Get(a.ID).Status)
	commits, rollbacks := f.tx.Counts()
	assert.Zero(t, commits+rollbacks, "no transaction should be opened")
}

func TestApprovalService_UnknownAchievement(t *testing.T) {
	f := newApprovalFixture(t)

	_, err := f.service.Approve(context.Background(), uuid.New(), f.admin.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrAchievementNotFound)
	assert.Empty(t, f.publisher.Events())
}

func TestApprovalService_RollsBackWhenNotificationFails(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelNational, models.PositionFirst, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))
	f.notifications.CreateFunc = func(context.Context, repositories.SQLExecutor, *models.Notification) error {
		return errors.New("connection reset by peer")
	}

	_, err := f.service.Approve(ctx, a.ID, f.admin.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	commits, rollbacks := f.tx.Counts()
	assert.Zero(t, commits)
	assert.Equal(t, 1, rollbacks)
	assert.Empty(t, f.publisher.Events(), "nothing is published for a rolled back review")
	assert.Zero(t, f.metrics.Reviewed(models.StatusApproved))
}

func TestApprovalService_RollsBackWhenRankingFails(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelNational, models.PositionFirst, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))
	f.leaderboard.RecomputeRanksFunc = func(context.Context, int) (int64, error) {
		return 0, errors.New("deadlock detected")
	}

	_, err := f.service.Approve(ctx, a.ID, f.admin.ID)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, rollbacks := f.tx.Counts()
	assert.Equal(t, 1, rollbacks)
	assert.Empty(t, f.notifications.All())
}

func TestApprovalService_ConcurrentApprovalsOfSameAchievement(t *testing.T) {
	ctx := context.Background()
	f := newApprovalFixture(t)
	a := f.addPending(t, f.student, models.LevelNational, models.PositionFirst, time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		invalid   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Approve(ctx, a.ID, f.admin.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInvalidState):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, invalid)

	entry, err := f.leaderboard.GetByUserAndYear(ctx, nil, f.student.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, 75, entry.TotalPoints)
}
