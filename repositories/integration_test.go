//go:build integration

package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/achievement-portal/db"
	"github.com/Dosada05/achievement-portal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("portal"),
		postgres.WithUsername("portal"),
		postgres.WithPassword("portal"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(45*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Connect(dsn, 10*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, db.Migrate(ctx, conn))
	return conn
}

func seedUser(t *testing.T, repo UserRepository, roll string) *models.User {
	t.Helper()
	u := &models.User{
		Name:                "Student " + roll,
		RollNumberFacultyID: roll,
		School:              "School of Engineering",
		Branch:              "CSE",
		Email:               roll + "@example.edu",
		PasswordHash:        "x",
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestLeaderboardRepository_ConcurrentApprovals(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(conn)
	board := NewPostgresLeaderboardRepository(conn)
	tx := NewTxRunner(conn, slog.New(slog.NewTextHandler(io.Discard, nil)))

	alice := seedUser(t, users, "R001")
	bob := seedUser(t, users, "R002")

	const perUser = 10
	var wg sync.WaitGroup
	for i := 0; i < perUser; i++ {
		for _, u := range []*models.User{alice, bob} {
			wg.Add(1)
			go func(userID uuid.UUID, points int) {
				defer wg.Done()
				err := tx.WithinTx(ctx, func(exec SQLExecutor) error {
					if err := board.LockYear(ctx, exec, 2024); err != nil {
						return err
					}
					if _, err := board.AddPoints(ctx, exec, userID, 2024, points); err != nil {
						return err
					}
					_, err := board.RecomputeRanks(ctx, exec, 2024)
					return err
				})
				assert.NoError(t, err)
			}(u.ID, map[bool]int{true: 10, false: 5}[u.ID == alice.ID])
		}
	}
	wg.Wait()

	a, err := board.GetByUserAndYear(ctx, nil, alice.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, 100, a.TotalPoints)
	assert.Equal(t, perUser, a.AchievementCount)
	assert.Equal(t, 1, a.Rank)

	b, err := board.GetByUserAndYear(ctx, nil, bob.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, 50, b.TotalPoints)
	assert.Equal(t, 2, b.Rank)

	entries, err := board.ListByYear(ctx, 2024, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, alice.ID, entries[0].UserID)
	assert.Equal(t, "R001", entries[0].User.RollNumberFacultyID)
}

func TestLeaderboardRepository_AddPointsUnknownUser(t *testing.T) {
	conn := setupPostgres(t)
	board := NewPostgresLeaderboardRepository(conn)

	_, err := board.AddPoints(context.Background(), nil, uuid.New(), 2024, 10)
	assert.ErrorIs(t, err, ErrLeaderboardUserInvalid)
}

func TestAchievementRepository_ReviewOnlyOnce(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(conn)
	achievements := NewPostgresAchievementRepository(conn)

	owner := seedUser(t, users, "R010")
	admin := seedUser(t, users, "F001")

	a := &models.Achievement{
		UserID:           owner.ID,
		EventName:        "Hackathon",
		Category:         models.CategoryCurricular,
		Level:            models.LevelNational,
		Date:             time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		Position:         models.PositionFirst,
		EventPhotosPaths: []string{"event-photos/a.jpg"},
		Points:           75,
	}
	require.NoError(t, achievements.Create(ctx, nil, a))

	require.NoError(t, achievements.UpdateReview(ctx, nil, a.ID, models.StatusApproved, admin.ID, time.Now()))
	err := achievements.UpdateReview(ctx, nil, a.ID, models.StatusRejected, admin.ID, time.Now())
	assert.ErrorIs(t, err, ErrAchievementNotPending)

	got, err := achievements.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, []string{"event-photos/a.jpg"}, got.EventPhotosPaths)
	require.NotNil(t, got.ApprovedBy)
	assert.Equal(t, admin.ID, *got.ApprovedBy)

	totals, err := achievements.ApprovedTotalsForYear(ctx, nil, 2024)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, 75, totals[0].TotalPoints)

	standings, err := achievements.Standings(ctx, StandingsQuery{})
	require.NoError(t, err)
	require.Len(t, standings, 1)
	assert.Equal(t, "Hackathon", standings[0].RecentAchievement)
}

func TestNotificationRepository_ScopedToRecipient(t *testing.T) {
	conn := setupPostgres(t)
	ctx := context.Background()
	users := NewPostgresUserRepository(conn)
	notifications := NewPostgresNotificationRepository(conn)

	owner := seedUser(t, users, "R020")
	other := seedUser(t, users, "R021")

	for i := 0; i < 3; i++ {
		n := &models.Notification{UserID: owner.ID, Message: fmt.Sprintf("message %d", i), Type: models.NotificationHighlight}
		require.NoError(t, notifications.Create(ctx, nil, n))
	}
	list, err := notifications.ListByUser(ctx, owner.ID, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.ErrorIs(t, notifications.MarkRead(ctx, list[0].ID, other.ID), ErrNotificationNotFound)
	require.NoError(t, notifications.MarkRead(ctx, list[0].ID, owner.ID))

	unread, err := notifications.CountUnread(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	n, err := notifications.MarkAllRead(ctx, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.ErrorIs(t, notifications.Delete(ctx, list[1].ID, other.ID), ErrNotificationNotFound)
	require.NoError(t, notifications.Delete(ctx, list[1].ID, owner.ID))
}
