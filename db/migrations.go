package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration 001: users. Пользователи заводятся администрацией вуза, сервис их только читает.
const migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    roll_number_faculty_id VARCHAR(50) NOT NULL UNIQUE,
    batch VARCHAR(20),
    school VARCHAR(200) NOT NULL,
    branch VARCHAR(200) NOT NULL,
    specialization VARCHAR(200),
    year_designation VARCHAR(100) NOT NULL DEFAULT '',
    email VARCHAR(255) NOT NULL UNIQUE,
    contact VARCHAR(50),
    profile_photo TEXT,
    password_hash TEXT NOT NULL,
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_faculty BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_users_students ON users(name) WHERE is_admin = FALSE AND is_faculty = FALSE;
`

// Migration 002: achievements.
const migration002Achievements = `
CREATE TABLE IF NOT EXISTS achievements (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    event_name VARCHAR(300) NOT NULL,
    category VARCHAR(30) NOT NULL,
    level VARCHAR(30) NOT NULL,
    date DATE NOT NULL,
    position VARCHAR(30) NOT NULL,
    school VARCHAR(200) NOT NULL DEFAULT '',
    branch VARCHAR(200) NOT NULL DEFAULT '',
    specialization VARCHAR(200),
    batch VARCHAR(20),
    organizer VARCHAR(300) NOT NULL DEFAULT '',
    place VARCHAR(300) NOT NULL DEFAULT '',
    proof_file_path TEXT,
    event_photos_paths TEXT[],
    remarks TEXT,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    approved_at TIMESTAMP WITH TIME ZONE,
    approved_by UUID REFERENCES users(id),
    points INTEGER NOT NULL,

    CONSTRAINT valid_category CHECK (category IN ('Curricular', 'Co-curricular', 'Extracurricular', 'Other')),
    CONSTRAINT valid_level CHECK (level IN ('College', 'State', 'National', 'International')),
    CONSTRAINT valid_position CHECK (position IN ('1st', '2nd', '3rd', 'Participation', 'Other')),
    CONSTRAINT valid_status CHECK (status IN ('pending', 'approved', 'rejected')),
    CONSTRAINT valid_points CHECK (points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievements_user ON achievements(user_id, date DESC);
CREATE INDEX IF NOT EXISTS idx_achievements_status ON achievements(status, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_achievements_approved_date ON achievements(date) WHERE status = 'approved';
`

// Migration 003: leaderboard. Одна строка на (user_id, year); rank переписывается для всего года.
const migration003Leaderboard = `
CREATE TABLE IF NOT EXISTS leaderboard (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    year INTEGER NOT NULL,
    total_points INTEGER NOT NULL DEFAULT 0,
    achievement_count INTEGER NOT NULL DEFAULT 0,
    rank INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT leaderboard_user_year_key UNIQUE (user_id, year),
    CONSTRAINT valid_total_points CHECK (total_points >= 0),
    CONSTRAINT valid_achievement_count CHECK (achievement_count >= 0)
);

CREATE INDEX IF NOT EXISTS idx_leaderboard_ranking ON leaderboard(year, total_points DESC, achievement_count DESC, user_id);
`

// Migration 004: notifications.
const migration004Notifications = `
CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id),
    message TEXT NOT NULL,
    type VARCHAR(20) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    read_status BOOLEAN NOT NULL DEFAULT FALSE,

    CONSTRAINT valid_type CHECK (type IN ('badge', 'approval', 'rejection', 'highlight'))
);

CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id) WHERE read_status = FALSE;
`

var migrations = []struct {
	name string
	sql  string
}{
	{"001_users", migration001Users},
	{"002_achievements", migration002Achievements},
	{"003_leaderboard", migration003Leaderboard},
	{"004_notifications", migration004Notifications},
}

// Migrate применяет схему. Все миграции идемпотентны, поэтому запускаются при каждом старте.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
	}
	return nil
}
