package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/google/uuid"
)

const maxStudentSearchLength = 100

type StudentService interface {
	List(ctx context.Context, search string) ([]*models.StudentSummary, error)
	Achievements(ctx context.Context, studentID uuid.UUID) ([]*models.Achievement, error)
}

type studentService struct {
	userRepo     repositories.UserRepository
	achievements AchievementService
	logger       *slog.Logger
}

func NewStudentService(userRepo repositories.UserRepository, achievements AchievementService, logger *slog.Logger) StudentService {
	return &studentService{userRepo: userRepo, achievements: achievements, logger: logger}
}

func (s *studentService) List(ctx context.Context, search string) ([]*models.StudentSummary, error) {
	search = strings.TrimSpace(search)
	if len(search) > maxStudentSearchLength {
		return nil, ValidationError{Field: "q", Message: "search is too long"}
	}
	students, err := s.userRepo.ListStudents(ctx, search)
	if err != nil {
		return nil, mapRepositoryError("list students", err)
	}
	for _, st := range students {
		st.PasswordHash = ""
	}
	return students, nil
}

func (s *studentService) Achievements(ctx context.Context, studentID uuid.UUID) ([]*models.Achievement, error) {
	return s.achievements.ListForStudent(ctx, studentID)
}
