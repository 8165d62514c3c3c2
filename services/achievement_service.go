package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/Dosada05/achievement-portal/scoring"
	"github.com/Dosada05/achievement-portal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	MaxEventPhotos   = 5
	MaxUploadSize    = 10 << 20
	eventDateLayout  = "2006-01-02"
	reviewListLimit  = 500
	studentListLimit = 500
)

// Actor - тот, кто выполняет запрос. Заполняется middleware из сессии.
type Actor struct {
	UserID uuid.UUID
	Role   models.UserRole
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

// IsStaff: администратор или преподаватель.
func (a Actor) IsStaff() bool { return a.Role == models.RoleAdmin || a.Role == models.RoleFaculty }

type FileUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type SubmitAchievementInput struct {
	EventName string `json:"event_name" validate:"notblank,min=3,max=300"`
	Category  string `json:"category" validate:"required,oneof=Curricular Co-curricular Extracurricular Other"`
	Level     string `json:"level" validate:"required,oneof=College State National International"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Position  string `json:"position" validate:"required,oneof=1st 2nd 3rd Participation Other"`
	Organizer string `json:"organizer" validate:"max=300"`
	Place     string `json:"place" validate:"max=300"`
	Remarks   string `json:"remarks" validate:"max=2000"`

	Proof  *FileUpload  `json:"-" validate:"-"`
	Photos []FileUpload `json:"-" validate:"-"`
}

type ListAchievementsInput struct {
	Status   models.AchievementStatus
	Category models.AchievementCategory
	Level    models.AchievementLevel
	From     *time.Time
	To       *time.Time
}

type AchievementService interface {
	Submit(ctx context.Context, userID uuid.UUID, input SubmitAchievementInput) (*models.Achievement, error)
	Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Achievement, error)
	ListOwn(ctx context.Context, userID uuid.UUID, input ListAchievementsInput) ([]*models.Achievement, error)
	ListForReview(ctx context.Context, status models.AchievementStatus) ([]*models.Achievement, error)
	ListForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Achievement, error)
}

type achievementService struct {
	achievementRepo  repositories.AchievementRepository
	notificationRepo repositories.NotificationRepository
	userRepo         repositories.UserRepository
	tx               repositories.TxRunner
	uploader         storage.FileUploader
	publisher        EventPublisher
	metrics          MetricsRecorder
	logger           *slog.Logger
}

func NewAchievementService(
	achievementRepo repositories.AchievementRepository,
	notificationRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	tx repositories.TxRunner,
	uploader storage.FileUploader,
	publisher EventPublisher,
	metrics MetricsRecorder,
	logger *slog.Logger,
) AchievementService {
	return &achievementService{
		achievementRepo:  achievementRepo,
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		tx:               tx,
		uploader:         uploader,
		publisher:        orNopPublisher(publisher),
		metrics:          orNopMetrics(metrics),
		logger:           logger,
	}
}

func validateUploads(input SubmitAchievementInput) ValidationErrors {
	var errs ValidationErrors
	if len(input.Photos) > MaxEventPhotos {
		errs = append(errs, ValidationError{Field: "photos", Message: fmt.Sprintf("at most %d photos are allowed", MaxEventPhotos)})
	}
	files := input.Photos
	if input.Proof != nil {
		files = append([]FileUpload{*input.Proof}, files...)
	}
	for _, f := range files {
		if f.Size > MaxUploadSize {
			errs = append(errs, ValidationError{Field: "files", Message: fmt.Sprintf("%s exceeds %d MB", f.Filename, MaxUploadSize>>20)})
		}
		if _, err := storage.ExtensionFor(f.Filename, f.ContentType); err != nil {
			errs = append(errs, ValidationError{Field: "files", Message: err.Error()})
		}
	}
	return errs
}

func (s *achievementService) Submit(ctx context.Context, userID uuid.UUID, input SubmitAchievementInput) (*models.Achievement, error) {
	var errs ValidationErrors
	if err := validateStruct(input); err != nil {
		fieldErrs, ok := err.(ValidationErrors)
		if !ok {
			return nil, err
		}
		errs = append(errs, fieldErrs...)
	}
	errs = append(errs, validateUploads(input)...)
	if len(errs) > 0 {
		return nil, errs
	}

	owner, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError("load submitter", err)
	}

	eventDate, _ := time.Parse(eventDateLayout, input.Date) // формат уже проверен валидатором
	achievement := &models.Achievement{
		ID:             uuid.New(),
		UserID:         owner.ID,
		EventName:      strings.TrimSpace(input.EventName),
		Category:       models.AchievementCategory(input.Category),
		Level:          models.AchievementLevel(input.Level),
		Date:           eventDate,
		Position:       models.AchievementPosition(input.Position),
		School:         owner.School,
		Branch:         owner.Branch,
		Specialization: owner.Specialization,
		Batch:          owner.Batch,
		Organizer:      strings.TrimSpace(input.Organizer),
		Place:          strings.TrimSpace(input.Place),
		Remarks:        optionalString(input.Remarks),
		Status:         models.StatusPending,
	}
	achievement.Points = scoring.Calculate(achievement.Level, achievement.Position)

	uploaded, err := s.uploadFiles(ctx, owner.ID, input)
	if err != nil {
		return nil, err
	}
	if len(uploaded) > 0 && input.Proof != nil {
		achievement.ProofFilePath = &uploaded[0]
		achievement.EventPhotosPaths = uploaded[1:]
	} else {
		achievement.EventPhotosPaths = uploaded
	}

	notification := &models.Notification{
		UserID:  owner.ID,
		Message: "New achievement submitted: " + achievement.EventName,
		Type:    models.NotificationHighlight,
	}
	err = s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if err := s.achievementRepo.Create(ctx, exec, achievement); err != nil {
			return mapRepositoryError("create achievement", err)
		}
		if err := s.notificationRepo.Create(ctx, exec, notification); err != nil {
			return mapRepositoryError("create submission notification", err)
		}
		return nil
	})
	if err != nil {
		s.cleanupUploads(ctx, uploaded)
		return nil, upstream("submit achievement", err)
	}

	s.metrics.AchievementSubmitted()
	s.logger.InfoContext(ctx, "Achievement submitted",
		slog.String("achievement_id", achievement.ID.String()),
		slog.String("user_id", owner.ID.String()),
		slog.Int("points", achievement.Points),
		slog.Int("files", len(uploaded)),
	)
	s.publisher.PublishToUser(owner.ID, realtime.Event{Type: realtime.EventNotification, Payload: notification})

	populateAchievementURLs(achievement, s.uploader)
	return achievement, nil
}

// uploadFiles грузит доказательство и фото параллельно. Первый ключ - доказательство, если оно есть.
// При ошибке уже загруженные объекты удаляются.
func (s *achievementService) uploadFiles(ctx context.Context, ownerID uuid.UUID, input SubmitAchievementInput) ([]string, error) {
	type job struct {
		prefix string
		file   FileUpload
	}
	jobs := make([]job, 0, len(input.Photos)+1)
	if input.Proof != nil {
		jobs = append(jobs, job{prefix: storage.ProofPrefix, file: *input.Proof})
	}
	for _, p := range input.Photos {
		jobs = append(jobs, job{prefix: storage.PhotoPrefix, file: p})
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			ext, err := storage.ExtensionFor(j.file.Filename, j.file.ContentType)
			if err != nil {
				return err
			}
			key := storage.ObjectKey(j.prefix, ownerID, ext)
			if _, err := s.uploader.Upload(gctx, key, j.file.ContentType, j.file.Reader); err != nil {
				return err
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		done := make([]string, 0, len(keys))
		for _, k := range keys {
			if k != "" {
				done = append(done, k)
			}
		}
		s.cleanupUploads(ctx, done)
		return nil, &UpstreamError{Op: "upload achievement files", Err: err}
	}
	return keys, nil
}

func (s *achievementService) cleanupUploads(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.uploader.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete orphaned upload", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (s *achievementService) Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Achievement, error) {
	achievement, err := s.achievementRepo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepositoryError("get achievement", err)
	}
	// Чужая заявка для не-сотрудника выглядит как несуществующая
	if achievement.UserID != actor.UserID && !actor.IsStaff() {
		return nil, ErrAchievementNotFound
	}
	populateAchievementURLs(achievement, s.uploader)
	return achievement, nil
}

func (s *achievementService) ListOwn(ctx context.Context, userID uuid.UUID, input ListAchievementsInput) ([]*models.Achievement, error) {
	var errs ValidationErrors
	if input.Status != "" && !input.Status.Valid() {
		errs = append(errs, ValidationError{Field: "status", Message: "must be one of pending, approved, rejected"})
	}
	if input.Category != "" && !input.Category.Valid() {
		errs = append(errs, ValidationError{Field: "category", Message: "unknown category"})
	}
	if input.Level != "" && !input.Level.Valid() {
		errs = append(errs, ValidationError{Field: "level", Message: "unknown level"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	list, err := s.achievementRepo.List(ctx, models.AchievementFilter{
		UserID:           &userID,
		Status:           input.Status,
		Category:         input.Category,
		Level:            input.Level,
		From:             input.From,
		To:               input.To,
		OrderByEventDate: true,
	})
	if err != nil {
		return nil, mapRepositoryError("list achievements", err)
	}
	populateAchievementListURLs(list, s.uploader)
	return list, nil
}

func (s *achievementService) ListForReview(ctx context.Context, status models.AchievementStatus) ([]*models.Achievement, error) {
	if status != "" && !status.Valid() {
		return nil, ValidationError{Field: "status", Message: "must be one of pending, approved, rejected"}
	}
	list, err := s.achievementRepo.List(ctx, models.AchievementFilter{Status: status, WithOwner: true, Limit: reviewListLimit})
	if err != nil {
		return nil, mapRepositoryError("list achievements for review", err)
	}
	populateAchievementListURLs(list, s.uploader)
	return list, nil
}

func (s *achievementService) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]*models.Achievement, error) {
	if _, err := s.userRepo.GetByID(ctx, studentID); err != nil {
		return nil, mapRepositoryError("load student", err)
	}
	list, err := s.achievementRepo.List(ctx, models.AchievementFilter{UserID: &studentID, OrderByEventDate: true, Limit: studentListLimit})
	if err != nil {
		return nil, mapRepositoryError("list student achievements", err)
	}
	populateAchievementListURLs(list, s.uploader)
	return list, nil
}
