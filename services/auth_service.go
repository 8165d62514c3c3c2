package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Dosada05/achievement-portal/models"
	"github.com/Dosada05/achievement-portal/realtime"
	"github.com/Dosada05/achievement-portal/repositories"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Имена JWT claims
const (
	jwtClaimUserID = "user_id"
	jwtClaimRole   = "role"
	jwtClaimName   = "name"
)

type SessionState string

const (
	SessionAuthenticated   SessionState = "authenticated"
	SessionUnauthenticated SessionState = "unauthenticated"
	SessionFailed          SessionState = "failed"
)

// Session - единственный результат проверки сессии. User заполнен только для authenticated.
type Session struct {
	State  SessionState `json:"state"`
	User   *models.User `json:"user,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

func (s Session) Actor() Actor {
	if s.User == nil {
		return Actor{}
	}
	return Actor{UserID: s.User.ID, Role: s.User.Role()}
}

type LoginInput struct {
	Identifier string `json:"identifier" validate:"notblank,max=50"`
	Password   string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

type AuthService interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	// ResolveSession проверяет токен ровно один раз с таймаутом SESSION_TIMEOUT.
	// Таймаут трактуется как unauthenticated.
	ResolveSession(ctx context.Context, token string) Session
	SignOut(ctx context.Context, userID uuid.UUID)
}

type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	SessionTimeout time.Duration
}

type authService struct {
	userRepo       repositories.UserRepository
	publisher      EventPublisher
	jwtSecret      []byte
	tokenTTL       time.Duration
	sessionTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

func NewAuthService(userRepo repositories.UserRepository, publisher EventPublisher, cfg AuthConfig, logger *slog.Logger) AuthService {
	return &authService{
		userRepo:       userRepo,
		publisher:      orNopPublisher(publisher),
		jwtSecret:      []byte(cfg.JWTSecret),
		tokenTTL:       cfg.TokenTTL,
		sessionTimeout: cfg.SessionTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

func (s *authService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByRollNumber(ctx, strings.TrimSpace(input.Identifier))
	if err != nil {
		return nil, mapRepositoryError("find user by identifier", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrAuthInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password hash: %w", err)
	}
	user.PasswordHash = ""

	token, expiresAt, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "User signed in", slog.String("user_id", user.ID.String()), slog.String("role", string(user.Role())))
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *authService) issueToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		jwtClaimUserID: user.ID.String(),
		jwtClaimRole:   string(user.Role()),
		jwtClaimName:   user.Name,
		"exp":          expiresAt.Unix(),
		"iat":          now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *authService) parseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, errors.New("invalid token claims")
	}
	raw, ok := claims[jwtClaimUserID].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing '%s' claim in token", jwtClaimUserID)
	}
	return uuid.Parse(raw)
}

func (s *authService) ResolveSession(ctx context.Context, token string) Session {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{State: SessionUnauthenticated, Reason: "no session"}
	}
	userID, err := s.parseToken(token)
	if err != nil {
		return Session{State: SessionUnauthenticated, Reason: "invalid or expired token"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.sessionTimeout)
	defer cancel()

	user, err := s.userRepo.GetByID(ctx, userID)
	switch {
	case err == nil:
		user.PasswordHash = ""
		return Session{State: SessionAuthenticated, User: user}
	case errors.Is(err, repositories.ErrUserNotFound):
		return Session{State: SessionUnauthenticated, Reason: "user no longer exists"}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.logger.WarnContext(ctx, "Session resolution timed out, treating as unauthenticated",
			slog.String("user_id", userID.String()),
			slog.Duration("timeout", s.sessionTimeout),
		)
		return Session{State: SessionUnauthenticated, Reason: "session check timed out"}
	default:
		s.logger.ErrorContext(ctx, "Session resolution failed", slog.String("user_id", userID.String()), slog.Any("error", err))
		return Session{State: SessionFailed, Reason: "session backend unavailable"}
	}
}

// SignOut ничего не хранит: токены без состояния. Открытые вкладки пользователя получают signed_out.
func (s *authService) SignOut(ctx context.Context, userID uuid.UUID) {
	s.publisher.PublishToUser(userID, realtime.Event{Type: realtime.EventSignedOut})
	s.logger.InfoContext(ctx, "User signed out", slog.String("user_id", userID.String()))
}
