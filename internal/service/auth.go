package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/linemk/farmsync/internal/domain/models"
	security "github.com/linemk/farmsync/internal/jwt-new"
	"github.com/linemk/farmsync/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// Actor пользователь, от имени которого выполняется операция
type Actor struct {
	ID   int64
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type AuthService struct {
	log      *slog.Logger
	userRepo storage.UserStorage
	tokenTTL time.Duration
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		log:      log,
		userRepo: userRepo,
		tokenTTL: tokenTTL,
	}
}

type AuthServiceInterface interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (string, error)
	Me(ctx context.Context, userID int64) (*models.User, error)
}

type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	Role        models.Role
	PhoneNumber string
}

// Register создаёт учётную запись и сразу выдаёт токен.
// Роль admin через регистрацию получить нельзя.
func (a *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, error) {
	const op = "service.AuthService.Register"
	email := strings.ToLower(strings.TrimSpace(in.Email))
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	if !in.Role.Valid() || in.Role == models.RoleAdmin {
		return nil, "", newError(ErrValidation, "Invalid role %q", in.Role)
	}

	// bcrypt сам добавляет соль
	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return nil, "", fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	user, err := a.userRepo.CreateUser(ctx, &models.User{
		Name:        strings.TrimSpace(in.Name),
		Email:       email,
		PassHash:    passHash,
		Role:        in.Role,
		PhoneNumber: in.PhoneNumber,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			logger.Info("email already registered")
			return nil, "", newError(ErrConflict, "User already exists")
		}
		logger.Error("failed to create user", slog.Any("error", err))
		return nil, "", fmt.Errorf("%s: failed to create user: %w", op, err)
	}

	token, err := security.NewToken(ctx, user, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return nil, "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user registered", slog.Int64("userID", user.ID), slog.String("role", string(user.Role)))
	return user, token, nil
}

// Login проверяет пароль и выдаёт JWT-токен (секрет берётся из переменной окружения JWT_SECRET).
// Неизвестный email и неверный пароль неразличимы для клиента.
func (a *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	const op = "service.AuthService.Login"
	email = strings.ToLower(strings.TrimSpace(email))
	logger := a.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)
	logger.Info("checking user")

	user, err := a.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			return "", newError(ErrUnauthorized, "Invalid credentials")
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		return "", newError(ErrUnauthorized, "Invalid credentials")
	}

	token, err := security.NewToken(ctx, user, a.tokenTTL)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return token, nil
}

func (a *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	const op = "service.AuthService.Me"

	user, err := a.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, newError(ErrNotFound, "User not found")
		}
		a.log.Error("failed to get user", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}
	return user, nil
}
