package handlers

import (
	"log/slog"
	"net/http"

	"github.com/linemk/farmsync/internal/domain/models"
	"github.com/linemk/farmsync/internal/lib/api/response"
	"github.com/linemk/farmsync/internal/service"
)

// RegisterRequest тело запроса регистрации
type RegisterRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	Role        string `json:"role" validate:"required,oneof=farmer buyer restaurant individual"`
	PhoneNumber string `json:"phoneNumber" validate:"omitempty,max=20"`
}

// LoginRequest тело запроса входа
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse ответ с JWT-токеном
type AuthResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	Data    *models.User `json:"data,omitempty"`
}

// RegisterHandler POST /api/auth/register
func RegisterHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RegisterHandler"
		logger := log.With(slog.String("op", op))

		var req RegisterRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		user, token, err := authService.Register(r.Context(), service.RegisterInput{
			Name:        req.Name,
			Email:       req.Email,
			Password:    req.Password,
			Role:        models.Role(req.Role),
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if err := response.JSON(w, http.StatusCreated, AuthResponse{Success: true, Token: token, Data: user}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// AuthHandler POST /api/auth/login
func AuthHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.AuthHandler"
		logger := log.With(slog.String("op", op))

		var req LoginRequest
		if !decodeAndValidate(w, r, logger, &req) {
			return
		}

		token, err := authService.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		if err := response.JSON(w, http.StatusOK, AuthResponse{Success: true, Token: token}); err != nil {
			logger.Error("failed to encode response", slog.Any("error", err))
		}
	}
}

// MeHandler GET /api/users/me
func MeHandler(log *slog.Logger, authService service.AuthServiceInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MeHandler"
		logger := log.With(slog.String("op", op))

		actor, ok := actorFrom(w, r, logger)
		if !ok {
			return
		}

		user, err := authService.Me(r.Context(), actor.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeOK(w, logger, http.StatusOK, user)
	}
}
