package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/linemk/farmsync/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/farmsync/internal/lib/api/response"
	"github.com/linemk/farmsync/internal/lib/listquery"
	"github.com/linemk/farmsync/internal/service"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// в сообщениях об ошибках поля называются как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// decimal.Decimal проверяется как число
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// decodeAndValidate разбирает JSON-тело и проверяет теги validate.
// При ошибке ответ уже записан, вызывающему остаётся вернуться.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		logger.Error("invalid request: decoding error", slog.Any("error", err))
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		logger.Warn("invalid request: validation error", slog.Any("error", err))
		response.Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// decodeOptional как decodeAndValidate, но пустое тело допустимо
func decodeOptional(w http.ResponseWriter, r *http.Request, logger *slog.Logger, req any) bool {
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("invalid request: decoding error", slog.Any("error", err))
		response.Error(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(req); err != nil {
		logger.Warn("invalid request: validation error", slog.Any("error", err))
		response.Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid request"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Please provide %s", fe.Field())
	case "email":
		return "Please add a valid email"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s can not be more than %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("Invalid value for %s", fe.Field())
}

// writeError сопоставляет ошибку сервиса с HTTP-статусом.
// Внутренние ошибки клиенту не раскрываются.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	msg, ok := service.Message(err)
	if !ok || status == http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
		response.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	logger.Warn("request rejected", slog.Int("status", status), slog.String("reason", msg))
	response.Error(w, status, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrInsufficientQuantity),
		errors.Is(err, service.ErrBelowMinimumOrder):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// actorFrom собирает Actor из контекста, заполненного JWT middleware
func actorFrom(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (service.Actor, bool) {
	userID, ok := jwtmiddleware.FromContext(r.Context())
	if !ok {
		logger.Error("userID not found in context")
		response.Error(w, http.StatusUnauthorized, "Not authorized to access this route")
		return service.Actor{}, false
	}
	role, _ := jwtmiddleware.RoleFromContext(r.Context())
	return service.Actor{ID: userID, Role: role}, true
}

func idParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		logger.Warn("invalid id parameter", slog.String("param", name), slog.String("value", raw))
		response.Error(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name))
		return 0, false
	}
	return id, true
}

func parseQuery(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (listquery.Query, bool) {
	q, err := listquery.Parse(r.URL.Query())
	if err != nil {
		logger.Warn("invalid list query", slog.Any("error", err))
		response.Error(w, http.StatusBadRequest, err.Error())
		return q, false
	}
	return q, true
}

// writePage отдаёт страницу списка с учётом select
func writePage[T any](w http.ResponseWriter, logger *slog.Logger, q listquery.Query, items []T, total int) {
	data, err := listquery.Project(items, q.Select)
	if err != nil {
		logger.Error("failed to project fields", slog.Any("error", err))
		response.Error(w, http.StatusInternalServerError, "Server error")
		return
	}
	if err := response.Page(w, q, len(items), total, data); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func writeOK(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	if err := response.OK(w, status, data); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// yearParam год из ?year=; нечисловое значение означает текущий год
func yearParam(r *http.Request) int {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1 {
		return 0
	}
	return year
}

// Date принимает даты как в RFC 3339, так и в виде YYYY-MM-DD
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", raw)
}

// WelcomeHandler GET /api
func WelcomeHandler(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := response.Message(w, http.StatusOK, "Welcome to FarmSync API"); err != nil {
			log.Error("failed to encode response", slog.Any("error", err))
		}
	}
}
