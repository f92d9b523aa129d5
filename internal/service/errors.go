package service

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок бизнес-логики. Транспортный слой сопоставляет их с HTTP-статусами.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidState         = errors.New("invalid state")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrBelowMinimumOrder    = errors.New("below minimum order")
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrConflict             = errors.New("conflict")
)

// Error ошибка с сообщением для клиента. errors.Is(err, ErrNotFound) и т.п. работают через Unwrap.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Message достаёт сообщение для клиента, если ошибка пришла из сервиса
func Message(err error) (string, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Msg, true
	}
	return "", false
}
