package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/go-chatsync/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewMethodNotAllowedError() *ApiError {
	return newApiError(http.StatusMethodNotAllowed)
}

// NewEngineError maps a command failure onto a response. Client-facing
// kinds keep the engine's message; anything else is a generic 500.
func NewEngineError(err error) *ApiError {
	var chatErr *chat.Error
	if !errors.As(err, &chatErr) {
		return NewInternalServerError(err)
	}

	var code int
	switch chatErr.Kind {
	case chat.KindValidation:
		code = http.StatusBadRequest
	case chat.KindUnauthenticated:
		code = http.StatusUnauthorized
	case chat.KindForbidden:
		code = http.StatusForbidden
	case chat.KindNotFound:
		code = http.StatusNotFound
	case chat.KindConflict:
		code = http.StatusConflict
	default:
		return NewInternalServerError(err)
	}

	return &ApiError{
		StatusCode: code,
		Message:    chatErr.Message,
		Err:        chatErr.Err,
	}
}
