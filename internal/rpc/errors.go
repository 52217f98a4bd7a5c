package rpc

import (
	"errors"
	"net/http"

	"github.com/codu-code/codu/internal/repository"
	"github.com/codu-code/codu/internal/storage"
	"github.com/codu-code/codu/internal/validation"
)

type Code string

const (
	CodeOK               Code = "OK"
	CodeBadRequest       Code = "BAD_REQUEST"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeMethodNotAllowed Code = "METHOD_NOT_SUPPORTED"
	CodeTooManyRequests  Code = "TOO_MANY_REQUESTS"
	CodeInternal         Code = "INTERNAL_SERVER_ERROR"
)

func (c Code) HTTPStatus() int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the failure half of the response envelope.
type Error struct {
	Code        Code              `json:"code"`
	Message     string            `json:"message"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

var (
	errUnauthorized = NewError(CodeUnauthorized, "You must be signed in")
	errBanned       = NewError(CodeForbidden, "Your account has been suspended")
	errForbidden    = NewError(CodeForbidden, "You are not allowed to do that")
	errBadInput     = NewError(CodeBadRequest, "Invalid input")
)

func notFound(what string) *Error {
	return NewError(CodeNotFound, what+" not found")
}

// toError maps any handler error onto an envelope error. Unknown errors
// become INTERNAL_SERVER_ERROR with a generic message.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var fieldErrs *validation.Errors
	if errors.As(err, &fieldErrs) {
		return &Error{Code: CodeBadRequest, Message: "Validation failed", FieldErrors: fieldErrs.Fields, cause: err}
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: "Not found", cause: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Code: CodeBadRequest, Message: "Already exists", cause: err}
	case errors.Is(err, storage.ErrDisabled):
		return &Error{Code: CodeBadRequest, Message: "Uploads are not available", cause: err}
	case errors.Is(err, storage.ErrUnsupportedType),
		errors.Is(err, storage.ErrTooLarge),
		errors.Is(err, storage.ErrInvalidUploadKind):
		return &Error{Code: CodeBadRequest, Message: err.Error(), cause: err}
	}
	return &Error{Code: CodeInternal, Message: "Something went wrong", cause: err}
}
