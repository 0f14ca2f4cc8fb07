// Package apperr defines the status-carrying error taxonomy shared by the
// resource engine and its transports.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrBadRequest       = errors.New("bad request")
	ErrNotFound         = errors.New("not found")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrServerFault      = errors.New("server fault")
)

var genericMessages = map[int]string{
	http.StatusOK:                  "OK",
	http.StatusCreated:             "Created",
	http.StatusBadRequest:          "Bad request",
	http.StatusNotFound:            "Not found",
	http.StatusMethodNotAllowed:    "Method not supported",
	http.StatusInternalServerError: "Server encountered a problem",
}

// StatusError is an error with an HTTP-style status and a human-readable message.
type StatusError struct {
	Status  int
	Message string
	cause   error
}

// New returns a StatusError. A zero status becomes 500 and an empty message
// is replaced by the generic message for the status.
func New(status int, message string) *StatusError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if message == "" {
		message = GenericMessage(status)
	}
	return &StatusError{Status: status, Message: message}
}

// BadRequest returns a 400 error.
func BadRequest(format string, args ...any) *StatusError {
	return New(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// NotFound returns a 404 error.
func NotFound(format string, args ...any) *StatusError {
	return New(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// MethodNotAllowed returns a 405 error.
func MethodNotAllowed(format string, args ...any) *StatusError {
	return New(http.StatusMethodNotAllowed, fmt.Sprintf(format, args...))
}

// ServerFault wraps cause as a 500 error. The message stays generic so
// file-system details are not leaked to clients; the cause is kept for logs.
func ServerFault(cause error) *StatusError {
	e := New(http.StatusInternalServerError, "")
	e.cause = cause
	return e
}

func (e *StatusError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes both the status sentinel and the underlying cause.
func (e *StatusError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := sentinel(e.Status); s != nil {
		errs = append(errs, s)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// GenericMessage returns the default message for status.
func GenericMessage(status int) string {
	if msg, ok := genericMessages[status]; ok {
		return msg
	}
	return http.StatusText(status)
}

// StatusOf reports the status carried by err. Errors outside the taxonomy
// map to 500.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

// MessageOf reports the client-facing message for err.
func MessageOf(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return GenericMessage(http.StatusInternalServerError)
}

func sentinel(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusMethodNotAllowed:
		return ErrMethodNotAllowed
	case http.StatusInternalServerError:
		return ErrServerFault
	}
	return nil
}
