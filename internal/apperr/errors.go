package apperr

import (
	"errors"
	"fmt"
)

// AppError carries a machine-readable code next to the human-readable message
// that ends up in API responses.
type AppError struct {
	Code            Code
	Message         string
	SuggestedAction string
	WrappedError    error
}

func (e *AppError) Error() string {
	if e.WrappedError != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.WrappedError)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.WrappedError
}

func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSuggestion returns a copy of e carrying an operator hint.
func (e *AppError) WithSuggestion(s string) *AppError {
	cp := *e
	cp.SuggestedAction = s
	return &cp
}

// Wrap attaches code and message to err. An err that already is an AppError
// is returned as is so the innermost classification wins.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return &AppError{Code: code, Message: message, WrappedError: err}
}

func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Message returns the message safe to show to the caller. Errors without a
// code never leak their internals.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.SuggestedAction != "" {
			return appErr.Message + ". " + appErr.SuggestedAction
		}
		return appErr.Message
	}
	return "internal server error"
}
