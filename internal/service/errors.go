// Package service provides business logic for the application.
package service

import (
	"errors"

	"github.com/cashtrack/cashtrack/internal/media"
	"github.com/cashtrack/cashtrack/internal/report"
)

// Service errors.
var (
	ErrExpenseNotFound    = errors.New("expense not found")
	ErrNoMedia            = errors.New("no media file attached to this expense")
	ErrMediaNotFound      = errors.New("media file not found")
	ErrRecordBusy         = errors.New("expense is being modified by another request")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrPasswordMismatch   = errors.New("passwords don't match")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Errors passed through from the media store and report renderer.
var (
	ErrUnsupportedMediaType = media.ErrUnsupportedMediaType
	ErrPayloadTooLarge      = media.ErrPayloadTooLarge
	ErrInvalidFormat        = report.ErrInvalidFormat
	ErrNoExpenses           = report.ErrNoRecords
)

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
