package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cashtrack/cashtrack/internal/service"
)

// writeServiceError maps service errors to HTTP responses. Unknown errors
// are logged and answered with 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var validationErr *service.ValidationError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Error())
	case errors.As(err, &maxBytesErr):
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
	case errors.Is(err, service.ErrPasswordMismatch):
		writeError(w, http.StatusBadRequest, "PASSWORD_MISMATCH", "Passwords don't match!")
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(w, http.StatusBadRequest, "USERNAME_TAKEN", "Username already exists!")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password!")
	case errors.Is(err, service.ErrUnsupportedMediaType):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_MEDIA_TYPE", "Only JPEG, PNG and PDF files are allowed!")
	case errors.Is(err, service.ErrPayloadTooLarge):
		writeError(w, http.StatusBadRequest, "PAYLOAD_TOO_LARGE", "Media file is too large!")
	case errors.Is(err, service.ErrNoMedia):
		writeError(w, http.StatusBadRequest, "NO_MEDIA", "No media file attached to this expense!")
	case errors.Is(err, service.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "INVALID_FORMAT", "Invalid format! Use 'pdf' or 'csv'.")
	case errors.Is(err, service.ErrExpenseNotFound):
		writeError(w, http.StatusNotFound, "EXPENSE_NOT_FOUND", "Expense not found!")
	case errors.Is(err, service.ErrMediaNotFound):
		writeError(w, http.StatusNotFound, "MEDIA_NOT_FOUND", "Media file not found!")
	case errors.Is(err, service.ErrNoExpenses):
		writeError(w, http.StatusNotFound, "NO_EXPENSES", "No expenses found for the given filters.")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found!")
	case errors.Is(err, service.ErrRecordBusy):
		writeError(w, http.StatusConflict, "RECORD_BUSY", "Expense is being modified, try again")
	default:
		logger.Error("internal_error",
			"error", err,
			"endpoint", r.Method+" "+r.URL.Path,
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
