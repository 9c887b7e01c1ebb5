package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a single spending record owned by one user.
type Expense struct {
	ID            string
	UserID        string
	Date          time.Time
	Category      string
	Amount        decimal.Decimal
	Description   *string
	PaymentMethod string
	MediaFile     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasMedia reports whether a media file is attached.
func (e *Expense) HasMedia() bool {
	return e.MediaFile != nil && *e.MediaFile != ""
}

// DescriptionOr returns the description, or fallback when none is set.
func (e *Expense) DescriptionOr(fallback string) string {
	if e.Description == nil || *e.Description == "" {
		return fallback
	}
	return *e.Description
}

// DateString formats the expense date as YYYY-MM-DD.
func (e *Expense) DateString() string {
	return e.Date.UTC().Format(time.DateOnly)
}
