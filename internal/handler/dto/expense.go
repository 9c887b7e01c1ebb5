package dto

import (
	"encoding/json"
	"time"

	"github.com/cashtrack/cashtrack/internal/model"
)

// ExpenseRequest is the JSON form of a create or update body. Amount accepts
// a JSON number or a numeric string. Absent fields stay nil.
type ExpenseRequest struct {
	Date          *string      `json:"date,omitempty"`
	Category      *string      `json:"category,omitempty"`
	Amount        *json.Number `json:"amount,omitempty"`
	Description   *string      `json:"description,omitempty"`
	PaymentMethod *string      `json:"paymentMethod,omitempty"`
}

// ExpenseResponse represents an expense in API responses.
type ExpenseResponse struct {
	ID            string      `json:"_id"`
	UserID        string      `json:"userId"`
	Date          time.Time   `json:"date"`
	Category      string      `json:"category"`
	Amount        json.Number `json:"amount"`
	Description   *string     `json:"description"`
	PaymentMethod string      `json:"paymentMethod"`
	MediaFile     *string     `json:"mediaFile"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// ToExpenseResponse converts an Expense model to ExpenseResponse DTO.
func ToExpenseResponse(e *model.Expense) *ExpenseResponse {
	return &ExpenseResponse{
		ID:            e.ID,
		UserID:        e.UserID,
		Date:          e.Date.UTC(),
		Category:      e.Category,
		Amount:        json.Number(e.Amount.String()),
		Description:   e.Description,
		PaymentMethod: e.PaymentMethod,
		MediaFile:     e.MediaFile,
		CreatedAt:     e.CreatedAt.UTC(),
		UpdatedAt:     e.UpdatedAt.UTC(),
	}
}

// ToExpenseListResponse converts expenses to a JSON array. An empty result is
// encoded as [] rather than null.
func ToExpenseListResponse(expenses []*model.Expense) []*ExpenseResponse {
	out := make([]*ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, ToExpenseResponse(e))
	}
	return out
}
