package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cashtrack/cashtrack/internal/model"
)

// Common errors for expense repository operations.
var (
	ErrExpenseNotFound = errors.New("expense not found")
)

// ExpenseFilter defines filters for listing expenses. From and To are
// inclusive bounds on the expense date.
type ExpenseFilter struct {
	OwnerID  string
	From     *time.Time
	To       *time.Time
	Category string
}

const expenseColumns = `id, user_id, date, category, amount, description, payment_method, media_file, created_at, updated_at`

// CreateExpense inserts a new expense into the database.
func (r *Repository) CreateExpense(ctx context.Context, e *model.Expense) error {
	query := `
		INSERT INTO expenses (` + expenseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.UserID,
		e.Date,
		e.Category,
		e.Amount,
		e.Description,
		e.PaymentMethod,
		e.MediaFile,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	return nil
}

// GetExpense retrieves an expense by ID, scoped to its owner.
func (r *Repository) GetExpense(ctx context.Context, ownerID, id string) (*model.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND user_id = $2`

	e, err := scanExpense(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	return e, nil
}

// ListExpenses retrieves the owner's expenses matching the filter,
// newest date first.
func (r *Repository) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]*model.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE user_id = $1`
	args := []any{filter.OwnerID}
	argIndex := 2

	if filter.From != nil {
		query += fmt.Sprintf(" AND date >= $%d", argIndex)
		args = append(args, *filter.From)
		argIndex++
	}

	if filter.To != nil {
		query += fmt.Sprintf(" AND date <= $%d", argIndex)
		args = append(args, *filter.To)
		argIndex++
	}

	if filter.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argIndex)
		args = append(args, filter.Category)
	}

	query += " ORDER BY date DESC, created_at DESC, id DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]*model.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expenses: %w", err)
	}

	return expenses, nil
}

// UpdateExpense writes every mutable field of the expense, including its
// media reference. The owner id is part of the match and is never changed.
func (r *Repository) UpdateExpense(ctx context.Context, e *model.Expense) error {
	query := `
		UPDATE expenses
		SET date = $3, category = $4, amount = $5, description = $6,
		    payment_method = $7, media_file = $8, updated_at = $9
		WHERE id = $1 AND user_id = $2
	`

	result, err := r.pool.Exec(ctx, query,
		e.ID,
		e.UserID,
		e.Date,
		e.Category,
		e.Amount,
		e.Description,
		e.PaymentMethod,
		e.MediaFile,
		e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}

	return nil
}

// DeleteExpense removes an expense.
func (r *Repository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrExpenseNotFound
	}

	return nil
}

// MediaReferencedBy reports whether one of the owner's expenses points at the
// given media file.
func (r *Repository) MediaReferencedBy(ctx context.Context, ownerID, mediaFile string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM expenses WHERE user_id = $1 AND media_file = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, ownerID, mediaFile).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check media reference: %w", err)
	}

	return exists, nil
}

// scanExpense scans a single row into an Expense model.
func scanExpense(row pgx.Row) (*model.Expense, error) {
	var e model.Expense
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.Date,
		&e.Category,
		&e.Amount,
		&e.Description,
		&e.PaymentMethod,
		&e.MediaFile,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return &e, err
}
