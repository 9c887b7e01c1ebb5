package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/cashtrack/cashtrack/internal/lock"
	"github.com/cashtrack/cashtrack/internal/media"
	"github.com/cashtrack/cashtrack/internal/metrics"
	"github.com/cashtrack/cashtrack/internal/model"
	"github.com/cashtrack/cashtrack/internal/report"
	"github.com/cashtrack/cashtrack/internal/repository"
)

// defaultLockWait bounds how long a request waits for a busy record.
const defaultLockWait = 10 * time.Second

// ExpenseStore persists expenses. Every lookup is scoped to an owner.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e *model.Expense) error
	GetExpense(ctx context.Context, ownerID, id string) (*model.Expense, error)
	ListExpenses(ctx context.Context, filter repository.ExpenseFilter) ([]*model.Expense, error)
	UpdateExpense(ctx context.Context, e *model.Expense) error
	DeleteExpense(ctx context.Context, ownerID, id string) error
	MediaReferencedBy(ctx context.Context, ownerID, mediaFile string) (bool, error)
}

// MediaStore keeps uploaded files.
type MediaStore interface {
	Accept(r io.Reader, declaredType string, size int64) (string, error)
	Remove(name string) error
	Open(name string) (*os.File, error)
}

// Locker serializes work on one record.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Upload is a media file received with a request.
type Upload struct {
	Reader      io.Reader
	ContentType string
	Size        int64
}

// ExpenseService handles the expense lifecycle and keeps media references in
// step with the files on disk.
type ExpenseService struct {
	store    ExpenseStore
	media    MediaStore
	locker   Locker
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
	lockWait time.Duration
}

// NewExpenseService creates a new ExpenseService. A nil locker falls back to
// an in-process keyed lock.
func NewExpenseService(store ExpenseStore, mediaStore MediaStore, locker Locker, recorder metrics.Recorder, logger *slog.Logger) *ExpenseService {
	if locker == nil {
		locker = lock.NewKeyed()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseService{
		store:    store,
		media:    mediaStore,
		locker:   locker,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
		lockWait: defaultLockWait,
	}
}

// CreateExpenseInput defines input for creating an expense. Field values are
// raw request text.
type CreateExpenseInput struct {
	OwnerID       string
	Date          string
	Category      string
	Amount        string
	Description   string
	PaymentMethod string
	Media         *Upload
}

// Create validates and stores a new expense with its optional media file.
func (s *ExpenseService) Create(ctx context.Context, input CreateExpenseInput) (*model.Expense, error) {
	now := s.now().UTC()

	date, err := parseExpenseDate(input.Date, now)
	if err != nil {
		return nil, err
	}
	category, err := parseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	paymentMethod, err := parsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, err
	}

	expense := &model.Expense{
		ID:            newID(),
		UserID:        input.OwnerID,
		Date:          date,
		Category:      category,
		Amount:        amount,
		Description:   optionalText(input.Description),
		PaymentMethod: paymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if input.Media != nil {
		name, err := s.storeMedia(input.Media)
		if err != nil {
			return nil, err
		}
		expense.MediaFile = &name
	}

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		if expense.HasMedia() {
			s.removeMediaBestEffort(*expense.MediaFile, expense.ID)
		}
		return nil, fmt.Errorf("failed to create expense: %w", err)
	}

	s.metrics.IncExpenseCreated()
	s.logger.Info("expense_created",
		"expense_id", expense.ID,
		"user_id", expense.UserID,
		"has_media", expense.HasMedia(),
	)

	return expense, nil
}

// ListExpensesInput defines the filters of a listing. Dates are raw request
// text; empty values mean no bound.
type ListExpensesInput struct {
	OwnerID   string
	StartDate string
	EndDate   string
	Category  string
}

// List returns the owner's expenses matching the filters, newest first.
func (s *ExpenseService) List(ctx context.Context, input ListExpensesInput) ([]*model.Expense, error) {
	filter, err := buildFilter(input)
	if err != nil {
		return nil, err
	}

	expenses, err := s.store.ListExpenses(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	return expenses, nil
}

// UpdateExpenseInput defines input for updating an expense. Nil fields are
// left unchanged; an empty Description clears it.
type UpdateExpenseInput struct {
	OwnerID       string
	ID            string
	Date          *string
	Category      *string
	Amount        *string
	Description   *string
	PaymentMethod *string
	Media         *Upload
}

// Update applies a patch to an expense. A new media file replaces the old
// one: the record is switched to the new file before the old one is removed,
// so it never points at a deleted file.
func (s *ExpenseService) Update(ctx context.Context, input UpdateExpenseInput) (*model.Expense, error) {
	release, err := s.acquire(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Unknown ids win over malformed fields.
	expense, err := s.get(ctx, input.OwnerID, input.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	patch, err := parsePatch(input, now)
	if err != nil {
		return nil, err
	}
	patch.apply(expense)

	var previous string
	if input.Media != nil {
		name, err := s.storeMedia(input.Media)
		if err != nil {
			return nil, err
		}
		if expense.HasMedia() {
			previous = *expense.MediaFile
		}
		expense.MediaFile = &name
	}
	expense.UpdatedAt = now

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		if input.Media != nil {
			s.removeMediaBestEffort(*expense.MediaFile, expense.ID)
		}
		if errors.Is(err, repository.ErrExpenseNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("failed to update expense: %w", err)
	}

	if previous != "" {
		s.removeMediaBestEffort(previous, expense.ID)
	}

	s.metrics.IncExpenseUpdated()
	s.logger.Info("expense_updated",
		"expense_id", expense.ID,
		"user_id", expense.UserID,
		"media_replaced", input.Media != nil,
	)

	return expense, nil
}

// Delete removes an expense and then its media file. A failed file removal
// is logged and does not fail the call.
func (s *ExpenseService) Delete(ctx context.Context, ownerID, id string) error {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	expense, err := s.get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteExpense(ctx, ownerID, id); err != nil {
		if errors.Is(err, repository.ErrExpenseNotFound) {
			return ErrExpenseNotFound
		}
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	if expense.HasMedia() {
		s.removeMediaBestEffort(*expense.MediaFile, expense.ID)
	}

	s.metrics.IncExpenseDeleted()
	s.logger.Info("expense_deleted", "expense_id", id, "user_id", ownerID)

	return nil
}

// DeleteMedia removes the media file of an expense and clears the reference.
// The reference is only cleared once the file is gone; if removal fails the
// record is left untouched.
func (s *ExpenseService) DeleteMedia(ctx context.Context, ownerID, id string) (*model.Expense, error) {
	release, err := s.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	expense, err := s.get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !expense.HasMedia() {
		return nil, ErrNoMedia
	}

	name := *expense.MediaFile
	if err := s.media.Remove(name); err != nil {
		s.metrics.IncMediaRemoveFailed()
		return nil, fmt.Errorf("failed to delete media file: %w", err)
	}
	s.metrics.IncMediaRemoved()

	expense.MediaFile = nil
	expense.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		s.logger.Warn("media_reference_stale",
			"expense_id", id,
			"user_id", ownerID,
			"media_file", name,
			"error", err,
		)
		if errors.Is(err, repository.ErrExpenseNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("failed to clear media reference: %w", err)
	}

	s.logger.Info("expense_media_deleted", "expense_id", id, "user_id", ownerID, "media_file", name)

	return expense, nil
}

// OpenMedia opens a media file for streaming. Only files referenced by one of
// the owner's expenses can be opened.
func (s *ExpenseService) OpenMedia(ctx context.Context, ownerID, name string) (*os.File, error) {
	owned, err := s.store.MediaReferencedBy(ctx, ownerID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to check media owner: %w", err)
	}
	if !owned {
		return nil, ErrMediaNotFound
	}

	f, err := s.media.Open(name)
	if err != nil {
		if errors.Is(err, media.ErrMediaNotFound) || errors.Is(err, media.ErrInvalidPath) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}
	return f, nil
}

// ReportInput defines a report request. Filters follow List.
type ReportInput struct {
	ListExpensesInput
	Format string
}

// RenderedReport is a report held in memory.
type RenderedReport struct {
	Format report.Format
	Body   *bytes.Buffer
	Count  int
}

// Report renders the owner's filtered expenses, newest first.
func (s *ExpenseService) Report(ctx context.Context, input ReportInput) (*RenderedReport, error) {
	start := time.Now()

	format, err := report.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}

	expenses, err := s.List(ctx, input.ListExpensesInput)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, ErrNoExpenses
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, expenses, format); err != nil {
		return nil, err
	}

	s.metrics.IncReportRendered(string(format))
	s.metrics.ObserveReportDuration(time.Since(start))

	return &RenderedReport{Format: format, Body: &buf, Count: len(expenses)}, nil
}

func (s *ExpenseService) get(ctx context.Context, ownerID, id string) (*model.Expense, error) {
	expense, err := s.store.GetExpense(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, repository.ErrExpenseNotFound) {
			return nil, ErrExpenseNotFound
		}
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

func (s *ExpenseService) acquire(ctx context.Context, id string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()

	release, err := s.locker.Acquire(ctx, "expense:"+id)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return nil, ErrRecordBusy
		}
		return nil, fmt.Errorf("failed to lock expense: %w", err)
	}
	return release, nil
}

func (s *ExpenseService) storeMedia(upload *Upload) (string, error) {
	name, err := s.media.Accept(upload.Reader, upload.ContentType, upload.Size)
	if err != nil {
		return "", err
	}
	s.metrics.IncMediaStored()
	return name, nil
}

func (s *ExpenseService) removeMediaBestEffort(name, expenseID string) {
	if err := s.media.Remove(name); err != nil {
		s.metrics.IncMediaRemoveFailed()
		s.logger.Warn("media_remove_failed",
			"media_file", name,
			"expense_id", expenseID,
			"error", err,
		)
		return
	}
	s.metrics.IncMediaRemoved()
}

// expensePatch holds validated update fields.
type expensePatch struct {
	date          *time.Time
	category      *string
	amount        *decimal.Decimal
	description   *string
	clearDesc     bool
	paymentMethod *string
}

func parsePatch(input UpdateExpenseInput, now time.Time) (*expensePatch, error) {
	patch := &expensePatch{}

	if input.Date != nil {
		date, err := parseExpenseDate(*input.Date, now)
		if err != nil {
			return nil, err
		}
		patch.date = &date
	}
	if input.Category != nil {
		category, err := parseCategory(*input.Category)
		if err != nil {
			return nil, err
		}
		patch.category = &category
	}
	if input.Amount != nil {
		amount, err := parseAmount(*input.Amount)
		if err != nil {
			return nil, err
		}
		patch.amount = &amount
	}
	if input.Description != nil {
		patch.description = optionalText(*input.Description)
		patch.clearDesc = patch.description == nil
	}
	if input.PaymentMethod != nil {
		method, err := parsePaymentMethod(*input.PaymentMethod)
		if err != nil {
			return nil, err
		}
		patch.paymentMethod = &method
	}

	return patch, nil
}

func (p *expensePatch) apply(e *model.Expense) {
	if p.date != nil {
		e.Date = *p.date
	}
	if p.category != nil {
		e.Category = *p.category
	}
	if p.amount != nil {
		e.Amount = *p.amount
	}
	if p.description != nil || p.clearDesc {
		e.Description = p.description
	}
	if p.paymentMethod != nil {
		e.PaymentMethod = *p.paymentMethod
	}
}

func buildFilter(input ListExpensesInput) (repository.ExpenseFilter, error) {
	from, to, err := dateRange(input.StartDate, input.EndDate)
	if err != nil {
		return repository.ExpenseFilter{}, err
	}
	return repository.ExpenseFilter{
		OwnerID:  input.OwnerID,
		From:     from,
		To:       to,
		Category: strings.TrimSpace(input.Category),
	}, nil
}

// newID returns a sortable unique identifier.
func newID() string {
	return ulid.Make().String()
}
