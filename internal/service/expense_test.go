package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cashtrack/cashtrack/internal/lock"
	"github.com/cashtrack/cashtrack/internal/media"
	"github.com/cashtrack/cashtrack/internal/metrics"
	"github.com/cashtrack/cashtrack/internal/model"
	"github.com/cashtrack/cashtrack/internal/report"
	"github.com/cashtrack/cashtrack/internal/testutil/memstore"
)

var (
	pngBytes = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")
	pdfBytes = []byte("%PDF-1.4\n%receipt\n")
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type expenseEnv struct {
	svc     *ExpenseService
	store   *memstore.Expenses
	media   *media.Store
	metrics *metrics.InMemoryRecorder
	locker  *lock.Keyed
}

func newExpenseEnv(t *testing.T) *expenseEnv {
	t.Helper()

	mediaStore, err := media.New(filepath.Join(t.TempDir(), "uploads"), media.DefaultMaxSize)
	require.NoError(t, err)

	env := &expenseEnv{
		store:   memstore.NewExpenses(),
		media:   mediaStore,
		metrics: metrics.NewInMemory(),
		locker:  lock.NewKeyed(),
	}
	env.svc = NewExpenseService(env.store, env.media, env.locker, env.metrics, discardLogger())
	env.svc.now = func() time.Time { return fixedNow }
	return env
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngUpload() *Upload {
	return &Upload{Reader: bytes.NewReader(pngBytes), ContentType: "image/png", Size: int64(len(pngBytes))}
}

func pdfUpload() *Upload {
	return &Upload{Reader: bytes.NewReader(pdfBytes), ContentType: "application/pdf", Size: int64(len(pdfBytes))}
}

func validInput(owner string) CreateExpenseInput {
	return CreateExpenseInput{
		OwnerID:       owner,
		Date:          "2024-01-01",
		Category:      "Food",
		Amount:        "20",
		PaymentMethod: "Cash",
	}
}

func strPtr(s string) *string { return &s }

func (env *expenseEnv) create(t *testing.T, input CreateExpenseInput) *model.Expense {
	t.Helper()
	e, err := env.svc.Create(context.Background(), input)
	require.NoError(t, err)
	return e
}

// ============================================================================
// Create
// ============================================================================

func TestExpenseService_Create(t *testing.T) {
	env := newExpenseEnv(t)

	e := env.create(t, validInput("user-1"))

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, "2024-01-01", e.DateString())
	assert.Equal(t, "Food", e.Category)
	assert.Equal(t, "20", e.Amount.String())
	assert.Nil(t, e.Description)
	assert.Nil(t, e.MediaFile)
	assert.Equal(t, fixedNow, e.CreatedAt)
	assert.Equal(t, 1, env.store.Len())
	assert.Equal(t, uint64(1), env.metrics.Snapshot().ExpensesCreated)
}

func TestExpenseService_Create_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateExpenseInput)
		field  string
	}{
		{"missing date", func(in *CreateExpenseInput) { in.Date = "" }, "date"},
		{"malformed date", func(in *CreateExpenseInput) { in.Date = "01/02/2024" }, "date"},
		{"future date", func(in *CreateExpenseInput) { in.Date = "2024-06-16" }, "date"},
		{"future instant", func(in *CreateExpenseInput) { in.Date = fixedNow.Add(time.Second).Format(time.RFC3339) }, "date"},
		{"missing category", func(in *CreateExpenseInput) { in.Category = "" }, "category"},
		{"blank category", func(in *CreateExpenseInput) { in.Category = "   " }, "category"},
		{"missing amount", func(in *CreateExpenseInput) { in.Amount = "" }, "amount"},
		{"non-numeric amount", func(in *CreateExpenseInput) { in.Amount = "twenty" }, "amount"},
		{"missing payment method", func(in *CreateExpenseInput) { in.PaymentMethod = "" }, "paymentMethod"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := newExpenseEnv(t)
			input := validInput("user-1")
			input.Media = pngUpload()
			tt.mutate(&input)

			_, err := env.svc.Create(context.Background(), input)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, env.store.Len())

			entries, err := os.ReadDir(env.media.Dir())
			require.NoError(t, err)
			assert.Empty(t, entries, "no file stored for an invalid request")
		})
	}
}

func TestExpenseService_Create_DateEqualToNow(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Date = fixedNow.Format(time.RFC3339)

	e, err := env.svc.Create(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, e.Date.Equal(fixedNow))
}

func TestExpenseService_Create_WithMedia(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Description = "receipt"
	input.Media = pngUpload()

	e := env.create(t, input)

	require.True(t, e.HasMedia())
	assert.True(t, env.media.Exists(*e.MediaFile))
	assert.Equal(t, "receipt", e.DescriptionOr(""))
	assert.Equal(t, uint64(1), env.metrics.Snapshot().MediaStored)
}

func TestExpenseService_Create_RejectsMedia(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = &Upload{Reader: bytes.NewReader([]byte("hello")), ContentType: "text/plain", Size: 5}

	_, err := env.svc.Create(context.Background(), input)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)

	input.Media = &Upload{Reader: bytes.NewReader(pngBytes), ContentType: "image/png", Size: media.DefaultMaxSize + 1}
	_, err = env.svc.Create(context.Background(), input)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	assert.Zero(t, env.store.Len())
}

func TestExpenseService_Create_StoreFailureRemovesMedia(t *testing.T) {
	env := newExpenseEnv(t)
	env.store.CreateErr = errors.New("db down")

	input := validInput("user-1")
	input.Media = pngUpload()

	_, err := env.svc.Create(context.Background(), input)
	require.Error(t, err)

	entries, err := os.ReadDir(env.media.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// ============================================================================
// List
// ============================================================================

func TestExpenseService_List(t *testing.T) {
	env := newExpenseEnv(t)

	for _, in := range []struct{ date, category string }{
		{"2024-01-01", "Food"},
		{"2024-01-31", "Travel"},
		{"2024-02-01", "Food"},
	} {
		input := validInput("user-1")
		input.Date = in.date
		input.Category = in.category
		env.create(t, input)
	}
	env.create(t, validInput("user-2"))

	ctx := context.Background()

	all, err := env.svc.List(ctx, ListExpensesInput{OwnerID: "user-1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2024-02-01", all[0].DateString())
	assert.Equal(t, "2024-01-01", all[2].DateString())

	january, err := env.svc.List(ctx, ListExpensesInput{OwnerID: "user-1", StartDate: "2024-01-01", EndDate: "2024-01-31"})
	require.NoError(t, err)
	assert.Len(t, january, 2, "end date covers the whole day")

	food, err := env.svc.List(ctx, ListExpensesInput{OwnerID: "user-1", Category: "Food"})
	require.NoError(t, err)
	assert.Len(t, food, 2)

	none, err := env.svc.List(ctx, ListExpensesInput{OwnerID: "user-3"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestExpenseService_List_InvalidRange(t *testing.T) {
	env := newExpenseEnv(t)
	ctx := context.Background()

	var verr *ValidationError

	_, err := env.svc.List(ctx, ListExpensesInput{OwnerID: "user-1", StartDate: "yesterday"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "startDate", verr.Field)

	_, err = env.svc.List(ctx, ListExpensesInput{OwnerID: "user-1", StartDate: "2024-02-01", EndDate: "2024-01-01"})
	require.ErrorAs(t, err, &verr)
}

// ============================================================================
// Update
// ============================================================================

func TestExpenseService_Update_Fields(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Description = "old"
	e := env.create(t, input)

	updated, err := env.svc.Update(context.Background(), UpdateExpenseInput{
		OwnerID:     "user-1",
		ID:          e.ID,
		Category:    strPtr("Groceries"),
		Amount:      strPtr("42.50"),
		Description: strPtr(""),
	})
	require.NoError(t, err)

	assert.Equal(t, "Groceries", updated.Category)
	assert.Equal(t, "42.5", updated.Amount.String())
	assert.Nil(t, updated.Description, "empty description clears it")
	assert.Equal(t, "2024-01-01", updated.DateString(), "untouched fields are kept")
	assert.Equal(t, "Cash", updated.PaymentMethod)
	assert.Equal(t, e.UserID, updated.UserID)
	assert.Equal(t, uint64(1), env.metrics.Snapshot().ExpensesUpdated)
}

func TestExpenseService_Update_Validation(t *testing.T) {
	env := newExpenseEnv(t)
	e := env.create(t, validInput("user-1"))

	_, err := env.svc.Update(context.Background(), UpdateExpenseInput{
		OwnerID: "user-1",
		ID:      e.ID,
		Date:    strPtr("2030-01-01"),
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "date", verr.Field)
}

func TestExpenseService_Update_NotFound(t *testing.T) {
	env := newExpenseEnv(t)
	e := env.create(t, validInput("user-1"))

	_, err := env.svc.Update(context.Background(), UpdateExpenseInput{OwnerID: "user-1", ID: "missing"})
	assert.ErrorIs(t, err, ErrExpenseNotFound)

	_, err = env.svc.Update(context.Background(), UpdateExpenseInput{OwnerID: "user-2", ID: e.ID, Category: strPtr("x")})
	assert.ErrorIs(t, err, ErrExpenseNotFound, "foreign records look unknown")
}

func TestExpenseService_Update_UnknownIDBeforeValidation(t *testing.T) {
	env := newExpenseEnv(t)
	e := env.create(t, validInput("user-1"))

	tests := []struct {
		name  string
		owner string
		id    string
	}{
		{"unknown id", "user-1", "missing"},
		{"foreign id", "user-2", e.ID},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Update(context.Background(), UpdateExpenseInput{
				OwnerID: tt.owner,
				ID:      tt.id,
				Amount:  strPtr("not-a-number"),
			})
			assert.ErrorIs(t, err, ErrExpenseNotFound)
		})
	}
}

func TestExpenseService_Update_ReplacesMedia(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)
	oldFile := *e.MediaFile

	updated, err := env.svc.Update(context.Background(), UpdateExpenseInput{
		OwnerID: "user-1",
		ID:      e.ID,
		Media:   pdfUpload(),
	})
	require.NoError(t, err)

	require.True(t, updated.HasMedia())
	newFile := *updated.MediaFile
	assert.NotEqual(t, oldFile, newFile)
	assert.False(t, env.media.Exists(oldFile), "old file removed")
	assert.True(t, env.media.Exists(newFile), "new file present")

	stored, err := env.store.GetExpense(context.Background(), "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, newFile, *stored.MediaFile)
}

func TestExpenseService_Update_StoreFailureKeepsOldMedia(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)
	oldFile := *e.MediaFile

	env.store.UpdateErr = errors.New("db down")

	_, err := env.svc.Update(context.Background(), UpdateExpenseInput{OwnerID: "user-1", ID: e.ID, Media: pdfUpload()})
	require.Error(t, err)

	assert.True(t, env.media.Exists(oldFile), "old file kept")
	entries, err := os.ReadDir(env.media.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "new file rolled back")
}

func TestExpenseService_Update_RecordBusy(t *testing.T) {
	env := newExpenseEnv(t)
	env.svc.lockWait = 20 * time.Millisecond
	e := env.create(t, validInput("user-1"))

	release, err := env.locker.Acquire(context.Background(), "expense:"+e.ID)
	require.NoError(t, err)
	defer release()

	_, err = env.svc.Update(context.Background(), UpdateExpenseInput{OwnerID: "user-1", ID: e.ID, Category: strPtr("x")})
	assert.ErrorIs(t, err, ErrRecordBusy)

	err = env.svc.Delete(context.Background(), "user-1", e.ID)
	assert.ErrorIs(t, err, ErrRecordBusy)
}

// ============================================================================
// Delete
// ============================================================================

func TestExpenseService_Delete(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)

	require.NoError(t, env.svc.Delete(context.Background(), "user-1", e.ID))

	assert.False(t, env.media.Exists(*e.MediaFile))
	list, err := env.svc.List(context.Background(), ListExpensesInput{OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Empty(t, list)

	snap := env.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.ExpensesDeleted)
	assert.Equal(t, uint64(1), snap.MediaRemoved)

	assert.ErrorIs(t, env.svc.Delete(context.Background(), "user-1", e.ID), ErrExpenseNotFound)
}

func TestExpenseService_Delete_ForeignOwner(t *testing.T) {
	env := newExpenseEnv(t)
	e := env.create(t, validInput("user-1"))

	assert.ErrorIs(t, env.svc.Delete(context.Background(), "user-2", e.ID), ErrExpenseNotFound)
	assert.Equal(t, 1, env.store.Len())
}

func TestExpenseService_Delete_FileRemovalFailureIsLogged(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)

	env.svc.media = &failingRemove{MediaStore: env.media}

	require.NoError(t, env.svc.Delete(context.Background(), "user-1", e.ID))
	assert.Zero(t, env.store.Len(), "record removed even when the file is not")
	assert.Equal(t, uint64(1), env.metrics.Snapshot().MediaRemoveFailed)
}

// ============================================================================
// DeleteMedia
// ============================================================================

func TestExpenseService_DeleteMedia(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)
	file := *e.MediaFile

	updated, err := env.svc.DeleteMedia(context.Background(), "user-1", e.ID)
	require.NoError(t, err)

	assert.Nil(t, updated.MediaFile)
	assert.False(t, env.media.Exists(file))

	stored, err := env.store.GetExpense(context.Background(), "user-1", e.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.MediaFile)
}

func TestExpenseService_DeleteMedia_NoMedia(t *testing.T) {
	env := newExpenseEnv(t)
	e := env.create(t, validInput("user-1"))

	_, err := env.svc.DeleteMedia(context.Background(), "user-1", e.ID)
	assert.ErrorIs(t, err, ErrNoMedia)

	stored, err := env.store.GetExpense(context.Background(), "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.UpdatedAt, stored.UpdatedAt, "record unchanged")
}

func TestExpenseService_DeleteMedia_NotFound(t *testing.T) {
	env := newExpenseEnv(t)

	_, err := env.svc.DeleteMedia(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, ErrExpenseNotFound)
}

func TestExpenseService_DeleteMedia_RemovalFailureKeepsReference(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)
	file := *e.MediaFile

	env.svc.media = &failingRemove{MediaStore: env.media}

	_, err := env.svc.DeleteMedia(context.Background(), "user-1", e.ID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoMedia)

	stored, err := env.store.GetExpense(context.Background(), "user-1", e.ID)
	require.NoError(t, err)
	require.True(t, stored.HasMedia())
	assert.Equal(t, file, *stored.MediaFile)
}

func TestExpenseService_DeleteMedia_StoreFailureLogsStaleReference(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)
	file := *e.MediaFile

	var logs bytes.Buffer
	env.svc.logger = slog.New(slog.NewJSONHandler(&logs, nil))
	env.store.UpdateErr = errors.New("db down")

	_, err := env.svc.DeleteMedia(context.Background(), "user-1", e.ID)
	require.Error(t, err)
	assert.False(t, env.media.Exists(file))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "media_reference_stale", entry["msg"])
	assert.Equal(t, e.ID, entry["expense_id"])
	assert.Equal(t, file, entry["media_file"])
}

// ============================================================================
// OpenMedia
// ============================================================================

func TestExpenseService_OpenMedia(t *testing.T) {
	env := newExpenseEnv(t)

	input := validInput("user-1")
	input.Media = pngUpload()
	e := env.create(t, input)
	ctx := context.Background()

	f, err := env.svc.OpenMedia(ctx, "user-1", *e.MediaFile)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, pngBytes, body)

	_, err = env.svc.OpenMedia(ctx, "user-2", *e.MediaFile)
	assert.ErrorIs(t, err, ErrMediaNotFound)

	_, err = env.svc.OpenMedia(ctx, "user-1", "../"+*e.MediaFile)
	assert.ErrorIs(t, err, ErrMediaNotFound)
}

// ============================================================================
// Report
// ============================================================================

func TestExpenseService_Report_CSV(t *testing.T) {
	env := newExpenseEnv(t)

	for _, date := range []string{"2024-01-01", "2024-03-01", "2024-02-01"} {
		input := validInput("user-1")
		input.Date = date
		env.create(t, input)
	}

	rendered, err := env.svc.Report(context.Background(), ReportInput{
		ListExpensesInput: ListExpensesInput{OwnerID: "user-1"},
		Format:            "csv",
	})
	require.NoError(t, err)
	assert.Equal(t, report.FormatCSV, rendered.Format)
	assert.Equal(t, 3, rendered.Count)

	rows, err := csv.NewReader(rendered.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "2024-03-01", rows[1][0])
	assert.Equal(t, "2024-02-01", rows[2][0])
	assert.Equal(t, "2024-01-01", rows[3][0])
	assert.Equal(t, "N/A", rows[1][3])

	assert.Equal(t, uint64(1), env.metrics.Snapshot().ReportsCSV)
}

func TestExpenseService_Report_PDF(t *testing.T) {
	env := newExpenseEnv(t)
	env.create(t, validInput("user-1"))

	rendered, err := env.svc.Report(context.Background(), ReportInput{
		ListExpensesInput: ListExpensesInput{OwnerID: "user-1"},
		Format:            "pdf",
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(rendered.Body.Bytes(), []byte("%PDF-")))
}

func TestExpenseService_Report_Errors(t *testing.T) {
	env := newExpenseEnv(t)
	env.create(t, validInput("user-1"))
	ctx := context.Background()

	_, err := env.svc.Report(ctx, ReportInput{ListExpensesInput: ListExpensesInput{OwnerID: "user-1"}, Format: "xlsx"})
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = env.svc.Report(ctx, ReportInput{ListExpensesInput: ListExpensesInput{OwnerID: "user-1", Category: "Rent"}, Format: "pdf"})
	assert.ErrorIs(t, err, ErrNoExpenses)

	_, err = env.svc.Report(ctx, ReportInput{ListExpensesInput: ListExpensesInput{OwnerID: "user-2"}, Format: "csv"})
	assert.ErrorIs(t, err, ErrNoExpenses, "other users' records are never reported")
}

// failingRemove is a media store whose removals always fail.
type failingRemove struct {
	MediaStore
}

func (f *failingRemove) Remove(name string) error {
	return errors.New("permission denied")
}
