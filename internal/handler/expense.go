package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cashtrack/cashtrack/internal/auth"
	"github.com/cashtrack/cashtrack/internal/handler/dto"
	"github.com/cashtrack/cashtrack/internal/service"
)

const (
	// mediaField is the multipart field carrying the receipt.
	mediaField = "mediaFile"
	// multipartMemory is kept in memory before parts spill to temp files.
	multipartMemory = 1 << 20
)

// ExpenseHandler handles HTTP requests for expense operations.
type ExpenseHandler struct {
	svc    *service.ExpenseService
	logger *slog.Logger
}

// NewExpenseHandler creates a new ExpenseHandler.
func NewExpenseHandler(svc *service.ExpenseService, logger *slog.Logger) *ExpenseHandler {
	return &ExpenseHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/expenses.
func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	form, err := parseExpenseForm(r)
	if err != nil {
		h.writeFormError(w, r, err)
		return
	}
	defer form.close()

	expense, err := h.svc.Create(r.Context(), service.CreateExpenseInput{
		OwnerID:       ownerID,
		Date:          deref(form.fields.Date),
		Category:      deref(form.fields.Category),
		Amount:        derefNumber(form.fields.Amount),
		Description:   deref(form.fields.Description),
		PaymentMethod: deref(form.fields.PaymentMethod),
		Media:         form.media,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToExpenseResponse(expense))
}

// List handles GET /api/expenses.
func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	expenses, err := h.svc.List(r.Context(), listInput(ownerID, r.URL.Query()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToExpenseListResponse(expenses))
}

// Update handles PATCH and PUT /api/expenses/{id}.
func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	form, err := parseExpenseForm(r)
	if err != nil {
		h.writeFormError(w, r, err)
		return
	}
	defer form.close()

	var amount *string
	if form.fields.Amount != nil {
		s := form.fields.Amount.String()
		amount = &s
	}

	expense, err := h.svc.Update(r.Context(), service.UpdateExpenseInput{
		OwnerID:       ownerID,
		ID:            chi.URLParam(r, "id"),
		Date:          form.fields.Date,
		Category:      form.fields.Category,
		Amount:        amount,
		Description:   form.fields.Description,
		PaymentMethod: form.fields.PaymentMethod,
		Media:         form.media,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToExpenseResponse(expense))
}

// Delete handles DELETE /api/expenses/{id}.
func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeMessage(w, "Expense deleted successfully!")
}

// DeleteMedia handles DELETE /api/expenses/media/{id}.
func (h *ExpenseHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if _, err := h.svc.DeleteMedia(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeMessage(w, "Media file deleted successfully!")
}

// Media handles GET /api/expenses/media/{filePath}.
func (h *ExpenseHandler) Media(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	f, err := h.svc.OpenMedia(r.Context(), ownerID, chi.URLParam(r, "filePath"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "private, max-age=300")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// Report handles GET /api/expenses/report.
func (h *ExpenseHandler) Report(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireUser(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	rendered, err := h.svc.Report(r.Context(), service.ReportInput{
		ListExpensesInput: listInput(ownerID, query),
		Format:            query.Get("format"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("report_rendered",
		"user_id", ownerID,
		"format", string(rendered.Format),
		"records", rendered.Count,
	)

	w.Header().Set("Content-Type", rendered.Format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": rendered.Format.Filename(),
	}))
	w.Header().Set("Content-Length", strconv.Itoa(rendered.Body.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = rendered.Body.WriteTo(w)
}

func (h *ExpenseHandler) writeFormError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
		return
	}
	h.logger.Debug("invalid_expense_body", "error", err)
	writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
}

// expenseForm is a create or update body after decoding.
type expenseForm struct {
	fields dto.ExpenseRequest
	media  *service.Upload
	file   multipart.File
	parsed *multipart.Form
}

func (f *expenseForm) close() {
	if f.file != nil {
		_ = f.file.Close()
	}
	if f.parsed != nil {
		_ = f.parsed.RemoveAll()
	}
}

// parseExpenseForm decodes multipart, urlencoded or JSON bodies. Only
// multipart bodies can carry a media file.
func parseExpenseForm(r *http.Request) (*expenseForm, error) {
	form := &expenseForm{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, err
		}
		form.parsed = r.MultipartForm
		form.fields = fieldsFromValues(url.Values(r.MultipartForm.Value))

		if headers := r.MultipartForm.File[mediaField]; len(headers) > 0 {
			fh := headers[0]
			file, err := fh.Open()
			if err != nil {
				form.close()
				return nil, err
			}
			form.file = file
			form.media = &service.Upload{
				Reader:      file,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
			}
		}

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		form.fields = fieldsFromValues(r.PostForm)

	default:
		if err := json.NewDecoder(r.Body).Decode(&form.fields); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}

	return form, nil
}

func fieldsFromValues(values url.Values) dto.ExpenseRequest {
	var req dto.ExpenseRequest
	req.Date = formValue(values, "date")
	req.Category = formValue(values, "category")
	req.Description = formValue(values, "description")
	req.PaymentMethod = formValue(values, "paymentMethod")
	if amount := formValue(values, "amount"); amount != nil {
		n := json.Number(*amount)
		req.Amount = &n
	}
	return req
}

func formValue(values url.Values, key string) *string {
	v, ok := values[key]
	if !ok || len(v) == 0 {
		return nil
	}
	s := v[0]
	return &s
}

func listInput(ownerID string, query url.Values) service.ListExpensesInput {
	return service.ListExpensesInput{
		OwnerID:   ownerID,
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
		Category:  query.Get("category"),
	}
}

// requireUser returns the authenticated user id or answers 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return "", false
	}
	return userID, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefNumber(n *json.Number) string {
	if n == nil {
		return ""
	}
	return n.String()
}
