// Package report renders expense lists into downloadable documents.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cashtrack/cashtrack/internal/model"
)

// Format is a report encoding.
type Format string

// Supported report formats.
const (
	FormatPDF Format = "pdf"
	FormatCSV Format = "csv"
)

// Report errors.
var (
	ErrInvalidFormat = errors.New("invalid report format")
	ErrNoRecords     = errors.New("no records to report")
)

// ParseFormat validates a format name. Matching is case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatPDF:
		return FormatPDF, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", ErrInvalidFormat
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}

// Filename returns the attachment name for the format.
func (f Format) Filename() string {
	return "expense_report." + string(f)
}

// Render writes records to w in the given format, preserving their order.
func Render(w io.Writer, records []*model.Expense, format Format) error {
	switch format {
	case FormatPDF, FormatCSV:
	default:
		return ErrInvalidFormat
	}

	if len(records) == 0 {
		return ErrNoRecords
	}

	var err error
	if format == FormatPDF {
		err = writePDF(w, records, true)
	} else {
		err = writeCSV(w, records)
	}
	if err != nil {
		return fmt.Errorf("render %s report: %w", format, err)
	}
	return nil
}
