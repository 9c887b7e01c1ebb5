package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/cashtrack/cashtrack/internal/model"
)

const pdfTitle = "Expense Report"

// pdfLine formats one record as "{n}. {date} - {category} - ${amount}".
func pdfLine(index int, e *model.Expense) string {
	return fmt.Sprintf("%d. %s - %s - $%s", index+1, e.DateString(), e.Category, e.Amount.String())
}

func writePDF(w io.Writer, records []*model.Expense, compress bool) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compress)
	pdf.SetTitle(pdfTitle, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, pdfTitle, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 12)
	for i, e := range records {
		pdf.MultiCell(0, 7, pdfText(pdfLine(i, e)), "", "L", false)
	}

	return pdf.Output(w)
}

// pdfText encodes s for the core fonts, which only cover cp1252. Runes outside
// it (CJK, emoji) become '?' so a lossy line is visible in the report.
func pdfText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}
