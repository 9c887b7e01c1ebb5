package report

import (
	"encoding/csv"
	"io"

	"github.com/cashtrack/cashtrack/internal/model"
)

var csvHeader = []string{"Date", "Category", "Amount", "Description", "Payment Method"}

// missingDescription is written when a record has no description.
const missingDescription = "N/A"

func writeCSV(w io.Writer, records []*model.Expense) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range records {
		row := []string{
			e.DateString(),
			e.Category,
			e.Amount.String(),
			e.DescriptionOr(missingDescription),
			e.PaymentMethod,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
