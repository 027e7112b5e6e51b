package bankgrow

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// writeStatementPDF renders the current position of an account. The engine
// keeps no transaction history, so the statement is a point-in-time snapshot.
func writeStatementPDF(w io.Writer, acct *Account) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(100, 12, "Account Statement")
	pdf.Ln(16)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(60, 8, "Account")
	pdf.Cell(100, 8, acct.UserID.String())
	pdf.Ln(8)
	pdf.Cell(60, 8, "Balance")
	pdf.Cell(100, 8, acct.Balance.StringFixed(2))
	pdf.Ln(8)
	pdf.Cell(60, 8, "Growth ceiling")
	pdf.Cell(100, 8, acct.GrowthCeiling.StringFixed(2))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.Cell(160, 6, fmt.Sprintf("Issued %s", time.Now().UTC().Format(time.RFC3339)))

	return pdf.Output(w)
}
