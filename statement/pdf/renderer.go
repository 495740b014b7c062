// Package pdf renders statements as PDF documents.
package pdf

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
	"github.com/warp/movement-ledger/statement"
)

var columns = []struct {
	title string
	width float64
	align string
}{
	{"Date", 40, "L"},
	{"Kind", 30, "L"},
	{"Amount", 50, "R"},
	{"Balance", 50, "R"},
}

// Renderer lays out one A4 document per statement.
type Renderer struct {
	Title string
}

func NewRenderer() *Renderer {
	return &Renderer{Title: "Account Statement"}
}

var _ statement.Renderer = (*Renderer)(nil)

func (r *Renderer) Render(st *statement.Statement) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("render statement: nil statement")
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle(r.Title, false)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 16)
	doc.CellFormat(0, 10, r.Title, "", 1, "C", false, 0, "")
	doc.Ln(4)

	doc.SetFont("Helvetica", "", 11)
	doc.Cell(0, 6, fmt.Sprintf("Customer: %s (%s)", st.Customer.Name, st.Customer.ID))
	doc.Ln(6)
	doc.Cell(0, 6, fmt.Sprintf("Period: %s to %s",
		st.DateRange.Start.Format(statement.DateLayout),
		st.DateRange.End.Format(statement.DateLayout)))
	doc.Ln(10)

	for _, account := range st.Accounts {
		renderAccount(doc, account)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render statement: %w", err)
	}
	return buf.Bytes(), nil
}

func renderAccount(doc *fpdf.Fpdf, a statement.AccountSummary) {
	doc.SetFont("Helvetica", "B", 12)
	doc.Cell(0, 7, fmt.Sprintf("Account %s (%s)", a.Number, a.Type))
	doc.Ln(7)

	doc.SetFont("Helvetica", "", 10)
	doc.Cell(0, 6, "Initial balance: "+a.InitialBalance.StringFixed(2))
	doc.Ln(8)

	if len(a.Transactions) > 0 {
		doc.SetFont("Helvetica", "B", 10)
		for _, c := range columns {
			doc.CellFormat(c.width, 7, c.title, "1", 0, "C", false, 0, "")
		}
		doc.Ln(-1)

		doc.SetFont("Helvetica", "", 10)
		for _, tx := range a.Transactions {
			cells := []string{
				tx.Date.Format(statement.DateLayout),
				string(tx.Kind),
				tx.Amount.StringFixed(2),
				tx.AvailableBalance.StringFixed(2),
			}
			for i, c := range columns {
				doc.CellFormat(c.width, 6, cells[i], "1", 0, c.align, false, 0, "")
			}
			doc.Ln(-1)
		}
		doc.Ln(2)
	} else {
		doc.SetFont("Helvetica", "I", 10)
		doc.Cell(0, 6, "No movements in this period.")
		doc.Ln(8)
	}

	doc.SetFont("Helvetica", "", 10)
	doc.Cell(0, 6, fmt.Sprintf("Total credits: %s    Total debits: %s",
		a.Totals.Credits.StringFixed(2), a.Totals.Debits.StringFixed(2)))
	doc.Ln(12)
}
