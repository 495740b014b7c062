package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/movement-ledger/ledger"
	"github.com/warp/movement-ledger/statement"
)

func TestRender_ProducesPDF(t *testing.T) {
	// GIVEN: A statement with one populated and one empty account
	st := &statement.Statement{
		Customer:  statement.CustomerRef{ID: "c-1", Name: "Jose Lema"},
		DateRange: statement.DateRange{Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)},
		Accounts: []statement.AccountSummary{
			{
				Number:         "478758",
				Type:           ledger.AccountSavings,
				InitialBalance: decimal.NewFromInt(2000),
				Transactions: []statement.Transaction{{
					Date:             time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
					Kind:             ledger.Debit,
					Amount:           decimal.NewFromInt(-575),
					AvailableBalance: decimal.NewFromInt(1425),
				}},
				Totals: statement.Totals{Credits: decimal.Zero, Debits: decimal.NewFromInt(575)},
			},
			{
				Number:         "225487",
				Type:           ledger.AccountChecking,
				InitialBalance: decimal.NewFromInt(100),
				Transactions:   []statement.Transaction{},
				Totals:         statement.Totals{Credits: decimal.Zero, Debits: decimal.Zero},
			},
		},
	}

	// WHEN: Rendering
	out, err := NewRenderer().Render(st)

	// THEN: The output is a PDF document
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Greater(t, len(out), 500)
}

func TestRender_NilStatement(t *testing.T) {
	_, err := NewRenderer().Render(nil)
	assert.Error(t, err)
}
