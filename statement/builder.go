/*
Package statement builds date-bounded account statements for a customer.

PURPOSE:
  A Statement is a read-only projection of the movement ledger: for each
  account the customer owns, the movements whose calendar date falls in
  [Start, End], each with its signed amount and recorded balance, plus
  credit and debit totals. Statements are never persisted.

CALENDAR DATES:
  Start and End are truncated to UTC dates. A movement is in range when
  its UTC date is on or between them, regardless of time of day.

FAILURE:
  Resolution failures (unknown customer, no accounts, store errors) abort
  the whole statement. There are no partial statements.

USAGE:
  b := statement.NewBuilder(customers, accounts, movements)
  st, err := b.Build(ctx, "c-1", start, end)
  data, err := renderer.Render(st)

SEE ALSO:
  - statement/pdf: Renderer producing PDF bytes
  - ledger/store.go: Lookup ports consumed here
*/
package statement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/movement-ledger/ledger"
	"go.uber.org/zap"
)

// DateLayout is the wire format of statement dates.
const DateLayout = "2006-01-02"

// =============================================================================
// STATEMENT SHAPE
// =============================================================================

type Statement struct {
	Customer  CustomerRef
	DateRange DateRange
	Accounts  []AccountSummary
}

type CustomerRef struct {
	ID   ledger.CustomerID
	Name string
}

type DateRange struct {
	Start time.Time
	End   time.Time
}

type AccountSummary struct {
	Number         string
	Type           ledger.AccountType
	InitialBalance decimal.Decimal
	Transactions   []Transaction
	Totals         Totals
}

// Transaction is one in-range movement. Amount is signed: DEBIT negative.
type Transaction struct {
	Date             time.Time
	Kind             ledger.MovementKind
	Amount           decimal.Decimal
	AvailableBalance decimal.Decimal
}

// Totals are unsigned sums of credit and debit values.
type Totals struct {
	Credits decimal.Decimal
	Debits  decimal.Decimal
}

// Net is Credits minus Debits.
func (t Totals) Net() decimal.Decimal { return t.Credits.Sub(t.Debits) }

// Renderer turns a Statement into an opaque document.
type Renderer interface {
	Render(st *Statement) ([]byte, error)
}

// FileName is the download name for a rendered statement.
func FileName(customerID ledger.CustomerID, start, end time.Time) string {
	return fmt.Sprintf("account_statement_%s_%s_%s.pdf", customerID, start.Format(DateLayout), end.Format(DateLayout))
}

// =============================================================================
// BUILDER
// =============================================================================

type Builder struct {
	customers ledger.CustomerLookup
	accounts  ledger.AccountLookup
	movements ledger.MovementStore
	logger    *zap.Logger
}

func NewBuilder(customers ledger.CustomerLookup, accounts ledger.AccountLookup, movements ledger.MovementStore) *Builder {
	return &Builder{customers: customers, accounts: accounts, movements: movements, logger: zap.NewNop()}
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// Build assembles the statement for customerID over [start, end].
func (b *Builder) Build(ctx context.Context, customerID ledger.CustomerID, start, end time.Time) (*Statement, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s before %s", ledger.ErrInvalidDateRange, end.Format(DateLayout), start.Format(DateLayout))
	}

	customer, err := b.customers.FindCustomerByID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("find customer %s: %w", customerID, err)
	}
	if customer == nil {
		return nil, ledger.CustomerNotFound(customerID)
	}

	accounts, err := b.accounts.FindAccountsByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("find accounts for customer %s: %w", customerID, err)
	}
	if len(accounts) == 0 {
		return nil, &ledger.NoAccountsError{CustomerID: customerID}
	}

	st := &Statement{
		Customer:  CustomerRef{ID: customer.ID, Name: customer.Name},
		DateRange: DateRange{Start: start, End: end},
		Accounts:  make([]AccountSummary, 0, len(accounts)),
	}
	for _, account := range accounts {
		ordered, err := b.movements.FindMovementsByAccount(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("load movements for account %d: %w", account.ID, err)
		}
		st.Accounts = append(st.Accounts, summarize(account, ordered, start, end))
	}

	b.logger.Debug("statement built",
		zap.String("customer_id", string(customerID)),
		zap.String("start", start.Format(DateLayout)),
		zap.String("end", end.Format(DateLayout)),
		zap.Int("accounts", len(st.Accounts)))
	return st, nil
}

func summarize(account ledger.Account, ordered []ledger.Movement, start, end time.Time) AccountSummary {
	s := AccountSummary{
		Number:         account.Number,
		Type:           account.Type,
		InitialBalance: account.InitialBalance,
		Transactions:   []Transaction{},
		Totals:         Totals{Credits: decimal.Zero, Debits: decimal.Zero},
	}
	for _, m := range ordered {
		if !InRange(m.At, start, end) {
			continue
		}
		s.Transactions = append(s.Transactions, Transaction{
			Date:             m.At,
			Kind:             m.Kind,
			Amount:           m.SignedValue(),
			AvailableBalance: m.AvailableBalance,
		})
		switch m.Kind {
		case ledger.Credit:
			s.Totals.Credits = s.Totals.Credits.Add(m.Value)
		case ledger.Debit:
			s.Totals.Debits = s.Totals.Debits.Add(m.Value)
		}
	}
	return s
}

// Day truncates t to midnight UTC of its UTC calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// InRange reports whether t's UTC date lies in [start, end], both
// inclusive. start and end must already be days.
func InRange(t, start, end time.Time) bool {
	day := Day(t)
	return !day.Before(start) && !day.After(end)
}
