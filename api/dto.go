/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON shapes of the REST surface. Domain types stay free of JSON tags;
  conversion happens here.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Request amounts decode into decimal.Decimal and accept both JSON
  numbers and quoted strings. Response amounts are strings with two
  decimal places.

DATES:
  Movement dates are RFC 3339 in responses. Requests accept RFC 3339 or a
  bare YYYY-MM-DD (midnight UTC). Statement dates, including each
  transaction's, are YYYY-MM-DD.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/movement-ledger/ledger"
	"github.com/warp/movement-ledger/statement"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	Age            int    `json:"age"`
	Identification string `json:"identification"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Active         bool   `json:"active"`
}

// CustomerRequest creates or replaces a customer. ID is optional on
// create and ignored on update.
type CustomerRequest struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Gender         string `json:"gender"`
	Age            int    `json:"age"`
	Identification string `json:"identification"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Active         *bool  `json:"active"`
}

func (r CustomerRequest) toCustomer() ledger.Customer {
	return ledger.Customer{
		ID:             ledger.CustomerID(r.ID),
		Name:           r.Name,
		Gender:         r.Gender,
		Age:            r.Age,
		Identification: r.Identification,
		Address:        r.Address,
		Phone:          r.Phone,
		Active:         boolOr(r.Active, true),
	}
}

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	return CustomerDTO{
		ID:             string(c.ID),
		Name:           c.Name,
		Gender:         c.Gender,
		Age:            c.Age,
		Identification: c.Identification,
		Address:        c.Address,
		Phone:          c.Phone,
		Active:         c.Active,
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID             int64  `json:"id"`
	Number         string `json:"number"`
	Type           string `json:"type"`
	InitialBalance string `json:"initialBalance"`
	Active         bool   `json:"active"`
	CustomerID     string `json:"customerId"`
	CustomerName   string `json:"customerName"`
}

// AccountRequest creates or replaces an account. A blank number is
// generated on create and kept on update.
type AccountRequest struct {
	Number         string          `json:"number"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initialBalance"`
	Active         *bool           `json:"active"`
	CustomerID     string          `json:"customerId"`
}

func (r AccountRequest) toAccount() ledger.Account {
	return ledger.Account{
		Number:         r.Number,
		Type:           ledger.AccountType(r.Type),
		InitialBalance: r.InitialBalance,
		Active:         boolOr(r.Active, true),
		CustomerID:     ledger.CustomerID(r.CustomerID),
	}
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:             int64(a.ID),
		Number:         a.Number,
		Type:           string(a.Type),
		InitialBalance: money(a.InitialBalance),
		Active:         a.Active,
		CustomerID:     string(a.CustomerID),
		CustomerName:   a.CustomerName,
	}
}

func toAccountDTOs(accounts []ledger.Account) []AccountDTO {
	out := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountDTO(a))
	}
	return out
}

type BalanceDTO struct {
	AccountID int64  `json:"accountId"`
	Balance   string `json:"balance"`
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementDTO struct {
	ID               int64  `json:"id"`
	AccountID        int64  `json:"accountId"`
	AccountNumber    string `json:"accountNumber"`
	Date             string `json:"date"`
	Kind             string `json:"kind"`
	Value            string `json:"value"`
	AvailableBalance string `json:"availableBalance"`
}

// CreateMovementRequest names the account by accountId or, when that is
// zero, by accountNumber.
type CreateMovementRequest struct {
	AccountID     int64           `json:"accountId"`
	AccountNumber string          `json:"accountNumber"`
	Kind          string          `json:"kind"`
	Value         decimal.Decimal `json:"value"`
	Date          string          `json:"date"`
}

type UpdateMovementRequest struct {
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
	Date  string          `json:"date"`
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:               int64(m.ID),
		AccountID:        int64(m.AccountID),
		AccountNumber:    m.AccountNumber,
		Date:             m.At.UTC().Format(time.RFC3339),
		Kind:             string(m.Kind),
		Value:            money(m.Value),
		AvailableBalance: money(m.AvailableBalance),
	}
}

func toMovementDTOs(ms []ledger.Movement) []MovementDTO {
	out := make([]MovementDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, toMovementDTO(m))
	}
	return out
}

type ChainBreakDTO struct {
	MovementID int64  `json:"movementId"`
	Date       string `json:"date"`
	Recorded   string `json:"recorded"`
	Expected   string `json:"expected"`
}

type AuditDTO struct {
	AccountID      int64           `json:"accountId"`
	InitialBalance string          `json:"initialBalance"`
	Movements      int             `json:"movements"`
	TailBalance    string          `json:"tailBalance"`
	ReplayBalance  string          `json:"replayBalance"`
	Consistent     bool            `json:"consistent"`
	Breaks         []ChainBreakDTO `json:"breaks"`
}

func toAuditDTO(r ledger.AuditReport) AuditDTO {
	dto := AuditDTO{
		AccountID:      int64(r.AccountID),
		InitialBalance: money(r.InitialBalance),
		Movements:      r.Movements,
		TailBalance:    money(r.TailBalance),
		ReplayBalance:  money(r.ReplayBalance),
		Consistent:     r.Consistent(),
		Breaks:         make([]ChainBreakDTO, 0, len(r.Breaks)),
	}
	for _, b := range r.Breaks {
		dto.Breaks = append(dto.Breaks, ChainBreakDTO{
			MovementID: int64(b.Movement.ID),
			Date:       b.Movement.At.UTC().Format(time.RFC3339),
			Recorded:   money(b.Recorded),
			Expected:   money(b.Expected),
		})
	}
	return dto
}

// =============================================================================
// STATEMENTS
// =============================================================================

type StatementDTO struct {
	Customer  StatementCustomerDTO  `json:"customer"`
	DateRange DateRangeDTO          `json:"dateRange"`
	Accounts  []StatementAccountDTO `json:"accounts"`
	PDFBase64 string                `json:"pdfBase64,omitempty"`
}

type StatementCustomerDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type DateRangeDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type StatementAccountDTO struct {
	Number         string                    `json:"number"`
	Type           string                    `json:"type"`
	InitialBalance string                    `json:"initialBalance"`
	Transactions   []StatementTransactionDTO `json:"transactions"`
	Totals         TotalsDTO                 `json:"totals"`
}

type StatementTransactionDTO struct {
	Date             string `json:"date"`
	Kind             string `json:"kind"`
	Amount           string `json:"amount"`
	AvailableBalance string `json:"availableBalance"`
}

type TotalsDTO struct {
	Credits string `json:"credits"`
	Debits  string `json:"debits"`
}

func toStatementDTO(st *statement.Statement, pdf []byte) StatementDTO {
	dto := StatementDTO{
		Customer: StatementCustomerDTO{ID: string(st.Customer.ID), Name: st.Customer.Name},
		DateRange: DateRangeDTO{
			Start: st.DateRange.Start.Format(statement.DateLayout),
			End:   st.DateRange.End.Format(statement.DateLayout),
		},
		Accounts: make([]StatementAccountDTO, 0, len(st.Accounts)),
	}
	for _, a := range st.Accounts {
		acc := StatementAccountDTO{
			Number:         a.Number,
			Type:           string(a.Type),
			InitialBalance: money(a.InitialBalance),
			Transactions:   make([]StatementTransactionDTO, 0, len(a.Transactions)),
			Totals:         TotalsDTO{Credits: money(a.Totals.Credits), Debits: money(a.Totals.Debits)},
		}
		for _, tx := range a.Transactions {
			acc.Transactions = append(acc.Transactions, StatementTransactionDTO{
				Date:             tx.Date.UTC().Format(statement.DateLayout),
				Kind:             string(tx.Kind),
				Amount:           money(tx.Amount),
				AvailableBalance: money(tx.AvailableBalance),
			})
		}
		dto.Accounts = append(dto.Accounts, acc)
	}
	if len(pdf) > 0 {
		dto.PDFBase64 = base64.StdEncoding.EncodeToString(pdf)
	}
	return dto
}

// =============================================================================
// ERRORS & HELPERS
// =============================================================================

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type HealthDTO struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

// parseMovementDate accepts RFC 3339 or YYYY-MM-DD. Blank yields the
// zero time, which the engine treats as "now" on append and "keep" on
// update.
func parseMovementDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(statement.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use RFC 3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}
