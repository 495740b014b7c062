/*
Package ledger provides the movement ledger engine.

PURPOSE:
  For one account, the ledger is the ordered sequence of CREDIT/DEBIT
  movements together with the running balance each movement records.
  This package owns the rules for that sequence: how balances are
  derived, when a movement is legal, and what happens to the chain when
  a movement is edited or removed.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: identity and baseline (initial balance) of a ledger
  - Movement: one ledger entry, value always a positive magnitude
  - MovementKind: closed CREDIT/DEBIT enumeration
  - Customer: owner of accounts, consulted by the statement builder

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Derived state: AvailableBalance is written only by the Engine
  3. Ordering: movements sort by timestamp, then insertion (ID)
  4. Storage-agnostic: persistence lives behind the ports in store.go

USAGE:
  engine := ledger.NewEngine(accounts, movements)
  mv, err := engine.Append(ctx, ledger.AppendInput{
      AccountID: 1,
      Kind:      ledger.Credit,
      Value:     decimal.RequireFromString("50.00"),
  })

SEE ALSO:
  - engine.go: Append/Update/Delete and balance reads
  - balance.go: Replay and audit of the balance chain
  - store.go: AccountLookup, CustomerLookup, MovementStore ports
  - errors.go: Error taxonomy and stable codes
*/
package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID int64
type MovementID int64
type CustomerID string

// =============================================================================
// MOVEMENT KIND - Closed two-variant enumeration
// =============================================================================

type MovementKind string

const (
	Credit MovementKind = "CREDIT"
	Debit  MovementKind = "DEBIT"
)

// ParseMovementKind accepts the wire spelling, case-insensitive.
func ParseMovementKind(s string) (MovementKind, error) {
	switch MovementKind(strings.ToUpper(strings.TrimSpace(s))) {
	case Credit:
		return Credit, nil
	case Debit:
		return Debit, nil
	}
	return "", &InvalidKindError{Kind: s}
}

func (k MovementKind) Valid() bool { return k == Credit || k == Debit }

// Signed returns the magnitude with the sign implied by the kind.
func (k MovementKind) Signed(v decimal.Decimal) decimal.Decimal {
	if k == Debit {
		return v.Abs().Neg()
	}
	return v.Abs()
}

// Apply moves balance by value in the direction of the kind.
func (k MovementKind) Apply(balance, value decimal.Decimal) decimal.Decimal {
	return balance.Add(k.Signed(value))
}

// MoneyPlaces is the precision of every stored amount.
const MoneyPlaces = 2

// HasCents reports whether d needs no more than MoneyPlaces decimals.
// Trailing zeros are fine: 1.000 is accepted, 0.004 is not.
func HasCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountType string

const (
	AccountSavings  AccountType = "SAVINGS"
	AccountChecking AccountType = "CHECKING"
	AccountLoan     AccountType = "LOAN"
	AccountCredit   AccountType = "CREDIT"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountSavings, AccountChecking, AccountLoan, AccountCredit:
		return true
	}
	return false
}

// Account is the baseline of a ledger. InitialBalance is the starting
// point for replay and must not change once movements exist.
type Account struct {
	ID             AccountID
	Number         string
	Type           AccountType
	InitialBalance decimal.Decimal
	Active         bool
	CustomerID     CustomerID
	CustomerName   string
}

// =============================================================================
// CUSTOMER
// =============================================================================

type Customer struct {
	ID             CustomerID
	Name           string
	Gender         string
	Age            int
	Identification string
	Address        string
	Phone          string
	Active         bool
}

// =============================================================================
// MOVEMENT - One ledger entry
// =============================================================================

// Movement is owned by exactly one account. Value is a positive magnitude;
// the sign comes from Kind. AvailableBalance is the balance right after
// this movement and is never client-supplied.
type Movement struct {
	ID               MovementID
	AccountID        AccountID
	AccountNumber    string
	At               time.Time
	Kind             MovementKind
	Value            decimal.Decimal
	AvailableBalance decimal.Decimal
}

// SignedValue is Value with the kind's sign applied.
func (m Movement) SignedValue() decimal.Decimal { return m.Kind.Signed(m.Value) }

// Before reports whether m sorts ahead of other in ledger order.
func (m Movement) Before(other Movement) bool {
	if !m.At.Equal(other.At) {
		return m.At.Before(other.At)
	}
	return m.ID < other.ID
}

// SortMovements puts movements in ledger order in place.
func SortMovements(ms []Movement) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Before(ms[j]) })
}
