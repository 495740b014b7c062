/*
errors.go - Error taxonomy for the ledger and its collaborators

PURPOSE:
  Every business-rule violation is a distinct, catchable error. Sentinels
  are matched with errors.Is; structured errors carry the offending
  identifier or amount and unwrap to their sentinel.

ERROR CATEGORIES:
  1. Not found - account, customer, movement, no accounts for customer
  2. Rule violations - insufficient funds, invalid kind, invalid amount
  3. Identity layer - duplicate account number, locked initial balance

CODES:
  CodeOf maps any error to a stable machine-readable code. Transport
  layers use it for response bodies; IsNotFound / IsClientError pick the
  status.

RETRIES:
  None of these are transient. Callers must resubmit corrected input.

SEE ALSO:
  - engine.go: Raises most of these
  - directory/service.go: Raises the identity-layer errors
  - api/errors.go: HTTP mapping
*/
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrMovementNotFound       = errors.New("movement not found")
	ErrNoAccountsForCustomer  = errors.New("no accounts for customer")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidMovementKind    = errors.New("invalid movement kind: must be CREDIT or DEBIT")
	ErrDuplicateAccountNumber = errors.New("account number already exists")

	// ErrInvalidAmount is returned for non-positive movement values and for
	// values finer than a cent.
	ErrInvalidAmount = errors.New("invalid movement value")

	// ErrBackdatedMovement is returned when an append is dated before the
	// account's last movement.
	ErrBackdatedMovement = errors.New("movement dated before the account's last movement")

	// ErrInvalidDateRange is returned when a statement ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrInitialBalanceLocked is returned when editing the baseline of an
	// account that already has movements.
	ErrInitialBalanceLocked = errors.New("initial balance cannot change once movements exist")

	// ErrInvalidAccount and ErrInvalidCustomer cover malformed identity
	// records (unknown type, negative baseline, missing name).
	ErrInvalidAccount  = errors.New("invalid account")
	ErrInvalidCustomer = errors.New("invalid customer")

	// ErrAccountNumberExhausted is returned when the number generator runs
	// out of attempts.
	ErrAccountNumberExhausted = errors.New("could not generate a free account number")
)

// =============================================================================
// STABLE CODES
// =============================================================================

type Code string

const (
	CodeAccountNotFound        Code = "ACCOUNT_NOT_FOUND"
	CodeCustomerNotFound       Code = "CUSTOMER_NOT_FOUND"
	CodeMovementNotFound       Code = "MOVEMENT_NOT_FOUND"
	CodeNoAccountsForCustomer  Code = "NO_ACCOUNTS_FOR_CUSTOMER"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodeInvalidMovementKind    Code = "INVALID_MOVEMENT_KIND"
	CodeDuplicateAccountNumber Code = "DUPLICATE_ACCOUNT_NUMBER"
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeInternal               Code = "INTERNAL_ERROR"
)

var codes = []struct {
	err  error
	code Code
}{
	{ErrAccountNotFound, CodeAccountNotFound},
	{ErrCustomerNotFound, CodeCustomerNotFound},
	{ErrMovementNotFound, CodeMovementNotFound},
	{ErrNoAccountsForCustomer, CodeNoAccountsForCustomer},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInvalidMovementKind, CodeInvalidMovementKind},
	{ErrDuplicateAccountNumber, CodeDuplicateAccountNumber},
	{ErrInvalidAmount, CodeValidation},
	{ErrBackdatedMovement, CodeValidation},
	{ErrInvalidDateRange, CodeValidation},
	{ErrInitialBalanceLocked, CodeValidation},
	{ErrInvalidAccount, CodeValidation},
	{ErrInvalidCustomer, CodeValidation},
}

// CodeOf returns the stable code for err, CodeInternal if unrecognized.
func CodeOf(err error) Code {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError names the missing record. Key is the id or number that
// failed to resolve.
type NotFoundError struct {
	Target error
	By     string // "id" or "number"
	Key    string
}

func (e *NotFoundError) Error() string {
	by := e.By
	if by == "" {
		by = "id"
	}
	return fmt.Sprintf("%v with %s: %s", e.Target, by, e.Key)
}

func (e *NotFoundError) Unwrap() error { return e.Target }

func accountNotFound(id AccountID) error {
	return &NotFoundError{Target: ErrAccountNotFound, Key: fmt.Sprint(id)}
}

func accountNumberNotFound(number string) error {
	return &NotFoundError{Target: ErrAccountNotFound, By: "number", Key: number}
}

func movementNotFound(id MovementID) error {
	return &NotFoundError{Target: ErrMovementNotFound, Key: fmt.Sprint(id)}
}

// AccountNotFound builds the not-found error for an account id.
func AccountNotFound(id AccountID) error { return accountNotFound(id) }

// CustomerNotFound builds the not-found error for a customer id.
func CustomerNotFound(id CustomerID) error {
	return &NotFoundError{Target: ErrCustomerNotFound, Key: string(id)}
}

// NoAccountsError is returned by the statement builder.
type NoAccountsError struct {
	CustomerID CustomerID
}

func (e *NoAccountsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNoAccountsForCustomer, e.CustomerID)
}

func (e *NoAccountsError) Unwrap() error { return ErrNoAccountsForCustomer }

// InsufficientFundsError carries the balance before the rejected debit.
type InsufficientFundsError struct {
	AccountID AccountID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available balance %s", e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// BackdatedMovementError names the rejected time and the current tail.
type BackdatedMovementError struct {
	At   time.Time
	Tail time.Time
}

func (e *BackdatedMovementError) Error() string {
	return fmt.Sprintf("%v: %s is before %s", ErrBackdatedMovement,
		e.At.UTC().Format(time.RFC3339), e.Tail.UTC().Format(time.RFC3339))
}

func (e *BackdatedMovementError) Unwrap() error { return ErrBackdatedMovement }

type InvalidKindError struct {
	Kind string
}

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("%v (got %q)", ErrInvalidMovementKind, e.Kind)
}

func (e *InvalidKindError) Unwrap() error { return ErrInvalidMovementKind }

type DuplicateAccountNumberError struct {
	Number string
}

func (e *DuplicateAccountNumberError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateAccountNumber, e.Number)
}

func (e *DuplicateAccountNumberError) Unwrap() error { return ErrDuplicateAccountNumber }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrMovementNotFound) ||
		errors.Is(err, ErrNoAccountsForCustomer)
}

// IsConflict returns true for uniqueness violations.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateAccountNumber)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidMovementKind) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrBackdatedMovement) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInitialBalanceLocked) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrInvalidCustomer)
}
