package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"account by id", accountNotFound(5), CodeAccountNotFound},
		{"account by number", accountNumberNotFound("123456"), CodeAccountNotFound},
		{"customer", CustomerNotFound("c-9"), CodeCustomerNotFound},
		{"movement", movementNotFound(3), CodeMovementNotFound},
		{"no accounts", &NoAccountsError{CustomerID: "c-1"}, CodeNoAccountsForCustomer},
		{"insufficient funds", &InsufficientFundsError{Available: decimal.NewFromInt(1)}, CodeInsufficientFunds},
		{"invalid kind", &InvalidKindError{Kind: "X"}, CodeInvalidMovementKind},
		{"duplicate number", &DuplicateAccountNumberError{Number: "111111"}, CodeDuplicateAccountNumber},
		{"wrapped amount", fmt.Errorf("append: %w", ErrInvalidAmount), CodeValidation},
		{"backdated", &BackdatedMovementError{}, CodeValidation},
		{"date range", ErrInvalidDateRange, CodeValidation},
		{"balance locked", ErrInitialBalanceLocked, CodeValidation},
		{"invalid account", ErrInvalidAccount, CodeValidation},
		{"unknown", errors.New("disk on fire"), CodeInternal},
		{"exhausted", ErrAccountNumberExhausted, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, CodeOf(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "account not found with id: 5", accountNotFound(5).Error())
	assert.Equal(t, "account not found with number: 123456", accountNumberNotFound("123456").Error())
	assert.Equal(t, "insufficient funds: available balance 150.00",
		(&InsufficientFundsError{Available: decimal.NewFromInt(150)}).Error())
}

func TestHasCents(t *testing.T) {
	assert.True(t, HasCents(decimal.RequireFromString("10")))
	assert.True(t, HasCents(decimal.RequireFromString("10.25")))
	assert.True(t, HasCents(decimal.RequireFromString("1.500")))
	assert.False(t, HasCents(decimal.RequireFromString("0.004")))
	assert.False(t, HasCents(decimal.RequireFromString("-2.001")))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsNotFound(CustomerNotFound("c")))
	assert.False(t, IsNotFound(ErrInsufficientFunds))
	assert.True(t, IsConflict(&DuplicateAccountNumberError{Number: "1"}))
	assert.True(t, IsClientError(&InsufficientFundsError{}))
	assert.True(t, IsClientError(fmt.Errorf("x: %w", ErrInvalidCustomer)))
	assert.True(t, IsClientError(&BackdatedMovementError{}))
	assert.False(t, IsClientError(errors.New("db down")))
}

func TestParseMovementKind(t *testing.T) {
	k, err := ParseMovementKind(" credit ")
	assert.NoError(t, err)
	assert.Equal(t, Credit, k)

	k, err = ParseMovementKind("DEBIT")
	assert.NoError(t, err)
	assert.Equal(t, Debit, k)

	_, err = ParseMovementKind("transfer")
	assert.ErrorIs(t, err, ErrInvalidMovementKind)
}

func TestReplay(t *testing.T) {
	ms := []Movement{
		{ID: 1, Kind: Credit, Value: decimal.NewFromInt(50)},
		{ID: 2, Kind: Debit, Value: decimal.NewFromInt(20)},
	}

	got := Replay(decimal.NewFromInt(100), ms)

	assert.Equal(t, "150", got[0].String())
	assert.Equal(t, "130", got[1].String())
	assert.Equal(t, "100", TailBalance(decimal.NewFromInt(100), nil).String())
}
