/*
sqlite_test.go - Tests for the SQLite store

Tests for:
- Customer and account round trips, customer name join
- Ledger-order reads (timestamp, then id)
- Duplicate account numbers
- WithAccount commit and rollback
- Cascading deletes
- Engine writes through a real database
*/
package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/movement-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedAccount(t *testing.T, s *Store, number, initial string) ledger.Account {
	t.Helper()
	ctx := context.Background()
	_, err := s.SaveCustomer(ctx, ledger.Customer{ID: "c-1", Name: "Marianela Montalvo", Active: true})
	require.NoError(t, err)
	a, err := s.SaveAccount(ctx, ledger.Account{
		Number:         number,
		Type:           ledger.AccountSavings,
		InitialBalance: decimal.RequireFromString(initial),
		Active:         true,
		CustomerID:     "c-1",
	})
	require.NoError(t, err)
	return a
}

func TestCustomerAndAccountRoundTrip(t *testing.T) {
	// GIVEN: A customer with one account
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "225487", "100.50")

	// WHEN: Reading back by id and number
	byID, err := s.FindAccountByID(ctx, a.ID)
	require.NoError(t, err)
	byNumber, err := s.FindAccountByNumber(ctx, "225487")
	require.NoError(t, err)

	// THEN: Both resolve, with the owner's name joined in
	require.NotNil(t, byID)
	require.NotNil(t, byNumber)
	assert.Equal(t, byID.ID, byNumber.ID)
	assert.Equal(t, "Marianela Montalvo", byID.CustomerName)
	assert.Equal(t, "100.5", byID.InitialBalance.String())
	assert.True(t, byID.Active)

	c, err := s.FindCustomerByID(ctx, "c-1")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Marianela Montalvo", c.Name)
}

func TestFind_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.FindAccountByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, a)

	c, err := s.FindCustomerByID(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, c)

	m, err := s.FindMovementByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSaveAccount_DuplicateNumber(t *testing.T) {
	// GIVEN: Account 225487 exists
	s := newTestStore(t)
	seedAccount(t, s, "225487", "0")

	// WHEN: Saving another account with the same number
	_, err := s.SaveAccount(context.Background(), ledger.Account{
		Number: "225487", Type: ledger.AccountChecking, InitialBalance: decimal.Zero, CustomerID: "c-1",
	})

	// THEN: A duplicate-number error is returned
	var dup *ledger.DuplicateAccountNumberError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "225487", dup.Number)
	assert.ErrorIs(t, err, ledger.ErrDuplicateAccountNumber)
}

func TestFindMovementsByAccount_LedgerOrder(t *testing.T) {
	// GIVEN: Movements inserted out of timestamp order, two sharing a timestamp
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "100001", "0")
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	insert := func(at time.Time, value string) ledger.Movement {
		m, err := s.SaveMovement(ctx, ledger.Movement{
			AccountID:        a.ID,
			At:               at,
			Kind:             ledger.Credit,
			Value:            decimal.RequireFromString(value),
			AvailableBalance: decimal.Zero,
		})
		require.NoError(t, err)
		return m
	}
	late := insert(base.Add(2*time.Hour), "3")
	tieA := insert(base, "1")
	tieB := insert(base, "2")
	early := insert(base.Add(-time.Nanosecond), "0.5")

	// WHEN: Reading the account's movements
	ms, err := s.FindMovementsByAccount(ctx, a.ID)

	// THEN: Order is timestamp then insertion
	require.NoError(t, err)
	require.Len(t, ms, 4)
	assert.Equal(t, []ledger.MovementID{early.ID, tieA.ID, tieB.ID, late.ID},
		[]ledger.MovementID{ms[0].ID, ms[1].ID, ms[2].ID, ms[3].ID})
	assert.Equal(t, "100001", ms[0].AccountNumber)
	assert.True(t, ms[0].At.Equal(base.Add(-time.Nanosecond)))
}

func TestWithAccount_RollsBackOnError(t *testing.T) {
	// GIVEN: An account
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "100001", "0")
	boom := errors.New("boom")

	// WHEN: fn writes a movement and then fails
	err := s.WithAccount(ctx, a.ID, func(tx ledger.MovementStore) error {
		_, err := tx.SaveMovement(ctx, ledger.Movement{
			AccountID: a.ID, At: time.Now(), Kind: ledger.Credit,
			Value: decimal.NewFromInt(5), AvailableBalance: decimal.NewFromInt(5),
		})
		require.NoError(t, err)
		return boom
	})

	// THEN: The error surfaces and nothing was persisted
	assert.ErrorIs(t, err, boom)
	ms, err := s.FindMovementsByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestWithAccount_Commits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "100001", "0")

	err := s.WithAccount(ctx, a.ID, func(tx ledger.MovementStore) error {
		_, err := tx.SaveMovement(ctx, ledger.Movement{
			AccountID: a.ID, At: time.Now(), Kind: ledger.Credit,
			Value: decimal.NewFromInt(5), AvailableBalance: decimal.NewFromInt(5),
		})
		return err
	})

	require.NoError(t, err)
	ms, err := s.FindMovementsByAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, ms, 1)
}

func TestDeleteCustomer_Cascades(t *testing.T) {
	// GIVEN: A customer with an account and a movement
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "100001", "0")
	m, err := s.SaveMovement(ctx, ledger.Movement{
		AccountID: a.ID, At: time.Now(), Kind: ledger.Credit,
		Value: decimal.NewFromInt(1), AvailableBalance: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	// WHEN: Deleting the customer
	require.NoError(t, s.DeleteCustomer(ctx, "c-1"))

	// THEN: Account and movement are gone too
	acc, err := s.FindAccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, acc)
	mv, err := s.FindMovementByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, mv)
}

func TestEngine_OverSQLite(t *testing.T) {
	// GIVEN: An engine writing through SQLite
	s := newTestStore(t)
	ctx := context.Background()
	a := seedAccount(t, s, "478758", "2000")
	engine := ledger.NewEngine(s, s)

	// WHEN: A debit, a rejected overdraft and a credit
	first, err := engine.Append(ctx, ledger.AppendInput{AccountID: a.ID, Kind: ledger.Debit, Value: decimal.NewFromInt(575)})
	require.NoError(t, err)
	_, err = engine.Append(ctx, ledger.AppendInput{AccountNumber: "478758", Kind: ledger.Debit, Value: decimal.NewFromInt(5000)})
	require.Error(t, err)
	_, err = engine.Append(ctx, ledger.AppendInput{AccountID: a.ID, Kind: ledger.Credit, Value: decimal.RequireFromString("0.25")})
	require.NoError(t, err)

	// THEN: Balances chain and the overdraft left no trace
	assert.Equal(t, "1425", first.AvailableBalance.String())
	balance, err := engine.CurrentBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "1425.25", balance.String())

	report, err := engine.Audit(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.Movements)
}
