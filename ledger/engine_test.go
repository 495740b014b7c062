package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/movement-ledger/ledger"
	"github.com/warp/movement-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var t0 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	ctx     context.Context
	mem     *store.Memory
	engine  *ledger.Engine
	account ledger.Account
	events  *recordingPublisher
}

// newFixture seeds one customer and one account with the given initial
// balance. The engine clock advances one minute per call.
func newFixture(t *testing.T, initial string) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	_, err := mem.SaveCustomer(ctx, ledger.Customer{ID: "c-1", Name: "Jose Lema", Active: true})
	require.NoError(t, err)
	account, err := mem.SaveAccount(ctx, ledger.Account{
		Number:         "478758",
		Type:           ledger.AccountSavings,
		InitialBalance: dec(initial),
		Active:         true,
		CustomerID:     "c-1",
	})
	require.NoError(t, err)

	var clockMu sync.Mutex
	clock := t0
	events := &recordingPublisher{}
	engine := ledger.NewEngine(mem, mem,
		ledger.WithClock(func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			clock = clock.Add(time.Minute)
			return clock
		}),
		ledger.WithPublisher(events),
	)
	return &fixture{ctx: ctx, mem: mem, engine: engine, account: account, events: events}
}

func (f *fixture) append(t *testing.T, kind ledger.MovementKind, value string) (ledger.Movement, error) {
	t.Helper()
	return f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: kind, Value: dec(value)})
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	b, err := f.engine.CurrentBalance(f.ctx, f.account.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	ms, err := f.engine.Movements(f.ctx, f.account.ID)
	require.NoError(t, err)
	return len(ms)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.MovementEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e ledger.MovementEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

// =============================================================================
// BALANCE READS
// =============================================================================

func TestCurrentBalance_EmptyHistoryIsInitialBalance(t *testing.T) {
	// GIVEN: An account with no movements
	f := newFixture(t, "250.75")

	// WHEN/THEN: The current balance is the initial balance
	assert.True(t, f.balance(t).Equal(dec("250.75")))
}

func TestCurrentBalance_UnknownAccount(t *testing.T) {
	f := newFixture(t, "0")

	_, err := f.engine.CurrentBalance(f.ctx, 999)

	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Equal(t, ledger.CodeAccountNotFound, ledger.CodeOf(err))
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppend_CreditAddsToBalance(t *testing.T) {
	// GIVEN: An account at 100.00
	f := newFixture(t, "100.00")

	// WHEN: Crediting 50.00
	mv, err := f.append(t, ledger.Credit, "50.00")

	// THEN: The persisted movement records 150.00
	require.NoError(t, err)
	assert.NotZero(t, mv.ID)
	assert.Equal(t, "478758", mv.AccountNumber)
	assert.True(t, mv.AvailableBalance.Equal(dec("150")))
	assert.True(t, f.balance(t).Equal(dec("150")))

	stored, err := f.engine.Movement(f.ctx, mv.ID)
	require.NoError(t, err)
	assert.Equal(t, mv, stored)
}

func TestAppend_DebitBeyondBalanceRejectedWithoutWrite(t *testing.T) {
	// GIVEN: An account at 100.00 with one movement
	f := newFixture(t, "100.00")
	_, err := f.append(t, ledger.Credit, "50.00")
	require.NoError(t, err)

	// WHEN: Debiting more than the balance
	_, err = f.append(t, ledger.Debit, "150.01")

	// THEN: InsufficientFunds carries the pre-transaction balance and nothing is stored
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	var insufficient *ledger.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.True(t, insufficient.Available.Equal(dec("150")))
	assert.Contains(t, err.Error(), "150.00")
	assert.Equal(t, 1, f.count(t))
	assert.Len(t, f.events.events, 1, "rejected movements publish nothing")
}

func TestAppend_DebitToExactlyZeroSucceeds(t *testing.T) {
	f := newFixture(t, "80.00")

	mv, err := f.append(t, ledger.Debit, "80.00")

	require.NoError(t, err)
	assert.True(t, mv.AvailableBalance.IsZero())
}

func TestAppend_ScenarioA1(t *testing.T) {
	// GIVEN: Account A1 starts at 100.00
	f := newFixture(t, "100.00")

	// WHEN: CREDIT 50.00
	mv, err := f.append(t, ledger.Credit, "50.00")
	require.NoError(t, err)
	assert.Equal(t, "150.00", mv.AvailableBalance.StringFixed(2))

	// WHEN: DEBIT 200.00
	_, err = f.append(t, ledger.Debit, "200.00")
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "150.00", f.balance(t).StringFixed(2))

	// WHEN: DEBIT 150.00
	mv, err = f.append(t, ledger.Debit, "150.00")

	// THEN: Balance lands on zero
	require.NoError(t, err)
	assert.Equal(t, "0.00", mv.AvailableBalance.StringFixed(2))
	assert.Equal(t, 2, f.count(t))
}

func TestAppend_ResolvesAccountByNumber(t *testing.T) {
	f := newFixture(t, "10")

	mv, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountNumber: "478758", Kind: ledger.Credit, Value: dec("5")})

	require.NoError(t, err)
	assert.Equal(t, f.account.ID, mv.AccountID)
}

func TestAppend_UnknownAccount(t *testing.T) {
	f := newFixture(t, "10")

	_, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountNumber: "000000", Kind: ledger.Credit, Value: dec("5")})

	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
	assert.Contains(t, err.Error(), "number: 000000")
}

func TestAppend_InvalidKindAndValue(t *testing.T) {
	f := newFixture(t, "10")

	_, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: "REFUND", Value: dec("5")})
	assert.ErrorIs(t, err, ledger.ErrInvalidMovementKind)

	_, err = f.append(t, ledger.Credit, "0")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.append(t, ledger.Credit, "-3")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	assert.Equal(t, 0, f.count(t))
}

func TestAppend_BackdatedMovementRejected(t *testing.T) {
	// GIVEN: 100 + 50 (=150) dated two days out
	f := newFixture(t, "100")
	tail := t0.Add(48 * time.Hour)
	_, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Credit, Value: dec("50"), At: tail})
	require.NoError(t, err)

	// WHEN: A debit of all funds is dated the day before the tail
	_, err = f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Debit, Value: dec("150"), At: tail.Add(-24 * time.Hour)})

	// THEN: It is rejected without a write and funds stay spendable once
	var backdated *ledger.BackdatedMovementError
	require.ErrorAs(t, err, &backdated)
	assert.True(t, backdated.Tail.Equal(tail))
	assert.Equal(t, ledger.CodeValidation, ledger.CodeOf(err))
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, "150", f.balance(t).String())

	_, err = f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Debit, Value: dec("150"), At: tail})
	require.NoError(t, err)
	_, err = f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Debit, Value: dec("150"), At: tail})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	report, err := f.engine.Audit(f.ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.True(t, report.ReplayBalance.IsZero())
}

func TestAppend_DefaultTimeNeverFallsBehindTail(t *testing.T) {
	// GIVEN: A movement dated after the engine clock
	f := newFixture(t, "0")
	future := t0.Add(72 * time.Hour)
	_, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Credit, Value: dec("10"), At: future})
	require.NoError(t, err)

	// WHEN: Appending without a date
	m, err := f.append(t, ledger.Credit, "5")

	// THEN: It lands at the tail and the chain stays consistent
	require.NoError(t, err)
	assert.True(t, m.At.Equal(future))
	assert.Equal(t, "15", m.AvailableBalance.String())
	assert.Equal(t, "15", f.balance(t).String())
	report, err := f.engine.Audit(f.ctx, f.account.ID)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
}

func TestAppend_ExplicitTimestampsReadBackInOrder(t *testing.T) {
	f := newFixture(t, "0")
	for i, v := range []string{"10", "5"} {
		at := t0.Add(time.Duration(i+1) * 24 * time.Hour)
		_, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Credit, Value: dec(v), At: at})
		require.NoError(t, err)
	}

	first, err := f.engine.Movements(f.ctx, f.account.ID)
	require.NoError(t, err)
	second, err := f.engine.Movements(f.ctx, f.account.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.True(t, first[0].At.Equal(t0.Add(24*time.Hour)))
	assert.Equal(t, "15", f.balance(t).String())
}

func TestAppend_SubCentValueRejected(t *testing.T) {
	f := newFixture(t, "10")

	_, err := f.append(t, ledger.Debit, "0.004")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.Equal(t, 0, f.count(t))

	m, err := f.append(t, ledger.Credit, "1.500")
	require.NoError(t, err)
	assert.Equal(t, "11.5", m.AvailableBalance.String())
}

func TestAppend_SameTimestampOrdersByInsertion(t *testing.T) {
	f := newFixture(t, "0")
	for _, v := range []string{"1", "2", "3"} {
		_, err := f.engine.Append(f.ctx, ledger.AppendInput{AccountID: f.account.ID, Kind: ledger.Credit, Value: dec(v), At: t0})
		require.NoError(t, err)
	}

	ms, err := f.engine.Movements(f.ctx, f.account.ID)
	require.NoError(t, err)

	require.Len(t, ms, 3)
	assert.Less(t, ms[0].ID, ms[1].ID)
	assert.Less(t, ms[1].ID, ms[2].ID)
	assert.Equal(t, "6", f.balance(t).String())
}

func TestAppend_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	// GIVEN: An account with 100.00 and a serializing store
	f := newFixture(t, "100")

	// WHEN: 20 concurrent debits of 10.00
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.append(t, ledger.Debit, "10"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly ten succeed and the balance is zero
	assert.Equal(t, 10, succeeded)
	assert.True(t, f.balance(t).IsZero())
}

// =============================================================================
// UPDATE / DELETE - Rebase from baseline, no cascade
// =============================================================================

func TestUpdate_RebasesFromInitialBalanceWithoutCascade(t *testing.T) {
	// GIVEN: 100 + 50 (=150) + 20 (=170)
	f := newFixture(t, "100")
	first, err := f.append(t, ledger.Credit, "50")
	require.NoError(t, err)
	second, err := f.append(t, ledger.Credit, "20")
	require.NoError(t, err)

	// WHEN: The first movement becomes DEBIT 30
	updated, err := f.engine.Update(f.ctx, first.ID, ledger.MovementUpdate{Kind: ledger.Debit, Value: dec("30")})

	// THEN: It is rebased from the initial balance; the next one keeps its recorded balance
	require.NoError(t, err)
	assert.Equal(t, "70", updated.AvailableBalance.String())
	assert.True(t, updated.At.Equal(first.At), "zero At keeps the stored timestamp")

	after, err := f.engine.Movement(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "170", after.AvailableBalance.String())
	assert.Equal(t, "170", f.balance(t).String())

	// AND: Audit reports the inconsistency
	report, err := f.engine.Audit(f.ctx, f.account.ID)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	require.Len(t, report.Breaks, 1)
	assert.Equal(t, second.ID, report.Breaks[0].Movement.ID)
	assert.Equal(t, "90", report.Breaks[0].Expected.String())
	assert.Equal(t, "90", report.ReplayBalance.String())
}

func TestUpdate_DebitBelowBaselineRejected(t *testing.T) {
	f := newFixture(t, "100")
	mv, err := f.append(t, ledger.Credit, "500")
	require.NoError(t, err)

	_, err = f.engine.Update(f.ctx, mv.ID, ledger.MovementUpdate{Kind: ledger.Debit, Value: dec("101")})

	var insufficient *ledger.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, "100", insufficient.Available.String())
	stored, err := f.engine.Movement(f.ctx, mv.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Credit, stored.Kind)
}

func TestUpdate_UnknownMovement(t *testing.T) {
	f := newFixture(t, "100")

	_, err := f.engine.Update(f.ctx, 42, ledger.MovementUpdate{Kind: ledger.Credit, Value: dec("1")})

	assert.ErrorIs(t, err, ledger.ErrMovementNotFound)
	assert.True(t, ledger.IsNotFound(err))
}

func TestDelete_LeavesLaterBalancesAlone(t *testing.T) {
	// GIVEN: 0 + 10 (=10) + 5 (=15)
	f := newFixture(t, "0")
	first, err := f.append(t, ledger.Credit, "10")
	require.NoError(t, err)
	_, err = f.append(t, ledger.Credit, "5")
	require.NoError(t, err)

	// WHEN: The first movement is deleted
	require.NoError(t, f.engine.Delete(f.ctx, first.ID))

	// THEN: The tail still reads 15 and audit shows the gap
	assert.Equal(t, "15", f.balance(t).String())
	assert.Equal(t, 1, f.count(t))
	report, err := f.engine.Audit(f.ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, "5", report.ReplayBalance.String())
	assert.Len(t, report.Breaks, 1)

	_, err = f.engine.Movement(f.ctx, first.ID)
	assert.ErrorIs(t, err, ledger.ErrMovementNotFound)
	assert.ErrorIs(t, f.engine.Delete(f.ctx, first.ID), ledger.ErrMovementNotFound)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestEvents_PublishedAfterEachWrite(t *testing.T) {
	f := newFixture(t, "100")
	mv, err := f.append(t, ledger.Credit, "1")
	require.NoError(t, err)
	_, err = f.engine.Update(f.ctx, mv.ID, ledger.MovementUpdate{Kind: ledger.Credit, Value: dec("2")})
	require.NoError(t, err)
	require.NoError(t, f.engine.Delete(f.ctx, mv.ID))

	require.Len(t, f.events.events, 3)
	assert.Equal(t, ledger.EventMovementCreated, f.events.events[0].Type)
	assert.Equal(t, ledger.EventMovementUpdated, f.events.events[1].Type)
	assert.Equal(t, ledger.EventMovementDeleted, f.events.events[2].Type)
	assert.Equal(t, mv.ID, f.events.events[2].Movement.ID)
	assert.NotEqual(t, f.events.events[0].ID, f.events.events[1].ID)
}

func TestEvents_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t, "100")
	f.events.err = errors.New("broker down")

	_, err := f.append(t, ledger.Credit, "1")

	require.NoError(t, err)
	assert.Equal(t, 1, f.count(t))
}

// =============================================================================
// SERIALIZATION
// =============================================================================

func TestWithAccount_RollsBackOnError(t *testing.T) {
	// GIVEN: One stored movement
	f := newFixture(t, "0")
	_, err := f.append(t, ledger.Credit, "10")
	require.NoError(t, err)

	// WHEN: A write section saves and then fails
	boom := errors.New("boom")
	err = f.mem.WithAccount(f.ctx, f.account.ID, func(s ledger.MovementStore) error {
		_, err := s.SaveMovement(f.ctx, ledger.Movement{
			AccountID: f.account.ID, At: t0, Kind: ledger.Credit, Value: dec("1"), AvailableBalance: dec("11"),
		})
		require.NoError(t, err)
		return boom
	})

	// THEN: The save is undone
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, f.count(t))
	assert.Equal(t, "10", f.balance(t).String())
}
