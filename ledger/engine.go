/*
engine.go - Ledger engine: append, update, delete, balance reads

PURPOSE:
  The Engine is the only writer of Movement.AvailableBalance. It resolves
  the account, validates the movement against the current balance, and
  persists exactly one record per successful call.

APPEND (rebase from predecessor):
  1. Resolve account by ID, or by number when ID is unset
  2. Default the timestamp to the engine clock
  3. Read the current balance (tail of the ordered log)
  4. CREDIT adds, DEBIT subtracts; a negative DEBIT result is rejected
     with InsufficientFundsError carrying the pre-transaction balance
  5. Save, then re-read the stored record and return it

UPDATE (rebase from baseline):
  The edited movement's balance becomes InitialBalance ± its new value.
  Movements after it are NOT recomputed. This mirrors how the service has
  always behaved; Audit makes the resulting chain breaks visible.

DELETE:
  Removes the record. Later movements keep their recorded balances.

FAILURE GUARANTEE:
  Every rejection happens before the store write. Nothing is persisted on
  failure, so callers never observe a partial mutation.

CONCURRENCY:
  See store.go. When the MovementStore implements SerializingStore the
  balance read and the write run inside WithAccount; otherwise the caller
  must serialize writers per account.

SEE ALSO:
  - balance.go: TailBalance, Replay, audit
  - store.go: Ports and the serialization precondition
  - statement/builder.go: Read-only consumer of the same chain
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	accounts  AccountLookup
	movements MovementStore
	serial    SerializingStore
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for defaulted timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine wires the engine to its ports. If movements also implements
// SerializingStore, writes are serialized through it.
func NewEngine(accounts AccountLookup, movements MovementStore, opts ...Option) *Engine {
	e := &Engine{
		accounts:  accounts,
		movements: movements,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	if s, ok := movements.(SerializingStore); ok {
		e.serial = s
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// INPUTS
// =============================================================================

// AppendInput identifies the account by AccountID, or by AccountNumber
// when AccountID is zero. A zero At is replaced with the current time; an
// explicit At must not precede the account's last movement.
type AppendInput struct {
	AccountID     AccountID
	AccountNumber string
	Kind          MovementKind
	Value         decimal.Decimal
	At            time.Time
}

// MovementUpdate replaces kind and value of a movement. A zero At keeps
// the stored timestamp.
type MovementUpdate struct {
	At    time.Time
	Kind  MovementKind
	Value decimal.Decimal
}

// =============================================================================
// READS
// =============================================================================

// CurrentBalance returns the tail movement's available balance, or the
// account's initial balance when it has no movements.
func (e *Engine) CurrentBalance(ctx context.Context, accountID AccountID) (decimal.Decimal, error) {
	ordered, err := e.movements.FindMovementsByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load movements for account %d: %w", accountID, err)
	}
	if len(ordered) > 0 {
		return TailBalance(decimal.Zero, ordered), nil
	}
	account, err := e.accounts.FindAccountByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("find account %d: %w", accountID, err)
	}
	if account == nil {
		return decimal.Zero, accountNotFound(accountID)
	}
	return account.InitialBalance, nil
}

// Movements returns the account's movements in ledger order.
func (e *Engine) Movements(ctx context.Context, accountID AccountID) ([]Movement, error) {
	ordered, err := e.movements.FindMovementsByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load movements for account %d: %w", accountID, err)
	}
	if ordered == nil {
		ordered = []Movement{}
	}
	return ordered, nil
}

func (e *Engine) Movement(ctx context.Context, id MovementID) (Movement, error) {
	m, err := e.movements.FindMovementByID(ctx, id)
	if err != nil {
		return Movement{}, fmt.Errorf("find movement %d: %w", id, err)
	}
	if m == nil {
		return Movement{}, movementNotFound(id)
	}
	return *m, nil
}

func (e *Engine) AllMovements(ctx context.Context) ([]Movement, error) {
	all, err := e.movements.FindAllMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("load movements: %w", err)
	}
	if all == nil {
		all = []Movement{}
	}
	return all, nil
}

// Audit replays the account's chain from its initial balance and reports
// every movement whose recorded balance differs from the replay.
func (e *Engine) Audit(ctx context.Context, accountID AccountID) (AuditReport, error) {
	account, err := e.accounts.FindAccountByID(ctx, accountID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("find account %d: %w", accountID, err)
	}
	if account == nil {
		return AuditReport{}, accountNotFound(accountID)
	}
	ordered, err := e.movements.FindMovementsByAccount(ctx, accountID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("load movements for account %d: %w", accountID, err)
	}
	return audit(*account, ordered), nil
}

// =============================================================================
// WRITES
// =============================================================================

// Append records a new movement at the end of the account's chain.
func (e *Engine) Append(ctx context.Context, in AppendInput) (Movement, error) {
	account, err := e.resolve(ctx, in.AccountID, in.AccountNumber)
	if err != nil {
		return Movement{}, err
	}
	if err := validate(in.Kind, in.Value); err != nil {
		return Movement{}, err
	}

	var saved Movement
	err = e.write(ctx, account.ID, func(store MovementStore) error {
		ordered, err := store.FindMovementsByAccount(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("load movements for account %d: %w", account.ID, err)
		}
		at, err := e.appendTime(in.At, ordered)
		if err != nil {
			return err
		}
		current := TailBalance(account.InitialBalance, ordered)

		next := in.Kind.Apply(current, in.Value)
		if in.Kind == Debit && next.IsNegative() {
			return &InsufficientFundsError{AccountID: account.ID, Available: current, Requested: in.Value}
		}

		created, err := store.SaveMovement(ctx, Movement{
			AccountID:        account.ID,
			AccountNumber:    account.Number,
			At:               at,
			Kind:             in.Kind,
			Value:            in.Value,
			AvailableBalance: next,
		})
		if err != nil {
			return fmt.Errorf("save movement: %w", err)
		}
		saved, err = reread(ctx, store, created.ID)
		return err
	})
	if err != nil {
		fields := []zap.Field{
			zap.Int64("account_id", int64(account.ID)),
			zap.String("kind", string(in.Kind)),
			zap.String("value", in.Value.String()),
			zap.Error(err),
		}
		if IsClientError(err) {
			e.logger.Info("movement rejected", fields...)
		} else {
			e.logger.Error("append movement failed", fields...)
		}
		return Movement{}, err
	}

	e.publish(ctx, EventMovementCreated, saved)
	return saved, nil
}

// Update edits kind, value and optionally timestamp of a movement and
// rebases its balance from the account's initial balance.
func (e *Engine) Update(ctx context.Context, id MovementID, upd MovementUpdate) (Movement, error) {
	existing, err := e.Movement(ctx, id)
	if err != nil {
		return Movement{}, err
	}
	account, err := e.resolve(ctx, existing.AccountID, "")
	if err != nil {
		return Movement{}, err
	}
	if err := validate(upd.Kind, upd.Value); err != nil {
		return Movement{}, err
	}

	balance := upd.Kind.Apply(account.InitialBalance, upd.Value)
	if upd.Kind == Debit && balance.IsNegative() {
		return Movement{}, &InsufficientFundsError{
			AccountID: account.ID,
			Available: account.InitialBalance,
			Requested: upd.Value,
		}
	}

	edited := existing
	if !upd.At.IsZero() {
		edited.At = upd.At.UTC()
	}
	edited.Kind = upd.Kind
	edited.Value = upd.Value
	edited.AvailableBalance = balance

	var saved Movement
	err = e.write(ctx, account.ID, func(store MovementStore) error {
		if _, err := store.SaveMovement(ctx, edited); err != nil {
			return fmt.Errorf("save movement %d: %w", id, err)
		}
		saved, err = reread(ctx, store, id)
		return err
	})
	if err != nil {
		return Movement{}, err
	}

	e.publish(ctx, EventMovementUpdated, saved)
	return saved, nil
}

// Delete removes a movement. Balances of later movements are untouched.
func (e *Engine) Delete(ctx context.Context, id MovementID) error {
	existing, err := e.Movement(ctx, id)
	if err != nil {
		return err
	}
	err = e.write(ctx, existing.AccountID, func(store MovementStore) error {
		if err := store.DeleteMovement(ctx, id); err != nil {
			return fmt.Errorf("delete movement %d: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.publish(ctx, EventMovementDeleted, existing)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) resolve(ctx context.Context, id AccountID, number string) (*Account, error) {
	if id == 0 && number != "" {
		account, err := e.accounts.FindAccountByNumber(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("find account %s: %w", number, err)
		}
		if account == nil {
			return nil, accountNumberNotFound(number)
		}
		return account, nil
	}
	account, err := e.accounts.FindAccountByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find account %d: %w", id, err)
	}
	if account == nil {
		return nil, accountNotFound(id)
	}
	return account, nil
}

func (e *Engine) write(ctx context.Context, accountID AccountID, fn func(MovementStore) error) error {
	if e.serial != nil {
		return e.serial.WithAccount(ctx, accountID, fn)
	}
	return fn(e.movements)
}

func (e *Engine) publish(ctx context.Context, t EventType, m Movement) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, newEvent(t, m, e.now())); err != nil {
		e.logger.Warn("failed to publish movement event",
			zap.String("type", string(t)),
			zap.Int64("movement_id", int64(m.ID)),
			zap.Error(err))
	}
}

// appendTime picks the timestamp of a new tail movement. An explicit time
// earlier than the current tail is rejected, since the movement would sort
// into the middle of the chain. A defaulted time never falls behind the tail.
func (e *Engine) appendTime(requested time.Time, ordered []Movement) (time.Time, error) {
	var tail time.Time
	if len(ordered) > 0 {
		tail = ordered[len(ordered)-1].At
	}
	if requested.IsZero() {
		now := e.now().UTC()
		if now.Before(tail) {
			return tail, nil
		}
		return now, nil
	}
	at := requested.UTC()
	if at.Before(tail) {
		return time.Time{}, &BackdatedMovementError{At: at, Tail: tail}
	}
	return at, nil
}

func validate(kind MovementKind, value decimal.Decimal) error {
	switch kind {
	case Credit, Debit:
	default:
		return &InvalidKindError{Kind: string(kind)}
	}
	if !value.IsPositive() {
		return fmt.Errorf("%w: must be positive (got %s)", ErrInvalidAmount, value)
	}
	if !HasCents(value) {
		return fmt.Errorf("%w: at most %d decimal places (got %s)", ErrInvalidAmount, MoneyPlaces, value)
	}
	return nil
}

func reread(ctx context.Context, store MovementStore, id MovementID) (Movement, error) {
	m, err := store.FindMovementByID(ctx, id)
	if err != nil {
		return Movement{}, fmt.Errorf("re-read movement %d: %w", id, err)
	}
	if m == nil {
		return Movement{}, movementNotFound(id)
	}
	return *m, nil
}
