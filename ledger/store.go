/*
store.go - Ports consumed by the ledger engine

PURPOSE:
  Defines the interface between ledger rules and persistence. SQLite,
  PostgreSQL and in-memory implementations satisfy the same contracts.

KEY INTERFACES:
  AccountLookup:    Read-only account directory
  CustomerLookup:   Read-only customer directory
  MovementStore:    Ordered movements per account
  SerializingStore: Per-account write serialization (optional)

LOOKUP CONTRACT:
  Find* methods return (nil, nil) when the record does not exist. An error
  always means the store itself failed.

ORDERING CONTRACT:
  FindMovementsByAccount returns movements by timestamp, then insertion.
  The engine reads the tail of that list as the current balance.

SERIALIZATION PRECONDITION:
  The engine reads the current balance and then writes. Two concurrent
  appends against one account race on that read. Stores used with
  concurrent writers must implement SerializingStore so the read and the
  write run under one per-account critical section (mutex, SQL
  transaction, or row lock). The engine never locks on its own.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dev
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL via pgx

SEE ALSO:
  - engine.go: Consumer of these ports
*/
package ledger

import "context"

// =============================================================================
// DIRECTORY LOOKUPS - Never mutated by the ledger
// =============================================================================

type AccountLookup interface {
	FindAccountByID(ctx context.Context, id AccountID) (*Account, error)
	FindAccountByNumber(ctx context.Context, number string) (*Account, error)
	FindAccountsByCustomer(ctx context.Context, customerID CustomerID) ([]Account, error)
}

type CustomerLookup interface {
	FindCustomerByID(ctx context.Context, id CustomerID) (*Customer, error)
}

// =============================================================================
// MOVEMENT STORE
// =============================================================================

type MovementStore interface {
	FindAllMovements(ctx context.Context) ([]Movement, error)
	FindMovementByID(ctx context.Context, id MovementID) (*Movement, error)

	// FindMovementsByAccount returns movements in ledger order.
	FindMovementsByAccount(ctx context.Context, accountID AccountID) ([]Movement, error)

	// SaveMovement inserts when m.ID is zero (assigning the ID) and
	// replaces the stored record otherwise.
	SaveMovement(ctx context.Context, m Movement) (Movement, error)

	DeleteMovement(ctx context.Context, id MovementID) error
}

// SerializingStore runs fn with exclusive write access to one account's
// movements. If fn returns an error, nothing fn wrote is kept.
type SerializingStore interface {
	MovementStore
	WithAccount(ctx context.Context, accountID AccountID, fn func(MovementStore) error) error
}
