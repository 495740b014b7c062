/*
Package sqlite provides a SQLite-backed implementation of the ledger and
directory ports.

PURPOSE:
  One database holds customers, accounts and movements. The same Store
  value satisfies ledger.AccountLookup, ledger.CustomerLookup,
  ledger.SerializingStore and directory.Store.

KEY TABLES:
  customers:  Account owners (string IDs)
  accounts:   Number (unique), type, initial balance, owning customer
  movements:  One row per ledger entry, with its recorded balance

ORDERING:
  occurred_at is stored as fixed-width UTC text so that
  ORDER BY occurred_at, id is the ledger order.

AMOUNTS:
  Decimals are stored as TEXT and round-trip exactly.

CONCURRENCY:
  sync.RWMutex guards writes. WithAccount holds the write lock for the
  duration of one SQL transaction; fn receives a view that queries
  through that transaction.

WAL MODE:
  Opened with WAL and foreign keys on. ":memory:" databases are pinned to
  a single connection so every query sees the same data.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := ledger.NewEngine(store, store)

SEE ALSO:
  - ledger/store.go: Port definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: The same contract on PostgreSQL
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/movement-ledger/directory"
	"github.com/warp/movement-ledger/ledger"
)

// timeLayout is fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var (
	_ ledger.SerializingStore = (*Store)(nil)
	_ directory.Store         = (*Store)(nil)
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		identification TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		initial_balance TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_customer
		ON accounts(customer_id);

	CREATE TABLE IF NOT EXISTS movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		occurred_at TEXT NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('CREDIT', 'DEBIT')),
		value TEXT NOT NULL,
		available_balance TEXT NOT NULL
	);

	-- Ledger order (hot path: tail balance on every append)
	CREATE INDEX IF NOT EXISTS idx_movements_account_order
		ON movements(account_id, occurred_at, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// MOVEMENT STORE (ledger.MovementStore)
// =============================================================================

const movementColumns = `
	m.id, m.account_id, a.number, m.occurred_at, m.kind, m.value, m.available_balance
	FROM movements m JOIN accounts a ON a.id = m.account_id`

func (s *Store) FindAllMovements(ctx context.Context) ([]ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return movements{s.db}.FindAllMovements(ctx)
}

func (s *Store) FindMovementByID(ctx context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return movements{s.db}.FindMovementByID(ctx, id)
}

func (s *Store) FindMovementsByAccount(ctx context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return movements{s.db}.FindMovementsByAccount(ctx, accountID)
}

func (s *Store) SaveMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return movements{s.db}.SaveMovement(ctx, m)
}

func (s *Store) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return movements{s.db}.DeleteMovement(ctx, id)
}

// WithAccount runs fn inside one SQL transaction. The transaction is
// committed only if fn succeeds.
func (s *Store) WithAccount(ctx context.Context, accountID ledger.AccountID, fn func(ledger.MovementStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(movements{sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit movements for account %d: %w", accountID, err)
	}
	return nil
}

// movements runs the movement queries against the database or an open
// transaction. It does no locking of its own.
type movements struct {
	q queryer
}

func (v movements) FindAllMovements(ctx context.Context) ([]ledger.Movement, error) {
	return v.query(ctx, "SELECT"+movementColumns+" ORDER BY m.id")
}

func (v movements) FindMovementByID(ctx context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	ms, err := v.query(ctx, "SELECT"+movementColumns+" WHERE m.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, nil
	}
	return &ms[0], nil
}

func (v movements) FindMovementsByAccount(ctx context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	return v.query(ctx,
		"SELECT"+movementColumns+" WHERE m.account_id = ? ORDER BY m.occurred_at, m.id",
		accountID)
}

func (v movements) SaveMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	at := m.At.UTC().Format(timeLayout)

	if m.ID == 0 {
		res, err := v.q.ExecContext(ctx, `
			INSERT INTO movements (account_id, occurred_at, kind, value, available_balance)
			VALUES (?, ?, ?, ?, ?)`,
			m.AccountID, at, string(m.Kind), m.Value.String(), m.AvailableBalance.String())
		if err != nil {
			return ledger.Movement{}, fmt.Errorf("failed to insert movement: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return ledger.Movement{}, fmt.Errorf("failed to read movement id: %w", err)
		}
		m.ID = ledger.MovementID(id)
		return m, nil
	}

	_, err := v.q.ExecContext(ctx, `
		UPDATE movements
		SET account_id = ?, occurred_at = ?, kind = ?, value = ?, available_balance = ?
		WHERE id = ?`,
		m.AccountID, at, string(m.Kind), m.Value.String(), m.AvailableBalance.String(), m.ID)
	if err != nil {
		return ledger.Movement{}, fmt.Errorf("failed to update movement %d: %w", m.ID, err)
	}
	return m, nil
}

func (v movements) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	_, err := v.q.ExecContext(ctx, "DELETE FROM movements WHERE id = ?", id)
	return err
}

func (v movements) query(ctx context.Context, query string, args ...any) ([]ledger.Movement, error) {
	rows, err := v.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var result []ledger.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func scanMovement(rows *sql.Rows) (ledger.Movement, error) {
	var (
		m                       ledger.Movement
		at, kind                string
		value, availableBalance string
	)
	if err := rows.Scan(&m.ID, &m.AccountID, &m.AccountNumber, &at, &kind, &value, &availableBalance); err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	var err error
	if m.At, err = time.Parse(timeLayout, at); err != nil {
		return m, fmt.Errorf("movement %d: bad occurred_at %q: %w", m.ID, at, err)
	}
	m.Kind = ledger.MovementKind(kind)
	if m.Value, err = decimal.NewFromString(value); err != nil {
		return m, fmt.Errorf("movement %d: bad value %q: %w", m.ID, value, err)
	}
	if m.AvailableBalance, err = decimal.NewFromString(availableBalance); err != nil {
		return m, fmt.Errorf("movement %d: bad available_balance %q: %w", m.ID, availableBalance, err)
	}
	return m, nil
}

// =============================================================================
// ACCOUNTS (ledger.AccountLookup, directory.Store)
// =============================================================================

const accountColumns = `
	a.id, a.number, a.type, a.initial_balance, a.active, a.customer_id, c.name
	FROM accounts a JOIN customers c ON c.id = a.customer_id`

func (s *Store) FindAccountByID(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findAccount(ctx, "SELECT"+accountColumns+" WHERE a.id = ?", id)
}

func (s *Store) FindAccountByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findAccount(ctx, "SELECT"+accountColumns+" WHERE a.number = ?", number)
}

func (s *Store) FindAccountsByCustomer(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAccounts(ctx, "SELECT"+accountColumns+" WHERE a.customer_id = ? ORDER BY a.id", customerID)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAccounts(ctx, "SELECT"+accountColumns+" ORDER BY a.id")
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO accounts (number, type, initial_balance, active, customer_id)
			VALUES (?, ?, ?, ?, ?)`,
			a.Number, string(a.Type), a.InitialBalance.String(), a.Active, string(a.CustomerID))
		if err != nil {
			return ledger.Account{}, accountWriteError(err, a.Number)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return ledger.Account{}, fmt.Errorf("failed to read account id: %w", err)
		}
		a.ID = ledger.AccountID(id)
		return a, nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET number = ?, type = ?, initial_balance = ?, active = ?, customer_id = ?
		WHERE id = ?`,
		a.Number, string(a.Type), a.InitialBalance.String(), a.Active, string(a.CustomerID), a.ID)
	if err != nil {
		return ledger.Account{}, accountWriteError(err, a.Number)
	}
	return a, nil
}

// DeleteAccount cascades to the account's movements.
func (s *Store) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", id)
	return err
}

func (s *Store) findAccount(ctx context.Context, query string, args ...any) (*ledger.Account, error) {
	accounts, err := s.queryAccounts(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			a          ledger.Account
			typ        string
			initial    string
			customerID string
		)
		if err := rows.Scan(&a.ID, &a.Number, &typ, &initial, &a.Active, &customerID, &a.CustomerName); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Type = ledger.AccountType(typ)
		a.CustomerID = ledger.CustomerID(customerID)
		if a.InitialBalance, err = decimal.NewFromString(initial); err != nil {
			return nil, fmt.Errorf("account %d: bad initial_balance %q: %w", a.ID, initial, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// =============================================================================
// CUSTOMERS (ledger.CustomerLookup, directory.Store)
// =============================================================================

const customerColumns = "id, name, gender, age, identification, address, phone, active FROM customers"

func (s *Store) FindCustomerByID(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers, err := s.queryCustomers(ctx, "SELECT "+customerColumns+" WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCustomers(ctx, "SELECT "+customerColumns+" ORDER BY name")
}

func (s *Store) SaveCustomer(ctx context.Context, c ledger.Customer) (ledger.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO customers (id, name, gender, age, identification, address, phone, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			gender = excluded.gender,
			age = excluded.age,
			identification = excluded.identification,
			address = excluded.address,
			phone = excluded.phone,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		string(c.ID), c.Name, c.Gender, c.Age, c.Identification, c.Address, c.Phone, c.Active)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("failed to save customer: %w", err)
	}
	return c, nil
}

// DeleteCustomer cascades to the customer's accounts and their movements.
func (s *Store) DeleteCustomer(ctx context.Context, id ledger.CustomerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM customers WHERE id = ?", string(id))
	return err
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]ledger.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []ledger.Customer
	for rows.Next() {
		var (
			c  ledger.Customer
			id string
		)
		if err := rows.Scan(&id, &c.Name, &c.Gender, &c.Age, &c.Identification, &c.Address, &c.Phone, &c.Active); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.ID = ledger.CustomerID(id)
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func accountWriteError(err error, number string) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return &ledger.DuplicateAccountNumberError{Number: number}
	}
	return fmt.Errorf("failed to save account: %w", err)
}
