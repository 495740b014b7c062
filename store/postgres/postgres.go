/*
Package postgres provides a PostgreSQL-backed implementation of the ledger
and directory ports on a pgx connection pool.

PURPOSE:
  Same contract as store/sqlite, for deployments with concurrent writers
  across processes. Amounts are NUMERIC; they are written from their
  decimal string form and read back through ::text so no float ever
  touches a balance.

CONCURRENCY:
  WithAccount opens a transaction and takes a row lock on the account
  (SELECT ... FOR UPDATE). Appends against one account therefore
  serialize in the database, while different accounts proceed in
  parallel.

SEE ALSO:
  - store/sqlite: Single-process equivalent
  - ledger/store.go: Port definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/movement-ledger/directory"
	"github.com/warp/movement-ledger/ledger"
)

const uniqueViolation = "23505"

var (
	_ ledger.SerializingStore = (*Store)(nil)
	_ directory.Store         = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
}

// New connects, pings and migrates.
func New(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		age INTEGER NOT NULL DEFAULT 0,
		identification TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		initial_balance NUMERIC NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_customer ON accounts(customer_id);

	CREATE TABLE IF NOT EXISTS movements (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		occurred_at TIMESTAMPTZ NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('CREDIT', 'DEBIT')),
		value NUMERIC NOT NULL CHECK (value > 0),
		available_balance NUMERIC NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_account_order
		ON movements(account_id, occurred_at, id);
	`)
	return err
}

// queryer is satisfied by *pgxpool.Pool and pgx.Tx.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (s *Store) FindAllMovements(ctx context.Context) ([]ledger.Movement, error) {
	return movements{s.pool}.FindAllMovements(ctx)
}

func (s *Store) FindMovementByID(ctx context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	return movements{s.pool}.FindMovementByID(ctx, id)
}

func (s *Store) FindMovementsByAccount(ctx context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	return movements{s.pool}.FindMovementsByAccount(ctx, accountID)
}

func (s *Store) SaveMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	return movements{s.pool}.SaveMovement(ctx, m)
}

func (s *Store) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	return movements{s.pool}.DeleteMovement(ctx, id)
}

// WithAccount locks the account row for the life of one transaction.
func (s *Store) WithAccount(ctx context.Context, accountID ledger.AccountID, fn func(ledger.MovementStore) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked int64
	err = tx.QueryRow(ctx, "SELECT id FROM accounts WHERE id = $1 FOR UPDATE", int64(accountID)).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.AccountNotFound(accountID)
	}
	if err != nil {
		return fmt.Errorf("lock account %d: %w", accountID, err)
	}

	if err := fn(movements{tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit movements for account %d: %w", accountID, err)
	}
	return nil
}

type movements struct {
	q queryer
}

const movementSelect = `
	SELECT m.id, m.account_id, a.number, m.occurred_at, m.kind, m.value::text, m.available_balance::text
	FROM movements m JOIN accounts a ON a.id = m.account_id`

func (v movements) FindAllMovements(ctx context.Context) ([]ledger.Movement, error) {
	return v.query(ctx, movementSelect+" ORDER BY m.id")
}

func (v movements) FindMovementByID(ctx context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	ms, err := v.query(ctx, movementSelect+" WHERE m.id = $1", int64(id))
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return &ms[0], nil
}

func (v movements) FindMovementsByAccount(ctx context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	return v.query(ctx, movementSelect+" WHERE m.account_id = $1 ORDER BY m.occurred_at, m.id", int64(accountID))
}

func (v movements) SaveMovement(ctx context.Context, m ledger.Movement) (ledger.Movement, error) {
	if m.ID == 0 {
		var id int64
		err := v.q.QueryRow(ctx, `
			INSERT INTO movements (account_id, occurred_at, kind, value, available_balance)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric)
			RETURNING id`,
			int64(m.AccountID), m.At.UTC(), string(m.Kind), m.Value.String(), m.AvailableBalance.String(),
		).Scan(&id)
		if err != nil {
			return ledger.Movement{}, fmt.Errorf("failed to insert movement: %w", err)
		}
		m.ID = ledger.MovementID(id)
		return m, nil
	}

	_, err := v.q.Exec(ctx, `
		UPDATE movements
		SET account_id = $1, occurred_at = $2, kind = $3, value = $4::numeric, available_balance = $5::numeric
		WHERE id = $6`,
		int64(m.AccountID), m.At.UTC(), string(m.Kind), m.Value.String(), m.AvailableBalance.String(), int64(m.ID))
	if err != nil {
		return ledger.Movement{}, fmt.Errorf("failed to update movement %d: %w", m.ID, err)
	}
	return m, nil
}

func (v movements) DeleteMovement(ctx context.Context, id ledger.MovementID) error {
	_, err := v.q.Exec(ctx, "DELETE FROM movements WHERE id = $1", int64(id))
	return err
}

func (v movements) query(ctx context.Context, sql string, args ...any) ([]ledger.Movement, error) {
	rows, err := v.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	var result []ledger.Movement
	for rows.Next() {
		var (
			m                       ledger.Movement
			id, accountID           int64
			kind                    string
			value, availableBalance string
		)
		if err := rows.Scan(&id, &accountID, &m.AccountNumber, &m.At, &kind, &value, &availableBalance); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		m.ID = ledger.MovementID(id)
		m.AccountID = ledger.AccountID(accountID)
		m.At = m.At.UTC()
		m.Kind = ledger.MovementKind(kind)
		if m.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("movement %d: bad value %q: %w", id, value, err)
		}
		if m.AvailableBalance, err = decimal.NewFromString(availableBalance); err != nil {
			return nil, fmt.Errorf("movement %d: bad available_balance %q: %w", id, availableBalance, err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountSelect = `
	SELECT a.id, a.number, a.type, a.initial_balance::text, a.active, a.customer_id, c.name
	FROM accounts a JOIN customers c ON c.id = a.customer_id`

func (s *Store) FindAccountByID(ctx context.Context, id ledger.AccountID) (*ledger.Account, error) {
	return s.findAccount(ctx, accountSelect+" WHERE a.id = $1", int64(id))
}

func (s *Store) FindAccountByNumber(ctx context.Context, number string) (*ledger.Account, error) {
	return s.findAccount(ctx, accountSelect+" WHERE a.number = $1", number)
}

func (s *Store) FindAccountsByCustomer(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Account, error) {
	return s.queryAccounts(ctx, accountSelect+" WHERE a.customer_id = $1 ORDER BY a.id", string(customerID))
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	return s.queryAccounts(ctx, accountSelect+" ORDER BY a.id")
}

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if a.ID == 0 {
		var id int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO accounts (number, type, initial_balance, active, customer_id)
			VALUES ($1, $2, $3::numeric, $4, $5)
			RETURNING id`,
			a.Number, string(a.Type), a.InitialBalance.String(), a.Active, string(a.CustomerID),
		).Scan(&id)
		if err != nil {
			return ledger.Account{}, accountWriteError(err, a.Number)
		}
		a.ID = ledger.AccountID(id)
		return a, nil
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE accounts
		SET number = $1, type = $2, initial_balance = $3::numeric, active = $4, customer_id = $5
		WHERE id = $6`,
		a.Number, string(a.Type), a.InitialBalance.String(), a.Active, string(a.CustomerID), int64(a.ID))
	if err != nil {
		return ledger.Account{}, accountWriteError(err, a.Number)
	}
	return a, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM accounts WHERE id = $1", int64(id))
	return err
}

func (s *Store) findAccount(ctx context.Context, sql string, args ...any) (*ledger.Account, error) {
	accounts, err := s.queryAccounts(ctx, sql, args...)
	if err != nil || len(accounts) == 0 {
		return nil, err
	}
	return &accounts[0], nil
}

func (s *Store) queryAccounts(ctx context.Context, sql string, args ...any) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		var (
			a                      ledger.Account
			id                     int64
			typ, initial, customer string
		)
		if err := rows.Scan(&id, &a.Number, &typ, &initial, &a.Active, &customer, &a.CustomerName); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.ID = ledger.AccountID(id)
		a.Type = ledger.AccountType(typ)
		a.CustomerID = ledger.CustomerID(customer)
		if a.InitialBalance, err = decimal.NewFromString(initial); err != nil {
			return nil, fmt.Errorf("account %d: bad initial_balance %q: %w", id, initial, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// =============================================================================
// CUSTOMERS
// =============================================================================

const customerSelect = "SELECT id, name, gender, age, identification, address, phone, active FROM customers"

func (s *Store) FindCustomerByID(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	customers, err := s.queryCustomers(ctx, customerSelect+" WHERE id = $1", string(id))
	if err != nil || len(customers) == 0 {
		return nil, err
	}
	return &customers[0], nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return s.queryCustomers(ctx, customerSelect+" ORDER BY name")
}

func (s *Store) SaveCustomer(ctx context.Context, c ledger.Customer) (ledger.Customer, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, name, gender, age, identification, address, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			gender = EXCLUDED.gender,
			age = EXCLUDED.age,
			identification = EXCLUDED.identification,
			address = EXCLUDED.address,
			phone = EXCLUDED.phone,
			active = EXCLUDED.active`,
		string(c.ID), c.Name, c.Gender, c.Age, c.Identification, c.Address, c.Phone, c.Active)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("failed to save customer: %w", err)
	}
	return c, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id ledger.CustomerID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM customers WHERE id = $1", string(id))
	return err
}

func (s *Store) queryCustomers(ctx context.Context, sql string, args ...any) ([]ledger.Customer, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
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

func accountWriteError(err error, number string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &ledger.DuplicateAccountNumberError{Number: number}
	}
	return fmt.Errorf("failed to save account: %w", err)
}
