/*
Package directory manages account and customer identity.

PURPOSE:
  CRUD over customers and accounts. The ledger only ever reads what this
  package writes; the one rule tying the two together is that an
  account's initial balance is frozen once its ledger has movements.

ACCOUNT NUMBERS:
  A blank number on create is generated by NumberGenerator (bounded
  retry, injectable uniqueness check). A supplied number that is already
  taken fails with DuplicateAccountNumberError, on create and on update.

SEE ALSO:
  - number.go: NumberGenerator
  - ledger/types.go: Account and Customer
*/
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/movement-ledger/ledger"
	"go.uber.org/zap"
)

type Service struct {
	store     Store
	movements ledger.MovementStore
	numbers   *NumberGenerator
	logger    *zap.Logger
}

// NewService uses movements only to check whether an account's ledger is
// empty before its initial balance changes.
func NewService(store Store, movements ledger.MovementStore, maxAttempts int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, movements: movements, logger: logger}
	s.numbers = NewNumberGenerator(s.numberTaken, maxAttempts)
	return s
}

// WithNumberGenerator replaces the default generator.
func (s *Service) WithNumberGenerator(g *NumberGenerator) *Service {
	s.numbers = g
	return s
}

func (s *Service) numberTaken(ctx context.Context, number string) (bool, error) {
	a, err := s.store.FindAccountByNumber(ctx, number)
	if err != nil {
		return false, err
	}
	return a != nil, nil
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Service) Accounts(ctx context.Context) ([]ledger.Account, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return nonNilAccounts(accounts), nil
}

func (s *Service) Account(ctx context.Context, id ledger.AccountID) (ledger.Account, error) {
	a, err := s.store.FindAccountByID(ctx, id)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("find account %d: %w", id, err)
	}
	if a == nil {
		return ledger.Account{}, ledger.AccountNotFound(id)
	}
	return *a, nil
}

func (s *Service) AccountsByCustomer(ctx context.Context, customerID ledger.CustomerID) ([]ledger.Account, error) {
	if _, err := s.Customer(ctx, customerID); err != nil {
		return nil, err
	}
	accounts, err := s.store.FindAccountsByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for customer %s: %w", customerID, err)
	}
	return nonNilAccounts(accounts), nil
}

func (s *Service) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	if err := validateAccount(a); err != nil {
		return ledger.Account{}, err
	}
	if _, err := s.Customer(ctx, a.CustomerID); err != nil {
		return ledger.Account{}, err
	}

	a.Number = strings.TrimSpace(a.Number)
	if a.Number == "" {
		number, err := s.numbers.Generate(ctx)
		if err != nil {
			return ledger.Account{}, err
		}
		a.Number = number
	} else if err := s.ensureNumberFree(ctx, a.Number); err != nil {
		return ledger.Account{}, err
	}

	a.ID = 0
	saved, err := s.store.SaveAccount(ctx, a)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("save account: %w", err)
	}
	s.logger.Info("account created",
		zap.Int64("account_id", int64(saved.ID)),
		zap.String("number", saved.Number))
	return s.Account(ctx, saved.ID)
}

func (s *Service) UpdateAccount(ctx context.Context, id ledger.AccountID, a ledger.Account) (ledger.Account, error) {
	existing, err := s.Account(ctx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	if err := validateAccount(a); err != nil {
		return ledger.Account{}, err
	}

	a.Number = strings.TrimSpace(a.Number)
	if a.Number == "" {
		a.Number = existing.Number
	}
	if a.Number != existing.Number {
		if err := s.ensureNumberFree(ctx, a.Number); err != nil {
			return ledger.Account{}, err
		}
	}

	if !a.InitialBalance.Equal(existing.InitialBalance) {
		ms, err := s.movements.FindMovementsByAccount(ctx, id)
		if err != nil {
			return ledger.Account{}, fmt.Errorf("load movements for account %d: %w", id, err)
		}
		if len(ms) > 0 {
			return ledger.Account{}, fmt.Errorf("%w: account %d has %d movements", ledger.ErrInitialBalanceLocked, id, len(ms))
		}
	}

	if a.CustomerID == "" {
		a.CustomerID = existing.CustomerID
	} else if a.CustomerID != existing.CustomerID {
		if _, err := s.Customer(ctx, a.CustomerID); err != nil {
			return ledger.Account{}, err
		}
	}

	a.ID = id
	if _, err := s.store.SaveAccount(ctx, a); err != nil {
		return ledger.Account{}, fmt.Errorf("save account %d: %w", id, err)
	}
	return s.Account(ctx, id)
}

func (s *Service) DeleteAccount(ctx context.Context, id ledger.AccountID) error {
	if _, err := s.Account(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return fmt.Errorf("delete account %d: %w", id, err)
	}
	s.logger.Info("account deleted", zap.Int64("account_id", int64(id)))
	return nil
}

func (s *Service) ensureNumberFree(ctx context.Context, number string) error {
	taken, err := s.numberTaken(ctx, number)
	if err != nil {
		return fmt.Errorf("check account number %s: %w", number, err)
	}
	if taken {
		return &ledger.DuplicateAccountNumberError{Number: number}
	}
	return nil
}

func validateAccount(a ledger.Account) error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ledger.ErrInvalidAccount, a.Type)
	}
	if a.InitialBalance.IsNegative() {
		return fmt.Errorf("%w: initial balance must not be negative", ledger.ErrInvalidAccount)
	}
	if !ledger.HasCents(a.InitialBalance) {
		return fmt.Errorf("%w: initial balance allows at most %d decimal places (got %s)",
			ledger.ErrInvalidAccount, ledger.MoneyPlaces, a.InitialBalance)
	}
	return nil
}

func nonNilAccounts(a []ledger.Account) []ledger.Account {
	if a == nil {
		return []ledger.Account{}
	}
	return a
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *Service) Customers(ctx context.Context) ([]ledger.Customer, error) {
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	if customers == nil {
		customers = []ledger.Customer{}
	}
	return customers, nil
}

func (s *Service) Customer(ctx context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	c, err := s.store.FindCustomerByID(ctx, id)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("find customer %s: %w", id, err)
	}
	if c == nil {
		return ledger.Customer{}, ledger.CustomerNotFound(id)
	}
	return *c, nil
}

// CreateCustomer assigns a UUID when c.ID is blank.
func (s *Service) CreateCustomer(ctx context.Context, c ledger.Customer) (ledger.Customer, error) {
	if strings.TrimSpace(c.Name) == "" {
		return ledger.Customer{}, fmt.Errorf("%w: name is required", ledger.ErrInvalidCustomer)
	}
	if c.ID == "" {
		c.ID = ledger.CustomerID(uuid.NewString())
	} else if existing, err := s.store.FindCustomerByID(ctx, c.ID); err != nil {
		return ledger.Customer{}, fmt.Errorf("find customer %s: %w", c.ID, err)
	} else if existing != nil {
		return ledger.Customer{}, fmt.Errorf("%w: customer %s already exists", ledger.ErrInvalidCustomer, c.ID)
	}
	saved, err := s.store.SaveCustomer(ctx, c)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("save customer: %w", err)
	}
	return saved, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id ledger.CustomerID, c ledger.Customer) (ledger.Customer, error) {
	if _, err := s.Customer(ctx, id); err != nil {
		return ledger.Customer{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return ledger.Customer{}, fmt.Errorf("%w: name is required", ledger.ErrInvalidCustomer)
	}
	c.ID = id
	saved, err := s.store.SaveCustomer(ctx, c)
	if err != nil {
		return ledger.Customer{}, fmt.Errorf("save customer %s: %w", id, err)
	}
	return saved, nil
}

// DeleteCustomer removes the customer together with its accounts.
func (s *Service) DeleteCustomer(ctx context.Context, id ledger.CustomerID) error {
	if _, err := s.Customer(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteCustomer(ctx, id); err != nil {
		return fmt.Errorf("delete customer %s: %w", id, err)
	}
	return nil
}
