// Package store provides an in-memory implementation of the ledger ports.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/movement-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps one ordered slice of movements per account plus an index
// from movement ID to owning account.
type Memory struct {
	mu        sync.RWMutex
	movements map[ledger.AccountID][]ledger.Movement
	owner     map[ledger.MovementID]ledger.AccountID
	accounts  map[ledger.AccountID]ledger.Account
	customers map[ledger.CustomerID]ledger.Customer
	nextMv    ledger.MovementID
	nextAcct  ledger.AccountID

	// writeMu serializes WithAccount sections across all accounts.
	writeMu sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		movements: make(map[ledger.AccountID][]ledger.Movement),
		owner:     make(map[ledger.MovementID]ledger.AccountID),
		accounts:  make(map[ledger.AccountID]ledger.Account),
		customers: make(map[ledger.CustomerID]ledger.Customer),
	}
}

// =============================================================================
// MOVEMENTS (ledger.MovementStore)
// =============================================================================

func (m *Memory) FindAllMovements(_ context.Context) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var all []ledger.Movement
	for _, ms := range m.movements {
		all = append(all, ms...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (m *Memory) FindMovementByID(_ context.Context, id ledger.MovementID) (*ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mv, ok := m.findLocked(id)
	if !ok {
		return nil, nil
	}
	return &mv, nil
}

func (m *Memory) FindMovementsByAccount(_ context.Context, accountID ledger.AccountID) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Movement, len(m.movements[accountID]))
	copy(result, m.movements[accountID])
	return result, nil
}

func (m *Memory) SaveMovement(_ context.Context, mv ledger.Movement) (ledger.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mv.ID == 0 {
		m.nextMv++
		mv.ID = m.nextMv
	} else {
		m.removeLocked(mv.ID)
	}
	m.insertLocked(mv)
	return mv, nil
}

func (m *Memory) DeleteMovement(_ context.Context, id ledger.MovementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(id)
	return nil
}

// WithAccount runs fn under an exclusive write section. A failing fn
// leaves the account's movements as they were.
func (m *Memory) WithAccount(ctx context.Context, accountID ledger.AccountID, fn func(ledger.MovementStore) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	before := append([]ledger.Movement(nil), m.movements[accountID]...)
	nextMv := m.nextMv
	m.mu.RUnlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		for _, mv := range m.movements[accountID] {
			delete(m.owner, mv.ID)
		}
		m.movements[accountID] = before
		for _, mv := range before {
			m.owner[mv.ID] = accountID
		}
		m.nextMv = nextMv
		m.mu.Unlock()
		return err
	}
	return nil
}

// insertLocked keeps the per-account slice in (At, ID) order.
func (m *Memory) insertLocked(mv ledger.Movement) {
	ms := m.movements[mv.AccountID]

	// Binary search for insertion point
	i := sort.Search(len(ms), func(i int) bool {
		return mv.Before(ms[i])
	})

	ms = append(ms, ledger.Movement{})
	copy(ms[i+1:], ms[i:])
	ms[i] = mv
	m.movements[mv.AccountID] = ms
	m.owner[mv.ID] = mv.AccountID
}

func (m *Memory) removeLocked(id ledger.MovementID) {
	accountID, ok := m.owner[id]
	if !ok {
		return
	}
	ms := m.movements[accountID]
	for i := range ms {
		if ms[i].ID == id {
			m.movements[accountID] = append(ms[:i:i], ms[i+1:]...)
			break
		}
	}
	delete(m.owner, id)
}

func (m *Memory) findLocked(id ledger.MovementID) (ledger.Movement, bool) {
	accountID, ok := m.owner[id]
	if !ok {
		return ledger.Movement{}, false
	}
	for _, mv := range m.movements[accountID] {
		if mv.ID == id {
			return mv, true
		}
	}
	return ledger.Movement{}, false
}

// =============================================================================
// ACCOUNTS (ledger.AccountLookup, directory.Store)
// =============================================================================

func (m *Memory) FindAccountByID(_ context.Context, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	a.CustomerName = m.customers[a.CustomerID].Name
	return &a, nil
}

func (m *Memory) FindAccountByNumber(_ context.Context, number string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts {
		if a.Number == number {
			a.CustomerName = m.customers[a.CustomerID].Name
			return &a, nil
		}
	}
	return nil, nil
}

func (m *Memory) FindAccountsByCustomer(_ context.Context, customerID ledger.CustomerID) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Account
	for _, a := range m.sortedAccountsLocked() {
		if a.CustomerID == customerID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *Memory) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedAccountsLocked(), nil
}

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a.ID == 0 {
		m.nextAcct++
		a.ID = m.nextAcct
	}
	a.CustomerName = ""
	m.accounts[a.ID] = a
	a.CustomerName = m.customers[a.CustomerID].Name
	return a, nil
}

// DeleteAccount also drops the account's movements.
func (m *Memory) DeleteAccount(_ context.Context, id ledger.AccountID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteAccountLocked(id)
	return nil
}

func (m *Memory) deleteAccountLocked(id ledger.AccountID) {
	for _, mv := range m.movements[id] {
		delete(m.owner, mv.ID)
	}
	delete(m.movements, id)
	delete(m.accounts, id)
}

func (m *Memory) sortedAccountsLocked() []ledger.Account {
	result := make([]ledger.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		a.CustomerName = m.customers[a.CustomerID].Name
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// =============================================================================
// CUSTOMERS (ledger.CustomerLookup, directory.Store)
// =============================================================================

func (m *Memory) FindCustomerByID(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveCustomer(_ context.Context, c ledger.Customer) (ledger.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customers[c.ID] = c
	return c, nil
}

// DeleteCustomer also drops the customer's accounts and their movements.
func (m *Memory) DeleteCustomer(_ context.Context, id ledger.CustomerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for accountID, a := range m.accounts {
		if a.CustomerID == id {
			m.deleteAccountLocked(accountID)
		}
	}
	delete(m.customers, id)
	return nil
}
