package directory

import (
	"context"

	"github.com/warp/movement-ledger/ledger"
)

// Store persists account and customer identity. Lookups follow the
// ledger port contract: (nil, nil) when absent.
type Store interface {
	ledger.AccountLookup
	ledger.CustomerLookup

	ListAccounts(ctx context.Context) ([]ledger.Account, error)

	// SaveAccount inserts when a.ID is zero (assigning the ID) and
	// replaces the stored record otherwise.
	SaveAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	DeleteAccount(ctx context.Context, id ledger.AccountID) error

	ListCustomers(ctx context.Context) ([]ledger.Customer, error)

	// SaveCustomer upserts by c.ID, which must be set.
	SaveCustomer(ctx context.Context, c ledger.Customer) (ledger.Customer, error)
	DeleteCustomer(ctx context.Context, id ledger.CustomerID) error
}
