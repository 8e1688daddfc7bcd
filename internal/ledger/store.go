package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence boundary for accounts, positions, and the
// transaction log. Implementations: Postgres (production) and in-memory
// (tests). Reads outside a lock are point-in-time; all mutations go
// through WithAccountLock.
type Store interface {
	// CreateAccount creates an account with zero balance in the given
	// currency. Called once at registration.
	CreateAccount(ctx context.Context, accountID uuid.UUID, currency string) error

	GetAccount(ctx context.Context, accountID uuid.UUID) (Account, error)

	// GetPosition returns nil when the account holds no position in symbol.
	GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (*Position, error)

	ListPositions(ctx context.Context, accountID uuid.UUID) ([]Position, error)

	// ListTransactions returns the account's trades, newest first.
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error)

	// WithAccountLock runs fn holding an exclusive per-account lock with a
	// consistent read of the account's balance and positions. Writes made
	// through the AccountTx commit atomically when fn returns nil and are
	// rolled back entirely when fn returns an error. The lock is released
	// on every exit path. Different accounts do not contend.
	WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(tx AccountTx) error) error
}

// AccountTx is the mutation surface available inside WithAccountLock.
type AccountTx interface {
	// Account returns the locked account as read at lock acquisition,
	// reflecting any SetBalance already staged in this transaction.
	Account() Account

	SetBalance(ctx context.Context, balance decimal.Decimal) error

	// GetPosition returns nil when no position exists for symbol,
	// reflecting staged writes in this transaction.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	UpsertPosition(ctx context.Context, pos Position) error
	DeletePosition(ctx context.Context, symbol string) error
	AppendTransaction(ctx context.Context, tx Transaction) error
}
