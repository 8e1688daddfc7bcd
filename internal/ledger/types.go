// Package ledger holds the account model and the position accounting rules.
// Balances and cost bases are denominated in a single base currency.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeAction is the direction of an executed trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// Valid reports whether the action is one of the two known directions.
func (a TradeAction) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Account is a user's single base-currency balance.
// Balance never goes negative at any observable time.
type Account struct {
	ID        uuid.UUID
	Balance   decimal.Decimal
	Currency  string
	UpdatedAt time.Time
}

// Position is an account's holding of one symbol. A position only exists
// while Quantity > 0; a holding sold down to exactly zero is removed.
type Position struct {
	AccountID uuid.UUID
	Symbol    string
	Quantity  decimal.Decimal
	AvgPrice  decimal.Decimal // weighted-average cost per unit, base currency
}

// Transaction is one immutable record per executed trade.
// Price and Total are in base currency at execution time.
type Transaction struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Symbol    string
	Action    TradeAction
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
}
