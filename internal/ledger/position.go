package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// ApplyBuy returns the position state after buying qty units at priceBase.
// existing may be nil (first buy of the symbol). The new average cost blends
// the purchase into the held cost basis:
//
//	new_avg = (old_avg*old_qty + priceBase*qty) / (old_qty + qty)
func ApplyBuy(existing *Position, accountID uuid.UUID, symbol string, qty, priceBase decimal.Decimal) (Position, error) {
	if qty.Sign() <= 0 {
		return Position{}, traideerr.InvalidQuantity(qty)
	}

	if existing == nil {
		return Position{
			AccountID: accountID,
			Symbol:    symbol,
			Quantity:  qty,
			AvgPrice:  priceBase,
		}, nil
	}

	newQty := existing.Quantity.Add(qty)
	newAvg := existing.AvgPrice.Mul(existing.Quantity).
		Add(priceBase.Mul(qty)).
		Div(newQty)

	return Position{
		AccountID: existing.AccountID,
		Symbol:    existing.Symbol,
		Quantity:  newQty,
		AvgPrice:  newAvg,
	}, nil
}

// ApplySell returns the remaining position after selling qty units, or nil
// when the position is fully liquidated. The average cost of the remainder
// is unchanged; realized gains show up only in the balance credit.
func ApplySell(existing *Position, symbol string, qty decimal.Decimal) (*Position, error) {
	if qty.Sign() <= 0 {
		return nil, traideerr.InvalidQuantity(qty)
	}
	if existing == nil {
		return nil, traideerr.InsufficientHoldings(symbol, qty, decimal.Zero)
	}
	if qty.GreaterThan(existing.Quantity) {
		return nil, traideerr.InsufficientHoldings(symbol, qty, existing.Quantity)
	}

	remaining := existing.Quantity.Sub(qty)
	if remaining.Sign() == 0 {
		return nil, nil
	}

	return &Position{
		AccountID: existing.AccountID,
		Symbol:    existing.Symbol,
		Quantity:  remaining,
		AvgPrice:  existing.AvgPrice,
	}, nil
}
