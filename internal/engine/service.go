// Package engine implements trade execution and portfolio accounting:
// quote fetch, currency conversion, funds/holdings validation, and the
// atomic balance/position/transaction apply under the per-account lock.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/fx"
	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/market"
	"github.com/oxsidee/traidetrain/internal/observability"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// RateSnapshotter supplies the current exchange-rate snapshot. Implemented
// by market.CachedRates; stubbed in tests.
type RateSnapshotter interface {
	Rates(ctx context.Context) fx.RateSnapshot
}

// EventPublisher receives post-commit notifications. Implementations must
// never fail the trade; publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{})
}

// TradeResult is the outcome of one executed trade.
type TradeResult struct {
	TransactionID  uuid.UUID          `json:"transaction_id"`
	Symbol         string             `json:"symbol"`
	Action         ledger.TradeAction `json:"action"`
	Quantity       decimal.Decimal    `json:"quantity"`
	PriceBase      decimal.Decimal    `json:"price"`
	Total          decimal.Decimal    `json:"total"`
	NativePrice    decimal.Decimal    `json:"native_price"`
	NativeCurrency string             `json:"native_currency"`
	Balance        decimal.Decimal    `json:"balance"`
	ExecutedAt     time.Time          `json:"executed_at"`
}

// Service wires the converter, providers, and ledger store into the
// operations exposed to the API layer.
type Service struct {
	store        ledger.Store
	quotes       market.QuoteProvider
	rates        RateSnapshotter
	converter    *fx.Converter
	publisher    EventPublisher
	metrics      *observability.Metrics
	log          zerolog.Logger
	quoteTimeout time.Duration
}

func NewService(
	store ledger.Store,
	quotes market.QuoteProvider,
	rates RateSnapshotter,
	converter *fx.Converter,
	publisher EventPublisher,
	metrics *observability.Metrics,
	log zerolog.Logger,
	quoteTimeout time.Duration,
) *Service {
	return &Service{
		store:        store,
		quotes:       quotes,
		rates:        rates,
		converter:    converter,
		publisher:    publisher,
		metrics:      metrics,
		log:          log,
		quoteTimeout: quoteTimeout,
	}
}

// ExecuteTrade runs one buy or sell. The quote and rate snapshot are
// fetched before the account lock so a slow upstream never blocks other
// operations on the account; the lock covers only the read-validate-write
// sequence. Either every mutation commits or none do.
func (s *Service) ExecuteTrade(ctx context.Context, accountID uuid.UUID, symbol string, quantity decimal.Decimal, action ledger.TradeAction) (TradeResult, error) {
	if !action.Valid() {
		return TradeResult{}, traideerr.New(traideerr.KindInvalidQuantity, "unknown action %q", action)
	}
	if quantity.Sign() <= 0 {
		s.rejected(action, "invalid_quantity")
		return TradeResult{}, traideerr.InvalidQuantity(quantity)
	}

	quoteCtx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()

	quote, err := s.quotes.GetQuote(quoteCtx, symbol)
	if err != nil {
		s.rejected(action, "quote_unavailable")
		return TradeResult{}, err
	}

	rates := s.rates.Rates(quoteCtx)
	priceBase := s.converter.ToBase(quote.Price, quote.Currency, rates)
	total := priceBase.Mul(quantity)

	var result TradeResult
	start := time.Now()

	err = s.store.WithAccountLock(ctx, accountID, func(tx ledger.AccountTx) error {
		acct := tx.Account()

		pos, err := tx.GetPosition(ctx, symbol)
		if err != nil {
			return err
		}

		var newBalance decimal.Decimal
		switch action {
		case ledger.ActionBuy:
			if acct.Balance.LessThan(total) {
				return traideerr.InsufficientFunds(total, acct.Balance)
			}
			updated, err := ledger.ApplyBuy(pos, accountID, symbol, quantity, priceBase)
			if err != nil {
				return err
			}
			if err := tx.UpsertPosition(ctx, updated); err != nil {
				return err
			}
			newBalance = acct.Balance.Sub(total)

		case ledger.ActionSell:
			remaining, err := ledger.ApplySell(pos, symbol, quantity)
			if err != nil {
				return err
			}
			if remaining == nil {
				if err := tx.DeletePosition(ctx, symbol); err != nil {
					return err
				}
			} else {
				if err := tx.UpsertPosition(ctx, *remaining); err != nil {
					return err
				}
			}
			newBalance = acct.Balance.Add(total)
		}

		if err := tx.SetBalance(ctx, newBalance); err != nil {
			return err
		}

		record := ledger.Transaction{
			ID:        uuid.New(),
			AccountID: accountID,
			Symbol:    symbol,
			Action:    action,
			Quantity:  quantity,
			Price:     priceBase,
			Total:     total,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.AppendTransaction(ctx, record); err != nil {
			return err
		}

		result = TradeResult{
			TransactionID:  record.ID,
			Symbol:         symbol,
			Action:         action,
			Quantity:       quantity,
			PriceBase:      priceBase,
			Total:          total,
			NativePrice:    quote.Price,
			NativeCurrency: quote.Currency,
			Balance:        newBalance,
			ExecutedAt:     record.CreatedAt,
		}
		return nil
	})
	if err != nil {
		s.rejected(action, string(traideerr.KindOf(err)))
		return TradeResult{}, err
	}

	if s.metrics != nil {
		s.metrics.TradesExecuted.WithLabelValues(string(action)).Inc()
		s.metrics.TradeApplyDur.WithLabelValues(string(action)).Observe(time.Since(start).Seconds())
	}
	s.log.Info().
		Str("account_id", accountID.String()).
		Str("symbol", symbol).
		Str("action", string(action)).
		Str("quantity", quantity.String()).
		Str("price", priceBase.String()).
		Str("total", total.String()).
		Msg("trade executed")

	if s.publisher != nil {
		s.publisher.Publish(ctx, "trade.executed", result)
	}
	return result, nil
}

// Deposit credits the account balance. Amount must be positive.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.Sign() <= 0 {
		return decimal.Zero, traideerr.InvalidQuantity(amount)
	}

	var newBalance decimal.Decimal
	err := s.store.WithAccountLock(ctx, accountID, func(tx ledger.AccountTx) error {
		newBalance = tx.Account().Balance.Add(amount)
		return tx.SetBalance(ctx, newBalance)
	})
	if err != nil {
		return decimal.Zero, err
	}

	if s.metrics != nil {
		s.metrics.DepositsTotal.Inc()
	}
	s.log.Info().
		Str("account_id", accountID.String()).
		Str("amount", amount.String()).
		Msg("deposit applied")

	if s.publisher != nil {
		s.publisher.Publish(ctx, "funds.deposited", map[string]interface{}{
			"account_id": accountID,
			"amount":     amount,
			"balance":    newBalance,
		})
	}
	return newBalance, nil
}

// ListPositions returns the account's open positions.
func (s *Service) ListPositions(ctx context.Context, accountID uuid.UUID) ([]ledger.Position, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListPositions(ctx, accountID)
}

// ListTransactions returns the account's trade log, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, accountID)
}

func (s *Service) rejected(action ledger.TradeAction, reason string) {
	if s.metrics != nil {
		s.metrics.TradesRejected.WithLabelValues(string(action), reason).Inc()
	}
}
