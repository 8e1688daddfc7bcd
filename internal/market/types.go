// Package market fetches quotes, history, and exchange rates from the two
// upstream data sources (Yahoo Finance for US/global symbols, MOEX ISS for
// Russian symbols) and normalizes them for the trade engine.
package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/fx"
)

// Quote is a point-in-time price observation for a symbol. Never persisted;
// produced fresh per request and discarded after one operation.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Exchange      string          `json:"exchange"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	DayHigh       decimal.Decimal `json:"day_high"`
	DayLow        decimal.Decimal `json:"day_low"`
	Volume        int64           `json:"volume"`
	AsOf          time.Time       `json:"as_of"`
}

// Candle is one point of price history.
type Candle struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// SearchResult is one symbol lookup hit.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
}

// QuoteProvider is the capability the trade engine consumes. All calls
// carry a bounded timeout; a failed fetch surfaces as QuoteUnavailable.
type QuoteProvider interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetHistory(ctx context.Context, symbol, period string) ([]Candle, error)
}

// RateSource produces a fresh exchange-rate snapshot for a base currency.
// Rate = units of the quoted currency per 1 unit of base.
type RateSource interface {
	GetRates(ctx context.Context, base string) (fx.RateSnapshot, error)
}
