// Package fx converts monetary amounts between a stock's native currency
// and the ledger's base currency using a caller-supplied rate snapshot.
package fx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RateSnapshot maps currency codes to units of that currency per 1 unit
// of the base currency. The base currency itself maps to 1.
type RateSnapshot map[string]decimal.Decimal

// Converter is stateless and deterministic given its inputs. A missing or
// non-positive rate fails open: the amount passes through unchanged, as if
// the native currency were the base. Every fail-open is logged and counted
// so a stale rate feed is visible in monitoring.
type Converter struct {
	base     string
	log      zerolog.Logger
	failOpen prometheus.Counter
}

func NewConverter(base string, log zerolog.Logger, failOpen prometheus.Counter) *Converter {
	return &Converter{base: base, log: log, failOpen: failOpen}
}

// Base returns the ledger's base currency code.
func (c *Converter) Base() string { return c.base }

// ToBase converts an amount quoted in nativeCurrency into the base currency.
func (c *Converter) ToBase(amount decimal.Decimal, nativeCurrency string, rates RateSnapshot) decimal.Decimal {
	if nativeCurrency == c.base {
		return amount
	}
	rate, ok := rates[nativeCurrency]
	if !ok || rate.Sign() <= 0 {
		c.flagFailOpen(nativeCurrency)
		return amount
	}
	return amount.Div(rate)
}

// FromBase converts a base-currency amount into targetCurrency.
func (c *Converter) FromBase(amount decimal.Decimal, targetCurrency string, rates RateSnapshot) decimal.Decimal {
	if targetCurrency == c.base {
		return amount
	}
	rate, ok := rates[targetCurrency]
	if !ok || rate.Sign() <= 0 {
		c.flagFailOpen(targetCurrency)
		return amount
	}
	return amount.Mul(rate)
}

func (c *Converter) flagFailOpen(currency string) {
	c.log.Warn().Str("currency", currency).Msg("missing or non-positive rate, treating as base currency")
	if c.failOpen != nil {
		c.failOpen.Inc()
	}
}
