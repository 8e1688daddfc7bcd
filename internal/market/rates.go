package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/fx"
	"github.com/oxsidee/traidetrain/internal/observability"
)

// rateCurrencies are the non-base currencies tracked in the snapshot.
var rateCurrencies = []string{"RUB", "EUR", "GBP", "CNY"}

// YahooRateSource builds a rate snapshot from Yahoo FX pair quotes
// (USDRUB=X style symbols). A pair that fails to fetch is left out of the
// snapshot; the converter fails open on the missing entry.
type YahooRateSource struct {
	yahoo *YahooProvider
	log   zerolog.Logger
}

func NewYahooRateSource(yahoo *YahooProvider, log zerolog.Logger) *YahooRateSource {
	return &YahooRateSource{yahoo: yahoo, log: log}
}

func (s *YahooRateSource) GetRates(ctx context.Context, base string) (fx.RateSnapshot, error) {
	rates := fx.RateSnapshot{base: decimal.NewFromInt(1)}

	for _, cur := range rateCurrencies {
		if cur == base {
			continue
		}
		pair := fmt.Sprintf("%s%s=X", base, cur)
		quote, err := s.yahoo.GetQuote(ctx, pair)
		if err != nil {
			s.log.Warn().Str("pair", pair).Err(err).Msg("rate fetch failed, pair omitted from snapshot")
			continue
		}
		rates[cur] = quote.Price
	}

	if len(rates) == 1 {
		return rates, fmt.Errorf("no rates fetched for base %s", base)
	}
	return rates, nil
}

// CachedRates wraps a RateSource with a TTL cache. It is the injected
// ExchangeRateProvider capability: callers always get a snapshot (possibly
// stale, possibly base-only) and never block trades on a rate outage.
type CachedRates struct {
	source  RateSource
	base    string
	ttl     time.Duration
	log     zerolog.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	rates   fx.RateSnapshot
	fetched time.Time
}

func NewCachedRates(source RateSource, base string, ttl time.Duration, log zerolog.Logger, metrics *observability.Metrics) *CachedRates {
	return &CachedRates{
		source:  source,
		base:    base,
		ttl:     ttl,
		log:     log,
		metrics: metrics,
	}
}

// Rates returns the cached snapshot, refreshing it when older than the TTL.
// On refresh failure the previous snapshot is served stale; with no previous
// snapshot, a base-only snapshot is returned so conversion fails open.
func (c *CachedRates) Rates(ctx context.Context) fx.RateSnapshot {
	c.mu.RLock()
	if c.rates != nil && time.Since(c.fetched) < c.ttl {
		snapshot := c.rates
		c.mu.RUnlock()
		return snapshot
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if c.rates != nil && time.Since(c.fetched) < c.ttl {
		return c.rates
	}

	fresh, err := c.source.GetRates(ctx, c.base)
	if err != nil {
		c.observeRefresh("error")
		c.log.Warn().Err(err).Msg("rate refresh failed, serving stale snapshot")
		if c.rates != nil {
			return c.rates
		}
		return fx.RateSnapshot{c.base: decimal.NewFromInt(1)}
	}

	c.rates = fresh
	c.fetched = time.Now()
	c.observeRefresh("ok")
	if c.metrics != nil {
		c.metrics.RateCacheAge.Set(0)
	}
	return c.rates
}

func (c *CachedRates) observeRefresh(status string) {
	if c.metrics != nil {
		c.metrics.RateRefreshes.WithLabelValues(status).Inc()
	}
}
