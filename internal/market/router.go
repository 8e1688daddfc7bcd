package market

import (
	"context"
	"strings"
	"time"

	"github.com/oxsidee/traidetrain/internal/observability"
)

// Router dispatches quote requests to the right upstream by symbol:
// MOEX-suffixed symbols go to the ISS provider, everything else to Yahoo.
type Router struct {
	yahoo   *YahooProvider
	moex    *MoexProvider
	metrics *observability.Metrics
}

func NewRouter(yahoo *YahooProvider, moex *MoexProvider, metrics *observability.Metrics) *Router {
	return &Router{yahoo: yahoo, moex: moex, metrics: metrics}
}

func (r *Router) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	provider, name := r.pick(symbol)

	start := time.Now()
	quote, err := provider.GetQuote(ctx, symbol)
	r.observe(name, start, err)
	return quote, err
}

func (r *Router) GetHistory(ctx context.Context, symbol, period string) ([]Candle, error) {
	provider, name := r.pick(symbol)

	start := time.Now()
	candles, err := provider.GetHistory(ctx, symbol, period)
	r.observe(name, start, err)
	return candles, err
}

func (r *Router) pick(symbol string) (QuoteProvider, string) {
	if strings.HasSuffix(strings.ToUpper(symbol), MoexSuffix) {
		return r.moex, "moex"
	}
	return r.yahoo, "yahoo"
}

func (r *Router) observe(provider string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.QuoteFetches.WithLabelValues(provider, status).Inc()
	r.metrics.QuoteFetchDur.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
