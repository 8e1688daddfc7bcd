package market_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/fx"
	"github.com/oxsidee/traidetrain/internal/market"
)

// countingSource tracks fetches and can be switched to fail.
type countingSource struct {
	mu    sync.Mutex
	calls int
	fail  bool
	rates fx.RateSnapshot
}

func (s *countingSource) GetRates(ctx context.Context, base string) (fx.RateSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, fmt.Errorf("upstream down")
	}
	return s.rates, nil
}

func (s *countingSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *countingSource) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func TestCachedRatesServesFromCacheWithinTTL(t *testing.T) {
	src := &countingSource{rates: fx.RateSnapshot{"USD": dec("1"), "RUB": dec("100")}}
	cache := market.NewCachedRates(src, "USD", time.Hour, zerolog.Nop(), nil)

	for i := 0; i < 5; i++ {
		snapshot := cache.Rates(context.Background())
		if !snapshot["RUB"].Equal(dec("100")) {
			t.Fatalf("RUB rate = %s, want 100", snapshot["RUB"])
		}
	}
	if src.callCount() != 1 {
		t.Errorf("source calls = %d, want 1 (cached)", src.callCount())
	}
}

func TestCachedRatesRefreshesAfterTTL(t *testing.T) {
	src := &countingSource{rates: fx.RateSnapshot{"USD": dec("1"), "RUB": dec("100")}}
	cache := market.NewCachedRates(src, "USD", time.Nanosecond, zerolog.Nop(), nil)

	cache.Rates(context.Background())
	time.Sleep(time.Millisecond)
	cache.Rates(context.Background())

	if src.callCount() != 2 {
		t.Errorf("source calls = %d, want 2 (TTL expired)", src.callCount())
	}
}

func TestCachedRatesServesStaleOnError(t *testing.T) {
	src := &countingSource{rates: fx.RateSnapshot{"USD": dec("1"), "RUB": dec("100")}}
	cache := market.NewCachedRates(src, "USD", time.Nanosecond, zerolog.Nop(), nil)

	cache.Rates(context.Background())
	src.setFail(true)
	time.Sleep(time.Millisecond)

	snapshot := cache.Rates(context.Background())
	if !snapshot["RUB"].Equal(dec("100")) {
		t.Errorf("stale RUB rate = %s, want 100", snapshot["RUB"])
	}
}

func TestCachedRatesBaseOnlyFallback(t *testing.T) {
	src := &countingSource{fail: true}
	cache := market.NewCachedRates(src, "USD", time.Hour, zerolog.Nop(), nil)

	snapshot := cache.Rates(context.Background())
	if !snapshot["USD"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("base rate = %s, want 1", snapshot["USD"])
	}
	if _, ok := snapshot["RUB"]; ok {
		t.Error("RUB present in base-only fallback snapshot")
	}
}

func TestYahooRateSourceOmitsFailedPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only the RUB pair resolves; every other pair 404s.
		if !strings.Contains(r.URL.Path, "USDRUB=X") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"chart": {"result": [{
			"meta": {"currency": "RUB", "symbol": "USDRUB=X", "regularMarketPrice": 99.5, "regularMarketTime": 1756600000},
			"timestamp": [], "indicators": {"quote": []}
		}], "error": null}}`)
	}))
	t.Cleanup(srv.Close)

	yahoo := market.NewYahooProviderWithBase(srv.URL+"/chart", srv.URL+"/search", 5*time.Second, zerolog.Nop())
	source := market.NewYahooRateSource(yahoo, zerolog.Nop())

	rates, err := source.GetRates(context.Background(), "USD")
	if err != nil {
		t.Fatalf("GetRates: %v", err)
	}
	if !rates["USD"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("base rate = %s, want 1", rates["USD"])
	}
	if !rates["RUB"].Equal(dec("99.5")) {
		t.Errorf("RUB rate = %s, want 99.5", rates["RUB"])
	}
	if _, ok := rates["EUR"]; ok {
		t.Error("EUR present despite failed fetch")
	}
}

func TestYahooRateSourceErrorsWhenNothingFetched(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	t.Cleanup(srv.Close)

	yahoo := market.NewYahooProviderWithBase(srv.URL+"/chart", srv.URL+"/search", 5*time.Second, zerolog.Nop())
	source := market.NewYahooRateSource(yahoo, zerolog.Nop())

	if _, err := source.GetRates(context.Background(), "USD"); err == nil {
		t.Error("GetRates succeeded with no pairs fetched, want error")
	}
}
