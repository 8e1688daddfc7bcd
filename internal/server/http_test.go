package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/engine"
	"github.com/oxsidee/traidetrain/internal/fx"
	"github.com/oxsidee/traidetrain/internal/identity"
	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/market"
	"github.com/oxsidee/traidetrain/internal/server"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fixedRates satisfies market.RateSource with a static snapshot.
type fixedRates struct{}

func (fixedRates) GetRates(ctx context.Context, base string) (fx.RateSnapshot, error) {
	return fx.RateSnapshot{base: decimal.NewFromInt(1), "RUB": dec("100")}, nil
}

// newAPI builds a full handler over the in-memory stores with a canned
// Yahoo upstream quoting every symbol at 50 USD.
func newAPI(t *testing.T) http.Handler {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "MISSING") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"chart": {"result": [{
			"meta": {"currency": "USD", "symbol": "AAPL", "shortName": "Apple Inc.", "regularMarketPrice": 50, "regularMarketTime": 1756600000},
			"timestamp": [], "indicators": {"quote": []}
		}], "error": null}}`)
	}))
	t.Cleanup(upstream.Close)

	nop := zerolog.Nop()
	yahoo := market.NewYahooProviderWithBase(upstream.URL+"/chart", upstream.URL+"/search", 5*time.Second, nop)
	moex := market.NewMoexProviderWithBase(upstream.URL, 5*time.Second, nop)
	router := market.NewRouter(yahoo, moex, nil)
	rates := market.NewCachedRates(fixedRates{}, "USD", time.Hour, nop, nil)
	converter := fx.NewConverter("USD", nop, nil)

	store := ledger.NewMemoryStore()
	identitySvc := identity.NewService(identity.NewMemoryUserStore(), store, []byte("test-secret"), "USD", nop)
	engineSvc := engine.NewService(store, router, rates, converter, nil, nil, nop, time.Second)

	return server.New(engineSvc, identitySvc, router, yahoo, rates, nil, nop).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func register(t *testing.T, handler http.Handler, username string) string {
	t.Helper()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"password": "hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body)
	}
	var token string
	json.Unmarshal(body["token"], &token)
	if token == "" {
		t.Fatal("register returned no token")
	}
	return token
}

func TestRegisterDepositTradeFlow(t *testing.T) {
	handler := newAPI(t)
	token := register(t, handler, "alice")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/deposit", token, map[string]string{"amount": "1000"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d, body %s", rec.Code, rec.Body)
	}
	var balance decimal.Decimal
	json.Unmarshal(body["balance"], &balance)
	if !balance.Equal(dec("1000")) {
		t.Errorf("balance = %s, want 1000", balance)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/trade", token, map[string]string{
		"symbol": "AAPL", "quantity": "10", "action": "buy",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trade status = %d, body %s", rec.Code, rec.Body)
	}
	var total decimal.Decimal
	json.Unmarshal(body["total"], &total)
	if !total.Equal(dec("500")) {
		t.Errorf("trade total = %s, want 500", total)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/portfolio", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("portfolio status = %d", rec.Code)
	}
	var holdings []map[string]interface{}
	json.Unmarshal(body["holdings"], &holdings)
	if len(holdings) != 1 {
		t.Fatalf("holdings = %d, want 1", len(holdings))
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/transactions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions status = %d", rec.Code)
	}
	var txs []map[string]interface{}
	json.Unmarshal(body["transactions"], &txs)
	if len(txs) != 1 {
		t.Errorf("transactions = %d, want 1", len(txs))
	}
}

func TestAuthRequired(t *testing.T) {
	handler := newAPI(t)

	for _, path := range []string{"/api/deposit", "/api/trade"} {
		rec, _ := doJSON(t, handler, http.MethodPost, path, "", map[string]string{})
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token status = %d, want 401", path, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	handler := newAPI(t)
	token := register(t, handler, "bob")

	// Buy with no funds: 400 insufficient_funds.
	rec, body := doJSON(t, handler, http.MethodPost, "/api/trade", token, map[string]string{
		"symbol": "AAPL", "quantity": "10", "action": "buy",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no-funds buy status = %d, want 400", rec.Code)
	}
	var kind string
	json.Unmarshal(body["kind"], &kind)
	if kind != "insufficient_funds" {
		t.Errorf("kind = %s, want insufficient_funds", kind)
	}

	// Sell with no holdings: 400 insufficient_holdings.
	rec, body = doJSON(t, handler, http.MethodPost, "/api/trade", token, map[string]string{
		"symbol": "AAPL", "quantity": "1", "action": "sell",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("oversell status = %d, want 400", rec.Code)
	}
	json.Unmarshal(body["kind"], &kind)
	if kind != "insufficient_holdings" {
		t.Errorf("kind = %s, want insufficient_holdings", kind)
	}

	// Unresolvable symbol: 502 quote_unavailable.
	rec, body = doJSON(t, handler, http.MethodPost, "/api/trade", token, map[string]string{
		"symbol": "MISSING", "quantity": "1", "action": "buy",
	})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("missing quote status = %d, want 502", rec.Code)
	}
	json.Unmarshal(body["kind"], &kind)
	if kind != "quote_unavailable" {
		t.Errorf("kind = %s, want quote_unavailable", kind)
	}

	// Duplicate registration: 409 conflict.
	rec, _ = doJSON(t, handler, http.MethodPost, "/api/register", "", map[string]string{
		"username": "bob", "password": "pw",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", rec.Code)
	}
}

func TestMarketEndpoints(t *testing.T) {
	handler := newAPI(t)

	rec, body := doJSON(t, handler, http.MethodGet, "/api/stocks/AAPL", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stock status = %d", rec.Code)
	}
	var price decimal.Decimal
	json.Unmarshal(body["price"], &price)
	if !price.Equal(dec("50")) {
		t.Errorf("price = %s, want 50", price)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/currencies", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("currencies status = %d", rec.Code)
	}
	var rates map[string]decimal.Decimal
	json.Unmarshal(body["rates"], &rates)
	if !rates["RUB"].Equal(dec("100")) {
		t.Errorf("RUB rate = %s, want 100", rates["RUB"])
	}
}
