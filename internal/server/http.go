// Package server exposes the REST API: registration, login, market data,
// deposits, trades, and portfolio reads. JSON in, JSON out; sessions are
// bearer tokens resolved by the identity service.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/engine"
	"github.com/oxsidee/traidetrain/internal/identity"
	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/market"
	"github.com/oxsidee/traidetrain/internal/money"
	"github.com/oxsidee/traidetrain/internal/observability"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// Server holds the API dependencies.
type Server struct {
	engine   *engine.Service
	identity *identity.Service
	quotes   *market.Router
	yahoo    *market.YahooProvider
	rates    *market.CachedRates
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func New(
	eng *engine.Service,
	ident *identity.Service,
	quotes *market.Router,
	yahoo *market.YahooProvider,
	rates *market.CachedRates,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:   eng,
		identity: ident,
		quotes:   quotes,
		yahoo:    yahoo,
		rates:    rates,
		metrics:  metrics,
		log:      log,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", s.instrument("register", s.handleRegister))
	mux.HandleFunc("POST /api/login", s.instrument("login", s.handleLogin))
	mux.HandleFunc("GET /api/me", s.instrument("me", s.withAuth(s.handleMe)))

	mux.HandleFunc("POST /api/deposit", s.instrument("deposit", s.withAuth(s.handleDeposit)))
	mux.HandleFunc("POST /api/trade", s.instrument("trade", s.withAuth(s.handleTrade)))
	mux.HandleFunc("GET /api/portfolio", s.instrument("portfolio", s.withAuth(s.handlePortfolio)))
	mux.HandleFunc("GET /api/positions", s.instrument("positions", s.withAuth(s.handlePositions)))
	mux.HandleFunc("GET /api/transactions", s.instrument("transactions", s.withAuth(s.handleTransactions)))

	mux.HandleFunc("GET /api/stocks", s.instrument("stocks", s.handleStocks))
	mux.HandleFunc("GET /api/stocks/{symbol}", s.instrument("stock", s.handleStock))
	mux.HandleFunc("GET /api/history/{symbol}", s.instrument("history", s.handleHistory))
	mux.HandleFunc("GET /api/search", s.instrument("search", s.handleSearch))
	mux.HandleFunc("GET /api/currencies", s.instrument("currencies", s.handleCurrencies))

	return mux
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, traideerr.New(traideerr.KindConflict, "invalid request body"))
		return
	}

	user, token, err := s.identity.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, authResponse{Token: token, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, traideerr.Unauthorized("invalid request body"))
		return
	}

	user, token, err := s.identity.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, authResponse{Token: token, Username: user.Username})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	user, err := s.identity.GetUser(r.Context(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	report, err := s.engine.BuildReport(r.Context(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": user.Username,
		"balance":  money.Round2(report.Balance),
		"currency": report.Currency,
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, traideerr.InvalidQuantity(decimal.Zero))
		return
	}

	balance, err := s.engine.Deposit(r.Context(), accountID, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"balance": money.Round2(balance)})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	var req struct {
		Symbol   string          `json:"symbol"`
		Quantity decimal.Decimal `json:"quantity"`
		Action   string          `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, traideerr.InvalidQuantity(decimal.Zero))
		return
	}

	result, err := s.engine.ExecuteTrade(r.Context(), accountID, req.Symbol, req.Quantity, ledger.TradeAction(req.Action))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	report, err := s.engine.BuildReport(r.Context(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	positions, err := s.engine.ListPositions(r.Context(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type positionView struct {
		Symbol   string          `json:"symbol"`
		Quantity decimal.Decimal `json:"quantity"`
		AvgPrice decimal.Decimal `json:"avg_price"`
	}
	out := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		out = append(out, positionView{Symbol: pos.Symbol, Quantity: pos.Quantity, AvgPrice: pos.AvgPrice})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": out})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	transactions, err := s.engine.ListTransactions(r.Context(), accountID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	catalog := market.DefaultCatalog()

	type stockView struct {
		market.CatalogEntry
		Price    *decimal.Decimal `json:"price,omitempty"`
		Currency string           `json:"currency,omitempty"`
	}

	out := make([]stockView, 0, len(catalog))
	for _, entry := range catalog {
		view := stockView{CatalogEntry: entry}
		if quote, err := s.quotes.GetQuote(r.Context(), entry.Symbol); err == nil {
			price := money.Round2(quote.Price)
			view.Price = &price
			view.Currency = quote.Currency
		}
		out = append(out, view)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"stocks": out})
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	quote, err := s.quotes.GetQuote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	candles, err := s.quotes.GetHistory(r.Context(), r.PathValue("symbol"), period)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"history": candles})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": []market.SearchResult{}})
		return
	}

	results, err := s.yahoo.Search(r.Context(), query)
	if err != nil {
		s.writeError(w, traideerr.Wrap(traideerr.KindQuoteUnavailable, err, "search failed"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"rates": s.rates.Rates(r.Context())})
}

// withAuth resolves the Authorization bearer token before the handler runs.
func (s *Server) withAuth(next func(http.ResponseWriter, *http.Request, uuid.UUID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			s.writeError(w, traideerr.Unauthorized("missing bearer token"))
			return
		}

		accountID, err := s.identity.Resolve(r.Context(), header[len(prefix):])
		if err != nil {
			s.writeError(w, err)
			return
		}
		next(w, r, accountID)
	}
}

// instrument records the request counter and latency histogram per route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error().Err(err).Msg("encode response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := traideerr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case traideerr.KindQuoteUnavailable:
		status = http.StatusBadGateway
	case traideerr.KindInsufficientFunds, traideerr.KindInsufficientHoldings, traideerr.KindInvalidQuantity:
		status = http.StatusBadRequest
	case traideerr.KindNotFound:
		status = http.StatusNotFound
	case traideerr.KindUnauthorized:
		status = http.StatusUnauthorized
	case traideerr.KindConflict:
		status = http.StatusConflict
	}

	message := err.Error()
	var te *traideerr.Error
	if errors.As(err, &te) {
		message = te.Message
	}
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		message = "internal error"
	}

	s.writeJSON(w, status, map[string]string{
		"error": message,
		"kind":  string(kind),
	})
}
