package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/money"
)

// Holding is one position valued against its live quote.
type Holding struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Invested      decimal.Decimal `json:"invested"`
	Current       decimal.Decimal `json:"current"`
	Profit        decimal.Decimal `json:"profit"`
	ProfitPercent decimal.Decimal `json:"profit_percent"`
}

// Report is the read-only portfolio summary. Totals cover only holdings
// whose quote fetch succeeded.
type Report struct {
	Balance       decimal.Decimal `json:"balance"`
	Currency      string          `json:"currency"`
	Holdings      []Holding       `json:"holdings"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalCurrent  decimal.Decimal `json:"total_current"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
}

var hundred = decimal.NewFromInt(100)

// BuildReport values every open position against a live quote. A failed
// quote skips that symbol and excludes it from the totals; the report is
// best-effort and never mutates the ledger.
func (s *Service) BuildReport(ctx context.Context, accountID uuid.UUID) (Report, error) {
	acct, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return Report{}, err
	}

	positions, err := s.store.ListPositions(ctx, accountID)
	if err != nil {
		return Report{}, err
	}

	rates := s.rates.Rates(ctx)

	report := Report{
		Balance:  acct.Balance,
		Currency: acct.Currency,
		Holdings: make([]Holding, 0, len(positions)),
	}

	for _, pos := range positions {
		quoteCtx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
		quote, err := s.quotes.GetQuote(quoteCtx, pos.Symbol)
		cancel()
		if err != nil {
			s.log.Warn().Str("symbol", pos.Symbol).Err(err).Msg("quote failed, holding skipped in report")
			if s.metrics != nil {
				s.metrics.ReportSymbolSkip.Inc()
			}
			continue
		}

		currentPrice := s.converter.ToBase(quote.Price, quote.Currency, rates)
		invested := pos.AvgPrice.Mul(pos.Quantity)
		current := currentPrice.Mul(pos.Quantity)
		profit := current.Sub(invested)

		profitPercent := decimal.Zero
		if invested.Sign() > 0 {
			profitPercent = profit.Div(invested).Mul(hundred)
		}

		report.Holdings = append(report.Holdings, Holding{
			Symbol:        pos.Symbol,
			Name:          quote.Name,
			Quantity:      pos.Quantity,
			AvgPrice:      money.Round2(pos.AvgPrice),
			CurrentPrice:  money.Round2(currentPrice),
			Invested:      money.Round2(invested),
			Current:       money.Round2(current),
			Profit:        money.Round2(profit),
			ProfitPercent: money.Round2(profitPercent),
		})

		report.TotalInvested = report.TotalInvested.Add(invested)
		report.TotalCurrent = report.TotalCurrent.Add(current)
	}

	report.TotalProfit = report.TotalCurrent.Sub(report.TotalInvested)
	report.TotalInvested = money.Round2(report.TotalInvested)
	report.TotalCurrent = money.Round2(report.TotalCurrent)
	report.TotalProfit = money.Round2(report.TotalProfit)

	if s.metrics != nil {
		s.metrics.ReportsBuilt.Inc()
	}
	return report, nil
}
