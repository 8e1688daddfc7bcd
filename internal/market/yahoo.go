package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// YahooProvider serves US/global symbols from the Yahoo Finance v8 chart
// API and the v1 search API.
type YahooProvider struct {
	cli       *http.Client
	chartBase string
	searchURL string
	log       zerolog.Logger
}

func NewYahooProvider(timeout time.Duration, log zerolog.Logger) *YahooProvider {
	return &YahooProvider{
		cli:       &http.Client{Timeout: timeout},
		chartBase: "https://query2.finance.yahoo.com/v8/finance/chart",
		searchURL: "https://query2.finance.yahoo.com/v1/finance/search",
		log:       log,
	}
}

// NewYahooProviderWithBase overrides the upstream URLs, for tests.
func NewYahooProviderWithBase(chartBase, searchURL string, timeout time.Duration, log zerolog.Logger) *YahooProvider {
	return &YahooProvider{
		cli:       &http.Client{Timeout: timeout},
		chartBase: chartBase,
		searchURL: searchURL,
		log:       log,
	}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string  `json:"currency"`
				Symbol               string  `json:"symbol"`
				ExchangeName         string  `json:"exchangeName"`
				ShortName            string  `json:"shortName"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  int64   `json:"regularMarketVolume"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

func (p *YahooProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("empty symbol"))
	}

	raw, err := p.fetchChart(ctx, symbol, "1d", "1d")
	if err != nil {
		return Quote{}, traideerr.QuoteUnavailable(symbol, err)
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice
	asOf := time.Unix(r.Meta.RegularMarketTime, 0)

	// Fall back to the last non-zero close when meta is missing.
	if price <= 0 && len(r.Timestamp) > 0 && len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] > 0 {
				price = closes[i]
				if i < len(r.Timestamp) {
					asOf = time.Unix(r.Timestamp[i], 0)
				}
				break
			}
		}
	}
	if price <= 0 {
		price = r.Meta.ChartPreviousClose
	}
	if price <= 0 {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("no usable price in chart response"))
	}
	if asOf.Unix() <= 0 {
		asOf = time.Now()
	}

	currency := r.Meta.Currency
	if currency == "" {
		currency = "USD"
	}
	name := r.Meta.ShortName
	if name == "" {
		name = symbol
	}

	return Quote{
		Symbol:        symbol,
		Name:          name,
		Price:         decimal.NewFromFloat(price),
		Currency:      currency,
		Exchange:      r.Meta.ExchangeName,
		PreviousClose: decimal.NewFromFloat(r.Meta.ChartPreviousClose),
		DayHigh:       decimal.NewFromFloat(r.Meta.RegularMarketDayHigh),
		DayLow:        decimal.NewFromFloat(r.Meta.RegularMarketDayLow),
		Volume:        r.Meta.RegularMarketVolume,
		AsOf:          asOf,
	}, nil
}

// GetHistory returns closing prices for the period. Intraday periods use
// finer intervals: 1d uses 5m candles, 5d uses 15m, everything else daily.
func (p *YahooProvider) GetHistory(ctx context.Context, symbol, period string) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	interval := "1d"
	switch period {
	case "1d":
		interval = "5m"
	case "5d":
		interval = "15m"
	case "":
		period = "1mo"
	}

	raw, err := p.fetchChart(ctx, symbol, interval, period)
	if err != nil {
		return nil, traideerr.QuoteUnavailable(symbol, err)
	}

	r := raw.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, traideerr.QuoteUnavailable(symbol, fmt.Errorf("chart response has no quote series"))
	}
	closes := r.Indicators.Quote[0].Close

	candles := make([]Candle, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] <= 0 {
			continue
		}
		candles = append(candles, Candle{
			Date:  time.Unix(ts, 0),
			Price: decimal.NewFromFloat(closes[i]),
		})
	}
	return candles, nil
}

// Search looks up symbols matching a free-text query.
func (p *YahooProvider) Search(ctx context.Context, query string) ([]SearchResult, error) {
	u := fmt.Sprintf("%s?q=%s&quotesCount=10&newsCount=0", p.searchURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo search http %d", resp.StatusCode)
	}

	var raw struct {
		Quotes []struct {
			Symbol    string `json:"symbol"`
			ShortName string `json:"shortname"`
			LongName  string `json:"longname"`
			Exchange  string `json:"exchange"`
			QuoteType string `json:"quoteType"`
		} `json:"quotes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(raw.Quotes))
	for _, q := range raw.Quotes {
		if q.QuoteType != "EQUITY" && q.QuoteType != "ETF" {
			continue
		}
		name := q.ShortName
		if name == "" {
			name = q.LongName
		}
		results = append(results, SearchResult{Symbol: q.Symbol, Name: name, Exchange: q.Exchange})
	}
	return results, nil
}

const userAgent = "traidetrain/1.0"

func (p *YahooProvider) fetchChart(ctx context.Context, symbol, interval, rng string) (*yahooChart, error) {
	u := fmt.Sprintf("%s/%s?interval=%s&range=%s", p.chartBase, url.PathEscape(symbol), interval, rng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo chart http %d", resp.StatusCode)
	}

	var raw yahooChart
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart response has no result")
	}
	return &raw, nil
}
