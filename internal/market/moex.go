package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// MoexSuffix qualifies symbols that trade on the Moscow Exchange. The
// suffix is a routing concern only; the ISS API is called with the bare
// security code.
const MoexSuffix = ".ME"

// MoexProvider serves Russian symbols from the MOEX ISS API
// (TQBR board, shares market). All MOEX quotes are RUB-denominated.
type MoexProvider struct {
	cli  *http.Client
	base string
	log  zerolog.Logger
}

func NewMoexProvider(timeout time.Duration, log zerolog.Logger) *MoexProvider {
	return &MoexProvider{
		cli:  &http.Client{Timeout: timeout},
		base: "https://iss.moex.com",
		log:  log,
	}
}

// NewMoexProviderWithBase overrides the upstream URL, for tests.
func NewMoexProviderWithBase(base string, timeout time.Duration, log zerolog.Logger) *MoexProvider {
	return &MoexProvider{
		cli:  &http.Client{Timeout: timeout},
		base: base,
		log:  log,
	}
}

// issTable is the ISS column/row layout shared by all blocks.
type issTable struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

func (t issTable) index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

func (t issTable) float(row int, column string) float64 {
	i := t.index(column)
	if i < 0 || row >= len(t.Data) || i >= len(t.Data[row]) {
		return 0
	}
	if f, ok := t.Data[row][i].(float64); ok {
		return f
	}
	return 0
}

func (t issTable) str(row int, column string) string {
	i := t.index(column)
	if i < 0 || row >= len(t.Data) || i >= len(t.Data[row]) {
		return ""
	}
	if s, ok := t.Data[row][i].(string); ok {
		return s
	}
	return ""
}

func (p *MoexProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	sec := strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(symbol), MoexSuffix))
	if sec == "" {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("empty symbol"))
	}

	u := fmt.Sprintf("%s/iss/engines/stock/markets/shares/boards/TQBR/securities/%s.json?iss.meta=off&iss.only=securities,marketdata", p.base, sec)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, traideerr.QuoteUnavailable(symbol, err)
	}

	resp, err := p.cli.Do(req)
	if err != nil {
		return Quote{}, traideerr.QuoteUnavailable(symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("moex http %d", resp.StatusCode))
	}

	var raw struct {
		Securities issTable `json:"securities"`
		MarketData issTable `json:"marketdata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("decode iss response: %w", err))
	}
	if len(raw.Securities.Data) == 0 {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("unknown security %s", sec))
	}

	prevClose := raw.Securities.float(0, "PREVPRICE")
	price := raw.MarketData.float(0, "LAST")
	if price <= 0 {
		// Market closed or no trades yet today.
		price = prevClose
	}
	if price <= 0 {
		return Quote{}, traideerr.QuoteUnavailable(symbol, fmt.Errorf("no usable price for %s", sec))
	}

	name := raw.Securities.str(0, "SHORTNAME")
	if name == "" {
		name = sec
	}

	return Quote{
		Symbol:        strings.ToUpper(strings.TrimSpace(symbol)),
		Name:          name,
		Price:         decimal.NewFromFloat(price),
		Currency:      "RUB",
		Exchange:      "MOEX",
		PreviousClose: decimal.NewFromFloat(prevClose),
		DayHigh:       decimal.NewFromFloat(raw.MarketData.float(0, "HIGH")),
		DayLow:        decimal.NewFromFloat(raw.MarketData.float(0, "LOW")),
		Volume:        int64(raw.MarketData.float(0, "VOLTODAY")),
		AsOf:          time.Now(),
	}, nil
}

// GetHistory returns daily candles from the ISS candles endpoint.
// MOEX intraday intervals are limited, so all periods map to daily bars.
func (p *MoexProvider) GetHistory(ctx context.Context, symbol, period string) ([]Candle, error) {
	sec := strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(symbol), MoexSuffix))

	from := historyStart(period)
	u := fmt.Sprintf("%s/iss/engines/stock/markets/shares/securities/%s/candles.json?iss.meta=off&interval=24&from=%s",
		p.base, sec, from.Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, traideerr.QuoteUnavailable(symbol, err)
	}

	resp, err := p.cli.Do(req)
	if err != nil {
		return nil, traideerr.QuoteUnavailable(symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, traideerr.QuoteUnavailable(symbol, fmt.Errorf("moex http %d", resp.StatusCode))
	}

	var raw struct {
		Candles issTable `json:"candles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, traideerr.QuoteUnavailable(symbol, fmt.Errorf("decode candles response: %w", err))
	}

	closeIdx := raw.Candles.index("close")
	endIdx := raw.Candles.index("end")
	if closeIdx < 0 || endIdx < 0 {
		return nil, traideerr.QuoteUnavailable(symbol, fmt.Errorf("candles response missing columns"))
	}

	candles := make([]Candle, 0, len(raw.Candles.Data))
	for row := range raw.Candles.Data {
		price := raw.Candles.float(row, "close")
		if price <= 0 {
			continue
		}
		ts, err := time.Parse("2006-01-02 15:04:05", raw.Candles.str(row, "end"))
		if err != nil {
			continue
		}
		candles = append(candles, Candle{Date: ts, Price: decimal.NewFromFloat(price)})
	}
	return candles, nil
}

func historyStart(period string) time.Time {
	now := time.Now()
	switch period {
	case "1d":
		return now.AddDate(0, 0, -1)
	case "5d":
		return now.AddDate(0, 0, -7)
	case "1mo", "":
		return now.AddDate(0, -1, 0)
	case "3mo":
		return now.AddDate(0, -3, 0)
	case "6mo":
		return now.AddDate(0, -6, 0)
	case "1y":
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}
