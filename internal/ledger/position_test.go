package ledger_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyBuyFirstPurchase(t *testing.T) {
	accountID := uuid.New()

	pos, err := ledger.ApplyBuy(nil, accountID, "AAPL", dec("10"), dec("50"))
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}

	if pos.AccountID != accountID || pos.Symbol != "AAPL" {
		t.Errorf("position identity = %s/%s", pos.AccountID, pos.Symbol)
	}
	if !pos.Quantity.Equal(dec("10")) {
		t.Errorf("quantity = %s, want 10", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(dec("50")) {
		t.Errorf("avg price = %s, want 50", pos.AvgPrice)
	}
}

func TestApplyBuyBlendsAverage(t *testing.T) {
	accountID := uuid.New()
	existing := &ledger.Position{
		AccountID: accountID,
		Symbol:    "AAPL",
		Quantity:  dec("10"),
		AvgPrice:  dec("50"),
	}

	// 10@50 + 10@70 = 20 units at cost 1200, avg 60.
	pos, err := ledger.ApplyBuy(existing, accountID, "AAPL", dec("10"), dec("70"))
	if err != nil {
		t.Fatalf("ApplyBuy: %v", err)
	}

	if !pos.Quantity.Equal(dec("20")) {
		t.Errorf("quantity = %s, want 20", pos.Quantity)
	}
	if !pos.AvgPrice.Equal(dec("60")) {
		t.Errorf("avg price = %s, want 60", pos.AvgPrice)
	}
}

func TestApplyBuyRejectsNonPositiveQuantity(t *testing.T) {
	for _, qty := range []string{"0", "-3"} {
		_, err := ledger.ApplyBuy(nil, uuid.New(), "AAPL", dec(qty), dec("50"))
		if traideerr.KindOf(err) != traideerr.KindInvalidQuantity {
			t.Errorf("qty %s: kind = %s, want invalid_quantity", qty, traideerr.KindOf(err))
		}
	}
}

func TestApplySellPartialKeepsAverage(t *testing.T) {
	existing := &ledger.Position{
		AccountID: uuid.New(),
		Symbol:    "AAPL",
		Quantity:  dec("10"),
		AvgPrice:  dec("50"),
	}

	remaining, err := ledger.ApplySell(existing, "AAPL", dec("4"))
	if err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if remaining == nil {
		t.Fatal("remaining = nil, want partial position")
	}
	if !remaining.Quantity.Equal(dec("6")) {
		t.Errorf("quantity = %s, want 6", remaining.Quantity)
	}
	if !remaining.AvgPrice.Equal(dec("50")) {
		t.Errorf("avg price = %s, want unchanged 50", remaining.AvgPrice)
	}
}

func TestApplySellFullLiquidation(t *testing.T) {
	existing := &ledger.Position{
		AccountID: uuid.New(),
		Symbol:    "AAPL",
		Quantity:  dec("10"),
		AvgPrice:  dec("50"),
	}

	remaining, err := ledger.ApplySell(existing, "AAPL", dec("10"))
	if err != nil {
		t.Fatalf("ApplySell: %v", err)
	}
	if remaining != nil {
		t.Errorf("remaining = %+v, want nil on exact liquidation", remaining)
	}
}

func TestApplySellOversell(t *testing.T) {
	existing := &ledger.Position{
		AccountID: uuid.New(),
		Symbol:    "AAPL",
		Quantity:  dec("10"),
		AvgPrice:  dec("50"),
	}

	_, err := ledger.ApplySell(existing, "AAPL", dec("11"))
	if traideerr.KindOf(err) != traideerr.KindInsufficientHoldings {
		t.Errorf("kind = %s, want insufficient_holdings", traideerr.KindOf(err))
	}
}

func TestApplySellNoPosition(t *testing.T) {
	_, err := ledger.ApplySell(nil, "AAPL", dec("1"))
	if traideerr.KindOf(err) != traideerr.KindInsufficientHoldings {
		t.Errorf("kind = %s, want insufficient_holdings", traideerr.KindOf(err))
	}
}

func TestApplySellRejectsNonPositiveQuantity(t *testing.T) {
	existing := &ledger.Position{Quantity: dec("10"), AvgPrice: dec("50")}
	_, err := ledger.ApplySell(existing, "AAPL", dec("0"))
	if traideerr.KindOf(err) != traideerr.KindInvalidQuantity {
		t.Errorf("kind = %s, want invalid_quantity", traideerr.KindOf(err))
	}
}
