package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

func newAccount(t *testing.T, store *ledger.MemoryStore) uuid.UUID {
	t.Helper()
	id := uuid.New()
	if err := store.CreateAccount(context.Background(), id, "USD"); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	return id
}

func TestMemoryStoreCommit(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	id := newAccount(t, store)

	err := store.WithAccountLock(ctx, id, func(tx ledger.AccountTx) error {
		if err := tx.SetBalance(ctx, dec("1000")); err != nil {
			return err
		}
		if err := tx.UpsertPosition(ctx, ledger.Position{
			AccountID: id, Symbol: "AAPL", Quantity: dec("10"), AvgPrice: dec("50"),
		}); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, ledger.Transaction{
			ID: uuid.New(), AccountID: id, Symbol: "AAPL",
			Action: ledger.ActionBuy, Quantity: dec("10"),
			Price: dec("50"), Total: dec("500"), CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("WithAccountLock: %v", err)
	}

	acct, err := store.GetAccount(ctx, id)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !acct.Balance.Equal(dec("1000")) {
		t.Errorf("balance = %s, want 1000", acct.Balance)
	}

	pos, err := store.GetPosition(ctx, id, "AAPL")
	if err != nil || pos == nil {
		t.Fatalf("GetPosition = %v, %v", pos, err)
	}
	if !pos.Quantity.Equal(dec("10")) {
		t.Errorf("position quantity = %s, want 10", pos.Quantity)
	}

	txs, err := store.ListTransactions(ctx, id)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("transactions = %d, want 1", len(txs))
	}
}

func TestMemoryStoreRollbackOnError(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	id := newAccount(t, store)

	boom := errors.New("boom")
	err := store.WithAccountLock(ctx, id, func(tx ledger.AccountTx) error {
		tx.SetBalance(ctx, dec("999"))
		tx.UpsertPosition(ctx, ledger.Position{
			AccountID: id, Symbol: "AAPL", Quantity: dec("1"), AvgPrice: dec("1"),
		})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	acct, _ := store.GetAccount(ctx, id)
	if !acct.Balance.Equal(decimal.Zero) {
		t.Errorf("balance = %s, want 0 after rollback", acct.Balance)
	}
	pos, _ := store.GetPosition(ctx, id, "AAPL")
	if pos != nil {
		t.Errorf("position = %+v, want nil after rollback", pos)
	}
}

func TestMemoryStoreStagedReadsSeeOwnWrites(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	id := newAccount(t, store)

	err := store.WithAccountLock(ctx, id, func(tx ledger.AccountTx) error {
		if err := tx.UpsertPosition(ctx, ledger.Position{
			AccountID: id, Symbol: "AAPL", Quantity: dec("5"), AvgPrice: dec("10"),
		}); err != nil {
			return err
		}
		pos, err := tx.GetPosition(ctx, "AAPL")
		if err != nil {
			return err
		}
		if pos == nil || !pos.Quantity.Equal(dec("5")) {
			t.Errorf("staged read = %+v, want quantity 5", pos)
		}

		if err := tx.DeletePosition(ctx, "AAPL"); err != nil {
			return err
		}
		pos, err = tx.GetPosition(ctx, "AAPL")
		if err != nil {
			return err
		}
		if pos != nil {
			t.Errorf("staged read after delete = %+v, want nil", pos)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithAccountLock: %v", err)
	}
}

func TestMemoryStorePositionDelete(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	id := newAccount(t, store)

	store.WithAccountLock(ctx, id, func(tx ledger.AccountTx) error {
		return tx.UpsertPosition(ctx, ledger.Position{
			AccountID: id, Symbol: "AAPL", Quantity: dec("5"), AvgPrice: dec("10"),
		})
	})
	store.WithAccountLock(ctx, id, func(tx ledger.AccountTx) error {
		return tx.DeletePosition(ctx, "AAPL")
	})

	positions, err := store.ListPositions(ctx, id)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("positions = %d, want 0", len(positions))
	}
}

func TestMemoryStoreUnknownAccount(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()

	_, err := store.GetAccount(ctx, uuid.New())
	if traideerr.KindOf(err) != traideerr.KindNotFound {
		t.Errorf("GetAccount kind = %s, want not_found", traideerr.KindOf(err))
	}

	err = store.WithAccountLock(ctx, uuid.New(), func(tx ledger.AccountTx) error { return nil })
	if traideerr.KindOf(err) != traideerr.KindNotFound {
		t.Errorf("WithAccountLock kind = %s, want not_found", traideerr.KindOf(err))
	}
}

func TestMemoryStoreDuplicateAccount(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	id := newAccount(t, store)

	err := store.CreateAccount(ctx, id, "USD")
	if traideerr.KindOf(err) != traideerr.KindConflict {
		t.Errorf("kind = %s, want conflict", traideerr.KindOf(err))
	}
}

func TestMemoryStoreTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	id := newAccount(t, store)

	for _, symbol := range []string{"AAPL", "MSFT", "GOOG"} {
		store.WithAccountLock(ctx, id, func(tx ledger.AccountTx) error {
			return tx.AppendTransaction(ctx, ledger.Transaction{
				ID: uuid.New(), AccountID: id, Symbol: symbol,
				Action: ledger.ActionBuy, Quantity: dec("1"),
				Price: dec("1"), Total: dec("1"), CreatedAt: time.Now().UTC(),
			})
		})
	}

	txs, err := store.ListTransactions(ctx, id)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	want := []string{"GOOG", "MSFT", "AAPL"}
	if len(txs) != len(want) {
		t.Fatalf("transactions = %d, want %d", len(txs), len(want))
	}
	for i, symbol := range want {
		if txs[i].Symbol != symbol {
			t.Errorf("txs[%d].Symbol = %s, want %s", i, txs[i].Symbol, symbol)
		}
	}
}
