// Package persistence implements the Postgres-backed ledger and user
// stores plus the SQL migration runner.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/ledger"
	"github.com/oxsidee/traidetrain/internal/observability"
	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// PostgresStore implements ledger.Store. Per-account serialization uses a
// transaction-scoped SELECT ... FOR UPDATE on the account row: two writers
// on the same account queue on the row lock, writers on different accounts
// do not contend.
type PostgresStore struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPostgresStore(db *sql.DB, log zerolog.Logger, metrics *observability.Metrics) *PostgresStore {
	return &PostgresStore{db: db, log: log, metrics: metrics}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, accountID uuid.UUID, currency string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, balance, currency, updated_at) VALUES ($1, 0, $2, NOW())`,
		accountID, currency,
	)
	if err != nil {
		s.countError("create_account")
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID uuid.UUID) (ledger.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, balance, currency, updated_at FROM accounts WHERE user_id = $1`,
		accountID,
	)
	return scanAccount(row)
}

func (s *PostgresStore) GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (*ledger.Position, error) {
	return queryPosition(ctx, s.db, accountID, symbol)
}

func (s *PostgresStore) ListPositions(ctx context.Context, accountID uuid.UUID) ([]ledger.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, quantity, avg_price FROM positions WHERE account_id = $1 ORDER BY symbol`,
		accountID,
	)
	if err != nil {
		s.countError("list_positions")
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Position
	for rows.Next() {
		var (
			pos      ledger.Position
			quantity string
			avgPrice string
		)
		if err := rows.Scan(&pos.Symbol, &quantity, &avgPrice); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		pos.AccountID = accountID
		if pos.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		if pos.AvgPrice, err = decimal.NewFromString(avgPrice); err != nil {
			return nil, fmt.Errorf("parse avg_price: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, action, quantity, price, total, created_at
		 FROM transactions WHERE account_id = $1
		 ORDER BY created_at DESC, id`,
		accountID,
	)
	if err != nil {
		s.countError("list_transactions")
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx       ledger.Transaction
			quantity string
			price    string
			total    string
		)
		if err := rows.Scan(&tx.ID, &tx.Symbol, &tx.Action, &quantity, &price, &total, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		tx.AccountID = accountID
		if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		if tx.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if tx.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (s *PostgresStore) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(tx ledger.AccountTx) error) error {
	start := time.Now()

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.countError("begin")
		return fmt.Errorf("begin account tx: %w", err)
	}
	defer dbTx.Rollback()

	row := dbTx.QueryRowContext(ctx,
		`SELECT user_id, balance, currency, updated_at FROM accounts WHERE user_id = $1 FOR UPDATE`,
		accountID,
	)
	acct, err := scanAccount(row)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.StoreLockWaitDur.Observe(time.Since(start).Seconds())
	}

	if err := fn(&pgTx{tx: dbTx, account: acct}); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		s.countError("commit")
		return fmt.Errorf("commit account tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) countError(op string) {
	if s.metrics != nil {
		s.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}

// pgTx is the ledger.AccountTx bound to one open transaction holding the
// account row lock.
type pgTx struct {
	tx      *sql.Tx
	account ledger.Account
}

func (t *pgTx) Account() ledger.Account { return t.account }

func (t *pgTx) SetBalance(ctx context.Context, balance decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE user_id = $2`,
		balance.String(), t.account.ID,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	t.account.Balance = balance
	return nil
}

func (t *pgTx) GetPosition(ctx context.Context, symbol string) (*ledger.Position, error) {
	return queryPosition(ctx, t.tx, t.account.ID, symbol)
}

func (t *pgTx) UpsertPosition(ctx context.Context, pos ledger.Position) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO positions (account_id, symbol, quantity, avg_price)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, symbol)
		 DO UPDATE SET quantity = EXCLUDED.quantity, avg_price = EXCLUDED.avg_price`,
		pos.AccountID, pos.Symbol, pos.Quantity.String(), pos.AvgPrice.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (t *pgTx) DeletePosition(ctx context.Context, symbol string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM positions WHERE account_id = $1 AND symbol = $2`,
		t.account.ID, symbol,
	)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, record ledger.Transaction) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, symbol, action, quantity, price, total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.AccountID, record.Symbol, string(record.Action),
		record.Quantity.String(), record.Price.String(), record.Total.String(), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

// scanAccount reads an account row. NUMERIC comes back as text and is
// parsed into a decimal to avoid float rounding.
func scanAccount(row *sql.Row) (ledger.Account, error) {
	var (
		acct    ledger.Account
		balance string
	)
	err := row.Scan(&acct.ID, &balance, &acct.Currency, &acct.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, traideerr.NotFound("account")
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("scan account: %w", err)
	}
	if acct.Balance, err = decimal.NewFromString(balance); err != nil {
		return ledger.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	return acct, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func queryPosition(ctx context.Context, q queryer, accountID uuid.UUID, symbol string) (*ledger.Position, error) {
	row := q.QueryRowContext(ctx,
		`SELECT quantity, avg_price FROM positions WHERE account_id = $1 AND symbol = $2`,
		accountID, symbol,
	)

	var quantity, avgPrice string
	err := row.Scan(&quantity, &avgPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan position: %w", err)
	}

	pos := &ledger.Position{AccountID: accountID, Symbol: symbol}
	if pos.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	if pos.AvgPrice, err = decimal.NewFromString(avgPrice); err != nil {
		return nil, fmt.Errorf("parse avg_price: %w", err)
	}
	return pos, nil
}
