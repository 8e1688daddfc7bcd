package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oxsidee/traidetrain/internal/traideerr"
)

// MemoryStore is the in-memory Store used by unit tests and local runs
// without Postgres. Mutations are staged per transaction and applied only
// when the wrapped function returns nil, mirroring the Postgres rollback
// semantics.
type MemoryStore struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]Account
	positions    map[uuid.UUID]map[string]Position
	transactions map[uuid.UUID][]Transaction

	lockMu sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:     make(map[uuid.UUID]Account),
		positions:    make(map[uuid.UUID]map[string]Position),
		transactions: make(map[uuid.UUID][]Transaction),
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateAccount(ctx context.Context, accountID uuid.UUID, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[accountID]; exists {
		return traideerr.New(traideerr.KindConflict, "account %s already exists", accountID)
	}
	s.accounts[accountID] = Account{
		ID:       accountID,
		Balance:  decimal.Zero,
		Currency: currency,
	}
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, accountID uuid.UUID) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return Account{}, traideerr.NotFound("account")
	}
	return acct, nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (*Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[accountID][symbol]
	if !ok {
		return nil, nil
	}
	copied := pos
	return &copied, nil
}

func (s *MemoryStore) ListPositions(ctx context.Context, accountID uuid.UUID) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	held := s.positions[accountID]
	out := make([]Position, 0, len(held))
	for _, pos := range held {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.transactions[accountID]
	out := make([]Transaction, len(log))
	// Newest first; the log is appended in execution order.
	for i, tx := range log {
		out[len(log)-1-i] = tx
	}
	return out, nil
}

func (s *MemoryStore) WithAccountLock(ctx context.Context, accountID uuid.UUID, fn func(tx AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	acct, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return traideerr.NotFound("account")
	}

	tx := &memTx{store: s, account: acct, staged: make(map[string]*Position)}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit staged writes under the store lock. The per-account lock is
	// still held, so no other writer raced us between fn and here.
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[accountID] = tx.account
	for symbol, pos := range tx.staged {
		if pos == nil {
			delete(s.positions[accountID], symbol)
			continue
		}
		if s.positions[accountID] == nil {
			s.positions[accountID] = make(map[string]Position)
		}
		s.positions[accountID][symbol] = *pos
	}
	s.transactions[accountID] = append(s.transactions[accountID], tx.appended...)
	return nil
}

func (s *MemoryStore) accountLock(accountID uuid.UUID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	lock, ok := s.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[accountID] = lock
	}
	return lock
}

// memTx stages mutations until commit. A nil entry in staged marks a
// deleted position.
type memTx struct {
	store    *MemoryStore
	account  Account
	staged   map[string]*Position
	appended []Transaction
}

func (t *memTx) Account() Account { return t.account }

func (t *memTx) SetBalance(ctx context.Context, balance decimal.Decimal) error {
	t.account.Balance = balance
	return nil
}

func (t *memTx) GetPosition(ctx context.Context, symbol string) (*Position, error) {
	if pos, ok := t.staged[symbol]; ok {
		if pos == nil {
			return nil, nil
		}
		copied := *pos
		return &copied, nil
	}
	return t.store.GetPosition(ctx, t.account.ID, symbol)
}

func (t *memTx) UpsertPosition(ctx context.Context, pos Position) error {
	copied := pos
	t.staged[pos.Symbol] = &copied
	return nil
}

func (t *memTx) DeletePosition(ctx context.Context, symbol string) error {
	t.staged[symbol] = nil
	return nil
}

func (t *memTx) AppendTransaction(ctx context.Context, tx Transaction) error {
	t.appended = append(t.appended, tx)
	return nil
}
