package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/papertrade/internal/domain"
)

// fillLess orders fills by executed_at ascending, then by insertion
// sequence.
func fillLess(a, b *domain.Fill) bool {
	return a.Before(b)
}

// accountEntry holds one account's mutable state. Its mutex serializes
// settlements for the account and makes snapshot reads of cash, holdings
// and fills mutually consistent.
type accountEntry struct {
	mu       sync.Mutex
	account  domain.Account
	holdings map[string]int64
	fills    *btree.BTreeG[*domain.Fill]
}

// MemoryStore is a thread-safe in-memory ledger store. Settlements on
// different accounts proceed in parallel; settlements on the same account
// are serialized by the account's own lock.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[int64]*accountEntry
	byUsername map[string]int64
	nextID     int64
	seq        atomic.Int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[int64]*accountEntry),
		byUsername: make(map[string]int64),
	}
}

// CreateAccount stores a new account and assigns its id. It returns
// domain.ErrAccountAlreadyExists if the username is taken.
func (s *MemoryStore) CreateAccount(ctx context.Context, a domain.Account) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[a.Username]; exists {
		return nil, domain.ErrAccountAlreadyExists
	}
	s.nextID++
	a.AccountID = s.nextID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	s.accounts[a.AccountID] = &accountEntry{
		account:  a,
		holdings: make(map[string]int64),
		fills:    btree.NewG[*domain.Fill](16, fillLess),
	}
	s.byUsername[a.Username] = a.AccountID
	return &a, nil
}

// GetAccount retrieves an account by id. It returns
// domain.ErrAccountNotFound if the account does not exist.
func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.account
	return &a, nil
}

// Statement returns a consistent snapshot of one account including its
// full fill history.
func (s *MemoryStore) Statement(ctx context.Context, id int64) (*domain.Statement, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.snapshot()
	st.Fills = make([]domain.Fill, 0, e.fills.Len())
	e.fills.Ascend(func(f *domain.Fill) bool {
		st.Fills = append(st.Fills, *f)
		return true
	})
	return &st, nil
}

// Statements returns every account with its holdings, ordered by account
// id. Each statement is internally consistent; accounts are read one
// after another, so the set as a whole may mix slightly different points
// in time.
func (s *MemoryStore) Statements(ctx context.Context) ([]domain.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	entries := make([]*accountEntry, 0, len(s.accounts))
	for _, e := range s.accounts {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *accountEntry) int {
		return cmp.Compare(a.account.AccountID, b.account.AccountID)
	})

	out := make([]domain.Statement, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	return out, nil
}

// RecentFills returns up to limit fills of an account, newest first.
func (s *MemoryStore) RecentFills(ctx context.Context, id int64, limit int) ([]domain.Fill, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Fill, 0, min(limit, e.fills.Len()))
	e.fills.Descend(func(f *domain.Fill) bool {
		if len(out) >= limit {
			return false
		}
		out = append(out, *f)
		return true
	})
	return out, nil
}

// Settle locks the account, hands its position in symbol to fn and
// applies the returned settlement. Nothing is written when fn fails.
func (s *MemoryStore) Settle(ctx context.Context, id int64, symbol string, fn domain.SettleFunc) (*domain.Fill, error) {
	e, err := s.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}

	qty, held := e.holdings[symbol]
	set, err := fn(domain.Position{
		Account:  e.account,
		Symbol:   symbol,
		Quantity: qty,
		Held:     held,
	})
	if err != nil {
		return nil, err
	}
	if err := checkSettlement(id, symbol, set); err != nil {
		return nil, err
	}

	f := set.Fill
	f.Seq = s.seq.Add(1)
	e.fills.ReplaceOrInsert(&f)
	e.account.Cash = set.Cash
	if set.Quantity == 0 {
		delete(e.holdings, symbol)
	} else {
		e.holdings[symbol] = set.Quantity
	}

	out := f
	return &out, nil
}

func (s *MemoryStore) entry(ctx context.Context, id int64) (*accountEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return e, nil
}

// snapshot copies the account and its holdings. The caller holds e.mu.
func (e *accountEntry) snapshot() domain.Statement {
	st := domain.Statement{
		Account:  e.account,
		Holdings: make([]domain.Holding, 0, len(e.holdings)),
	}
	for sym, q := range e.holdings {
		st.Holdings = append(st.Holdings, domain.Holding{
			AccountID: e.account.AccountID,
			Symbol:    sym,
			Quantity:  q,
		})
	}
	slices.SortFunc(st.Holdings, func(a, b domain.Holding) int {
		return cmp.Compare(a.Symbol, b.Symbol)
	})
	return st
}

// checkSettlement rejects a settlement that would break the ledger
// invariants regardless of how it was computed.
func checkSettlement(id int64, symbol string, set *domain.Settlement) error {
	switch {
	case set == nil:
		return fmt.Errorf("%w: empty settlement for account %d", domain.ErrInconsistentLedger, id)
	case set.Cash.IsNegative():
		return fmt.Errorf("%w: settlement leaves account %d with negative cash %s", domain.ErrInconsistentLedger, id, set.Cash)
	case set.Quantity < 0:
		return fmt.Errorf("%w: settlement leaves account %d with %d %s", domain.ErrInconsistentLedger, id, set.Quantity, symbol)
	case set.Fill.AccountID != id || set.Fill.Symbol != symbol || set.Fill.Shares <= 0 || !set.Fill.Price.IsPositive():
		return fmt.Errorf("%w: malformed fill for account %d %s", domain.ErrInconsistentLedger, id, symbol)
	}
	return nil
}

// unavailable wraps a storage level failure.
func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
