package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/quote"
	"github.com/efreitasn/papertrade/internal/store"
)

// tb is the subset of testing.TB that *rapid.T also satisfies.
type tb interface {
	Helper()
	Fatalf(format string, args ...any)
}

// testEnv wires every service against an in-memory ledger and a static
// price table the test can change between calls.
type testEnv struct {
	ledger      *store.MemoryStore
	oracle      *countingOracle
	prices      *quote.Static
	quotes      *QuoteService
	accounts    *AccountService
	trades      *TradeService
	portfolio   *PortfolioService
	leaderboard *LeaderboardService
}

func newTestEnv(t tb, startingCash string, quotes ...domain.Quote) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ledger := store.NewMemoryStore()
	prices := quote.NewStatic(quotes...)
	oracle := &countingOracle{next: prices}
	qs := NewQuoteService(oracle, time.Second, logger)

	trades := NewTradeService(ledger, qs, time.Second, logger)
	trades.now = newFakeClock().Now

	return &testEnv{
		ledger:      ledger,
		oracle:      oracle,
		prices:      prices,
		quotes:      qs,
		accounts:    NewAccountService(ledger, dec(startingCash), time.Second, logger),
		trades:      trades,
		portfolio:   NewPortfolioService(ledger, qs, time.Second, logger),
		leaderboard: NewLeaderboardService(ledger, qs, time.Second, logger),
	}
}

func (e *testEnv) register(t tb, username string) int64 {
	t.Helper()
	a, err := e.accounts.Register(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("register %s: unexpected error: %v", username, err)
	}
	return a.AccountID
}

func (e *testEnv) setPrice(symbol, price string) {
	e.prices.Set(domain.Quote{Symbol: symbol, Name: symbol + " Corp", Price: dec(price)})
}

func (e *testEnv) statement(t tb, id int64) *domain.Statement {
	t.Helper()
	st, err := e.ledger.Statement(context.Background(), id)
	if err != nil {
		t.Fatalf("statement: unexpected error: %v", err)
	}
	return st
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func quoteOf(symbol, price string) domain.Quote {
	return domain.Quote{Symbol: symbol, Name: symbol + " Corp", Price: dec(price)}
}

// countingOracle records how often each symbol was looked up.
type countingOracle struct {
	next  Oracle
	mu    sync.Mutex
	calls map[string]int
	total atomic.Int64
}

func (o *countingOracle) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	o.mu.Lock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[symbol]++
	o.mu.Unlock()
	o.total.Add(1)
	return o.next.Lookup(ctx, symbol)
}

func (o *countingOracle) count(symbol string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[symbol]
}

func (o *countingOracle) reset() {
	o.mu.Lock()
	o.calls = nil
	o.mu.Unlock()
	o.total.Store(0)
}

// oracleFunc adapts a function to the Oracle interface.
type oracleFunc func(ctx context.Context, symbol string) (domain.Quote, error)

func (f oracleFunc) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	return f(ctx, symbol)
}

// fakeClock advances one second on every reading.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func decimalFromInt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}
