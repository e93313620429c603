package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
)

// LedgerStore is the transactional storage the services run against.
// Settle must apply the fill append, the cash update and the holding
// upsert or delete as one unit and serialize settlements per account.
type LedgerStore interface {
	CreateAccount(ctx context.Context, a domain.Account) (*domain.Account, error)
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	Statement(ctx context.Context, id int64) (*domain.Statement, error)
	Statements(ctx context.Context) ([]domain.Statement, error)
	RecentFills(ctx context.Context, id int64, limit int) ([]domain.Fill, error)
	Settle(ctx context.Context, id int64, symbol string, fn domain.SettleFunc) (*domain.Fill, error)
}

// Oracle resolves a symbol to its current price and display name. It
// returns domain.ErrInvalidSymbol when the symbol is unknown.
type Oracle interface {
	Lookup(ctx context.Context, symbol string) (domain.Quote, error)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
