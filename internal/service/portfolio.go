package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/engine"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
)

// HoldingView is one open position valued at the current quote.
type HoldingView struct {
	Symbol       string
	Name         string
	Quantity     int64
	CurrentPrice decimal.Decimal
	AverageCost  decimal.Decimal
	Value        decimal.Decimal
}

// Portfolio is the valued view of an account.
type Portfolio struct {
	AccountID     int64
	Username      string
	Holdings      []HoldingView // sorted by symbol
	Cash          decimal.Decimal
	HoldingsValue decimal.Decimal
	TotalValue    decimal.Decimal
}

// PortfolioService builds read-only views of an account: valuation, cost
// basis, history and ledger audit.
type PortfolioService struct {
	ledger         LedgerStore
	quotes         *QuoteService
	storageTimeout time.Duration
	logger         *slog.Logger
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(ledger LedgerStore, quotes *QuoteService, storageTimeout time.Duration, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		ledger:         ledger,
		quotes:         quotes,
		storageTimeout: storageTimeout,
		logger:         orDefault(logger),
	}
}

// GetPortfolio values every holding of the account at the current quote
// and reconstructs its average cost. Each held symbol is quoted once.
func (s *PortfolioService) GetPortfolio(ctx context.Context, accountID int64) (*Portfolio, error) {
	st, err := s.statement(ctx, accountID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(st.Holdings))
	for _, h := range st.Holdings {
		symbols = append(symbols, h.Symbol)
	}
	quotes, err := s.quotes.Quotes(ctx, symbols)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		AccountID: st.Account.AccountID,
		Username:  st.Account.Username,
		Holdings:  make([]HoldingView, 0, len(st.Holdings)),
		Cash:      st.Account.Cash,
	}
	for _, h := range st.Holdings {
		avg, err := s.averageCost(st, h.Symbol, h.Quantity)
		if err != nil {
			return nil, err
		}
		q := quotes[h.Symbol]
		p.Holdings = append(p.Holdings, HoldingView{
			Symbol:       h.Symbol,
			Name:         q.Name,
			Quantity:     h.Quantity,
			CurrentPrice: q.Price,
			AverageCost:  avg,
			Value:        q.Price.Mul(decimal.NewFromInt(h.Quantity)),
		})
	}

	if p.TotalValue, err = engine.TotalValue(*st, priceMap(quotes)); err != nil {
		return nil, err
	}
	p.HoldingsValue = p.TotalValue.Sub(p.Cash)
	return p, nil
}

// AverageCost returns the reconstructed average acquisition price of the
// shares of symbol the account currently holds.
func (s *PortfolioService) AverageCost(ctx context.Context, accountID int64, symbol string) (decimal.Decimal, error) {
	sym := domain.NormalizeSymbol(symbol)
	if !domain.ValidSymbol(sym) {
		return decimal.Zero, domain.ErrInvalidSymbol
	}

	st, err := s.statement(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	qty, ok := st.Holding(sym)
	if !ok {
		return decimal.Zero, domain.ErrNoPosition
	}
	return s.averageCost(st, sym, qty)
}

// History returns the account's most recent fills, newest first. A zero
// limit means DefaultHistoryLimit; limits above MaxHistoryLimit are capped.
func (s *PortfolioService) History(ctx context.Context, accountID int64, limit int) ([]domain.Fill, error) {
	switch {
	case limit < 0:
		return nil, &domain.ValidationError{Message: "limit must be a positive integer"}
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	ctx, cancel := withTimeout(ctx, s.storageTimeout)
	defer cancel()
	return s.ledger.RecentFills(ctx, accountID, limit)
}

// Audit replays the account's fills from its initial cash and checks the
// result against stored cash and holdings.
func (s *PortfolioService) Audit(ctx context.Context, accountID int64) error {
	st, err := s.statement(ctx, accountID)
	if err != nil {
		return err
	}
	if err := engine.Verify(st); err != nil {
		s.logger.Error("ledger audit failed",
			slog.Int64("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (s *PortfolioService) statement(ctx context.Context, accountID int64) (*domain.Statement, error) {
	ctx, cancel := withTimeout(ctx, s.storageTimeout)
	defer cancel()
	return s.ledger.Statement(ctx, accountID)
}

func (s *PortfolioService) averageCost(st *domain.Statement, symbol string, quantity int64) (decimal.Decimal, error) {
	cb, err := engine.AverageCost(symbol, quantity, st.Fills)
	if err != nil {
		if errors.Is(err, domain.ErrInconsistentLedger) {
			s.logger.Error("cost basis reconstruction failed",
				slog.Int64("account_id", st.Account.AccountID),
				slog.String("symbol", symbol),
				slog.Int64("quantity", quantity),
				slog.String("error", err.Error()),
			)
		}
		return decimal.Zero, err
	}
	if !cb.Complete(quantity) {
		s.logger.Warn("fill history covers fewer shares than held",
			slog.Int64("account_id", st.Account.AccountID),
			slog.String("symbol", symbol),
			slog.Int64("quantity", quantity),
			slog.Int64("matched", cb.SharesMatched),
		)
	}
	return cb.AverageCost, nil
}
