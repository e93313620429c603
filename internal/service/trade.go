package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/papertrade/internal/domain"
	"github.com/efreitasn/papertrade/internal/engine"
)

type settleFn func(pos domain.Position, q domain.Quote, shares int64, at time.Time) (*domain.Settlement, error)

// TradeService executes buy and sell orders. The quote is fetched once,
// before the ledger commit starts, and no account lock is held while the
// oracle is consulted.
type TradeService struct {
	ledger         LedgerStore
	quotes         *QuoteService
	storageTimeout time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewTradeService creates a TradeService.
func NewTradeService(ledger LedgerStore, quotes *QuoteService, storageTimeout time.Duration, logger *slog.Logger) *TradeService {
	return &TradeService{
		ledger:         ledger,
		quotes:         quotes,
		storageTimeout: storageTimeout,
		logger:         orDefault(logger),
		now:            time.Now,
	}
}

// Buy purchases shares of symbol for the account at the current quote.
func (s *TradeService) Buy(ctx context.Context, accountID int64, symbol string, shares int64) (*domain.Fill, error) {
	return s.execute(ctx, domain.SideBuy, engine.SettleBuy, accountID, symbol, shares)
}

// Sell disposes of shares of symbol held by the account at the current
// quote.
func (s *TradeService) Sell(ctx context.Context, accountID int64, symbol string, shares int64) (*domain.Fill, error) {
	return s.execute(ctx, domain.SideSell, engine.SettleSell, accountID, symbol, shares)
}

func (s *TradeService) execute(ctx context.Context, side domain.Side, settle settleFn, accountID int64, symbol string, shares int64) (*domain.Fill, error) {
	if shares <= 0 {
		return nil, &domain.ValidationError{Message: "shares must be a positive integer"}
	}

	if err := s.checkAccount(ctx, accountID); err != nil {
		return nil, err
	}

	q, err := s.quotes.Quote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	sctx, cancel := withTimeout(ctx, s.storageTimeout)
	defer cancel()

	// The timestamp is taken under the account lock so ledger order and
	// timestamp order agree for each account.
	f, err := s.ledger.Settle(sctx, accountID, q.Symbol, func(pos domain.Position) (*domain.Settlement, error) {
		return settle(pos, q, shares, s.now())
	})
	if err != nil {
		s.logFailure(accountID, q.Symbol, side, err)
		return nil, err
	}

	s.logger.Debug("fill executed",
		slog.Int64("account_id", f.AccountID),
		slog.String("symbol", f.Symbol),
		slog.String("side", string(f.Side)),
		slog.Int64("shares", f.Shares),
		slog.String("price", f.Price.String()),
		slog.String("fill_id", f.FillID),
	)
	return f, nil
}

func (s *TradeService) checkAccount(ctx context.Context, accountID int64) error {
	ctx, cancel := withTimeout(ctx, s.storageTimeout)
	defer cancel()

	_, err := s.ledger.GetAccount(ctx, accountID)
	return err
}

func (s *TradeService) logFailure(accountID int64, symbol string, side domain.Side, err error) {
	attrs := []any{
		slog.Int64("account_id", accountID),
		slog.String("symbol", symbol),
		slog.String("side", string(side)),
		slog.String("error", err.Error()),
	}
	switch {
	case errors.Is(err, domain.ErrInconsistentLedger):
		s.logger.Error("ledger commit rejected", attrs...)
	case errors.Is(err, domain.ErrStorageUnavailable):
		s.logger.Warn("ledger commit failed", attrs...)
	}
}
