package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/efreitasn/papertrade/internal/engine"
)

// LeaderboardService ranks every account by total value.
type LeaderboardService struct {
	ledger         LedgerStore
	quotes         *QuoteService
	storageTimeout time.Duration
	logger         *slog.Logger
}

// NewLeaderboardService creates a LeaderboardService.
func NewLeaderboardService(ledger LedgerStore, quotes *QuoteService, storageTimeout time.Duration, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		ledger:         ledger,
		quotes:         quotes,
		storageTimeout: storageTimeout,
		logger:         orDefault(logger),
	}
}

// GetLeaderboard values all accounts with one quote per distinct held
// symbol and reports the rank of currentAccountID.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, currentAccountID int64) (*engine.Leaderboard, error) {
	sctx, cancel := withTimeout(ctx, s.storageTimeout)
	statements, err := s.ledger.Statements(sctx)
	cancel()
	if err != nil {
		return nil, err
	}

	symbols := engine.DistinctSymbols(statements)
	quotes, err := s.quotes.Quotes(ctx, symbols)
	if err != nil {
		return nil, err
	}

	lb, err := engine.Rank(statements, priceMap(quotes), currentAccountID)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("leaderboard ranked",
		slog.Int("accounts", len(lb.Ranked)),
		slog.Int("symbols", len(symbols)),
		slog.Int64("current_account_id", currentAccountID),
		slog.Int("current_rank", lb.CurrentRank),
	)
	return lb, nil
}
