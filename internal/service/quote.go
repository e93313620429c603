package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// QuoteService resolves symbols through the price oracle with a bounded
// wait. A slow or failing oracle surfaces as domain.ErrQuoteUnavailable.
type QuoteService struct {
	oracle  Oracle
	timeout time.Duration
	logger  *slog.Logger
}

// NewQuoteService creates a QuoteService. A zero timeout waits as long as
// the caller's context allows.
func NewQuoteService(oracle Oracle, timeout time.Duration, logger *slog.Logger) *QuoteService {
	return &QuoteService{
		oracle:  oracle,
		timeout: timeout,
		logger:  orDefault(logger),
	}
}

// Quote normalizes symbol and looks it up. An empty symbol is invalid
// input; a malformed one is rejected as domain.ErrInvalidSymbol without
// consulting the oracle.
func (s *QuoteService) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	sym := domain.NormalizeSymbol(symbol)
	if sym == "" {
		return domain.Quote{}, &domain.ValidationError{Message: "symbol is required"}
	}
	if !domain.ValidSymbol(sym) {
		return domain.Quote{}, domain.ErrInvalidSymbol
	}
	return s.lookup(ctx, sym)
}

// Quotes fetches every symbol exactly once. A symbol the oracle no longer
// recognizes makes the whole call fail with domain.ErrQuoteUnavailable,
// since the caller is valuing a position that exists.
func (s *QuoteService) Quotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := make(map[string]domain.Quote, len(symbols))
	for _, sym := range symbols {
		if _, done := out[sym]; done {
			continue
		}
		q, err := s.lookup(ctx, sym)
		if errors.Is(err, domain.ErrInvalidSymbol) {
			return nil, fmt.Errorf("%w: %s is no longer quoted", domain.ErrQuoteUnavailable, sym)
		}
		if err != nil {
			return nil, err
		}
		out[sym] = q
	}
	return out, nil
}

func (s *QuoteService) lookup(ctx context.Context, sym string) (domain.Quote, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	q, err := s.oracle.Lookup(ctx, sym)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidSymbol), errors.Is(err, domain.ErrQuoteUnavailable):
		return domain.Quote{}, err
	default:
		s.logger.Warn("quote lookup failed",
			slog.String("symbol", sym),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return domain.Quote{}, fmt.Errorf("%w: %s: %v", domain.ErrQuoteUnavailable, sym, err)
	}

	if !q.Price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("%w: %s quoted at non-positive price %s", domain.ErrQuoteUnavailable, sym, q.Price)
	}
	q.Symbol = sym
	if q.Name == "" {
		q.Name = sym
	}
	return q, nil
}

func priceMap(quotes map[string]domain.Quote) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(quotes))
	for sym, q := range quotes {
		prices[sym] = q.Price
	}
	return prices
}
