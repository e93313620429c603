package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Static is a fixed, in-process price table. It backs local development
// and tests, and is safe for concurrent use.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewStatic creates a Static oracle seeded with quotes.
func NewStatic(quotes ...domain.Quote) *Static {
	s := &Static{quotes: make(map[string]domain.Quote, len(quotes))}
	for _, q := range quotes {
		s.quotes[q.Symbol] = q
	}
	return s
}

// ParseStatic builds a Static oracle from entries of the form
// "SYM=price" or "SYM=price:Display Name".
func ParseStatic(entries []string) (*Static, error) {
	s := NewStatic()
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		sym, rest, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("invalid quote entry %q, want SYM=price[:Name]", e)
		}
		sym = domain.NormalizeSymbol(sym)
		if !domain.ValidSymbol(sym) {
			return nil, fmt.Errorf("invalid symbol in quote entry %q", e)
		}
		priceStr, name, _ := strings.Cut(rest, ":")
		price, err := decimal.NewFromString(strings.TrimSpace(priceStr))
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("invalid price in quote entry %q", e)
		}
		if name == "" {
			name = sym
		}
		s.Set(domain.Quote{Symbol: sym, Name: strings.TrimSpace(name), Price: price})
	}
	return s, nil
}

// Set adds or replaces the quote for q.Symbol.
func (s *Static) Set(q domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Symbol] = q
}

// Remove deletes a symbol; later lookups report domain.ErrInvalidSymbol.
func (s *Static) Remove(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, symbol)
}

// Lookup returns the quote for symbol or domain.ErrInvalidSymbol.
func (s *Static) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrInvalidSymbol
	}
	return q, nil
}
