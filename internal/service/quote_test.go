package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/papertrade/internal/domain"
)

func TestQuote_Normalizes(t *testing.T) {
	env := newTestEnv(t, "1.00", domain.Quote{Symbol: "BRK.B", Price: dec("412.10")})

	got, err := env.quotes.Quote(context.Background(), "  brk.b ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Symbol != "BRK.B" {
		t.Errorf("got symbol %q, want BRK.B", got.Symbol)
	}
	if got.Name != "BRK.B" {
		t.Errorf("missing name should default to the symbol, got %q", got.Name)
	}
	if env.oracle.count("BRK.B") != 1 {
		t.Errorf("expected one lookup of the normalized symbol")
	}
}

func TestQuote_Errors(t *testing.T) {
	tests := []struct {
		name   string
		oracle Oracle
		symbol string
		check  func(error) bool
	}{
		{
			name:   "empty",
			symbol: "",
			check: func(err error) bool {
				var vErr *domain.ValidationError
				return errors.As(err, &vErr)
			},
		},
		{
			name:   "malformed",
			symbol: "1ABC",
			check:  func(err error) bool { return errors.Is(err, domain.ErrInvalidSymbol) },
		},
		{
			name:   "not found",
			symbol: "NOPE",
			check:  func(err error) bool { return errors.Is(err, domain.ErrInvalidSymbol) },
		},
		{
			name:   "transport failure",
			symbol: "ABC",
			oracle: oracleFunc(func(context.Context, string) (domain.Quote, error) {
				return domain.Quote{}, errors.New("connection refused")
			}),
			check: func(err error) bool { return errors.Is(err, domain.ErrQuoteUnavailable) },
		},
		{
			name:   "non-positive price",
			symbol: "ABC",
			oracle: oracleFunc(func(context.Context, string) (domain.Quote, error) {
				return domain.Quote{Symbol: "ABC", Price: dec("0")}, nil
			}),
			check: func(err error) bool { return errors.Is(err, domain.ErrQuoteUnavailable) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "1.00")
			qs := env.quotes
			if tt.oracle != nil {
				qs = NewQuoteService(tt.oracle, 0, nil)
			}
			_, err := qs.Quote(context.Background(), tt.symbol)
			if !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestQuotes_DelistedHoldingIsUnavailable(t *testing.T) {
	env := newTestEnv(t, "1.00", quoteOf("ABC", "1.00"))

	got, err := env.quotes.Quotes(context.Background(), []string{"ABC", "ABC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || env.oracle.count("ABC") != 1 {
		t.Errorf("duplicate symbols must be looked up once")
	}

	_, err = env.quotes.Quotes(context.Background(), []string{"ABC", "GONE"})
	if !errors.Is(err, domain.ErrQuoteUnavailable) {
		t.Fatalf("got %v, want ErrQuoteUnavailable", err)
	}
}
