package engine

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Standing is one account's row on the leaderboard.
type Standing struct {
	AccountID     int64
	Username      string
	HoldingsValue decimal.Decimal
	Cash          decimal.Decimal
	Total         decimal.Decimal
}

// Leaderboard is the full ranking plus the zero-based rank of the
// requesting account.
type Leaderboard struct {
	Ranked      []Standing
	CurrentRank int
}

// DistinctSymbols returns the sorted set of symbols held across statements.
// Prices are fetched once per entry, not once per account.
func DistinctSymbols(statements []domain.Statement) []string {
	seen := make(map[string]bool)
	var symbols []string
	for _, s := range statements {
		for _, h := range s.Holdings {
			if !seen[h.Symbol] {
				seen[h.Symbol] = true
				symbols = append(symbols, h.Symbol)
			}
		}
	}
	slices.Sort(symbols)
	return symbols
}

// HoldingsValue returns Σ quantity × price over holdings. Every held
// symbol must have a price.
func HoldingsValue(holdings []domain.Holding, prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, h := range holdings {
		p, ok := prices[h.Symbol]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no price for %s", domain.ErrQuoteUnavailable, h.Symbol)
		}
		total = total.Add(p.Mul(decimal.NewFromInt(h.Quantity)))
	}
	return total, nil
}

// TotalValue returns the holdings value plus cash of one statement.
func TotalValue(s domain.Statement, prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := HoldingsValue(s.Holdings, prices)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Add(s.Account.Cash), nil
}

// Rank values every statement with the shared price map and orders them by
// total value descending, ties broken by account id ascending.
// domain.ErrAccountNotFound is returned when currentID is not ranked.
func Rank(statements []domain.Statement, prices map[string]decimal.Decimal, currentID int64) (*Leaderboard, error) {
	ranked := make([]Standing, 0, len(statements))
	for _, s := range statements {
		hv, err := HoldingsValue(s.Holdings, prices)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, Standing{
			AccountID:     s.Account.AccountID,
			Username:      s.Account.Username,
			HoldingsValue: hv,
			Cash:          s.Account.Cash,
			Total:         hv.Add(s.Account.Cash),
		})
	}

	slices.SortFunc(ranked, compareStanding)

	rank := -1
	for i, st := range ranked {
		if st.AccountID == currentID {
			rank = i
			break
		}
	}
	if rank < 0 {
		return nil, domain.ErrAccountNotFound
	}

	return &Leaderboard{Ranked: ranked, CurrentRank: rank}, nil
}

func compareStanding(a, b Standing) int {
	if c := b.Total.Cmp(a.Total); c != 0 {
		return c
	}
	switch {
	case a.AccountID < b.AccountID:
		return -1
	case a.AccountID > b.AccountID:
		return 1
	}
	return 0
}
