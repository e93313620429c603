package engine

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// Replay rebuilds cash and per-symbol quantities from an initial balance
// and a chronological fill history. Symbols netting to zero are omitted.
func Replay(initialCash decimal.Decimal, fills []domain.Fill) (decimal.Decimal, map[string]int64) {
	cash := initialCash
	quantities := make(map[string]int64)
	for i := range fills {
		f := &fills[i]
		switch f.Side {
		case domain.SideBuy:
			cash = cash.Sub(f.Amount())
			quantities[f.Symbol] += f.Shares
		case domain.SideSell:
			cash = cash.Add(f.Amount())
			quantities[f.Symbol] -= f.Shares
		}
		if quantities[f.Symbol] == 0 {
			delete(quantities, f.Symbol)
		}
	}
	return cash, quantities
}

// Verify checks that a statement loaded with its fill history agrees with
// a replay of that history: stored cash equals replayed cash and every
// holding equals the net BUY − SELL volume of its symbol.
func Verify(s *domain.Statement) error {
	cash, quantities := Replay(s.Account.InitialCash, s.Fills)

	if !cash.Equal(s.Account.Cash) {
		return fmt.Errorf("%w: account %d cash %s, replay gives %s",
			domain.ErrInconsistentLedger, s.Account.AccountID, s.Account.Cash, cash)
	}

	held := make(map[string]int64, len(s.Holdings))
	for _, h := range s.Holdings {
		held[h.Symbol] = h.Quantity
	}

	symbols := make([]string, 0, len(held)+len(quantities))
	for sym := range held {
		symbols = append(symbols, sym)
	}
	for sym := range quantities {
		if _, ok := held[sym]; !ok {
			symbols = append(symbols, sym)
		}
	}
	slices.Sort(symbols)

	for _, sym := range symbols {
		if held[sym] != quantities[sym] {
			return fmt.Errorf("%w: account %d holds %d %s, replay gives %d",
				domain.ErrInconsistentLedger, s.Account.AccountID, held[sym], sym, quantities[sym])
		}
	}
	return nil
}
