package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// CostBasis is the reconstructed acquisition cost of an open position.
type CostBasis struct {
	AverageCost   decimal.Decimal
	SharesMatched int64 // BUY volume consumed; less than the held quantity when history is short
	TotalCost     decimal.Decimal
}

// Complete reports whether enough BUY volume was found to cover quantity.
func (c CostBasis) Complete(quantity int64) bool {
	return c.SharesMatched == quantity
}

// AverageCost reconstructs the cost basis of the quantity currently held
// in symbol by walking the fill history newest first and consuming BUY
// volume until quantity is covered.
//
// A SELL fill removes the most recent BUY volume that preceded it, so
// shares already sold are never counted as held. Without sells this is a
// plain newest-first consumption of BUY fills.
//
// fills must be in chronological ledger order (ExecutedAt, then Seq) and
// may contain other symbols, which are skipped. The result depends only on
// fills and quantity. When no BUY volume is found the ledger is
// inconsistent with the holding and domain.ErrInconsistentLedger is
// returned.
func AverageCost(symbol string, quantity int64, fills []domain.Fill) (CostBasis, error) {
	remaining := quantity
	priceSum := decimal.Zero
	var consumed, sold int64

	for i := len(fills) - 1; i >= 0 && remaining > 0; i-- {
		f := &fills[i]
		if f.Symbol != symbol {
			continue
		}
		if f.Side == domain.SideSell {
			sold += f.Shares
			continue
		}

		available := f.Shares
		if sold > 0 {
			gone := min(sold, available)
			sold -= gone
			available -= gone
		}
		if available == 0 {
			continue
		}

		take := min(remaining, available)
		priceSum = priceSum.Add(f.Price.Mul(decimal.NewFromInt(take)))
		consumed += take
		remaining -= take
	}

	if consumed == 0 {
		return CostBasis{}, fmt.Errorf("%w: no BUY fills cover %d share(s) of %s", domain.ErrInconsistentLedger, quantity, symbol)
	}

	return CostBasis{
		AverageCost:   priceSum.Div(decimal.NewFromInt(consumed)),
		SharesMatched: consumed,
		TotalCost:     priceSum,
	}, nil
}
