package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/papertrade/internal/domain"
)

// SettleBuy checks a buy order against the locked position and returns
// the settlement to commit. The quote is the single price fetched before
// the commit started; it is never re-queried here.
//
// Buying with shares × price exactly equal to the available cash succeeds
// and leaves the cash balance at zero.
func SettleBuy(pos domain.Position, q domain.Quote, shares int64, at time.Time) (*domain.Settlement, error) {
	if shares <= 0 {
		return nil, &domain.ValidationError{Message: "shares must be a positive integer"}
	}

	cost := q.Price.Mul(decimal.NewFromInt(shares))
	if cost.GreaterThan(pos.Account.Cash) {
		return nil, domain.ErrInsufficientFunds
	}

	return &domain.Settlement{
		Fill:     newFill(pos, q, domain.SideBuy, shares, at),
		Cash:     pos.Account.Cash.Sub(cost),
		Quantity: pos.Quantity + shares,
	}, nil
}

// SettleSell checks a sell order against the locked position and returns
// the settlement to commit. A resulting quantity of zero deletes the
// holding.
func SettleSell(pos domain.Position, q domain.Quote, shares int64, at time.Time) (*domain.Settlement, error) {
	if shares <= 0 {
		return nil, &domain.ValidationError{Message: "shares must be a positive integer"}
	}
	if !pos.Held || pos.Quantity <= 0 {
		return nil, domain.ErrNoPosition
	}
	if shares > pos.Quantity {
		return nil, domain.ErrInsufficientShares
	}

	proceeds := q.Price.Mul(decimal.NewFromInt(shares))

	return &domain.Settlement{
		Fill:     newFill(pos, q, domain.SideSell, shares, at),
		Cash:     pos.Account.Cash.Add(proceeds),
		Quantity: pos.Quantity - shares,
	}, nil
}

func newFill(pos domain.Position, q domain.Quote, side domain.Side, shares int64, at time.Time) domain.Fill {
	return domain.Fill{
		FillID:     uuid.New().String(),
		AccountID:  pos.Account.AccountID,
		Symbol:     pos.Symbol,
		Side:       side,
		Price:      q.Price,
		Shares:     shares,
		ExecutedAt: at,
		Name:       q.Name,
	}
}
