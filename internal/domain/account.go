package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a registered participant holding cash and equity positions.
type Account struct {
	AccountID    int64
	Username     string
	PasswordHash string
	Cash         decimal.Decimal // never negative
	InitialCash  decimal.Decimal // cash credited at registration, used by ledger replay
	CreatedAt    time.Time
}

// Holding is an open position of an account in a single symbol.
// A holding exists only while Quantity > 0.
type Holding struct {
	AccountID int64
	Symbol    string
	Quantity  int64
}

// Statement is an internally consistent snapshot of one account: its
// cash, every open holding and, when requested, its full fill history in
// chronological order.
type Statement struct {
	Account  Account
	Holdings []Holding // sorted by symbol
	Fills    []Fill    // chronological; nil when not loaded
}

// Holding returns the quantity held for symbol and whether a holding exists.
func (s *Statement) Holding(symbol string) (int64, bool) {
	for _, h := range s.Holdings {
		if h.Symbol == symbol {
			return h.Quantity, true
		}
	}
	return 0, false
}
