package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether a fill bought or sold shares.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Fill is one executed order. Fills are immutable and append-only; they
// are the sole source of historical truth for cash and holdings.
type Fill struct {
	FillID     string
	Seq        int64 // store-assigned insertion order, breaks timestamp ties
	AccountID  int64
	Symbol     string
	Side       Side
	Price      decimal.Decimal
	Shares     int64
	ExecutedAt time.Time
	Name       string // display name reported by the price oracle
}

// Amount returns price × shares.
func (f *Fill) Amount() decimal.Decimal {
	return f.Price.Mul(decimal.NewFromInt(f.Shares))
}

// Before reports whether f precedes g in ledger order: by ExecutedAt, then
// by insertion sequence.
func (f *Fill) Before(g *Fill) bool {
	if !f.ExecutedAt.Equal(g.ExecutedAt) {
		return f.ExecutedAt.Before(g.ExecutedAt)
	}
	return f.Seq < g.Seq
}

// Quote is a price oracle answer for a symbol.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// Position is the locked view of an account handed to a settlement
// function while its ledger commit is in progress.
type Position struct {
	Account  Account
	Symbol   string
	Quantity int64 // 0 when Held is false
	Held     bool
}

// Settlement is the complete set of writes for one order. A ledger store
// applies it as a single atomic unit: the fill is appended, the cash
// balance replaced, and the holding upserted (or deleted when Quantity is 0).
type Settlement struct {
	Fill     Fill
	Cash     decimal.Decimal
	Quantity int64
}

// SettleFunc decides the settlement for an order given the locked position.
// Returning an error aborts the commit with no writes.
type SettleFunc func(pos Position) (*Settlement, error)
