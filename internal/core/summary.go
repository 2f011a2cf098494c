package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary holds income and expense totals for one calendar date.
type DailySummary struct {
	Date    time.Time
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
}

// Totals maps every kind to the sum of its amounts over a whole ledger.
type Totals map[Kind]decimal.Decimal

// NewTotals returns Totals with every kind present and zero.
func NewTotals() Totals {
	t := make(Totals, len(Kinds()))
	for _, k := range Kinds() {
		t[k] = decimal.Zero
	}
	return t
}

// Add accumulates a transaction into the totals.
func (t Totals) Add(tx Transaction) {
	t[tx.Kind] = t[tx.Kind].Add(tx.Amount)
}
