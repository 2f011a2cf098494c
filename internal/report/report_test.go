package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"finbot/internal/core"
)

var day = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

func TestRecorded(t *testing.T) {
	tests := []struct {
		name string
		tx   core.Transaction
		want string
	}{
		{"income", core.Transaction{Kind: core.Income, Amount: decimal.NewFromInt(5000)}, "Income of 5000 recorded."},
		{"expense", core.Transaction{Kind: core.Expense, Amount: decimal.RequireFromString("12.5")}, "Expense of 12.50 recorded."},
		{"saving", core.Transaction{Kind: core.Saving, Amount: decimal.NewFromInt(100)}, "Savings of 100 recorded."},
		{"borrow", core.Transaction{Kind: core.Borrow, Amount: decimal.NewFromInt(300), Counterparty: "Alice"}, "Recorded: borrowed 300 from Alice."},
		{"lend", core.Transaction{Kind: core.Lend, Amount: decimal.NewFromInt(40), Counterparty: "Bob"}, "Recorded: lent 40 to Bob."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recorded(tt.tx))
		})
	}
}

func TestTransactions(t *testing.T) {
	assert.Equal(t, "No transactions in the last 30 days.", Transactions(nil, 720*time.Hour))

	txs := []core.Transaction{
		{Kind: core.Expense, Amount: decimal.RequireFromString("150.5"), Note: "groceries", Timestamp: day.Add(18 * time.Hour)},
		{Kind: core.Income, Amount: decimal.NewFromInt(5000), Timestamp: day.Add(9 * time.Hour)},
	}
	want := "Transactions in the last 30 days:\n" +
		"2025-01-02 18:00 -150.50 groceries\n" +
		"2025-01-02 09:00 +5000"
	assert.Equal(t, want, Transactions(txs, 720*time.Hour))
}

func TestPending(t *testing.T) {
	assert.Equal(t, "No pending borrows.", Pending(core.Borrow, nil))
	assert.Equal(t, "No pending lends.", Pending(core.Lend, nil))

	txs := []core.Transaction{
		{Kind: core.Lend, Amount: decimal.NewFromInt(40), Counterparty: "Bob", Timestamp: day},
		{Kind: core.Lend, Amount: decimal.NewFromInt(15), Counterparty: "Carol", Note: "lunch", Timestamp: day},
	}
	want := "Pending lends:\n" +
		"1. 40 to Bob (2025-01-02)\n" +
		"2. 15 to Carol (2025-01-02) lunch"
	assert.Equal(t, want, Pending(core.Lend, txs))
}

func TestPendingWithIDs(t *testing.T) {
	day := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "tx-1", Kind: core.Borrow, Amount: decimal.NewFromInt(300), Counterparty: "Alice", Note: "rent", Timestamp: day},
		{ID: "tx-2", Kind: core.Borrow, Amount: decimal.NewFromInt(50), Counterparty: "Bob", Timestamp: day},
	}
	assert.Equal(t,
		"Pending borrows:\n1. 300 from Alice (2025-04-02) rent [tx-1]\n2. 50 from Bob (2025-04-02) [tx-2]",
		PendingWithIDs(core.Borrow, txs))
	assert.Equal(t, "No pending borrows.", PendingWithIDs(core.Borrow, nil))
}

func TestSettled(t *testing.T) {
	assert.Equal(t, "Borrow #2 marked as returned.", Settled(core.Borrow, 2))
	assert.Equal(t, "Lend #1 marked as received.", Settled(core.Lend, 1))
}

func TestSummaryAndDaily(t *testing.T) {
	s := core.DailySummary{
		Date:    day,
		Income:  decimal.NewFromInt(100),
		Expense: decimal.NewFromInt(300),
		Net:     decimal.NewFromInt(-200),
	}

	assert.Equal(t, "Today (2025-01-02)\nIncome: 100\nExpense: 300\nNet: -200", Summary("Today", s))
	assert.Equal(t,
		"Daily report for 2025-01-02\nIncome: 100\nExpense: 300\nSavings: -200\nBalance: 4700",
		Daily(s, decimal.NewFromInt(4700)))
}

func TestTotals(t *testing.T) {
	totals := core.NewTotals()
	totals.Add(core.Transaction{Kind: core.Income, Amount: decimal.NewFromInt(5000)})
	totals.Add(core.Transaction{Kind: core.Expense, Amount: decimal.RequireFromString("99.99")})

	want := "Totals:\nIncome: 5000\nExpense: 99.99\nSavings: 0\nBorrowed: 0\nLent: 0"
	assert.Equal(t, want, Totals(totals))
}
