// Package report renders ledger data as the plain-text replies sent to users.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
)

const (
	dayLayout  = "2006-01-02"
	timeLayout = "2006-01-02 15:04"
)

var kindLabels = map[core.Kind]string{
	core.Income:  "Income",
	core.Expense: "Expense",
	core.Saving:  "Savings",
	core.Borrow:  "Borrowed",
	core.Lend:    "Lent",
}

// Label returns the display name of a kind.
func Label(k core.Kind) string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

func Balance(balance decimal.Decimal) string {
	return "Current balance: " + core.FormatAmount(balance)
}

// Recorded confirms an appended transaction.
func Recorded(tx core.Transaction) string {
	switch tx.Kind {
	case core.Borrow:
		return fmt.Sprintf("Recorded: borrowed %s from %s.", core.FormatAmount(tx.Amount), tx.Counterparty)
	case core.Lend:
		return fmt.Sprintf("Recorded: lent %s to %s.", core.FormatAmount(tx.Amount), tx.Counterparty)
	case core.Income:
		return fmt.Sprintf("Income of %s recorded.", core.FormatAmount(tx.Amount))
	case core.Expense:
		return fmt.Sprintf("Expense of %s recorded.", core.FormatAmount(tx.Amount))
	case core.Saving:
		return fmt.Sprintf("Savings of %s recorded.", core.FormatAmount(tx.Amount))
	}
	return fmt.Sprintf("%s of %s recorded.", Label(tx.Kind), core.FormatAmount(tx.Amount))
}

// Transactions lists income and expense entries as returned by Store.Windowed.
func Transactions(txs []core.Transaction, window time.Duration) string {
	days := int(window.Hours() / 24)
	if len(txs) == 0 {
		return fmt.Sprintf("No transactions in the last %d days.", days)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Transactions in the last %d days:", days)
	for _, tx := range txs {
		sign := "+"
		if tx.Kind == core.Expense {
			sign = "-"
		}
		fmt.Fprintf(&b, "\n%s %s%s", tx.Timestamp.Format(timeLayout), sign, core.FormatAmount(tx.Amount))
		if tx.Note != "" {
			b.WriteString(" " + tx.Note)
		}
	}
	return b.String()
}

// Pending numbers unsettled loans from 1, in insertion order.
func Pending(kind core.Kind, txs []core.Transaction) string {
	return pendingList(kind, txs, false)
}

// PendingWithIDs is Pending with each transaction ID appended in brackets.
func PendingWithIDs(kind core.Kind, txs []core.Transaction) string {
	return pendingList(kind, txs, true)
}

func pendingList(kind core.Kind, txs []core.Transaction, withIDs bool) string {
	noun, prep := "borrows", "from"
	if kind == core.Lend {
		noun, prep = "lends", "to"
	}
	if len(txs) == 0 {
		return "No pending " + noun + "."
	}

	var b strings.Builder
	b.WriteString("Pending " + noun + ":")
	for i, tx := range txs {
		fmt.Fprintf(&b, "\n%d. %s %s %s (%s)", i+1, core.FormatAmount(tx.Amount), prep, tx.Counterparty, tx.Timestamp.Format(dayLayout))
		if tx.Note != "" {
			b.WriteString(" " + tx.Note)
		}
		if withIDs {
			b.WriteString(" [" + tx.ID + "]")
		}
	}
	return b.String()
}

// Settled confirms a settlement made through a numbered pending list.
func Settled(kind core.Kind, position int) string {
	if kind == core.Lend {
		return fmt.Sprintf("Lend #%d marked as received.", position)
	}
	return fmt.Sprintf("Borrow #%d marked as returned.", position)
}

// Summary renders one day's income, expense and net.
func Summary(title string, s core.DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", title, s.Date.Format(dayLayout))
	fmt.Fprintf(&b, "Income: %s\n", core.FormatAmount(s.Income))
	fmt.Fprintf(&b, "Expense: %s\n", core.FormatAmount(s.Expense))
	fmt.Fprintf(&b, "Net: %s", core.FormatAmount(s.Net))
	return b.String()
}

// Totals renders the per-kind sums over the whole ledger.
func Totals(t core.Totals) string {
	var b strings.Builder
	b.WriteString("Totals:")
	for _, k := range core.Kinds() {
		fmt.Fprintf(&b, "\n%s: %s", Label(k), core.FormatAmount(t[k]))
	}
	return b.String()
}

// Daily is the morning report sent to every known user.
func Daily(s core.DailySummary, balance decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily report for %s\n", s.Date.Format(dayLayout))
	fmt.Fprintf(&b, "Income: %s\n", core.FormatAmount(s.Income))
	fmt.Fprintf(&b, "Expense: %s\n", core.FormatAmount(s.Expense))
	fmt.Fprintf(&b, "Savings: %s\n", core.FormatAmount(s.Net))
	fmt.Fprintf(&b, "Balance: %s", core.FormatAmount(balance))
	return b.String()
}
