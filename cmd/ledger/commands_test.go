package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/cli"
	"finbot/internal/core"
	"finbot/internal/ledger"
	"finbot/internal/services"
	"finbot/internal/storage/memory"
)

type harness struct {
	store *ledger.Store
	opens int
}

func newHarness() *harness {
	now := time.Date(2025, 4, 2, 9, 30, 0, 0, time.UTC)
	n := 0
	store := ledger.New(memory.New(),
		ledger.WithLocation(time.UTC),
		ledger.WithClock(func() time.Time { return now }),
		ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("tx-%d", n) }))
	return &harness{store: store}
}

func (h *harness) open(context.Context, overrides) (*cli.App, error) {
	h.opens++
	return &cli.App{Store: h.store, Service: services.NewLedgerService(h.store, nil)}, nil
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(h.open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestAddAndBalance(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "--user", "u1", "add", "salary", "5000")
	require.NoError(t, err)
	assert.Equal(t, "Income of 5000 recorded.", out)

	out, err = h.run(t, "-u", "u1", "add", "expense", "120.5", "groceries", "and", "milk")
	require.NoError(t, err)
	assert.Equal(t, "Expense of 120.50 recorded.", out)

	out, err = h.run(t, "-u", "u1", "balance")
	require.NoError(t, err)
	assert.Equal(t, "Current balance: 4879.50", out)

	out, err = h.run(t, "-u", "u1", "recent", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-04-02 09:30 -120.50 groceries and milk")
}

func TestAddRejectsBadInput(t *testing.T) {
	h := newHarness()

	_, err := h.run(t, "-u", "u1", "add", "income", "-5")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = h.run(t, "-u", "u1", "add", "expense", "0")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = h.run(t, "-u", "u1", "borrow", "-10", "Alice")
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = h.run(t, "-u", "u1", "add", "borrow", "5")
	assert.ErrorContains(t, err, "use the borrow command")

	_, err = h.run(t, "-u", "u1", "add", "gift", "5")
	assert.ErrorContains(t, err, "invalid transaction kind")

	_, err = h.run(t, "--user", "", "balance")
	assert.ErrorContains(t, err, "no user")
	assert.Zero(t, h.opens, "validation happens before opening the ledger")
}

func TestLoansPendingAndSettle(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "-u", "u1", "borrow", "300", "Alice", "rent")
	require.NoError(t, err)
	assert.Equal(t, "Recorded: borrowed 300 from Alice.", out)
	_, err = h.run(t, "-u", "u1", "borrow", "50", "Bob")
	require.NoError(t, err)
	out, err = h.run(t, "-u", "u1", "lend", "40", "Carol")
	require.NoError(t, err)
	assert.Equal(t, "Recorded: lent 40 to Carol.", out)

	out, err = h.run(t, "-u", "u1", "pending", "borrow")
	require.NoError(t, err)
	assert.Equal(t, "Pending borrows:\n1. 300 from Alice (2025-04-02) rent [tx-1]\n2. 50 from Bob (2025-04-02) [tx-2]", out)

	out, err = h.run(t, "-u", "u1", "settle", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "Transaction tx-1 settled.", out)

	// Settling the same ID again is a no-op and leaves Bob pending.
	_, err = h.run(t, "-u", "u1", "settle", "tx-1")
	require.NoError(t, err)
	out, err = h.run(t, "-u", "u1", "pending", "borrow")
	require.NoError(t, err)
	assert.Equal(t, "Pending borrows:\n1. 50 from Bob (2025-04-02) [tx-2]", out)

	_, err = h.run(t, "-u", "u1", "settle", "tx-99")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = h.run(t, "-u", "u1", "settle", "tx-3")
	require.NoError(t, err)
	out, err = h.run(t, "-u", "u1", "pending", "lent")
	require.NoError(t, err)
	assert.Equal(t, "No pending lends.", out)

	_, err = h.run(t, "-u", "u1", "pending", "income")
	assert.ErrorContains(t, err, "not borrow or lend")
}

func TestSummariesAndReport(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "-u", "u1", "add", "income", "100")
	require.NoError(t, err)
	_, err = h.run(t, "-u", "u1", "add", "saving", "25")
	require.NoError(t, err)

	out, err := h.run(t, "-u", "u1", "today")
	require.NoError(t, err)
	assert.Equal(t, "Today (2025-04-02)\nIncome: 100\nExpense: 0\nNet: 100", out)

	out, err = h.run(t, "-u", "u1", "today", "--date", "2025-04-01")
	require.NoError(t, err)
	assert.Equal(t, "Summary (2025-04-01)\nIncome: 0\nExpense: 0\nNet: 0", out)

	_, err = h.run(t, "-u", "u1", "today", "--date", "April")
	assert.ErrorContains(t, err, "invalid --date")

	out, err = h.run(t, "-u", "u1", "total")
	require.NoError(t, err)
	assert.Contains(t, out, "Savings: 25")

	out, err = h.run(t, "report")
	require.NoError(t, err)
	assert.Equal(t, "Daily report sent to 1 users.", out)
}

func TestTailReportsNeedsBroker(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "tail-reports")
	assert.EqualError(t, err, "tail-reports needs AMQP_URL")
	assert.Equal(t, 1, h.opens)
}
