package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
	"finbot/internal/ledger"
	"finbot/internal/services"
	"finbot/internal/storage/memory"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

type fakeReports struct {
	calls int
	err   error
}

func (f *fakeReports) Run(context.Context, time.Time) (int, error) {
	f.calls++
	return 2, f.err
}

type harness struct {
	d     *Dispatcher
	store *ledger.Store
	clock *testClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clock := &testClock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	n := 0
	store := ledger.New(memory.New(),
		ledger.WithClock(clock.now),
		ledger.WithLocation(time.UTC),
		ledger.WithIDGenerator(func() string { n++; return fmt.Sprintf("tx-%d", n) }))
	opts = append([]Option{WithClock(clock.now)}, opts...)
	return &harness{
		d:     NewDispatcher(services.NewLedgerService(store, nil), opts...),
		store: store,
		clock: clock,
	}
}

func (h *harness) send(text string) string {
	return h.d.Handle(context.Background(), Message{UserID: "42", Text: text}).Text
}

func TestParseCommand(t *testing.T) {
	name, args := parseCommand("/Spend@finbot 250 coffee beans")
	assert.Equal(t, "spend", name)
	assert.Equal(t, []string{"250", "coffee", "beans"}, args)
}

func TestRecordCommandsAndAliases(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Income of 5000 recorded.", h.send("/salary 5000"))
	assert.Equal(t, "Income of 100 recorded.", h.send("/credit 100 bonus"))
	assert.Equal(t, "Expense of 1200 recorded.", h.send("/spend 1200 rent"))
	assert.Equal(t, "Expense of 12.35 recorded.", h.send("/debit 12,345"))
	assert.Equal(t, "Savings of 300 recorded.", h.send("/save 300"))
	assert.Equal(t, "Recorded: borrowed 500 from Alice.", h.send("/borrow 500 Alice for the trip"))
	assert.Equal(t, "Recorded: lent 40 to Bob.", h.send("/lend 40 Bob"))

	txs, err := h.store.Pending(context.Background(), "42", core.Borrow)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, "for the trip", txs[0].Note)

	assert.Equal(t, "Current balance: 3887.65", h.send("/balance"))
}

func TestRecordInvalidAmountReprompts(t *testing.T) {
	h := newHarness(t)

	reply := h.send("/expense -10")
	assert.Contains(t, reply, "Invalid amount")

	// The follow-up message answers the amount prompt.
	assert.Equal(t, notePrompt, h.send("25"))
	assert.Equal(t, "Expense of 25 recorded.", h.send("lunch"))

	totals, err := h.store.Totals(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, totals[core.Expense].Equal(decimal.NewFromInt(25)))
}

func TestConversationFlow(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "How much did you borrow?", h.send("/borrow"))
	assert.Contains(t, h.send("abc"), "Invalid amount")
	assert.Equal(t, "Who did you borrow from?", h.send("300"))
	assert.Equal(t, notePrompt, h.send("Alice"))
	assert.Equal(t, "Recorded: borrowed 300 from Alice.", h.send("rent help"))

	pending, err := h.store.Pending(context.Background(), "42", core.Borrow)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "rent help", pending[0].Note)

	assert.Equal(t, "Send /help for the list of commands.", h.send("hello"))
}

func TestConversationSkipAndCancel(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Nothing to skip.", h.send("/skip"))
	assert.Equal(t, "Nothing to cancel.", h.send("/cancel"))

	h.send("/lend 50")
	assert.Equal(t, "This step cannot be skipped. Send /cancel to abort.", h.send("/skip"))
	assert.Equal(t, notePrompt, h.send("Carol"))
	assert.Equal(t, "Recorded: lent 50 to Carol.", h.send("/skip"))

	h.send("/income")
	assert.Equal(t, "Cancelled.", h.send("/cancel"))
	assert.Equal(t, "Send /help for the list of commands.", h.send("100"))
}

func TestOtherCommandResetsConversation(t *testing.T) {
	h := newHarness(t)

	h.send("/spend")
	assert.Equal(t, "Current balance: 0", h.send("/balance"))
	assert.Equal(t, "Send /help for the list of commands.", h.send("20"))
}

func TestConversationTimesOut(t *testing.T) {
	h := newHarness(t, WithConversationTimeout(time.Minute))

	h.send("/spend")
	h.clock.t = h.clock.t.Add(2 * time.Minute)
	assert.Equal(t, "Send /help for the list of commands.", h.send("20"))
	assert.Zero(t, h.d.CleanExpired())
}

func TestConversationsAreKeyedByUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.d.Handle(ctx, Message{UserID: "a", Text: "/spend"})
	reply := h.d.Handle(ctx, Message{UserID: "b", Text: "20"})
	assert.Equal(t, "Send /help for the list of commands.", reply.Text)

	reply = h.d.Handle(ctx, Message{UserID: "a", Text: "20"})
	assert.Equal(t, notePrompt, reply.Text)
}

func TestPendingAndSettle(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "No pending borrows.", h.send("/borrows"))
	assert.Equal(t, "No pending lends.", h.send("/received"))

	h.send("/borrow 100 Alice")
	h.send("/borrow 200 Bob")

	assert.Equal(t,
		"Pending borrows:\n1. 100 from Alice (2025-03-10)\n2. 200 from Bob (2025-03-10)",
		h.send("/borrows"))
	assert.True(t, strings.HasSuffix(h.send("/returned"), "Send /returned <number> to settle one."))

	assert.Equal(t, "Usage: /returned <number>", h.send("/returned x"))
	assert.Equal(t, "Usage: /returned <number>", h.send("/returned 0"))
	assert.Equal(t, "Not found.", h.send("/returned 3"))

	assert.Equal(t, "Borrow #2 marked as returned.", h.send("/returned 2"))
	assert.Equal(t, "Pending borrows:\n1. 100 from Alice (2025-03-10)", h.send("/borrows"))
}

func TestSettleRepeatedNumberKeepsOtherLoansPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.send("/borrow 100 Alice")
	h.send("/borrow 50 Bob")
	h.send("/borrows")

	assert.Equal(t, "Borrow #1 marked as returned.", h.send("/returned 1"))
	assert.Equal(t, "Borrow #1 marked as returned.", h.send("/returned 1"))

	pending, err := h.store.Pending(ctx, "42", core.Borrow)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Bob", pending[0].Counterparty)

	// A fresh listing renumbers.
	assert.Equal(t, "Pending borrows:\n1. 50 from Bob (2025-03-10)", h.send("/borrows"))
	assert.Equal(t, "Borrow #1 marked as returned.", h.send("/returned 1"))
	pending, err = h.store.Pending(ctx, "42", core.Borrow)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSettleWithoutShownListAsksAgain(t *testing.T) {
	h := newHarness(t, WithConversationTimeout(time.Minute))
	ctx := context.Background()

	h.send("/lend 30 Carol")
	h.send("/lend 20 Dave")

	reply := h.send("/received 2")
	assert.Equal(t,
		"Pending lends:\n1. 30 to Carol (2025-03-10)\n2. 20 to Dave (2025-03-10)\nCheck the list and send /received <number> again.",
		reply)
	pending, err := h.store.Pending(ctx, "42", core.Lend)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "nothing settled before the list was shown")

	assert.Equal(t, "Lend #2 marked as received.", h.send("/received 2"))

	// Shown lists expire with the conversation timeout.
	h.clock.t = h.clock.t.Add(2 * time.Minute)
	assert.Contains(t, h.send("/received 1"), "Check the list")
	pending, err = h.store.Pending(ctx, "42", core.Lend)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Carol", pending[0].Counterparty)

	// Lists are kept per kind.
	other := newHarness(t)
	other.send("/borrow 10 Eve")
	other.send("/lend 5 Finn")
	other.send("/borrows")
	assert.Contains(t, other.send("/received 1"), "Check the list")
}

func TestSummaries(t *testing.T) {
	h := newHarness(t)

	h.send("/income 1000")
	h.clock.t = h.clock.t.Add(24 * time.Hour)
	h.send("/expense 300")

	assert.Equal(t, "Today (2025-03-11)\nIncome: 0\nExpense: 300\nNet: -300", h.send("/today"))
	assert.Equal(t, "Yesterday (2025-03-10)\nIncome: 1000\nExpense: 0\nNet: 1000", h.send("/yesterday"))
	assert.Contains(t, h.send("/total"), "Income: 1000\nExpense: 300")
	assert.Contains(t, h.send("/recent"), "-300")
}

func TestReportCommand(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "Daily reports are not configured.", h.send("/report"))

	reports := &fakeReports{}
	h = newHarness(t, WithReportRunner(reports))
	assert.Equal(t, "Daily report sent to 2 users.", h.send("/report"))
	assert.Equal(t, 1, reports.calls)

	reports.err = errors.New("boom")
	assert.Equal(t, "Something went wrong. Please try again later.", h.send("/report"))
}

func TestStartRegistersUser(t *testing.T) {
	h := newHarness(t)

	reply := h.send("/start")
	assert.True(t, strings.HasPrefix(reply, "Finance Tracker Bot"))
	assert.Contains(t, reply, "last 30 days")

	users, err := h.store.Users(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, users)
}

func TestUnknownAndEmpty(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "Unknown command /foo. Send /help for the list of commands.", h.send("/foo"))
	reply := h.d.Handle(context.Background(), Message{UserID: " ", Text: "/balance"})
	assert.Equal(t, "Missing user id.", reply.Text)
}

type brokenBackend struct{ *memory.Store }

func (brokenBackend) Load(context.Context, string) ([]core.Transaction, error) {
	return nil, errors.New("disk on fire")
}

func TestStorageFailureReply(t *testing.T) {
	store := ledger.New(brokenBackend{memory.New()})
	d := NewDispatcher(services.NewLedgerService(store, nil))

	reply := d.Handle(context.Background(), Message{UserID: "42", Text: "/balance"})
	assert.Equal(t, "Something went wrong while saving your data. Please try again later.", reply.Text)
}
