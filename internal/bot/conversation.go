package bot

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/report"
)

type step int

const (
	awaitingAmount step = iota
	awaitingCounterparty
	awaitingNote
)

// conversation is the partial input of a recording command whose arguments
// are being collected one message at a time.
type conversation struct {
	kind         core.Kind
	step         step
	amount       decimal.Decimal
	counterparty string
}

var amountPrompts = map[core.Kind]string{
	core.Income:  "How much income did you receive?",
	core.Expense: "How much did you spend?",
	core.Saving:  "How much did you save?",
	core.Borrow:  "How much did you borrow?",
	core.Lend:    "How much did you lend?",
}

func counterpartyPrompt(kind core.Kind) string {
	if kind == core.Lend {
		return "Who did you lend to?"
	}
	return "Who did you borrow from?"
}

const notePrompt = "Add a note, or send /skip."

// startRecord handles /income, /expense, /save, /borrow and /lend. Complete
// arguments record immediately; missing ones open a conversation.
func (d *Dispatcher) startRecord(ctx context.Context, user string, kind core.Kind, args []string) string {
	if len(args) == 0 {
		d.conversations.Set(user, conversation{kind: kind, step: awaitingAmount})
		return amountPrompts[kind]
	}

	amount, err := core.ParseAmount(args[0])
	if err != nil {
		d.conversations.Set(user, conversation{kind: kind, step: awaitingAmount})
		return errorText(err)
	}

	var counterparty string
	rest := args[1:]
	if kind.IsLoan() {
		if len(rest) == 0 {
			d.conversations.Set(user, conversation{kind: kind, step: awaitingCounterparty, amount: amount})
			return counterpartyPrompt(kind)
		}
		counterparty, rest = rest[0], rest[1:]
	}
	return d.record(ctx, user, kind, amount, strings.Join(rest, " "), counterparty)
}

func (d *Dispatcher) continueConversation(ctx context.Context, user string, conv conversation, text string) string {
	switch conv.step {
	case awaitingAmount:
		amount, err := core.ParseAmount(text)
		if err != nil {
			d.conversations.Set(user, conv)
			return errorText(err)
		}
		conv.amount = amount
		if conv.kind.IsLoan() {
			conv.step = awaitingCounterparty
			d.conversations.Set(user, conv)
			return counterpartyPrompt(conv.kind)
		}
		conv.step = awaitingNote
		d.conversations.Set(user, conv)
		return notePrompt

	case awaitingCounterparty:
		if text == "" {
			d.conversations.Set(user, conv)
			return counterpartyPrompt(conv.kind)
		}
		conv.counterparty = text
		conv.step = awaitingNote
		d.conversations.Set(user, conv)
		return notePrompt

	default:
		d.conversations.Delete(user)
		return d.record(ctx, user, conv.kind, conv.amount, text, conv.counterparty)
	}
}

func (d *Dispatcher) skip(ctx context.Context, user string) string {
	conv, ok := d.conversations.Get(user)
	if !ok {
		return "Nothing to skip."
	}
	if conv.step != awaitingNote {
		d.conversations.Set(user, conv)
		return "This step cannot be skipped. Send /cancel to abort."
	}
	d.conversations.Delete(user)
	return d.record(ctx, user, conv.kind, conv.amount, "", conv.counterparty)
}

func (d *Dispatcher) cancel(user string) string {
	if _, ok := d.conversations.Get(user); !ok {
		return "Nothing to cancel."
	}
	d.conversations.Delete(user)
	return "Cancelled."
}

func (d *Dispatcher) record(ctx context.Context, user string, kind core.Kind, amount decimal.Decimal, note, counterparty string) string {
	tx, err := d.svc.Record(ctx, user, kind, amount, note, counterparty)
	if err != nil {
		return d.fail(ctx, user, "record", err)
	}
	return report.Recorded(tx)
}
