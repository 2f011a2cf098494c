// Package events describes ledger mutations published to downstream systems.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finbot/internal/core"
)

type Type string

const (
	TransactionRecorded Type = "transaction.recorded"
	TransactionSettled  Type = "transaction.settled"
)

// Event is the wire form of a ledger change. Notes stay private to the ledger.
type Event struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	UserID        string          `json:"user_id"`
	TransactionID string          `json:"transaction_id"`
	Seq           int64           `json:"seq"`
	Kind          core.Kind       `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Counterparty  string          `json:"counterparty,omitempty"`
	Settled       bool            `json:"settled"`
	OccurredAt    time.Time       `json:"occurred_at"`
	At            time.Time       `json:"at"`
}

// FromTransaction builds an event of typ for tx, stamped at.
func FromTransaction(typ Type, tx core.Transaction, at time.Time) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		Seq:           tx.Seq,
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		Counterparty:  tx.Counterparty,
		Settled:       tx.Settled,
		OccurredAt:    tx.Timestamp,
		At:            at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

var (
	_ Publisher = Multi(nil)
	_ Publisher = Nop{}
	_ Publisher = PublisherFunc(nil)
)
