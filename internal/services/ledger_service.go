package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"finbot/internal/core"
	"finbot/internal/events"
	"finbot/internal/ledger"
	applog "finbot/internal/log"
)

// LedgerService orchestrates ledger mutations and the events published for them.
type LedgerService struct {
	store     *ledger.Store
	publisher events.Publisher
	closers   []io.Closer
}

// NewLedgerService wires the store to a publisher. Closers are released by Close
// in the order given.
func NewLedgerService(store *ledger.Store, publisher events.Publisher, closers ...io.Closer) *LedgerService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &LedgerService{
		store:     store,
		publisher: publisher,
		closers:   closers,
	}
}

// Store exposes the underlying ledger for read operations.
func (s *LedgerService) Store() *ledger.Store {
	return s.store
}

// Record appends a transaction and publishes a recorded event.
func (s *LedgerService) Record(ctx context.Context, user string, kind core.Kind, amount decimal.Decimal, note, counterparty string) (core.Transaction, error) {
	tx, err := s.store.Append(ctx, user, kind, amount, note, counterparty)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("record %s: %w", kind, err)
	}

	s.publish(ctx, events.TransactionRecorded, tx)
	return tx, nil
}

// Settle settles a loan by ID. An event is published only when the
// transaction was still pending.
func (s *LedgerService) Settle(ctx context.Context, user, txID string) error {
	before, err := s.store.Transaction(ctx, user, txID)
	if err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	if _, err := s.store.Settle(ctx, user, txID); err != nil {
		return fmt.Errorf("settle transaction: %w", err)
	}
	if before.Settled {
		return nil
	}

	before.Settled = true
	s.publish(ctx, events.TransactionSettled, before)
	return nil
}

// SettleShown settles the position-th (1-based) entry of a pending list the
// user was shown, given as its transaction IDs in display order. Repeating a
// position settles the same loan again, which is a no-op.
func (s *LedgerService) SettleShown(ctx context.Context, user string, shown []string, position int) (core.Transaction, error) {
	if position < 1 || position > len(shown) {
		return core.Transaction{}, fmt.Errorf("%w: no entry at position %d", core.ErrNotFound, position)
	}
	txID := shown[position-1]
	if err := s.Settle(ctx, user, txID); err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.store.Transaction(ctx, user, txID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reload settled transaction: %w", err)
	}
	return tx, nil
}

func (s *LedgerService) publish(ctx context.Context, typ events.Type, tx core.Transaction) {
	ev := events.FromTransaction(typ, tx, time.Now().UTC())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		// The ledger mutation is already committed.
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Failed to publish ledger event",
			err, applog.ComponentLedger, applog.OpPublish,
			applog.NewFields().WithTransaction(tx).WithEventType(string(typ)))
	}
}

// Close releases the backend and publisher resources.
func (s *LedgerService) Close() error {
	var errs []error
	for _, c := range s.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close ledger service: %w", err)
	}
	return nil
}
