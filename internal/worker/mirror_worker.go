package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finbot/internal/events"
)

// MirrorWorker copies ledger events consumed from the event queue into a
// downstream publisher, typically the Google Sheets mirror.
type MirrorWorker struct {
	sink events.Publisher
	// types filters mirrored event types; empty mirrors everything.
	types map[events.Type]bool
}

func NewMirrorWorker(sink events.Publisher, types ...events.Type) *MirrorWorker {
	w := &MirrorWorker{sink: sink, types: make(map[events.Type]bool, len(types))}
	for _, t := range types {
		w.types[t] = true
	}
	return w
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// makes the consumer requeue the message.
func (w *MirrorWorker) HandleEvent(ctx context.Context, ev events.Event) error {
	if len(w.types) > 0 && !w.types[ev.Type] {
		slog.DebugContext(ctx, "Skipping event type", "type", ev.Type, "id", ev.ID)
		return nil
	}

	slog.InfoContext(ctx, "Processing ledger event",
		"id", ev.ID,
		"type", ev.Type,
		"user_id", ev.UserID,
		"transaction_id", ev.TransactionID)

	if err := w.sink.Publish(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to mirror ledger event",
			"id", ev.ID,
			"transaction_id", ev.TransactionID,
			"error", err)
		return fmt.Errorf("mirror event %s: %w", ev.ID, err)
	}

	slog.InfoContext(ctx, "Successfully mirrored ledger event",
		"id", ev.ID,
		"transaction_id", ev.TransactionID)
	return nil
}
