package ledger

import (
	"context"

	"finbot/internal/core"
)

// Backend persists ledgers. Implementations only need single-record atomicity;
// the Store serializes operations per user.
type Backend interface {
	// EnsureUser registers an empty ledger for user if none exists.
	EnsureUser(ctx context.Context, user string) error
	// Users returns every known user identifier.
	Users(ctx context.Context) ([]string, error)
	// Load returns the user's transactions ordered by Seq.
	Load(ctx context.Context, user string) ([]core.Transaction, error)
	// Append stores a new transaction at the end of its ledger.
	Append(ctx context.Context, tx core.Transaction) error
	// MarkSettled flips Settled to true on a stored loan transaction.
	// Returns core.ErrNotFound if the transaction does not exist.
	MarkSettled(ctx context.Context, tx core.Transaction) error
}
