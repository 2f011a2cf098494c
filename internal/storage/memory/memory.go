// Package memory is a process-local ledger backend used by default and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"finbot/internal/core"
)

type Store struct {
	mu      sync.Mutex
	order   []string // users in registration order
	ledgers map[string][]core.Transaction
}

func New() *Store {
	return &Store{ledgers: make(map[string][]core.Transaction)}
}

// EnsureUser registers an empty ledger on first reference.
func (s *Store) EnsureUser(_ context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledgers[user]; !ok {
		s.ledgers[user] = nil
		s.order = append(s.order, user)
	}
	return nil
}

// Users returns users in registration order.
func (s *Store) Users(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

// Load returns a copy of the user's ledger ordered by Seq.
func (s *Store) Load(_ context.Context, user string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Transaction(nil), s.ledgers[user]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Append validates and stores the transaction.
func (s *Store) Append(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if err := s.EnsureUser(ctx, tx.UserID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers[tx.UserID] = append(s.ledgers[tx.UserID], tx)
	return nil
}

// MarkSettled flips the settled flag of a stored transaction.
func (s *Store) MarkSettled(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ledger := s.ledgers[tx.UserID]
	for i := range ledger {
		if ledger[i].ID == tx.ID {
			ledger[i].Settled = true
			return nil
		}
	}
	return fmt.Errorf("%w: transaction %s", core.ErrNotFound, tx.ID)
}
