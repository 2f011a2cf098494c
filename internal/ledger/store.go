// Package ledger owns the per-user financial records and the aggregates
// computed from them. Persistence is delegated to a Backend.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finbot/internal/core"
)

// Store is the ledger service. Construct it once and share it between handlers.
type Store struct {
	backend Backend
	now     func() time.Time
	loc     *time.Location
	newID   func() string

	muMap map[string]*sync.Mutex // one lock per user ledger
	mapMu sync.Mutex             // protects muMap
}

type Option func(*Store)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the timezone used for timestamps and calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithIDGenerator overrides the transaction ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		loc:     time.Local,
		newID:   func() string { return uuid.NewString() },
		muMap:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the timezone calendar dates are evaluated in.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Now returns the store clock's current time in the store location.
func (s *Store) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Store) userLock(user string) *sync.Mutex {
	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	if _, ok := s.muMap[user]; !ok {
		s.muMap[user] = &sync.Mutex{}
	}
	return s.muMap[user]
}

// load registers the user on first reference and returns the ledger.
// Callers must hold the user lock.
func (s *Store) load(ctx context.Context, user string) ([]core.Transaction, error) {
	if strings.TrimSpace(user) == "" {
		return nil, core.ErrEmptyUser
	}
	if err := s.backend.EnsureUser(ctx, user); err != nil {
		return nil, storageErr("ensure user", err)
	}
	txs, err := s.backend.Load(ctx, user)
	if err != nil {
		return nil, storageErr("load ledger", err)
	}
	return txs, nil
}

func (s *Store) read(ctx context.Context, user string) ([]core.Transaction, error) {
	mu := s.userLock(user)
	mu.Lock()
	defer mu.Unlock()
	return s.load(ctx, user)
}

// Touch creates the user's ledger if it does not exist yet.
func (s *Store) Touch(ctx context.Context, user string) error {
	_, err := s.read(ctx, user)
	return err
}

// Users returns every user that has a ledger.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	users, err := s.backend.Users(ctx)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	return users, nil
}

// Append records a new transaction at the end of the user's ledger.
// The counterparty is required for loans and dropped for other kinds.
func (s *Store) Append(ctx context.Context, user string, kind core.Kind, amount decimal.Decimal, note, counterparty string) (core.Transaction, error) {
	if !amount.IsPositive() {
		return core.Transaction{}, core.ErrInvalidAmount
	}
	if !kind.IsLoan() {
		counterparty = ""
	}
	tx := core.Transaction{
		UserID:       user,
		Kind:         kind,
		Amount:       amount,
		Note:         strings.TrimSpace(note),
		Counterparty: strings.TrimSpace(counterparty),
		Settled:      !kind.IsLoan(),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	mu := s.userLock(user)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.load(ctx, user)
	if err != nil {
		return core.Transaction{}, err
	}

	tx.ID = s.newID()
	tx.Seq = nextSeq(existing)
	tx.Timestamp = s.Now().Truncate(time.Second)

	if err := s.backend.Append(ctx, tx); err != nil {
		return core.Transaction{}, storageErr("append transaction", err)
	}

	slog.DebugContext(ctx, "Transaction recorded",
		"user_id", user,
		"id", tx.ID,
		"kind", tx.Kind,
		"amount", tx.Amount.String())

	return tx, nil
}

// Settle marks a borrow as returned or a lend as received. Settling an
// already settled transaction is a no-op success.
func (s *Store) Settle(ctx context.Context, user, txID string) (bool, error) {
	mu := s.userLock(user)
	mu.Lock()
	defer mu.Unlock()

	txs, err := s.load(ctx, user)
	if err != nil {
		return false, err
	}
	for _, tx := range txs {
		if tx.ID != txID {
			continue
		}
		if !tx.Kind.IsLoan() {
			return false, fmt.Errorf("%w: %s is not a loan", core.ErrNotFound, txID)
		}
		return s.markSettled(ctx, tx)
	}
	return false, fmt.Errorf("%w: transaction %s", core.ErrNotFound, txID)
}

// SettleAt settles the index-th (0-based) entry of the user's pending list
// for kind, as computed at call time.
func (s *Store) SettleAt(ctx context.Context, user string, kind core.Kind, index int) (bool, error) {
	if !kind.IsLoan() {
		return false, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}

	mu := s.userLock(user)
	mu.Lock()
	defer mu.Unlock()

	txs, err := s.load(ctx, user)
	if err != nil {
		return false, err
	}
	pending := filterPending(txs, kind)
	if index < 0 || index >= len(pending) {
		return false, fmt.Errorf("%w: no pending %s at position %d", core.ErrNotFound, kind, index+1)
	}
	return s.markSettled(ctx, pending[index])
}

func (s *Store) markSettled(ctx context.Context, tx core.Transaction) (bool, error) {
	if tx.Settled {
		return true, nil
	}
	tx.Settled = true
	if err := s.backend.MarkSettled(ctx, tx); err != nil {
		return false, storageErr("settle transaction", err)
	}
	return true, nil
}

// Transaction returns the user's transaction with the given ID.
func (s *Store) Transaction(ctx context.Context, user, txID string) (core.Transaction, error) {
	txs, err := s.read(ctx, user)
	if err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range txs {
		if tx.ID == txID {
			return tx, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("%w: transaction %s", core.ErrNotFound, txID)
}

// Balance is the sum of income minus the sum of expenses.
func (s *Store) Balance(ctx context.Context, user string) (decimal.Decimal, error) {
	txs, err := s.read(ctx, user)
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, tx := range txs {
		switch tx.Kind {
		case core.Income:
			balance = balance.Add(tx.Amount)
		case core.Expense:
			balance = balance.Sub(tx.Amount)
		}
	}
	return balance, nil
}

// Pending returns the unsettled borrow or lend transactions in insertion order.
func (s *Store) Pending(ctx context.Context, user string, kind core.Kind) ([]core.Transaction, error) {
	if !kind.IsLoan() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	txs, err := s.read(ctx, user)
	if err != nil {
		return nil, err
	}
	return filterPending(txs, kind), nil
}

// Windowed returns income and expense transactions newer than since,
// most recent first. Equal timestamps keep later insertions first.
func (s *Store) Windowed(ctx context.Context, user string, since time.Duration) ([]core.Transaction, error) {
	txs, err := s.read(ctx, user)
	if err != nil {
		return nil, err
	}
	cutoff := s.Now().Add(-since)

	out := make([]core.Transaction, 0, len(txs))
	for i := len(txs) - 1; i >= 0; i-- {
		tx := txs[i]
		if tx.Kind != core.Income && tx.Kind != core.Expense {
			continue
		}
		if tx.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, tx)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// DailySummary totals income and expense on the calendar date of day.
func (s *Store) DailySummary(ctx context.Context, user string, day time.Time) (core.DailySummary, error) {
	day = day.In(s.loc)
	summary := core.DailySummary{
		Date:    time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc),
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Net:     decimal.Zero,
	}

	txs, err := s.read(ctx, user)
	if err != nil {
		return summary, err
	}
	for _, tx := range txs {
		if !core.SameDay(tx.Timestamp, day, s.loc) {
			continue
		}
		switch tx.Kind {
		case core.Income:
			summary.Income = summary.Income.Add(tx.Amount)
		case core.Expense:
			summary.Expense = summary.Expense.Add(tx.Amount)
		}
	}
	summary.Net = summary.Income.Sub(summary.Expense)
	return summary, nil
}

// Totals sums every kind over the whole ledger.
func (s *Store) Totals(ctx context.Context, user string) (core.Totals, error) {
	txs, err := s.read(ctx, user)
	if err != nil {
		return nil, err
	}
	totals := core.NewTotals()
	for _, tx := range txs {
		totals.Add(tx)
	}
	return totals, nil
}

func filterPending(txs []core.Transaction, kind core.Kind) []core.Transaction {
	var out []core.Transaction
	for _, tx := range txs {
		if tx.Pending(kind) {
			out = append(out, tx)
		}
	}
	return out
}

func nextSeq(txs []core.Transaction) int64 {
	var last int64
	for _, tx := range txs {
		if tx.Seq > last {
			last = tx.Seq
		}
	}
	return last + 1
}

func storageErr(op string, err error) error {
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStorageUnavailable, op, err)
}
