// Package ledgertest holds a behaviour suite every ledger.Backend must pass.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
	"finbot/internal/ledger"
)

// Factory returns a fresh, empty backend. Reopen, when set, returns a new
// backend over the same persisted state.
type Factory struct {
	New    func(t *testing.T) ledger.Backend
	Reopen func(t *testing.T, b ledger.Backend) ledger.Backend
}

// Run exercises the Backend contract.
func Run(t *testing.T, f Factory) {
	t.Helper()

	t.Run("EmptyUser", func(t *testing.T) {
		ctx := context.Background()
		b := f.New(t)
		require.NoError(t, b.EnsureUser(ctx, "u"))
		require.NoError(t, b.EnsureUser(ctx, "u"))

		txs, err := b.Load(ctx, "u")
		require.NoError(t, err)
		assert.Empty(t, txs)

		users, err := b.Users(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"u"}, users)
	})

	t.Run("AppendLoadSettle", func(t *testing.T) {
		ctx := context.Background()
		b := f.New(t)
		at := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)

		want := []core.Transaction{
			{ID: "t1", UserID: "u", Seq: 1, Kind: core.Income, Amount: decimal.RequireFromString("1000.25"), Note: "pay", Timestamp: at, Settled: true},
			{ID: "t2", UserID: "u", Seq: 2, Kind: core.Borrow, Amount: decimal.NewFromInt(300), Counterparty: "Alice", Timestamp: at.Add(time.Hour)},
			{ID: "t3", UserID: "u", Seq: 3, Kind: core.Lend, Amount: decimal.NewFromInt(40), Counterparty: "Bob", Timestamp: at.Add(2 * time.Hour)},
			{ID: "t4", UserID: "other", Seq: 1, Kind: core.Expense, Amount: decimal.NewFromInt(5), Timestamp: at, Settled: true},
		}
		for _, tx := range want {
			require.NoError(t, b.Append(ctx, tx))
		}

		require.NoError(t, b.MarkSettled(ctx, want[1]))
		err := b.MarkSettled(ctx, core.Transaction{ID: "missing", UserID: "u", Kind: core.Lend})
		assert.ErrorIs(t, err, core.ErrNotFound)

		if f.Reopen != nil {
			b = f.Reopen(t, b)
		}

		got, err := b.Load(ctx, "u")
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, tx := range got {
			assert.Equal(t, want[i].ID, tx.ID)
			assert.Equal(t, want[i].Seq, tx.Seq)
			assert.Equal(t, want[i].Kind, tx.Kind)
			assert.True(t, want[i].Amount.Equal(tx.Amount), "amount %s != %s", want[i].Amount, tx.Amount)
			assert.Equal(t, want[i].Note, tx.Note)
			assert.Equal(t, want[i].Counterparty, tx.Counterparty)
			assert.True(t, want[i].Timestamp.Equal(tx.Timestamp), "timestamp %s != %s", want[i].Timestamp, tx.Timestamp)
		}
		assert.True(t, got[0].Settled)
		assert.True(t, got[1].Settled)
		assert.False(t, got[2].Settled)

		users, err := b.Users(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u", "other"}, users)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		b := f.New(t)
		err := b.Append(context.Background(), core.Transaction{ID: "x", UserID: "u", Seq: 1, Kind: core.Lend, Amount: decimal.NewFromInt(1)})
		assert.ErrorIs(t, err, core.ErrMissingCounterparty)
	})

	t.Run("WorksThroughStore", func(t *testing.T) {
		ctx := context.Background()
		s := ledger.New(f.New(t), ledger.WithLocation(time.UTC))

		_, err := s.Append(ctx, "u", core.Income, decimal.NewFromInt(5000), "", "")
		require.NoError(t, err)
		_, err = s.Append(ctx, "u", core.Expense, decimal.NewFromInt(1200), "", "")
		require.NoError(t, err)
		_, err = s.Append(ctx, "u", core.Lend, decimal.NewFromInt(50), "", "Carol")
		require.NoError(t, err)

		balance, err := s.Balance(ctx, "u")
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(3800)))

		ok, err := s.SettleAt(ctx, "u", core.Lend, 0)
		require.NoError(t, err)
		assert.True(t, ok)

		pending, err := s.Pending(ctx, "u", core.Lend)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})
}
