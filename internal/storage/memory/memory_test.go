package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
)

func TestMemoryStoreAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.EnsureUser(ctx, "a"))
	require.NoError(t, s.EnsureUser(ctx, "a"), "ensure user twice")

	tx := core.Transaction{
		ID:        "t1",
		UserID:    "b",
		Seq:       1,
		Kind:      core.Income,
		Amount:    decimal.NewFromInt(5000),
		Timestamp: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		Settled:   true,
	}
	require.NoError(t, s.Append(ctx, tx))

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, users)

	got, err := s.Load(ctx, "b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)

	// Returned slices are copies.
	got[0].Note = "changed"
	again, err := s.Load(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, again[0].Note)

	empty, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	s := New()
	err := s.Append(context.Background(), core.Transaction{UserID: "a", Kind: core.Income, Amount: decimal.Zero})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestMemoryStoreMarkSettled(t *testing.T) {
	ctx := context.Background()
	s := New()
	loan := core.Transaction{ID: "l1", UserID: "a", Seq: 1, Kind: core.Lend, Amount: decimal.NewFromInt(10), Counterparty: "Bob"}
	require.NoError(t, s.Append(ctx, loan))
	require.NoError(t, s.MarkSettled(ctx, loan))

	got, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got[0].Settled)

	err = s.MarkSettled(ctx, core.Transaction{ID: "missing", UserID: "a"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}
