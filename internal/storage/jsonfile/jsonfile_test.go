package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
	"finbot/internal/ledger"
	"finbot/internal/ledger/ledgertest"
)

const legacyFile = `{
    "42": {
        "salary": 25000,
        "credits": [
            {"amount": 5000, "description": "salary", "date": "2025-01-01 09:00:00", "type": "credit"}
        ],
        "debits": [
            {"amount": 150.5, "description": "groceries", "date": "2025-01-02 18:30:00", "type": "debit"}
        ],
        "borrowed": [
            {"amount": 300, "from": "Alice", "description": "", "date": "2025-01-01 12:00:00", "returned": false}
        ],
        "lent": []
    }
}`

func TestRoundTripAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	s, err := Open(path, time.UTC)
	require.NoError(t, err)

	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Append(ctx, core.Transaction{
		ID: "a", UserID: "u1", Seq: 1, Kind: core.Income,
		Amount: decimal.RequireFromString("1200.50"), Note: "pay", Timestamp: ts, Settled: true,
	}))
	require.NoError(t, s.Append(ctx, core.Transaction{
		ID: "b", UserID: "u1", Seq: 2, Kind: core.Lend,
		Amount: decimal.NewFromInt(40), Counterparty: "Bob", Timestamp: ts.Add(time.Minute),
	}))

	reopened, err := Open(path, time.UTC)
	require.NoError(t, err)

	txs, err := reopened.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Equal(t, "a", txs[0].ID)
	assert.Equal(t, int64(1), txs[0].Seq)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("1200.5")))
	assert.Equal(t, "pay", txs[0].Note)
	assert.True(t, txs[0].Timestamp.Equal(ts))
	assert.True(t, txs[0].Settled)

	assert.Equal(t, "b", txs[1].ID)
	assert.Equal(t, core.Lend, txs[1].Kind)
	assert.Equal(t, "Bob", txs[1].Counterparty)
	assert.False(t, txs[1].Settled)

	require.NoError(t, reopened.MarkSettled(ctx, txs[1]))
	again, err := Open(path, time.UTC)
	require.NoError(t, err)
	txs, err = again.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, txs[1].Settled)
}

func TestAmountsAreWrittenAsNumbers(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	s, err := Open(path, time.UTC)
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, core.Transaction{
		ID: "x", UserID: "u", Seq: 1, Kind: core.Expense,
		Amount: decimal.RequireFromString("12.5"), Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Settled: true,
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"amount": 12.5`)
	assert.Contains(t, string(raw), `"date": "2025-01-01 00:00:00"`)
	assert.Contains(t, string(raw), `"type": "debit"`)
}

func TestSaveKeepsLegacySalary(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyFile), 0o644))

	s, err := Open(path, time.UTC)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, core.Transaction{
		ID: "n", UserID: "42", Seq: 4, Kind: core.Expense,
		Amount: decimal.NewFromInt(10), Timestamp: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Settled: true,
	}))
	require.NoError(t, s.EnsureUser(ctx, "new"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"salary": 25000`)
	assert.Equal(t, 1, strings.Count(string(raw), `"salary"`), "users without a salary get none")
}

func TestLoadsLegacyFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyFile), 0o644))

	s, err := Open(path, time.UTC)
	require.NoError(t, err)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, users)

	txs, err := s.Load(ctx, "42")
	require.NoError(t, err)
	require.Len(t, txs, 3)

	// Seqs follow date order when the file has none.
	assert.Equal(t, core.Income, txs[0].Kind)
	assert.Equal(t, core.Borrow, txs[1].Kind)
	assert.Equal(t, core.Expense, txs[2].Kind)
	for i, tx := range txs {
		assert.Equal(t, int64(i+1), tx.Seq)
		assert.NotEmpty(t, tx.ID)
	}
	assert.True(t, txs[2].Amount.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, "Alice", txs[1].Counterparty)
	assert.False(t, txs[1].Settled)

	// Derived IDs are stable between loads, so legacy loans can be settled.
	reloaded, err := s.Load(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, txs[1].ID, reloaded[1].ID)

	require.NoError(t, s.MarkSettled(ctx, txs[1]))
	reopened, err := Open(path, time.UTC)
	require.NoError(t, err)
	after, err := reopened.Load(ctx, "42")
	require.NoError(t, err)
	assert.True(t, after[1].Settled)
	assert.Equal(t, txs[1].ID, after[1].ID)
}

func TestMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "absent.json"), time.UTC)
	require.NoError(t, err)

	users, err := s.Users(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path, time.UTC)
	assert.Error(t, err)
}

func TestMarkSettledUnknown(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "data.json"), time.UTC)
	require.NoError(t, err)
	require.NoError(t, s.EnsureUser(ctx, "u"))

	err = s.MarkSettled(ctx, core.Transaction{ID: "nope", UserID: "u", Kind: core.Borrow})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFailedSaveLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	// The target path is a directory, so the final rename fails.
	path := filepath.Join(dir, "data.json")
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0o644))

	s := &Store{path: path, loc: time.UTC, data: map[string]*userData{}}
	err := s.Append(ctx, core.Transaction{
		ID: "x", UserID: "u", Seq: 1, Kind: core.Income,
		Amount: decimal.NewFromInt(1), Timestamp: time.Now(), Settled: true,
	})
	require.Error(t, err)

	users, _ := s.Users(ctx)
	assert.Empty(t, users)
}

func TestBackendContract(t *testing.T) {
	ledgertest.Run(t, ledgertest.Factory{
		New: func(t *testing.T) ledger.Backend {
			s, err := Open(filepath.Join(t.TempDir(), "data.json"), time.UTC)
			require.NoError(t, err)
			return s
		},
		Reopen: func(t *testing.T, b ledger.Backend) ledger.Backend {
			s, err := Open(b.(*Store).Path(), time.UTC)
			require.NoError(t, err)
			return s
		},
	})
}
