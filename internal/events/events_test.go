package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
)

func TestFromTransaction(t *testing.T) {
	ts := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	tx := core.Transaction{
		ID: "t1", UserID: "u", Seq: 4, Kind: core.Borrow,
		Amount: decimal.RequireFromString("99.90"), Counterparty: "Alice", Note: "private", Timestamp: ts,
	}
	ev := FromTransaction(TransactionRecorded, tx, ts.Add(time.Second))

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "t1", ev.TransactionID)
	assert.Equal(t, int64(4), ev.Seq)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "private")
	assert.Contains(t, string(raw), `"type":"transaction.recorded"`)
	assert.Contains(t, string(raw), `"amount":"99.9"`)
}

func TestMultiJoinsErrors(t *testing.T) {
	var calls int
	ok := PublisherFunc(func(context.Context, Event) error { calls++; return nil })
	bad := PublisherFunc(func(context.Context, Event) error { calls++; return errors.New("down") })

	err := Multi{bad, ok, Nop{}}.Publish(context.Background(), Event{})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)

	assert.NoError(t, Multi{ok}.Publish(context.Background(), Event{}))
}
