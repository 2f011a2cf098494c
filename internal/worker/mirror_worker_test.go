package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/events"
)

func TestMirrorWorker_HandleEvent(t *testing.T) {
	var got []events.Event
	sink := events.PublisherFunc(func(_ context.Context, ev events.Event) error {
		got = append(got, ev)
		return nil
	})

	w := NewMirrorWorker(sink)
	require.NoError(t, w.HandleEvent(context.Background(), events.Event{ID: "e1", Type: events.TransactionRecorded}))
	require.NoError(t, w.HandleEvent(context.Background(), events.Event{ID: "e2", Type: events.TransactionSettled}))
	assert.Len(t, got, 2)
}

func TestMirrorWorker_FiltersTypes(t *testing.T) {
	var got []string
	sink := events.PublisherFunc(func(_ context.Context, ev events.Event) error {
		got = append(got, ev.ID)
		return nil
	})

	w := NewMirrorWorker(sink, events.TransactionRecorded)
	require.NoError(t, w.HandleEvent(context.Background(), events.Event{ID: "e1", Type: events.TransactionRecorded}))
	require.NoError(t, w.HandleEvent(context.Background(), events.Event{ID: "e2", Type: events.TransactionSettled}))
	assert.Equal(t, []string{"e1"}, got)
}

func TestMirrorWorker_SinkErrorRequeues(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewMirrorWorker(events.PublisherFunc(func(context.Context, events.Event) error { return boom }))

	err := w.HandleEvent(context.Background(), events.Event{ID: "e1", Type: events.TransactionRecorded})
	assert.ErrorIs(t, err, boom)
}
