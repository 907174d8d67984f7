package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string
	d.Subscribe(EventTicketOpened, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.TicketID)
		return errors.New("boom")
	})
	d.Subscribe(EventTicketOpened, func(_ context.Context, e Event) error {
		require.NotEmpty(t, e.ID)
		seen = append(seen, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		seen = append(seen, "closed")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketOpened, TicketID: "t-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, []string{"first:t-1", "second:t-1"}, seen)
}

func TestPublishWithoutHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventPaymentConfirmed}))
}
