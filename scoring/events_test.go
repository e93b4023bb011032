package scoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueFIFO(t *testing.T) {
	q := NewEventQueue(4, zerolog.Nop())
	q.Publish(Event{ID: "1"})
	q.Publish(Event{ID: "2"})

	select {
	case <-q.Notify():
	case <-time.After(time.Second):
		t.Fatal("expected a notification")
	}

	events := q.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, "1", events[0].ID)
	assert.Equal(t, "2", events[1].ID)
	assert.Empty(t, q.Drain())
}

func TestEventQueueDropsOldestOnOverflow(t *testing.T) {
	q := NewEventQueue(3, zerolog.Nop())
	drops := 0
	q.OnDrop(func() { drops++ })

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Publish(Event{ID: id})
	}

	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())
	assert.Equal(t, 2, drops)

	events := q.Drain()
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	assert.Equal(t, []string{"c", "d", "e"}, ids)

	// The ring keeps working after wrapping.
	q.Publish(Event{ID: "f"})
	assert.Equal(t, "f", q.Drain()[0].ID)
}

func TestEventQueueDefaultCapacity(t *testing.T) {
	q := NewEventQueue(0, zerolog.Nop())
	for i := 0; i < DefaultQueueCapacity+1; i++ {
		q.Publish(Event{})
	}
	assert.Equal(t, DefaultQueueCapacity, q.Len())
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestEventIDsSortByTime(t *testing.T) {
	a := newEventID()
	time.Sleep(2 * time.Millisecond)
	b := newEventID()
	assert.Less(t, a, b)
	assert.Len(t, a, 26)
}
