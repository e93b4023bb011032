// ABOUTME: One-shot notifications emitted by the recorder and the bounded queue that carries them
// ABOUTME: Single producer, single consumer; overflow drops the oldest event with a warning
package scoring

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/harperreed/tradedesk/models"
)

// Event kinds.
const (
	KindClassificationChanged = "classification_changed"
	KindRequestResolved       = "request_resolved"
)

const DefaultQueueCapacity = 256

type Event struct {
	ID       string                       `json:"id"`
	Kind     string                       `json:"kind"`
	At       time.Time                    `json:"at"`
	ClientID int64                        `json:"client_id"`
	Change   *models.ClassificationChange `json:"change,omitempty"`
	Request  *models.Request              `json:"request,omitempty"`
}

func newEventID() string {
	return ulid.Make().String()
}

// EventQueue is a bounded FIFO of events. Publish never blocks.
type EventQueue struct {
	mu      sync.Mutex
	buf     []Event
	head    int
	size    int
	dropped uint64
	notify  chan struct{}
	logger  zerolog.Logger
	onDrop  func()
}

// NewEventQueue creates a queue holding at most capacity events. A
// non-positive capacity uses DefaultQueueCapacity.
func NewEventQueue(capacity int, logger zerolog.Logger) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &EventQueue{
		buf:    make([]Event, capacity),
		notify: make(chan struct{}, 1),
		logger: logger.With().Str("component", "event_queue").Logger(),
	}
}

// OnDrop registers a callback run for every dropped event.
func (q *EventQueue) OnDrop(fn func()) {
	q.mu.Lock()
	q.onDrop = fn
	q.mu.Unlock()
}

// Publish appends ev, evicting the oldest event when full.
func (q *EventQueue) Publish(ev Event) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		oldest := q.buf[q.head]
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		q.logger.Warn().
			Str("dropped_id", oldest.ID).
			Str("dropped_kind", oldest.Kind).
			Uint64("dropped_total", q.dropped).
			Msg("event queue full, dropped oldest event")
		if q.onDrop != nil {
			q.onDrop()
		}
	}
	q.buf[(q.head+q.size)%len(q.buf)] = ev
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued event, oldest first.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Event, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
		q.buf[(q.head+i)%len(q.buf)] = Event{}
	}
	q.head, q.size = 0, 0
	return out
}

// Notify signals after a publish. The signal is coalesced, so consumers
// should Drain on every receive.
func (q *EventQueue) Notify() <-chan struct{} {
	return q.notify
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *EventQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
