package bus

import (
	"sync"

	"github.com/jkaberg/trailer-panel/internal/channel"
	"github.com/jkaberg/trailer-panel/internal/connectivity"
	"github.com/jkaberg/trailer-panel/internal/sensors"
)

// Event kinds.
const (
	KindStatus = "status"
	KindRecord = "record"
)

// Event is one live notification: either a connectivity change or a sensor
// record update together with its publish result.
type Event struct {
	Kind   string               `json:"kind"`
	Status *connectivity.Status `json:"status,omitempty"`
	Sensor string               `json:"sensor,omitempty"`
	Record *sensors.Record      `json:"record,omitempty"`
	Result *channel.Result      `json:"result,omitempty"`
}

// StatusEvent wraps a connectivity status.
func StatusEvent(s connectivity.Status) Event {
	return Event{Kind: KindStatus, Status: &s}
}

// RecordEvent wraps a channel update.
func RecordEvent(u channel.Update) Event {
	return Event{Kind: KindRecord, Sensor: u.Sensor, Record: &u.Record, Result: &u.Result}
}

// Bus provides fan-out pub/sub semantics for Events.
// Each Subscribe call gets its own channel that receives every future
// publication. Past messages are not replayed. The implementation is safe for
// concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	buffer      int
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{buffer: DefaultBuffer} }

// Subscribe returns a read-only channel that will receive all future events.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subscribers {
		if ch == sub {
			// remove without preserving order
			b.subscribers[i] = b.subscribers[len(b.subscribers)-1]
			b.subscribers = b.subscribers[:len(b.subscribers)-1]
			close(ch)
			return
		}
	}
}

// Publish delivers the event to all subscribers in a best-effort, non-blocking
// way.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			// Subscriber is currently busy; skip this event instead of dropping the
			// subscriber entirely.
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
