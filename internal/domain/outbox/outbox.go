package outbox

import (
	"context"
	"time"
)

// Event is any domain event with a name identifier.
type Event interface {
	EventName() string
	// AggregateID keys the event so consumers see one aggregate in order.
	AggregateID() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// Recorder appends events inside a unit of work. Nothing is visible to
// subscribers until the unit of work commits.
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Message is the stored form of an event awaiting relay. It is itself an
// Event so relays can hand it to any Publisher.
type Message struct {
	ID        int64
	Name      string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

func (m Message) EventName() string   { return m.Name }
func (m Message) AggregateID() string { return m.Key }
