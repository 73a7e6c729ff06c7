package events

import (
	"context"
	"log"
	"sync"
	"time"

	"ArenaPilot/internal/model"
)

// Kind names an event emitted to observers.
type Kind string

const (
	KindAutoJoined   Kind = "agentAutoJoined"
	KindMatchResult  Kind = "agentMatchResult"
	KindMatchAborted Kind = "agentMatchAborted"
)

// Event is a notification about one agent's match lifecycle.
type Event struct {
	Kind      Kind               `json:"kind"`
	AgentID   string             `json:"agent_id"`
	AgentName string             `json:"agent_name,omitempty"`
	ArenaID   string             `json:"arena_id"`
	LobbySize int                `json:"lobby_size,omitempty"`
	Status    model.AgentStatus  `json:"status,omitempty"`
	Result    *model.MatchResult `json:"result,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	At        time.Time          `json:"at"`
}

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Publish(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Bus fans events out to every registered sink. Publish only enqueues; a
// single worker delivers events in order, so a slow sink never blocks the
// publisher. A failing sink is logged and does not stop delivery to the others.
type Bus struct {
	mu     sync.RWMutex
	sinks  []namedSink
	queue  chan queuedEvent
	done   chan struct{}
	closed bool
}

type namedSink struct {
	name string
	sink Sink
}

type queuedEvent struct {
	ctx context.Context
	evt Event
}

// DefaultQueueSize is the number of events a Bus buffers before dropping.
const DefaultQueueSize = 256

// NewBus creates an empty bus with the default queue size.
func NewBus() *Bus { return NewBusSize(DefaultQueueSize) }

// NewBusSize creates an empty bus buffering up to size events.
func NewBusSize(size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	b := &Bus{
		queue: make(chan queuedEvent, size),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers a sink under a name used in error logs.
func (b *Bus) Subscribe(name string, s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: s})
}

// Publish queues the event for delivery and returns immediately. The event
// is dropped with a warning when the queue is full or the bus is closed.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		log.Printf("[WARN] bus closed, dropped %s for agent %s", evt.Kind, evt.AgentID)
		return
	}
	// Delivery outlives the caller's context so queued history still lands during shutdown.
	select {
	case b.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), evt: evt}:
	default:
		log.Printf("[WARN] event queue full, dropped %s for agent %s arena %s", evt.Kind, evt.AgentID, evt.ArenaID)
	}
}

// Close stops accepting events and waits until queued ones are delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()
	<-b.done
}

func (b *Bus) run() {
	defer close(b.done)
	for q := range b.queue {
		b.deliver(q.ctx, q.evt)
	}
}

func (b *Bus) deliver(ctx context.Context, evt Event) {
	b.mu.RLock()
	sinks := append([]namedSink(nil), b.sinks...)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := s.sink.Publish(ctx, evt); err != nil {
			log.Printf("[ERROR] publish %s to %s: agent=%s arena=%s: %v", evt.Kind, s.name, evt.AgentID, evt.ArenaID, err)
		}
	}
}
