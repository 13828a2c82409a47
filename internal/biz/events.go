package biz

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// EventType identifies the payload of an Event.
type EventType string

const (
	EventTransition   EventType = "CIRCUIT_TRANSITION"
	EventRequest      EventType = "REQUEST"
	EventChaosStarted EventType = "CHAOS_STARTED"
	EventChaosEnded   EventType = "CHAOS_ENDED"
)

// RequestRecord describes one finished request, as persisted in the request log.
type RequestRecord struct {
	Upstream     string
	Prompt       string
	Success      bool
	UsedRealCall bool
	Latency      time.Duration
	ResponseSize int
	ErrorKind    ErrorKind
	ErrorMessage string
	BreakerState State
	ChaosActive  bool
}

// ChaosRecord describes a chaos experiment that started or ended.
type ChaosRecord struct {
	ID             string
	Upstream       string
	Type           ChaosType
	Intensity      int
	Duration       time.Duration
	StartTime      time.Time
	EndTime        time.Time
	TotalRequests  int64
	FailedRequests int64
	Note           string
}

// Event is published on the EventBus. Exactly one payload is set, matching Type.
type Event struct {
	Type       EventType
	At         time.Time
	Transition *Transition
	Request    *RequestRecord
	Chaos      *ChaosRecord
}

// EventHandler consumes events dispatched by the EventBus.
// Handlers run on the dispatcher goroutine and must not block for long.
type EventHandler interface {
	HandleEvent(ctx context.Context, e Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, e Event)

// HandleEvent calls f(ctx, e).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, e Event) {
	f(ctx, e)
}

// EventPublisher is the producer side of the EventBus.
type EventPublisher interface {
	Publish(e Event)
}

// eventBufferSize bounds the queue between producers and the dispatcher.
const eventBufferSize = 1000

// EventBus carries breaker transitions, request records and chaos lifecycle events
// from the request path to Prometheus, gRPC health and persistence.
// Publish never blocks; events are dropped with a warning when the buffer is full.
type EventBus struct {
	ch       chan Event
	mu       sync.RWMutex
	handlers []EventHandler
	dropped  atomic.Int64
	done     chan struct{}
	once     sync.Once
	logger   *log.Helper
}

// NewEventBus creates an EventBus. Call Start to begin dispatching.
func NewEventBus(logger log.Logger) *EventBus {
	return &EventBus{
		ch:     make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
		logger: log.NewHelper(logger),
	}
}

// Subscribe registers a handler. Handlers are called in registration order.
func (b *EventBus) Subscribe(h EventHandler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish queues an event without blocking.
func (b *EventBus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	select {
	case b.ch <- e:
	default:
		n := b.dropped.Add(1)
		b.logger.Warnw("msg", "event bus full, dropping event",
			"type", e.Type,
			"dropped_total", n)
	}
}

// Dropped returns how many events were dropped because the buffer was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}

// Start runs the dispatcher until ctx is done or Stop is called.
// Queued events are drained before returning.
func (b *EventBus) Start(ctx context.Context) error {
	go b.run(ctx)
	return nil
}

// Stop ends the dispatcher.
func (b *EventBus) Stop(context.Context) error {
	b.once.Do(func() { close(b.done) })
	return nil
}

func (b *EventBus) run(ctx context.Context) {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(ctx, e)
		case <-ctx.Done():
			b.drain(context.Background())
			return
		case <-b.done:
			b.drain(context.Background())
			return
		}
	}
}

func (b *EventBus) drain(ctx context.Context) {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(ctx, e)
		default:
			return
		}
	}
}

func (b *EventBus) dispatch(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h.HandleEvent(ctx, e)
	}
}

// PublishTransitions publishes one event per transition.
func PublishTransitions(p EventPublisher, transitions []Transition) {
	if p == nil {
		return
	}
	for i := range transitions {
		t := transitions[i]
		p.Publish(Event{Type: EventTransition, At: t.Timestamp, Transition: &t})
	}
}
