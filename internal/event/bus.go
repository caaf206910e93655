package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/log"
	"github.com/grabby/grabbyd/internal/metrics"
)

// Handler consumes one event. Handlers run on their subscription's own
// dispatcher goroutine, so a slow handler delays only its own subscription.
// A handler must not call back into Publish synchronously on the same
// goroutine chain that produced the event; post a command instead.
type Handler func(context.Context, Event)

// Filter decides whether an event is dispatched at all. A single failing
// filter drops the event for every subscriber.
type Filter func(Event) bool

// Subscription is a handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	id     uint64
	typ    Type
	ch     chan Event
	closed chan struct{}
	// stop guards closed: Unsubscribe and Close may both retire the same
	// subscription, in any order.
	stop sync.Once
}

func (s *Subscription) retire() {
	s.stop.Do(func() { close(s.closed) })
}

const subscriberBuffer = 256

// Bus is the in-process pub/sub hub. Each subscriber observes events in
// publish order (per-subscriber FIFO); delivery is in-memory only and does
// not survive restarts.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Type][]*Subscription
	filters []Filter
	nextID  uint64
	closed  bool

	history *History
	fanout  *Fanout
	logger  zerolog.Logger

	published     atomic.Uint64
	handlerErrors atomic.Uint64
	dropped       atomic.Uint64
}

// NewBus creates a bus with a bounded history ring of historyCap events.
func NewBus(historyCap int) *Bus {
	return &Bus{
		subs:    make(map[Type][]*Subscription),
		history: NewHistory(historyCap),
		fanout:  NewFanout(),
		logger:  log.WithComponent("event-bus"),
	}
}

// Subscribe registers a handler for one event type. Use Wildcard to
// receive every type. The handler runs until Unsubscribe or Close.
func (b *Bus) Subscribe(typ Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		typ:    typ,
		ch:     make(chan Event, subscriberBuffer),
		closed: make(chan struct{}),
	}
	b.subs[typ] = append(b.subs[typ], sub)

	go b.dispatch(sub, handler)
	return sub
}

// Unsubscribe removes a subscription and stops its dispatcher.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	lst := b.subs[sub.typ]
	out := lst[:0]
	for _, s := range lst {
		if s.id != sub.id {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		delete(b.subs, sub.typ)
	} else {
		b.subs[sub.typ] = out
	}
	b.mu.Unlock()
	sub.retire()
}

// AddFilter installs a predicate applied before dispatch.
func (b *Bus) AddFilter(f Filter) {
	b.mu.Lock()
	b.filters = append(b.filters, f)
	b.mu.Unlock()
}

// History returns the bounded replay ring.
func (b *Bus) History() *History { return b.history }

// Fanout returns the wire fan-out list fed after local subscribers.
func (b *Bus) Fanout() *Fanout { return b.fanout }

// Publish records the event, enqueues it for every matching subscriber in
// order, then forwards it to attached wire connections. It returns once
// all subscriber deliveries have been scheduled, not completed. If a
// subscriber's buffer stays full until ctx expires, that subscriber misses
// the event and the drop is counted.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ctx == nil {
		return fmt.Errorf("publish context is nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish on closed bus")
	}
	for _, f := range b.filters {
		if !f(ev) {
			b.mu.RUnlock()
			return nil
		}
	}
	targets := make([]*Subscription, 0, len(b.subs[ev.Type])+len(b.subs[Wildcard]))
	targets = append(targets, b.subs[ev.Type]...)
	targets = append(targets, b.subs[Wildcard]...)
	b.mu.RUnlock()

	b.history.Add(ev)
	b.published.Add(1)
	metrics.BusPublished.WithLabelValues(string(ev.Type)).Inc()

	for _, sub := range targets {
		select {
		case sub.ch <- ev:
		case <-sub.closed:
		case <-ctx.Done():
			b.dropped.Add(1)
			metrics.BusDropped.WithLabelValues(string(ev.Type)).Inc()
			return fmt.Errorf("publish %q: %w", ev.Type, ctx.Err())
		}
	}

	b.fanout.Broadcast(ctx, ev)
	return nil
}

func (b *Bus) dispatch(sub *Subscription, handler Handler) {
	for {
		select {
		case ev := <-sub.ch:
			b.invoke(handler, ev)
		case <-sub.closed:
			// Drain what was already enqueued so FIFO delivery holds
			// up to the unsubscribe point.
			for {
				select {
				case ev := <-sub.ch:
					b.invoke(handler, ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) invoke(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrors.Add(1)
			b.logger.Error().
				Str("event_type", string(ev.Type)).
				Str("event_id", ev.ID).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()
	handler(context.Background(), ev)
}

// Stats is a point-in-time view of bus activity.
type Stats struct {
	Published     uint64 `json:"events_published"`
	HandlerErrors uint64 `json:"handler_errors"`
	Dropped       uint64 `json:"events_dropped"`
	Subscribers   int    `json:"subscribers"`
	Wildcards     int    `json:"wildcard_subscribers"`
	HistorySize   int    `json:"history_size"`
	Connections   int    `json:"wire_connections"`
}

// Statistics reports current counters and subscription counts.
func (b *Bus) Statistics() Stats {
	b.mu.RLock()
	subs := 0
	for typ, lst := range b.subs {
		if typ != Wildcard {
			subs += len(lst)
		}
	}
	wild := len(b.subs[Wildcard])
	b.mu.RUnlock()

	return Stats{
		Published:     b.published.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		Dropped:       b.dropped.Load(),
		Subscribers:   subs,
		Wildcards:     wild,
		HistorySize:   b.history.Len(),
		Connections:   b.fanout.Len(),
	}
}

// Close stops all dispatchers and closes attached wire connections.
// Publish after Close is an error.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	all := make([]*Subscription, 0)
	for _, lst := range b.subs {
		all = append(all, lst...)
	}
	b.subs = make(map[Type][]*Subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.retire()
	}
	b.fanout.CloseAll()
}
