package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/grabby/grabbyd/internal/log"
)

// WireConn is one attached push channel, typically a WebSocket. Send
// receives the JSON wire form of an event; a returned error detaches and
// closes the connection.
type WireConn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Fanout maintains the set of wire connections fed after local
// subscribers. Broadcast failures remove the failing connection; the rest
// are unaffected.
type Fanout struct {
	mu     sync.Mutex
	conns  map[WireConn]struct{}
	logger zerolog.Logger
}

func NewFanout() *Fanout {
	return &Fanout{
		conns:  make(map[WireConn]struct{}),
		logger: log.WithComponent("event-bus"),
	}
}

// Attach registers a connection for future broadcasts.
func (f *Fanout) Attach(c WireConn) {
	f.mu.Lock()
	f.conns[c] = struct{}{}
	f.mu.Unlock()
}

// Detach removes a connection without closing it.
func (f *Fanout) Detach(c WireConn) {
	f.mu.Lock()
	delete(f.conns, c)
	f.mu.Unlock()
}

// Len reports the number of attached connections.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

// Broadcast encodes the event once and sends it to every connection.
// Connections whose Send fails are detached and closed.
func (f *Fanout) Broadcast(ctx context.Context, ev Event) {
	f.mu.Lock()
	if len(f.conns) == 0 {
		f.mu.Unlock()
		return
	}
	targets := make([]WireConn, 0, len(f.conns))
	for c := range f.conns {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	payload, err := ev.Encode()
	if err != nil {
		f.logger.Error().Err(err).
			Str("event_type", string(ev.Type)).
			Msg("failed to encode event for fan-out")
		return
	}

	for _, c := range targets {
		if err := c.Send(ctx, payload); err != nil {
			f.logger.Debug().Err(err).
				Msg("wire connection dropped")
			f.Detach(c)
			_ = c.Close()
		}
	}
}

// CloseAll detaches and closes every connection.
func (f *Fanout) CloseAll() {
	f.mu.Lock()
	targets := make([]WireConn, 0, len(f.conns))
	for c := range f.conns {
		targets = append(targets, c)
	}
	f.conns = make(map[WireConn]struct{})
	f.mu.Unlock()

	for _, c := range targets {
		_ = c.Close()
	}
}
