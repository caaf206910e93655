package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"
)

// wsSendBuf bounds the per-connection outbound queue. A consumer that
// falls this far behind is detached rather than allowed to stall
// publishers.
const wsSendBuf = 64

// wsConn adapts one WebSocket to the bus fan-out. Send never blocks:
// broadcasts can originate inside the scheduler's critical section, so
// a slow client must fail fast, not stall the queue.
type wsConn struct {
	ws        *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{
		ws:   ws,
		out:  make(chan []byte, wsSendBuf),
		done: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *wsConn) writeLoop() {
	for {
		select {
		case payload := <-c.out:
			if err := websocket.Message.Send(c.ws, string(payload)); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) Send(_ context.Context, payload []byte) error {
	select {
	case <-c.done:
		return net.ErrClosed
	case c.out <- payload:
		return nil
	default:
		return errors.New("send queue full")
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
	return nil
}

// handleWS attaches the connection to the event fan-out for its
// lifetime. Inbound frames are read and discarded; a read error means
// the client went away.
func (s *Server) handleWS() http.HandlerFunc {
	h := websocket.Handler(func(ws *websocket.Conn) {
		conn := newWSConn(ws)
		s.bus.Fanout().Attach(conn)
		s.logger.Debug().Str("remote", ws.Request().RemoteAddr).Msg("websocket attached")
		defer func() {
			s.bus.Fanout().Detach(conn)
			_ = conn.Close()
			s.logger.Debug().Str("remote", ws.Request().RemoteAddr).Msg("websocket detached")
		}()

		var discard string
		for {
			if err := websocket.Message.Receive(ws, &discard); err != nil {
				return
			}
		}
	})
	return h.ServeHTTP
}
