package signal

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
)

// WsConn is one viewer WebSocket. It implements core.Connection; frames are
// queued and written by writePump.
type WsConn struct {
	id    domain.ConnID
	proto domain.Protocol
	conn  *websocket.Conn
	opts  Options

	send chan core.Frame
	done chan struct{}
	once sync.Once
}

var _ core.Connection = (*WsConn)(nil)

func newWsConn(ws *websocket.Conn, proto domain.Protocol, opts Options) *WsConn {
	return &WsConn{
		id:    domain.NewConnID(),
		proto: proto,
		conn:  ws,
		opts:  opts,
		send:  make(chan core.Frame, opts.SendQueue),
		done:  make(chan struct{}),
	}
}

func (c *WsConn) ID() domain.ConnID         { return c.id }
func (c *WsConn) Protocol() domain.Protocol { return c.proto }

func (c *WsConn) messageType() int {
	if c.proto.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Send blocks until the frame is queued, the connection closes or ctx ends.
func (c *WsConn) Send(ctx context.Context, f core.Frame) error {
	select {
	case <-c.done:
		return errors.WithStack(core.ErrClosed)
	default:
	}
	select {
	case c.send <- f:
		return nil
	case <-c.done:
		return errors.WithStack(core.ErrClosed)
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "send")
	}
}

// TrySend queues f without blocking.
func (c *WsConn) TrySend(f core.Frame) error {
	select {
	case <-c.done:
		return errors.WithStack(core.ErrClosed)
	case c.send <- f:
		return nil
	default:
		return errors.WithStack(core.ErrBackpressure)
	}
}

// Close writes a close frame and releases the socket. Later calls do nothing.
func (c *WsConn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteTimeout))
		_ = c.conn.Close()
	})
}
