package core

import (
	"context"

	"github.com/dkeye/gprimview/internal/domain"
)

// Frame is a raw payload written to one connection.
type Frame []byte

// Connection abstracts one physical WebSocket connection.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	ID() domain.ConnID
	Protocol() domain.Protocol
	// Send queues f for delivery, blocking until it is accepted or ctx ends.
	Send(ctx context.Context, f Frame) error
	// Close sends a close frame with code and reason and releases the socket.
	Close(code int, reason string)
}

// TrySender is implemented by connections that can queue a frame without
// blocking; ErrBackpressure reports a full queue.
type TrySender interface {
	TrySend(f Frame) error
}

// Close codes sent to clients whose session could not be served.
const (
	CloseCreationFailed = 4004
	CloseProtocolTaken  = 4009
)
