package core

import (
	"context"
	"io"
)

// GeometrySource produces geometry for one session and pushes it into an
// Encoder. Instances are never shared between sessions.
type GeometrySource interface {
	Name() string
	// Supports reports whether the source can render file ("" is the cube).
	Supports(ctx context.Context, file string) bool
	Populate(ctx context.Context, enc Encoder, file string) error
}

// GPrimLister is a read-only view of the primitives a session has built.
type GPrimLister interface {
	GPrims() []string
}

// ControlHandler is implemented by sources that react to text-channel
// messages. A non-nil reply is written back on the text connection. It runs
// concurrently with Populate and must not touch the encoder.
type ControlHandler interface {
	OnControl(ctx context.Context, view GPrimLister, msg []byte) (reply []byte, err error)
}

// ModelStore gives read access to model files by store-relative path.
type ModelStore interface {
	Open(ctx context.Context, file string) (io.ReadCloser, error)
	Exists(ctx context.Context, file string) bool
}
