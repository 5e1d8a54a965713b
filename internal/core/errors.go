package core

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrNoContext       = errors.New("encoder context not created")
	ErrProtocolTaken   = errors.New("subprotocol already attached to session")
	ErrSessionUnusable = errors.New("session geometry unavailable")
	ErrBackpressure    = errors.New("backpressure")
	ErrClosed          = errors.New("connection closed")
	ErrNotFound        = errors.New("model file not found")
)

// NegotiationError means the client offered no supported subprotocol.
type NegotiationError struct {
	Offered []string
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("no common subprotocol in [%s]", strings.Join(e.Offered, ", "))
}

// ResolutionError means no usable plugin exists for a file extension.
// Package names the plugin an operator should install or configure.
type ResolutionError struct {
	Extension string
	Package   string
	Err       error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("no viewer for extension %q", e.Extension)
	if e.Package != "" {
		msg += fmt.Sprintf(" (package %s)", e.Package)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ConnectivitiesError means a triangle references a point outside [0, Points).
type ConnectivitiesError struct {
	Name   string
	Tri    int
	Index  int32
	Points int
}

func (e *ConnectivitiesError) Error() string {
	return fmt.Sprintf("gprim %q: triangle %d references point %d, have %d points",
		e.Name, e.Tri, e.Index, e.Points)
}

// ParseError reports malformed or truncated model input.
type ParseError struct {
	Format string
	Line   int
	Offset int64
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	var where string
	switch {
	case e.Line > 0:
		where = fmt.Sprintf(" line %d", e.Line)
	case e.Offset > 0:
		where = fmt.Sprintf(" offset %d", e.Offset)
	}
	msg := fmt.Sprintf("%s%s: %s", e.Format, where, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError means a chunk could not be delivered.
type TransportError struct {
	Phase string
	Chunk int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send %s chunk %d: %v", e.Phase, e.Chunk, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Class names the taxonomy bucket of err for logs and metric labels.
func Class(err error) string {
	var (
		ne *NegotiationError
		re *ResolutionError
		ce *ConnectivitiesError
		pe *ParseError
		te *TransportError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ne):
		return "negotiation"
	case errors.As(err, &re):
		return "resolution"
	case errors.As(err, &ce):
		return "connectivities"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &te):
		return "transport"
	default:
		return "other"
	}
}
