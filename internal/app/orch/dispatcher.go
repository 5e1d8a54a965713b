package orch

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/app"
	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
)

type State int

const (
	Connecting State = iota
	Negotiated
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Negotiated:
		return "negotiated"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Dispatcher drives one connection through negotiation, open, messages and
// close. Failures never escape it.
type Dispatcher struct {
	o *Orchestrator

	mu    sync.Mutex
	state State
	proto domain.Protocol
	conn  core.Connection
	sess  *app.Session
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Session returns the attached session, nil before open or after a refusal.
func (d *Dispatcher) Session() *app.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sess
}

func (d *Dispatcher) Negotiate(offered []string) (domain.Protocol, error) {
	p, err := Negotiate(offered)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	d.state, d.proto = Negotiated, p
	d.mu.Unlock()
	return p, nil
}

// OnOpen attaches conn to the session for key. Binary opens build the
// geometry and run the first send cycle. A refused connection is closed with
// a creation or duplicate-protocol close code and the error is returned.
func (d *Dispatcher) OnOpen(ctx context.Context, conn core.Connection, key domain.SessionKey, file string) (err error) {
	defer d.guard("open", &err)

	d.mu.Lock()
	if d.state != Negotiated {
		d.mu.Unlock()
		return errors.Errorf("open in state %s", d.state)
	}
	d.conn = conn
	d.mu.Unlock()

	logger := log.With().Str("module", "orch.dispatcher").Str("key", string(key)).
		Str("proto", string(conn.Protocol())).Str("conn", string(conn.ID())).Logger()

	sess, err := d.o.Registry.GetOrCreate(ctx, key, file, conn)
	if err != nil {
		code := core.CloseCreationFailed
		if errors.Is(err, core.ErrProtocolTaken) {
			code = core.CloseProtocolTaken
		}
		d.o.Refused(err)
		logger.Warn().Err(err).Str("class", core.Class(err)).Int("code", code).Msg("session refused")
		d.setState(Closed)
		conn.Close(code, closeReason(err))
		return err
	}

	d.mu.Lock()
	d.sess, d.state = sess, Open
	d.mu.Unlock()
	d.o.Metrics.Connections.WithLabelValues(string(conn.Protocol())).Inc()

	if !conn.Protocol().Binary() {
		logger.Info().Msg("control channel attached")
		return nil
	}
	if err := sess.Build(ctx); err != nil {
		logger.Error().Stack().Err(err).Str("class", core.Class(err)).Msg("geometry build failed")
		return nil
	}
	if err := sess.Send(ctx, true); err != nil {
		logger.Error().Err(err).Str("class", core.Class(err)).Msg("initial send aborted")
	}
	return nil
}

// OnMessage handles one inbound message. Binary messages are ignored; text
// messages go to the session's control handler and any reply is sent back.
func (d *Dispatcher) OnMessage(ctx context.Context, msg []byte) {
	var err error
	defer d.guard("message", &err)

	d.mu.Lock()
	state, conn, sess := d.state, d.conn, d.sess
	d.mu.Unlock()
	if state != Open || conn.Protocol().Binary() {
		return
	}

	logger := log.With().Str("module", "orch.dispatcher").Str("key", string(sess.Key)).
		Str("conn", string(conn.ID())).Logger()

	if isPing(msg) {
		if err = reply(ctx, conn, core.Frame(`{"type":"pong"}`)); err != nil {
			logger.Warn().Err(err).Msg("pong")
		}
		return
	}

	out, err := sess.OnControl(ctx, msg)
	if err != nil {
		d.o.Metrics.ControlMessages.WithLabelValues("error").Inc()
		logger.Warn().Err(err).Msg("control message failed")
		out, _ = json.Marshal(struct {
			Type  string `json:"type"`
			Error string `json:"error"`
		}{"error", err.Error()})
	} else {
		d.o.Metrics.ControlMessages.WithLabelValues("ok").Inc()
	}
	if out == nil {
		return
	}
	if err = reply(ctx, conn, out); err != nil {
		logger.Warn().Err(err).Msg("control reply")
	}
}

// OnClose detaches the connection and drops the session when it was the last
// one. It is safe in any state and after the session is gone.
func (d *Dispatcher) OnClose() {
	var err error
	defer d.guard("close", &err)

	d.mu.Lock()
	prev, conn, sess := d.state, d.conn, d.sess
	d.state, d.sess = Closed, nil
	d.mu.Unlock()

	if prev != Open || sess == nil {
		return
	}
	d.o.Metrics.Connections.WithLabelValues(string(conn.Protocol())).Dec()
	d.o.Registry.Release(sess, conn)
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Dispatcher) guard(phase string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Error().Str("module", "orch.dispatcher").Str("phase", phase).Interface("panic", r).
		Bytes("stack", debug.Stack()).Msg("recovered")
	if errp != nil && *errp == nil {
		*errp = errors.Errorf("panic in %s: %v", phase, r)
	}
}

// reply queues a control answer without stalling the read loop when the
// connection supports it.
func reply(ctx context.Context, c core.Connection, f core.Frame) error {
	if ts, ok := c.(core.TrySender); ok {
		return ts.TrySend(f)
	}
	return c.Send(ctx, f)
}

func isPing(msg []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(msg, &env) == nil && env.Type == "ping"
}

// closeReason trims err to fit a close frame.
func closeReason(err error) string {
	const limit = 120
	s := err.Error()
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
