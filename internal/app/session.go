package app

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
	"github.com/dkeye/gprimview/internal/metrics"
)

var errNoBinary = errors.New("no binary connection attached")

// Session pairs a requested resource with its geometry state. It is shared by
// the binary and text connections of one viewer.
type Session struct {
	Key    domain.SessionKey
	File   string
	Plugin string

	m   *metrics.Metrics
	src core.GeometrySource

	// mu guards connection bookkeeping and the build outcome. It is never
	// held across Populate or socket writes.
	mu       sync.Mutex
	conns    map[domain.Protocol]core.Connection
	gprims   []string
	built    bool
	unusable bool

	// encMu serializes Build and Send, the only users of enc and buf.
	encMu sync.Mutex
	enc   core.Encoder
	buf   []byte
}

func newSession(key domain.SessionKey, file, plugin string, src core.GeometrySource, enc core.Encoder, m *metrics.Metrics) *Session {
	return &Session{
		Key:    key,
		File:   file,
		Plugin: plugin,
		m:      m,
		conns:  make(map[domain.Protocol]core.Connection, len(domain.Protocols)),
		enc:    enc,
		src:    src,
		buf:    make([]byte, enc.BufferLength()),
	}
}

func (s *Session) attach(c core.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[c.Protocol()]; ok {
		return errors.Wrapf(core.ErrProtocolTaken, "%s on %s", c.Protocol(), s.Key)
	}
	s.conns[c.Protocol()] = c
	return nil
}

// detach removes c if it is still the registered connection for its protocol.
func (s *Session) detach(c core.Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.conns[c.Protocol()]; ok && cur.ID() == c.ID() {
		delete(s.conns, c.Protocol())
		return true
	}
	return false
}

func (s *Session) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns) == 0
}

func (s *Session) conn(p domain.Protocol) core.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[p]
}

// Protocols lists the attached subprotocols.
func (s *Session) Protocols() []domain.Protocol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Protocol, 0, len(s.conns))
	for _, p := range domain.Protocols {
		if _, ok := s.conns[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Build populates the encoder from the geometry source once. A failure leaves
// the session unusable; later sends are skipped.
func (s *Session) Build(ctx context.Context) error {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	if built, unusable := s.state(); unusable {
		return errors.WithStack(core.ErrSessionUnusable)
	} else if built {
		return nil
	}

	start := time.Now()
	err := s.src.Populate(ctx, s.enc, s.File)
	s.m.BuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		s.mu.Lock()
		s.unusable = true
		s.mu.Unlock()
		s.m.CreationFailures.WithLabelValues(core.Class(err)).Inc()
		return errors.Wrapf(err, "build %s with %s", s.Key, s.Plugin)
	}

	names := s.enc.GPrims()
	s.mu.Lock()
	s.built, s.gprims = true, names
	s.mu.Unlock()
	log.Info().Str("module", "app.session").Str("key", string(s.Key)).Str("plugin", s.Plugin).
		Strs("gprims", names).Dur("took", time.Since(start)).Msg("geometry built")
	return nil
}

func (s *Session) state() (built, unusable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.built, s.unusable
}

// Usable reports whether geometry can still be sent.
func (s *Session) Usable() bool {
	_, unusable := s.state()
	return !unusable
}

// GPrims lists the primitives of the last successful build.
func (s *Session) GPrims() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.gprims...)
}

// Send runs one send cycle to the binary connection. On the first cycle the
// init frame is fully delivered before the geometry suite. The first failed
// chunk aborts the cycle; nothing is retried.
func (s *Session) Send(ctx context.Context, first bool) error {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	built, unusable := s.state()
	if unusable {
		return errors.WithStack(core.ErrSessionUnusable)
	}
	if !built {
		return errors.WithStack(core.ErrNoContext)
	}
	c := s.conn(domain.ProtoBinary)
	if c == nil {
		return errors.WithStack(errNoBinary)
	}

	s.enc.PrepareForSends()
	defer s.enc.FinishSends()
	if !first {
		return nil
	}

	phases := []struct {
		marker int
		name   string
	}{
		{core.MarkerInit, "init"},
		{core.MarkerSuite, "suite"},
	}
	for _, ph := range phases {
		if err := s.enc.SendGPrim(s.buf, ph.marker, s.deliver(ctx, c, ph.name)); err != nil {
			s.m.SendFailures.WithLabelValues(ph.name).Inc()
			return err
		}
	}
	log.Debug().Str("module", "app.session").Str("key", string(s.Key)).Str("conn", string(c.ID())).Msg("geometry sent")
	return nil
}

func (s *Session) deliver(ctx context.Context, c core.Connection, phase string) core.ChunkFunc {
	return func(chunk []byte) error {
		f := make(core.Frame, len(chunk))
		copy(f, chunk)
		if err := c.Send(ctx, f); err != nil {
			return err
		}
		s.m.ChunksSent.WithLabelValues(phase).Inc()
		s.m.BytesSent.WithLabelValues(phase).Add(float64(len(f)))
		return nil
	}
}

// OnControl forwards a text-channel message to the geometry source. Sources
// without a control handler ignore it. It never waits for Build or Send.
func (s *Session) OnControl(ctx context.Context, msg []byte) ([]byte, error) {
	h, ok := s.src.(core.ControlHandler)
	if !ok {
		log.Debug().Str("module", "app.session").Str("key", string(s.Key)).Msg("control message ignored")
		return nil, nil
	}
	return h.OnControl(ctx, s, msg)
}

// Info is a point-in-time view of a session.
type Info struct {
	Key       domain.SessionKey `json:"key"`
	File      string            `json:"file"`
	Plugin    string            `json:"plugin"`
	Protocols []domain.Protocol `json:"protocols"`
	GPrims    []string          `json:"gprims"`
	Usable    bool              `json:"usable"`
}

func (s *Session) Info() Info {
	info := Info{Key: s.Key, File: s.File, Plugin: s.Plugin, Protocols: s.Protocols()}
	s.mu.Lock()
	info.GPrims = append([]string{}, s.gprims...)
	info.Usable = !s.unusable
	s.mu.Unlock()
	return info
}
