package app

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
	"github.com/dkeye/gprimview/internal/metrics"
	"github.com/dkeye/gprimview/internal/plugins"
	"github.com/dkeye/gprimview/internal/wv"
)

// Resolver yields candidate geometry source constructors for an extension.
type Resolver interface {
	Resolve(ext string) ([]plugins.Constructor, error)
}

// Registry owns every live Session. Lookup, attach and removal share one
// lock; construction runs outside it, at most once per key at a time.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]*Session
	flight   singleflight.Group

	resolver Resolver
	bufLen   int
	m        *metrics.Metrics
}

func NewRegistry(resolver Resolver, bufLen int, m *metrics.Metrics) *Registry {
	return &Registry{
		sessions: make(map[domain.SessionKey]*Session),
		resolver: resolver,
		bufLen:   bufLen,
		m:        m,
	}
}

// GetOrCreate returns the session for key with conn attached, creating it
// from the first candidate source that constructs and supports file.
func (r *Registry) GetOrCreate(ctx context.Context, key domain.SessionKey, file string, conn core.Connection) (*Session, error) {
	for {
		s, err := r.join(key, conn)
		if s != nil || err != nil {
			return s, err
		}

		var created bool
		v, err, _ := r.flight.Do(string(key), func() (any, error) {
			s, ok, err := r.create(ctx, key, file, conn)
			created = ok
			return s, err
		})
		if err != nil {
			return nil, err
		}
		if created {
			return v.(*Session), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
	}
}

// join attaches conn to the live session for key, if any.
func (r *Registry) join(key domain.SessionKey, conn core.Connection) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok {
		return nil, nil
	}
	if err := s.attach(conn); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.registry").Str("key", string(key)).Str("proto", string(conn.Protocol())).
		Msg("joined session")
	return s, nil
}

// create builds a session for key with conn attached and registers it. It
// reports false when another caller registered key first; the caller then
// joins that session.
func (r *Registry) create(ctx context.Context, key domain.SessionKey, file string, conn core.Connection) (*Session, bool, error) {
	r.mu.RLock()
	_, exists := r.sessions[key]
	r.mu.RUnlock()
	if exists {
		return nil, false, nil
	}

	src, c, err := r.construct(ctx, file)
	if err != nil {
		r.m.CreationFailures.WithLabelValues(core.Class(err)).Inc()
		return nil, false, err
	}
	s := newSession(key, file, c.Plugin, src, wv.NewEncoder(r.bufLen), r.m)
	if err := s.attach(conn); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[key]; ok {
		return nil, false, nil
	}
	r.sessions[key] = s
	r.m.SessionsCreated.Inc()
	r.m.ActiveSessions.Set(float64(len(r.sessions)))
	log.Info().Str("module", "app.registry").Str("key", string(key)).Str("plugin", c.Plugin).
		Str("proto", string(conn.Protocol())).Msg("created session")
	return s, true, nil
}

func (r *Registry) construct(ctx context.Context, file string) (core.GeometrySource, plugins.Constructor, error) {
	ext := domain.Ext(file)
	cs, err := r.resolver.Resolve(ext)
	if err != nil {
		return nil, plugins.Constructor{}, err
	}
	if len(cs) == 0 {
		return nil, plugins.Constructor{}, &core.ResolutionError{Extension: ext}
	}
	var failures []error
	for _, c := range cs {
		src, err := c.New()
		if err != nil {
			failures = append(failures, errors.Wrap(err, c.Plugin))
			continue
		}
		if !src.Supports(ctx, file) {
			failures = append(failures, errors.Errorf("%s does not support %q", c.Plugin, file))
			continue
		}
		return src, c, nil
	}
	for _, f := range failures {
		log.Warn().Err(f).Str("module", "app.registry").Str("file", file).Msg("candidate rejected")
	}
	return nil, plugins.Constructor{}, &core.ResolutionError{
		Extension: ext,
		Package:   cs[0].Package,
		Err:       errors.Errorf("%d candidate(s) failed for %q", len(failures), file),
	}
}

// Get returns the session registered for key.
func (r *Registry) Get(key domain.SessionKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// RemoveIfEmpty drops the session for key once no connection references it.
// Missing keys are ignored.
func (r *Registry) RemoveIfEmpty(key domain.SessionKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeIfEmptyLocked(key)
}

// Release detaches conn from s and drops s if it became empty. It is safe
// after s was already removed.
func (r *Registry) Release(s *Session, conn core.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.detach(conn) {
		return false
	}
	log.Info().Str("module", "app.registry").Str("key", string(s.Key)).Str("proto", string(conn.Protocol())).
		Msg("left session")
	if cur, ok := r.sessions[s.Key]; ok && cur == s {
		return r.removeIfEmptyLocked(s.Key)
	}
	return false
}

func (r *Registry) removeIfEmptyLocked(key domain.SessionKey) bool {
	s, ok := r.sessions[key]
	if !ok || !s.empty() {
		return false
	}
	delete(r.sessions, key)
	r.m.ActiveSessions.Set(float64(len(r.sessions)))
	log.Info().Str("module", "app.registry").Str("key", string(key)).Msg("removed session")
	return true
}

// List snapshots every session, sorted by key.
func (r *Registry) List() []Info {
	r.mu.RLock()
	ss := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		ss = append(ss, s)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(ss))
	for _, s := range ss {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
