// Package plugins maps file extensions to geometry sources. Plugins are
// compiled in and enabled, in priority order, by configuration.
package plugins

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/stl"
)

// CADConfig locates the external CAD tessellator.
type CADConfig struct {
	Tessellator string
	Timeout     time.Duration
}

// Env carries what plugins need to load and build sources.
type Env struct {
	Store core.ModelStore
	STL   stl.Options
	CAD   CADConfig
}

// Plugin is one statically registered geometry plugin. The empty extension
// claims requests without a file.
type Plugin struct {
	Name       string
	Package    string
	Extensions []string
	// Load checks optional dependencies once at startup.
	Load func(env Env) error
	New  func(env Env) (core.GeometrySource, error)
}

// Constructor builds a fresh source for one session.
type Constructor struct {
	Plugin  string
	Package string
	New     func() (core.GeometrySource, error)
}

// Entry describes one extension for introspection.
type Entry struct {
	Extension string   `json:"extension"`
	Plugins   []string `json:"plugins,omitempty"`
	Failure   string   `json:"failure,omitempty"`
}

// Resolver is the extension -> constructor table built at startup.
type Resolver struct {
	byExt  map[string][]Constructor
	failed map[string]*core.ResolutionError
}

// Catalog lists every compiled-in plugin.
func Catalog() []Plugin {
	return []Plugin{Cube(), STL(), CSM()}
}

// NewResolver registers the enabled plugins from catalog in order. A plugin
// that fails to load leaves its extensions resolving to a ResolutionError
// naming its package.
func NewResolver(env Env, enabled []string, catalog []Plugin) (*Resolver, error) {
	byName := make(map[string]Plugin, len(catalog))
	for _, p := range catalog {
		byName[p.Name] = p
	}
	r := &Resolver{
		byExt:  make(map[string][]Constructor),
		failed: make(map[string]*core.ResolutionError),
	}
	for _, name := range enabled {
		p, ok := byName[name]
		if !ok {
			return nil, errors.Errorf("unknown plugin %q", name)
		}
		if p.Load != nil {
			if err := p.Load(env); err != nil {
				log.Error().Err(err).Str("module", "plugins").Str("plugin", p.Name).Str("package", p.Package).
					Msg("plugin failed to load")
				for _, ext := range p.Extensions {
					ext = normExt(ext)
					if _, seen := r.failed[ext]; !seen {
						r.failed[ext] = &core.ResolutionError{Extension: ext, Package: p.Package, Err: err}
					}
				}
				continue
			}
		}
		for _, ext := range p.Extensions {
			ext = normExt(ext)
			if prev := r.byExt[ext]; len(prev) > 0 {
				log.Warn().Str("module", "plugins").Str("extension", ext).Str("plugin", p.Name).
					Str("preferred", prev[0].Plugin).Msg("extension claimed by several plugins")
			}
			r.byExt[ext] = append(r.byExt[ext], Constructor{
				Plugin:  p.Name,
				Package: p.Package,
				New:     func() (core.GeometrySource, error) { return p.New(env) },
			})
		}
		log.Info().Str("module", "plugins").Str("plugin", p.Name).Strs("extensions", p.Extensions).Msg("plugin loaded")
	}
	return r, nil
}

// Resolve returns the candidate constructors for ext in registration order.
func (r *Resolver) Resolve(ext string) ([]Constructor, error) {
	ext = normExt(ext)
	if cs := r.byExt[ext]; len(cs) > 0 {
		return cs, nil
	}
	if f, ok := r.failed[ext]; ok {
		return nil, f
	}
	return nil, &core.ResolutionError{Extension: ext}
}

// Table lists every known extension, sorted.
func (r *Resolver) Table() []Entry {
	seen := make(map[string]*Entry)
	for ext, cs := range r.byExt {
		e := &Entry{Extension: ext}
		for _, c := range cs {
			e.Plugins = append(e.Plugins, c.Plugin)
		}
		seen[ext] = e
	}
	for ext, f := range r.failed {
		if _, ok := seen[ext]; !ok {
			seen[ext] = &Entry{Extension: ext, Failure: f.Error()}
		}
	}
	out := make([]Entry, 0, len(seen))
	for _, e := range seen {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out
}

func normExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
