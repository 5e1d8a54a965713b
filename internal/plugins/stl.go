package plugins

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/domain"
	"github.com/dkeye/gprimview/internal/geom"
	"github.com/dkeye/gprimview/internal/stl"
)

// STL views ASCII and binary STL meshes from the model store.
func STL() Plugin {
	return Plugin{
		Name:       "stl",
		Package:    "github.com/dkeye/gprimview/internal/stl",
		Extensions: []string{"stl"},
		Load: func(env Env) error {
			if env.Store == nil {
				return errors.New("no model store configured")
			}
			return nil
		},
		New: func(env Env) (core.GeometrySource, error) {
			return &stlSource{store: env.Store, parser: stl.NewParser(env.STL)}, nil
		},
	}
}

type stlSource struct {
	store  core.ModelStore
	parser *stl.Parser
}

func (s *stlSource) Name() string { return "stl" }

func (s *stlSource) Supports(ctx context.Context, file string) bool {
	return domain.Ext(file) == "stl" && s.store.Exists(ctx, file)
}

func (s *stlSource) Populate(ctx context.Context, enc core.Encoder, file string) error {
	rc, err := s.store.Open(ctx, file)
	if err != nil {
		return err
	}
	defer rc.Close()

	cam := core.DefaultCamera(1)
	return loadSolids(enc, cam, s.parser, rc, domain.Stem(file))
}

// loadSolids parses an STL stream, frames the camera on the union of all
// solids and registers one GPrim per solid.
func loadSolids(enc core.Encoder, cam core.Camera, p *stl.Parser, r io.Reader, stem string) error {
	solids, err := p.Parse(r, stem)
	if err != nil {
		return err
	}
	if len(solids) == 0 {
		return &core.ParseError{Format: "stl", Msg: "no geometry in " + stem}
	}

	box := solids[0].Bounds
	for _, s := range solids[1:] {
		box = geom.Union(box, s.Bounds)
	}
	cam.Focus = geom.FocusOf(box)
	if err := enc.CreateContext(cam); err != nil {
		return err
	}

	for i := range solids {
		s := &solids[i]
		bounds := s.Bounds
		if _, err := enc.SetFaceData(core.FaceData{
			Name:    s.Name,
			Points:  s.Vertices,
			Tris:    s.Indices,
			Normals: s.Normals,
			Bounds:  &bounds,
		}); err != nil {
			return errors.Wrapf(err, "solid %s", s.Name)
		}
		log.Debug().Str("module", "plugins.stl").Str("gprim", s.Name).Int("vertices", s.VertexCount()).Msg("added gprim")
	}
	return nil
}
