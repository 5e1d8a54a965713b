package plugins

import (
	"context"

	"github.com/dkeye/gprimview/internal/core"
)

// CubeName is the primitive registered by the built-in cube.
const CubeName = "Box$1"

// Cube is the built-in source used when no file is requested.
func Cube() Plugin {
	return Plugin{
		Name:       "cube",
		Package:    "builtin",
		Extensions: []string{""},
		New: func(Env) (core.GeometrySource, error) {
			return cubeSource{}, nil
		},
	}
}

type cubeSource struct{}

func (cubeSource) Name() string { return "cube" }

func (cubeSource) Supports(_ context.Context, file string) bool { return file == "" }

func (cubeSource) Populate(_ context.Context, enc core.Encoder, _ string) error {
	if err := enc.CreateContext(core.DefaultCamera(0)); err != nil {
		return err
	}
	_, err := enc.CreateBox(CubeName, core.AttrOn|core.AttrShading|core.AttrOrientation, [3]float32{})
	return err
}
