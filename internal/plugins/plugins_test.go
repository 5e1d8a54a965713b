package plugins

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/store"
	"github.com/dkeye/gprimview/internal/wv"
	"github.com/dkeye/gprimview/internal/wv/wvtest"
)

const triangleSTL = `solid tri
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 2 0 0
      vertex 0 1 0
    endloop
  endfacet
endsolid tri
`

func twoSolids() string {
	return triangleSTL + strings.ReplaceAll(triangleSTL, "vertex 2 0 0", "vertex 4 0 0")
}

func newEnv(t *testing.T, files map[string]string) Env {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	st, err := store.NewLocal(dir)
	require.NoError(t, err)
	return Env{Store: st}
}

func TestResolveUnknownExtension(t *testing.T) {
	r, err := NewResolver(newEnv(t, nil), []string{"cube", "stl"}, Catalog())
	require.NoError(t, err)

	_, err = r.Resolve("xyz")
	var re *core.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "xyz", re.Extension)
	assert.Empty(t, re.Package)
}

func TestResolveCaseInsensitive(t *testing.T) {
	r, err := NewResolver(newEnv(t, nil), []string{"cube", "stl"}, Catalog())
	require.NoError(t, err)

	cs, err := r.Resolve(".STL")
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, "stl", cs[0].Plugin)

	cs, err = r.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "cube", cs[0].Plugin)
}

func TestUnknownPluginName(t *testing.T) {
	_, err := NewResolver(newEnv(t, nil), []string{"cube", "step"}, Catalog())
	assert.Error(t, err)
}

func TestLoadFailureNamesPackage(t *testing.T) {
	env := newEnv(t, nil)
	env.CAD.Tessellator = "no-such-tessellator-binary"
	r, err := NewResolver(env, []string{"cube", "csm"}, Catalog())
	require.NoError(t, err)

	_, err = r.Resolve("csm")
	var re *core.ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "opencsm", re.Package)
	assert.Contains(t, err.Error(), "opencsm")

	var failed bool
	for _, e := range r.Table() {
		if e.Extension == "csm" {
			failed = e.Failure != ""
		}
	}
	assert.True(t, failed)
}

func TestFirstRegistrationWins(t *testing.T) {
	fake := func(name string) Plugin {
		return Plugin{
			Name:       name,
			Package:    "test/" + name,
			Extensions: []string{"stl"},
			New:        func(Env) (core.GeometrySource, error) { return cubeSource{}, nil },
		}
	}
	catalog := []Plugin{fake("a"), fake("b")}
	r, err := NewResolver(Env{}, []string{"b", "a"}, catalog)
	require.NoError(t, err)

	cs, err := r.Resolve("stl")
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "b", cs[0].Plugin)
	assert.Equal(t, "a", cs[1].Plugin)
}

func TestCubePopulate(t *testing.T) {
	src, err := Cube().New(Env{})
	require.NoError(t, err)
	ctx := context.Background()
	assert.True(t, src.Supports(ctx, ""))
	assert.False(t, src.Supports(ctx, "a.stl"))

	enc := wv.NewEncoder(wv.DefaultBufferLength)
	require.NoError(t, src.Populate(ctx, enc, ""))
	assert.Equal(t, []string{CubeName}, enc.GPrims())
}

func TestSTLPopulate(t *testing.T) {
	env := newEnv(t, map[string]string{"parts/two.stl": twoSolids()})
	src, err := STL().New(env)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, src.Supports(ctx, "parts/two.stl"))
	assert.False(t, src.Supports(ctx, "parts/missing.stl"))
	assert.False(t, src.Supports(ctx, "parts/two.obj"))

	enc := wv.NewEncoder(wv.DefaultBufferLength)
	require.NoError(t, src.Populate(ctx, enc, "parts/two.stl"))
	assert.Equal(t, []string{"two_solid1", "two_solid2"}, enc.GPrims())

	buf := make([]byte, enc.BufferLength())
	var stream []byte
	enc.PrepareForSends()
	require.NoError(t, enc.SendGPrim(buf, core.MarkerInit, func(c []byte) error {
		stream = append(stream, c...)
		return nil
	}))
	enc.FinishSends()
	frames, err := wvtest.ReadFrames(stream)
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	require.True(t, frames[0].IsInit())
	assert.InDelta(t, 2, frames[0].Camera.Focus[0], 1e-6)
	assert.InDelta(t, 2, frames[0].Camera.Focus[3], 1e-6)
}

func TestSTLPopulateEmptyFile(t *testing.T) {
	env := newEnv(t, map[string]string{"empty.stl": "solid e\nendsolid e\n"})
	src, err := STL().New(env)
	require.NoError(t, err)

	err = src.Populate(context.Background(), wv.NewEncoder(0), "empty.stl")
	assert.Equal(t, "parse", core.Class(err))
}

func TestCSMThroughTessellator(t *testing.T) {
	cat, err := exec.LookPath("cat")
	if err != nil {
		t.Skip("cat not available")
	}
	env := newEnv(t, map[string]string{"wing.csm": triangleSTL})
	env.CAD = CADConfig{Tessellator: cat}
	r, err := NewResolver(env, []string{"cube", "csm"}, Catalog())
	require.NoError(t, err)

	cs, err := r.Resolve("csm")
	require.NoError(t, err)
	src, err := cs[0].New()
	require.NoError(t, err)
	ctx := context.Background()
	require.True(t, src.Supports(ctx, "wing.csm"))

	enc := wv.NewEncoder(wv.DefaultBufferLength)
	require.NoError(t, src.Populate(ctx, enc, "wing.csm"))
	assert.Equal(t, []string{"wing_solid1"}, enc.GPrims())

	h, ok := src.(core.ControlHandler)
	require.True(t, ok)
	reply, err := h.OnControl(ctx, enc, []byte(`{"type":"info"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"info","source":"csm","gprims":["wing_solid1"]}`, string(reply))

	_, err = h.OnControl(ctx, enc, []byte(`{"type":"rebuild"}`))
	assert.Error(t, err)
}

func TestCSMTessellatorFailure(t *testing.T) {
	f, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false not available")
	}
	env := newEnv(t, map[string]string{"wing.csm": "anything"})
	env.CAD = CADConfig{Tessellator: f}
	src, err := CSM().New(env)
	require.NoError(t, err)

	err = src.Populate(context.Background(), wv.NewEncoder(0), "wing.csm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("tessellate %s", "wing.csm"))
}
