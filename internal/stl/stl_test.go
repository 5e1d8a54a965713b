package stl

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/geom"
)

var tetra = []Tri{
	{N: [3]float32{0, 0, -1}, V1: [3]float32{0, 0, 0}, V2: [3]float32{0, 1, 0}, V3: [3]float32{1, 0, 0}},
	{N: [3]float32{0, -1, 0}, V1: [3]float32{0, 0, 0}, V2: [3]float32{1, 0, 0}, V3: [3]float32{0, 0, 1}},
	{N: [3]float32{-1, 0, 0}, V1: [3]float32{0, 0, 0}, V2: [3]float32{0, 0, 1}, V3: [3]float32{0, 1, 0}},
	{N: [3]float32{0.577, 0.577, 0.577}, V1: [3]float32{1, 0, 0}, V2: [3]float32{0, 1, 0}, V3: [3]float32{0, 0, 1}},
}

func asciiSTL(name string, tris []Tri) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "solid %s\n", name)
	for _, t := range tris {
		fmt.Fprintf(&sb, "  facet normal %g %g %g\n    outer loop\n", t.N[0], t.N[1], t.N[2])
		for _, v := range [][3]float32{t.V1, t.V2, t.V3} {
			fmt.Fprintf(&sb, "      vertex %g %g %g\n", v[0], v[1], v[2])
		}
		sb.WriteString("    endloop\n  endfacet\n")
	}
	fmt.Fprintf(&sb, "endsolid %s\n", name)
	return sb.String()
}

func binarySTL(t *testing.T, header string, tris []Tri) []byte {
	t.Helper()
	var buf bytes.Buffer
	var h struct {
		Text [headerSize]byte
		NTri uint32
	}
	copy(h.Text[:], header)
	h.NTri = uint32(len(tris))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &h))
	for i := range tris {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, &tris[i]))
	}
	return buf.Bytes()
}

func TestIsASCII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"solid first", "solid cube\n", true},
		{"leading blank lines", "\n   \n\tsolid x\n", true},
		{"solid without name", "solid", true},
		{"prefix only", "solidify\n", false},
		{"binary header", "binary header\x00\x00", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsASCII([]byte(tt.in)))
		})
	}
}

func TestParseASCIIAndBinaryAgree(t *testing.T) {
	p := NewParser(Options{})

	ascii, err := p.Parse(strings.NewReader(asciiSTL("tetra", tetra)), "tetra")
	require.NoError(t, err)
	require.Len(t, ascii, 1)

	bin, err := p.Parse(bytes.NewReader(binarySTL(t, "binary tetra\x01\xff", tetra)), "tetra")
	require.NoError(t, err)
	require.Len(t, bin, 1)

	a, b := ascii[0], bin[0]
	assert.Equal(t, "tetra_solid1", a.Name)
	assert.Equal(t, "binary tetra", b.Name)

	assert.Equal(t, 12, a.VertexCount())
	assert.Equal(t, a.VertexCount(), b.VertexCount())
	assert.Equal(t, 4, a.TriangleCount())
	assert.Equal(t, a.TriangleCount(), b.TriangleCount())
	for i := range a.Bounds {
		assert.InDelta(t, a.Bounds[i], b.Bounds[i], 1e-6)
	}
	assert.InDeltaSlice(t, a.Normals, b.Normals, 1e-6)
	assert.Equal(t, a.Indices, b.Indices)
}

func TestParseNormalsReplicated(t *testing.T) {
	solids, err := NewParser(Options{}).Parse(strings.NewReader(asciiSTL("t", tetra[:1])), "t")
	require.NoError(t, err)
	require.Len(t, solids, 1)
	assert.Equal(t, []float32{0, 0, -1, 0, 0, -1, 0, 0, -1}, solids[0].Normals)
	assert.Equal(t, []int32{0, 1, 2}, solids[0].Indices)
}

func TestParseExactBounds(t *testing.T) {
	solids, err := NewParser(Options{ExactBounds: true}).Parse(strings.NewReader(asciiSTL("t", tetra)), "t")
	require.NoError(t, err)
	require.Len(t, solids, 1)
	assert.Equal(t, geom.BoundingBox{1, 1, 1, 0, 0, 0}, solids[0].Bounds)
}

func TestLegacyBounds(t *testing.T) {
	v := []float32{0, 0, 5, 1, 2, 3}
	assert.Equal(t, geom.BoundingBox{1, 2, 3, 0, 0, 0}, legacyBounds(v))
	assert.Equal(t, geom.BoundingBox{1, 2, 5, 0, 0, 3}, geom.Bounds(v))
}

func TestParseMultipleSolids(t *testing.T) {
	in := asciiSTL("a", tetra[:2]) + "\n" + asciiSTL("b", tetra[2:])
	solids, err := NewParser(Options{}).Parse(strings.NewReader(in), "part")
	require.NoError(t, err)
	require.Len(t, solids, 2)
	assert.Equal(t, "part_solid1", solids[0].Name)
	assert.Equal(t, "part_solid2", solids[1].Name)
	assert.Equal(t, 2, solids[0].TriangleCount())
	assert.Equal(t, 2, solids[1].TriangleCount())
	assert.Equal(t, int32(0), solids[1].Indices[0], "indices restart for each solid")
}

func TestParseIgnoresUnknownTokens(t *testing.T) {
	in := strings.Replace(asciiSTL("t", tetra[:1]), "outer loop", "outer loop\ncolor 1 0 0", 1)
	solids, err := NewParser(Options{}).Parse(strings.NewReader(in), "t")
	require.NoError(t, err)
	require.Len(t, solids, 1)
	assert.Equal(t, 3, solids[0].VertexCount())
}

func TestParseBinaryFallbackName(t *testing.T) {
	solids, err := NewParser(Options{}).Parse(bytes.NewReader(binarySTL(t, "\x00\x00", tetra)), "knot")
	require.NoError(t, err)
	require.Len(t, solids, 1)
	assert.Equal(t, "knot", solids[0].Name)
}

func TestParseErrors(t *testing.T) {
	full := binarySTL(t, "header", tetra)
	tests := []struct {
		name string
		in   []byte
	}{
		{"short header", full[:40]},
		{"truncated triangles", full[:len(full)-10]},
		{"bad vertex", []byte("solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 zero 0\n")},
		{"short facet", []byte("solid x\nfacet normal 0 0\n")},
		{"missing endsolid", []byte(strings.TrimSuffix(asciiSTL("t", tetra[:1]), "endsolid t\n"))},
		{"incomplete triangle", []byte("solid x\nfacet normal 0 0 1\nvertex 0 0 0\nvertex 1 0 0\nendsolid x\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(Options{}).Parse(bytes.NewReader(tt.in), "x")
			require.Error(t, err)
			var pe *core.ParseError
			assert.True(t, errors.As(err, &pe), "want ParseError, got %v", err)
		})
	}
}

func TestParseEmptyBinary(t *testing.T) {
	solids, err := NewParser(Options{}).Parse(bytes.NewReader(binarySTL(t, "empty", nil)), "x")
	require.NoError(t, err)
	assert.Empty(t, solids)
}
