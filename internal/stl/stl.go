// Package stl decodes ASCII and binary STL streams into flat vertex, index
// and normal buffers, one Solid per mesh.
package stl

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/geom"
)

const (
	headerSize = 80
	recordSize = 50
	maxLine    = 1 << 20
)

// Tri is one binary STL record: the facet normal plus three vertices,
// followed by an unused attribute byte count.
type Tri struct {
	N, V1, V2, V3 [3]float32
	_             uint16
}

// Solid is one mesh. Vertices and Normals are parallel x,y,z streams with
// the facet normal repeated for each of its three vertices. Indices are
// zero-based, three per triangle.
type Solid struct {
	Name     string
	Vertices []float32
	Indices  []int32
	Normals  []float32
	Bounds   geom.BoundingBox
}

// VertexCount returns the number of vertices.
func (s *Solid) VertexCount() int { return len(s.Vertices) / 3 }

// TriangleCount returns the number of triangles.
func (s *Solid) TriangleCount() int { return len(s.Indices) / 3 }

// Options tune a Parser.
type Options struct {
	// ExactBounds reports true z extents. When false the z bounds are
	// computed the way existing viewers expect: from the running y extents
	// and the last vertex's z.
	ExactBounds bool
}

// Parser reads STL streams. The zero value is ready to use.
type Parser struct {
	opts Options
}

func NewParser(opts Options) *Parser { return &Parser{opts: opts} }

// Parse decodes r. stem names ASCII solids (<stem>_solid<N>) and binary
// meshes whose header carries no printable text.
func (p *Parser) Parse(r io.Reader, stem string) ([]Solid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read stl")
	}
	if IsASCII(data) {
		log.Debug().Str("module", "stl").Str("stem", stem).Msg("reading ascii STL")
		return p.parseASCII(data, stem)
	}
	log.Debug().Str("module", "stl").Str("stem", stem).Msg("reading binary STL")
	return p.parseBinary(data, stem)
}

// IsASCII reports whether the first non-blank line starts with the token "solid".
func IsASCII(data []byte) bool {
	for len(data) > 0 {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		fields := bytes.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return string(fields[0]) == "solid"
	}
	return false
}

func (p *Parser) parseASCII(data []byte, stem string) ([]Solid, error) {
	var (
		out      []Solid
		vertices []float32
		normals  []float32
		nsolid   int
		lineNo   int
		open     bool
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "solid":
			open = true
		case "outer", "endloop", "endfacet":
		case "facet":
			if len(fields) < 5 {
				return nil, asciiError(lineNo, "facet needs a normal", nil)
			}
			n, err := parseTriple(fields[2:5])
			if err != nil {
				return nil, asciiError(lineNo, "bad facet normal", err)
			}
			normals = append(normals, n[:]...)
			normals = append(normals, n[:]...)
			normals = append(normals, n[:]...)
		case "vertex":
			if len(fields) < 4 {
				return nil, asciiError(lineNo, "vertex needs three coordinates", nil)
			}
			v, err := parseTriple(fields[1:4])
			if err != nil {
				return nil, asciiError(lineNo, "bad vertex", err)
			}
			vertices = append(vertices, v[:]...)
		case "endsolid":
			open = false
			if len(vertices) == 0 {
				log.Debug().Str("module", "stl").Int("line", lineNo).Msg("skipping empty solid")
				normals = normals[:0]
				continue
			}
			if len(vertices)%9 != 0 || len(normals) != len(vertices) {
				return nil, asciiError(lineNo, fmt.Sprintf("solid has %d coordinates and %d normal components",
					len(vertices), len(normals)), nil)
			}
			nsolid++
			out = append(out, p.solid(fmt.Sprintf("%s_solid%d", stem, nsolid), vertices, normals))
			vertices, normals = nil, nil
		default:
			log.Debug().Str("module", "stl").Int("line", lineNo).Str("token", fields[0]).Msg("ignoring line")
		}
	}
	if err := sc.Err(); err != nil {
		return nil, asciiError(lineNo, "scan", err)
	}
	if open && len(vertices) > 0 {
		return nil, asciiError(lineNo, "missing endsolid", io.ErrUnexpectedEOF)
	}
	return out, nil
}

func (p *Parser) parseBinary(data []byte, stem string) ([]Solid, error) {
	if len(data) < headerSize+4 {
		return nil, &core.ParseError{Format: "binary stl", Offset: int64(len(data)),
			Msg: "short header", Err: io.ErrUnexpectedEOF}
	}
	var header struct {
		Text [headerSize]byte
		NTri uint32
	}
	rd := bytes.NewReader(data)
	if err := binary.Read(rd, binary.LittleEndian, &header); err != nil {
		return nil, &core.ParseError{Format: "binary stl", Msg: "header", Err: err}
	}
	want := int64(headerSize+4) + int64(header.NTri)*recordSize
	if int64(len(data)) < want {
		return nil, &core.ParseError{Format: "binary stl", Offset: int64(len(data)),
			Msg: fmt.Sprintf("header declares %d triangles, need %d bytes", header.NTri, want),
			Err: io.ErrUnexpectedEOF}
	}
	if header.NTri == 0 {
		return nil, nil
	}

	vertices := make([]float32, 0, int(header.NTri)*9)
	normals := make([]float32, 0, int(header.NTri)*9)
	var t Tri
	for i := uint32(0); i < header.NTri; i++ {
		if err := binary.Read(rd, binary.LittleEndian, &t); err != nil {
			return nil, &core.ParseError{Format: "binary stl",
				Offset: int64(headerSize+4) + int64(i)*recordSize, Msg: "triangle record", Err: err}
		}
		normals = append(normals, t.N[:]...)
		normals = append(normals, t.N[:]...)
		normals = append(normals, t.N[:]...)
		vertices = append(vertices, t.V1[:]...)
		vertices = append(vertices, t.V2[:]...)
		vertices = append(vertices, t.V3[:]...)
	}

	name := headerName(header.Text[:])
	if name == "" {
		name = stem
	}
	return []Solid{p.solid(name, vertices, normals)}, nil
}

func (p *Parser) solid(name string, vertices, normals []float32) Solid {
	n := len(vertices) / 3
	indices := make([]int32, n)
	for i := range indices {
		indices[i] = int32(i)
	}
	s := Solid{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
		Normals:  normals,
	}
	if p.opts.ExactBounds {
		s.Bounds = geom.Bounds(vertices)
	} else {
		s.Bounds = legacyBounds(vertices)
	}
	log.Debug().Str("module", "stl").Str("solid", name).Int("vertices", n).Msg("solid decoded")
	return s
}

// legacyBounds reproduces the established viewer framing: x and y extents
// are exact, z extents come from the y accumulator and the final vertex.
func legacyBounds(v []float32) geom.BoundingBox {
	minX, maxX := v[0], v[0]
	minY, maxY := v[1], v[1]
	minZ, maxZ := v[2], v[2]
	for i := 0; i < len(v)/3; i++ {
		x, y, z := v[i*3], v[i*3+1], v[i*3+2]
		minX = math32.Min(minX, x)
		maxX = math32.Max(maxX, x)
		minY = math32.Min(minY, y)
		maxY = math32.Max(maxY, y)
		minZ = math32.Min(minY, z)
		maxZ = math32.Max(maxY, z)
	}
	return geom.BoundingBox{maxX, maxY, maxZ, minX, minY, minZ}
}

func headerName(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

func parseTriple(fields []string) ([3]float32, error) {
	var out [3]float32
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return out, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

func asciiError(line int, msg string, err error) error {
	return &core.ParseError{Format: "ascii stl", Line: line, Msg: msg, Err: err}
}
