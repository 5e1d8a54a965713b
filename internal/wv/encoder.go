// Package wv is the GPrim encoder: it keeps the rendering context and the
// registered primitives of one session and serializes them into chunked
// binary frames.
//
// Stream layout (little endian). Every frame is
//
//	opcode u8 | attrs u16 | reserved u8 | length u32 | payload[length]
//
// and every send ends with an OpEnd frame. Chunks are consecutive slices of
// the stream; clients concatenate them until OpEnd. Package wvtest holds the
// matching decoder.
package wv

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/geom"
)

// Frame opcodes and GPrim section tags.
const (
	OpInit  uint8 = 0x01
	OpGPrim uint8 = 0x02
	OpEnd   uint8 = 0x7f

	SecVertices uint8 = 1
	SecIndices  uint8 = 2
	SecColors   uint8 = 3
	SecNormals  uint8 = 4
	SecBounds   uint8 = 5
)

const (
	kindTriangles uint8 = 0

	frameHeaderSize = 8

	DefaultBufferLength = 64 * 1024
	MinBufferLength     = 256
)

var defaultColor = [3]uint8{200, 200, 200}

var (
	ErrNotPrepared   = errors.New("send cycle not prepared")
	ErrShortBuffer   = errors.New("buffer shorter than BufferLength")
	ErrUnknownMarker = errors.New("unknown send marker")
)

type gprim struct {
	name   string
	kind   uint8
	attrs  core.Attr
	face   core.FaceData
	bounds geom.BoundingBox
}

// Encoder implements core.Encoder.
type Encoder struct {
	bufLen   int
	cam      *core.Camera
	gprims   []*gprim
	prepared bool
	scratch  bytes.Buffer
}

var _ core.Encoder = (*Encoder)(nil)

// NewEncoder returns an encoder emitting chunks of at most bufLen bytes.
func NewEncoder(bufLen int) *Encoder {
	if bufLen <= 0 {
		bufLen = DefaultBufferLength
	}
	if bufLen < MinBufferLength {
		bufLen = MinBufferLength
	}
	return &Encoder{bufLen: bufLen}
}

func (e *Encoder) BufferLength() int { return e.bufLen }

func (e *Encoder) CreateContext(cam core.Camera) error {
	if e.cam != nil {
		return errors.New("context already created")
	}
	c := cam
	e.cam = &c
	return nil
}

// CreateBox registers a unit cube centered on origin with one color per face.
func (e *Encoder) CreateBox(name string, attrs core.Attr, origin [3]float32) (int, error) {
	fd := boxFaces(name, origin)
	return e.add(fd, attrs)
}

// SetFaceData registers a triangle primitive after validating its buffers.
func (e *Encoder) SetFaceData(fd core.FaceData) (int, error) {
	return e.add(fd, core.AttrOn|core.AttrShading|core.AttrOrientation)
}

func (e *Encoder) add(fd core.FaceData, attrs core.Attr) (int, error) {
	if e.cam == nil {
		return -1, errors.WithStack(core.ErrNoContext)
	}
	if fd.Name == "" {
		return -1, errors.New("gprim name is empty")
	}
	for _, g := range e.gprims {
		if g != nil && g.name == fd.Name {
			return -1, errors.Errorf("gprim %q already registered", fd.Name)
		}
	}
	if len(fd.Points) == 0 || len(fd.Points)%3 != 0 {
		return -1, errors.Errorf("gprim %q: %d point coordinates is not a positive multiple of 3", fd.Name, len(fd.Points))
	}
	if len(fd.Tris)%3 != 0 {
		return -1, errors.Errorf("gprim %q: %d triangle indices is not a multiple of 3", fd.Name, len(fd.Tris))
	}
	npts := len(fd.Points) / 3
	for i, idx := range fd.Tris {
		if idx < 0 || int(idx) >= npts {
			return -1, errors.WithStack(&core.ConnectivitiesError{Name: fd.Name, Tri: i / 3, Index: idx, Points: npts})
		}
	}
	if fd.Normals != nil && len(fd.Normals) != len(fd.Points) {
		return -1, errors.Errorf("gprim %q: %d normal components for %d points", fd.Name, len(fd.Normals), npts)
	}
	if fd.Colors == nil {
		fd.Colors = make([]uint8, npts*3)
		for i := 0; i < npts; i++ {
			copy(fd.Colors[i*3:], defaultColor[:])
		}
	} else if len(fd.Colors) != npts*3 {
		return -1, errors.Errorf("gprim %q: %d color components for %d points", fd.Name, len(fd.Colors), npts)
	}

	g := &gprim{name: fd.Name, kind: kindTriangles, attrs: attrs, face: fd}
	if fd.Bounds != nil {
		g.bounds = *fd.Bounds
	} else {
		g.bounds = geom.Bounds(fd.Points)
	}
	e.gprims = append(e.gprims, g)
	log.Debug().Str("module", "wv").Str("gprim", fd.Name).Int("points", npts).Int("tris", len(fd.Tris)/3).Msg("gprim registered")
	return len(e.gprims) - 1, nil
}

// RemoveGPrim deregisters the primitive created at index. Later indices are
// not renumbered.
func (e *Encoder) RemoveGPrim(index int) error {
	if index < 0 || index >= len(e.gprims) || e.gprims[index] == nil {
		return errors.Errorf("no gprim at index %d", index)
	}
	e.gprims[index] = nil
	return nil
}

// GPrims lists registered primitive names in creation order.
func (e *Encoder) GPrims() []string {
	out := make([]string, 0, len(e.gprims))
	for _, g := range e.gprims {
		if g != nil {
			out = append(out, g.name)
		}
	}
	return out
}

func (e *Encoder) PrepareForSends() {
	e.scratch.Reset()
	e.prepared = true
}

func (e *Encoder) FinishSends() {
	e.scratch.Reset()
	e.prepared = false
}

// SendGPrim encodes the frames selected by marker into buf and hands them
// to send one chunk at a time. MarkerUpdate sends nothing.
func (e *Encoder) SendGPrim(buf []byte, marker int, send core.ChunkFunc) error {
	if !e.prepared {
		return errors.WithStack(ErrNotPrepared)
	}
	if len(buf) < e.bufLen {
		return errors.Wrapf(ErrShortBuffer, "have %d, need %d", len(buf), e.bufLen)
	}
	if e.cam == nil {
		return errors.WithStack(core.ErrNoContext)
	}

	e.scratch.Reset()
	var phase string
	switch marker {
	case core.MarkerInit:
		phase = "init"
		e.writeInit()
	case core.MarkerSuite:
		phase = "suite"
		for i, g := range e.gprims {
			if g != nil {
				e.writeGPrim(uint32(i), g)
			}
		}
	case core.MarkerUpdate:
		return nil
	default:
		return errors.Wrapf(ErrUnknownMarker, "marker %d", marker)
	}
	e.writeFrame(OpEnd, 0, nil)

	data := e.scratch.Bytes()
	for chunk := 0; len(data) > 0; chunk++ {
		n := copy(buf[:e.bufLen], data)
		data = data[n:]
		if err := send(buf[:n]); err != nil {
			return &core.TransportError{Phase: phase, Chunk: chunk, Err: err}
		}
	}
	return nil
}

func (e *Encoder) focus() geom.Focus {
	if e.cam.Focus != (geom.Focus{}) {
		return e.cam.Focus
	}
	var (
		box   geom.BoundingBox
		found bool
	)
	for _, g := range e.gprims {
		if g == nil {
			continue
		}
		if !found {
			box, found = g.bounds, true
			continue
		}
		box = geom.Union(box, g.bounds)
	}
	if !found {
		return geom.Focus{0, 0, 0, 1}
	}
	return geom.FocusOf(box)
}

func (e *Encoder) writeInit() {
	var p bytes.Buffer
	c := e.cam
	put(&p, c.Bias)
	put(&p, [3]float32{c.Fov, c.ZNear, c.ZFar})
	put(&p, c.Eye)
	put(&p, c.Center)
	put(&p, c.Up)
	put(&p, e.focus())
	e.writeFrame(OpInit, 0, p.Bytes())
}

func (e *Encoder) writeGPrim(index uint32, g *gprim) {
	var p bytes.Buffer
	put(&p, index)
	put(&p, g.kind)
	put(&p, uint16(len(g.name)))
	p.WriteString(g.name)

	section(&p, SecVertices, uint32(len(g.face.Points)), g.face.Points)
	section(&p, SecIndices, uint32(len(g.face.Tris)), g.face.Tris)
	section(&p, SecColors, uint32(len(g.face.Colors)), g.face.Colors)
	if g.face.Normals != nil {
		section(&p, SecNormals, uint32(len(g.face.Normals)), g.face.Normals)
	}
	section(&p, SecBounds, 6, g.bounds)
	e.writeFrame(OpGPrim, g.attrs, p.Bytes())
}

func (e *Encoder) writeFrame(op uint8, attrs core.Attr, payload []byte) {
	put(&e.scratch, op)
	put(&e.scratch, uint16(attrs))
	put(&e.scratch, uint8(0))
	put(&e.scratch, uint32(len(payload)))
	e.scratch.Write(payload)
}

func section(w *bytes.Buffer, tag uint8, count uint32, data any) {
	put(w, tag)
	put(w, count)
	put(w, data)
}

// put writes fixed-size data; writes to a bytes.Buffer cannot fail.
func put(w *bytes.Buffer, v any) {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		panic(fmt.Sprintf("wv: encode %T: %v", v, err))
	}
}
