package core

import "github.com/dkeye/gprimview/internal/geom"

// Attr is a set of GPrim rendering attributes.
type Attr uint16

const (
	AttrOn Attr = 1 << iota
	AttrTransparent
	AttrShading
	AttrOrientation
	AttrPoints
	AttrLines
)

// Send markers understood by Encoder.SendGPrim.
const (
	MarkerUpdate = 0  // incremental updates, not produced by this server
	MarkerInit   = 1  // context-init frame (camera, options)
	MarkerSuite  = -1 // bulk dump of every registered GPrim
)

// Camera is the one-time rendering context of an encoder.
type Camera struct {
	Bias             int32
	Fov, ZNear, ZFar float32
	Eye, Center, Up  [3]float32
	Focus            geom.Focus
}

// DefaultCamera looks down -z from (0,0,7) with a 30 degree field of view.
func DefaultCamera(bias int32) Camera {
	return Camera{
		Bias:   bias,
		Fov:    30,
		ZNear:  1,
		ZFar:   10,
		Eye:    [3]float32{0, 0, 7},
		Center: [3]float32{0, 0, 0},
		Up:     [3]float32{0, 1, 0},
	}
}

// FaceData is one named triangle primitive. Points and Normals hold x,y,z
// triples, Colors holds r,g,b bytes per point and Tris holds zero-based point
// indices, three per triangle. Colors and Bounds are optional.
type FaceData struct {
	Name    string
	Points  []float32
	Tris    []int32
	Colors  []uint8
	Normals []float32
	Bounds  *geom.BoundingBox
}

// ChunkFunc delivers one encoded chunk. A non-nil error aborts the send cycle.
// The chunk aliases the caller's buffer and is only valid during the call.
type ChunkFunc func(chunk []byte) error

// Encoder holds rendering-context state and a mutable set of GPrims.
// It is not safe for concurrent use.
type Encoder interface {
	CreateContext(cam Camera) error
	CreateBox(name string, attrs Attr, origin [3]float32) (int, error)
	SetFaceData(fd FaceData) (int, error)

	// BufferLength is the largest chunk the encoder emits; buffers passed to
	// SendGPrim must be at least this long.
	BufferLength() int
	PrepareForSends()
	SendGPrim(buf []byte, marker int, send ChunkFunc) error
	FinishSends()

	RemoveGPrim(index int) error
	GPrims() []string
}
