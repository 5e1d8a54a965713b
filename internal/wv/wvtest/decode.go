// Package wvtest decodes the wv frame stream the way a viewer client does.
package wvtest

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/dkeye/gprimview/internal/core"
	"github.com/dkeye/gprimview/internal/geom"
	"github.com/dkeye/gprimview/internal/wv"
)

// Frame is one decoded stream frame.
type Frame struct {
	Op    uint8
	Attrs core.Attr

	// OpInit frames
	Camera core.Camera

	// OpGPrim frames
	Index   uint32
	Name    string
	Points  []float32
	Tris    []int32
	Colors  []uint8
	Normals []float32
	Bounds  geom.BoundingBox
}

func (f Frame) IsInit() bool  { return f.Op == wv.OpInit }
func (f Frame) IsGPrim() bool { return f.Op == wv.OpGPrim }
func (f Frame) IsEnd() bool   { return f.Op == wv.OpEnd }

// ReadFrames decodes a reassembled stream (all chunks of one or more sends).
func ReadFrames(stream []byte) ([]Frame, error) {
	r := bytes.NewReader(stream)
	var out []Frame
	for r.Len() > 0 {
		var hdr struct {
			Op       uint8
			Attrs    uint16
			Reserved uint8
			Length   uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
			return out, errors.Wrap(err, "frame header")
		}
		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return out, errors.Wrap(err, "frame payload")
		}
		f := Frame{Op: hdr.Op, Attrs: core.Attr(hdr.Attrs)}
		var err error
		switch hdr.Op {
		case wv.OpInit:
			err = decodeInit(payload, &f)
		case wv.OpGPrim:
			err = decodeGPrim(payload, &f)
		case wv.OpEnd:
		default:
			err = errors.Errorf("unknown opcode %#x", hdr.Op)
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func decodeInit(p []byte, f *Frame) error {
	var v struct {
		Bias             int32
		Fov, ZNear, ZFar float32
		Eye, Center, Up  [3]float32
		Focus            geom.Focus
	}
	if err := binary.Read(bytes.NewReader(p), binary.LittleEndian, &v); err != nil {
		return errors.Wrap(err, "init frame")
	}
	f.Camera = core.Camera{
		Bias: v.Bias, Fov: v.Fov, ZNear: v.ZNear, ZFar: v.ZFar,
		Eye: v.Eye, Center: v.Center, Up: v.Up, Focus: v.Focus,
	}
	return nil
}

func decodeGPrim(p []byte, f *Frame) error {
	r := bytes.NewReader(p)
	var head struct {
		Index   uint32
		Kind    uint8
		NameLen uint16
	}
	if err := binary.Read(r, binary.LittleEndian, &head); err != nil {
		return errors.Wrap(err, "gprim header")
	}
	name := make([]byte, head.NameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return errors.Wrap(err, "gprim name")
	}
	f.Index, f.Name = head.Index, string(name)

	for r.Len() > 0 {
		var sec struct {
			Tag   uint8
			Count uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &sec); err != nil {
			return errors.Wrap(err, "section header")
		}
		var dst any
		switch sec.Tag {
		case wv.SecVertices:
			f.Points = make([]float32, sec.Count)
			dst = f.Points
		case wv.SecIndices:
			f.Tris = make([]int32, sec.Count)
			dst = f.Tris
		case wv.SecColors:
			f.Colors = make([]uint8, sec.Count)
			dst = f.Colors
		case wv.SecNormals:
			f.Normals = make([]float32, sec.Count)
			dst = f.Normals
		case wv.SecBounds:
			dst = &f.Bounds
		default:
			return errors.Errorf("gprim %q: unknown section %d", f.Name, sec.Tag)
		}
		if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
			return errors.Wrapf(err, "gprim %q section %d", f.Name, sec.Tag)
		}
	}
	return nil
}
