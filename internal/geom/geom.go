// Package geom holds the bounding-box and camera-framing math shared by the
// geometry sources and the encoder.
package geom

import "github.com/chewxy/math32"

// BoundingBox is (maxX, maxY, maxZ, minX, minY, minZ).
type BoundingBox [6]float32

// Focus is (centerX, centerY, centerZ, radius).
type Focus [4]float32

func (b BoundingBox) Max() [3]float32 { return [3]float32{b[0], b[1], b[2]} }
func (b BoundingBox) Min() [3]float32 { return [3]float32{b[3], b[4], b[5]} }

// Points returns the box as a flat stream of its max and min corners, so
// Bounds(b.Points()) == b.
func (b BoundingBox) Points() []float32 { return b[:] }

// Bounds returns the per-axis extents of a flat x,y,z stream. A trailing
// partial triple is ignored; an empty stream yields the zero box.
func Bounds(points []float32) BoundingBox {
	n := len(points) / 3
	if n == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{points[0], points[1], points[2], points[0], points[1], points[2]}
	for i := 1; i < n; i++ {
		for axis := 0; axis < 3; axis++ {
			v := points[i*3+axis]
			b[axis] = math32.Max(b[axis], v)
			b[axis+3] = math32.Min(b[axis+3], v)
		}
	}
	return b
}

// Union returns the smallest box containing a and b.
func Union(a, b BoundingBox) BoundingBox {
	var out BoundingBox
	for axis := 0; axis < 3; axis++ {
		out[axis] = math32.Max(a[axis], b[axis])
		out[axis+3] = math32.Min(a[axis+3], b[axis+3])
	}
	return out
}

// FocusOf centers the camera on b. The radius is half the span of the
// dominant axis; ties go to the earlier axis in x, y, z order.
func FocusOf(b BoundingBox) Focus {
	var f Focus
	dominant := 0
	var spans [3]float32
	for axis := 0; axis < 3; axis++ {
		f[axis] = (b[axis] + b[axis+3]) / 2
		spans[axis] = math32.Abs(b[axis] - b[axis+3])
		if spans[axis] > spans[dominant] {
			dominant = axis
		}
	}
	f[3] = spans[dominant] / 2
	return f
}

func (f Focus) Center() [3]float32 { return [3]float32{f[0], f[1], f[2]} }
func (f Focus) Radius() float32 { return f[3] }

// Adjust translates p so that the focus center maps to the origin.
func Adjust(f Focus, p [3]float32) [3]float32 {
	return [3]float32{p[0] - f[0], p[1] - f[1], p[2] - f[2]}
}

// AdjustPoints applies Adjust to every triple of a flat stream and returns
// a new slice.
func AdjustPoints(f Focus, points []float32) []float32 {
	out := make([]float32, len(points))
	for i, v := range points {
		out[i] = v - f[i%3]
	}
	return out
}
