package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBounds(t *testing.T) {
	tests := []struct {
		name   string
		points []float32
		want   BoundingBox
	}{
		{
			name:   "unit diagonal",
			points: []float32{-1, -1, -1, 1, 1, 1},
			want:   BoundingBox{1, 1, 1, -1, -1, -1},
		},
		{
			name:   "positive octant",
			points: []float32{1, 1, 1, 2, 2, 2},
			want:   BoundingBox{2, 2, 2, 1, 1, 1},
		},
		{
			name:   "mixed axes",
			points: []float32{0, 5, -3, 4, -2, 7, 1, 1, 1},
			want:   BoundingBox{4, 5, 7, 0, -2, -3},
		},
		{
			name:   "partial triple ignored",
			points: []float32{1, 2, 3, 100},
			want:   BoundingBox{1, 2, 3, 1, 2, 3},
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bounds(tt.points)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Bounds(got.Points()), "bounding box must be a fixed point")
		})
	}
}

func TestFocusOf(t *testing.T) {
	tests := []struct {
		box  BoundingBox
		want Focus
	}{
		{BoundingBox{10, 10, 10, 0, 0, 0}, Focus{5, 5, 5, 5}},
		{BoundingBox{1024, 512, 256, 0, 0, 0}, Focus{512, 256, 128, 512}},
		{BoundingBox{512, 256, 128, 0, 0, 0}, Focus{256, 128, 64, 256}},
		{BoundingBox{256, 512, 128, 0, 0, 0}, Focus{128, 256, 64, 256}},
		{BoundingBox{256, 128, 512, 0, 0, 0}, Focus{128, 64, 256, 256}},
		{BoundingBox{1024, 500, -340, -472, 1, -2000}, Focus{276, 250.5, -1170, 830}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FocusOf(tt.box), "box %v", tt.box)
	}
}

func TestAdjust(t *testing.T) {
	f := Focus{10, 10, 10, 10}
	assert.Equal(t, [3]float32{0, 0, 0}, Adjust(f, [3]float32{10, 10, 10}))

	box := Bounds([]float32{0, 0, 0, 100, 50, 25})
	f = FocusOf(box)
	assert.Equal(t, [3]float32{-50, -25, -12.5}, Adjust(f, box.Min()))
	assert.Equal(t, [3]float32{50, 25, 12.5}, Adjust(f, box.Max()))

	got := AdjustPoints(f, []float32{0, 0, 0, 100, 50, 25})
	assert.Equal(t, []float32{-50, -25, -12.5, 50, 25, 12.5}, got)
}

func TestUnion(t *testing.T) {
	a := BoundingBox{1, 1, 1, 0, 0, 0}
	b := BoundingBox{2, 0.5, 3, -1, 0.25, 1}
	assert.Equal(t, BoundingBox{2, 1, 3, -1, 0, 0}, Union(a, b))
}
