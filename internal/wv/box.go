package wv

import "github.com/dkeye/gprimview/internal/core"

var faceColors = [6][3]uint8{
	{255, 0, 0},
	{0, 255, 0},
	{0, 0, 255},
	{255, 255, 0},
	{255, 0, 255},
	{0, 255, 255},
}

// boxFaces builds a unit cube: four points per face so every face keeps its
// own normal and color.
func boxFaces(name string, origin [3]float32) core.FaceData {
	const h = 0.5
	// axis, sign of the face normal
	faces := [6]struct {
		axis int
		sign float32
	}{{0, 1}, {0, -1}, {1, 1}, {1, -1}, {2, 1}, {2, -1}}

	fd := core.FaceData{
		Name:    name,
		Points:  make([]float32, 0, 6*4*3),
		Tris:    make([]int32, 0, 6*2*3),
		Colors:  make([]uint8, 0, 6*4*3),
		Normals: make([]float32, 0, 6*4*3),
	}
	for fi, f := range faces {
		u, v := (f.axis+1)%3, (f.axis+2)%3
		// counter-clockwise seen from outside
		corners := [4][2]float32{{-h, -h}, {h, -h}, {h, h}, {-h, h}}
		if f.sign < 0 {
			corners = [4][2]float32{{-h, -h}, {-h, h}, {h, h}, {h, -h}}
		}
		base := int32(len(fd.Points) / 3)
		for _, c := range corners {
			var p, n [3]float32
			p[f.axis] = f.sign * h
			p[u], p[v] = c[0], c[1]
			n[f.axis] = f.sign
			for i := range p {
				p[i] += origin[i]
			}
			fd.Points = append(fd.Points, p[:]...)
			fd.Normals = append(fd.Normals, n[:]...)
			fd.Colors = append(fd.Colors, faceColors[fi][:]...)
		}
		fd.Tris = append(fd.Tris, base, base+1, base+2, base, base+2, base+3)
	}
	return fd
}
