package visualization

import (
	"brainviewer/internal/models"
)

// faceCorners lists, for each of the six voxel faces, its outward neighbour
// offset and its four corners counter-clockwise seen from outside
var faceCorners = [6]struct {
	neighbour [3]int
	corners   [4][3]int
}{
	{[3]int{1, 0, 0}, [4][3]int{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{[3]int{-1, 0, 0}, [4][3]int{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{[3]int{0, 1, 0}, [4][3]int{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{[3]int{0, -1, 0}, [4][3]int{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{[3]int{0, 0, 1}, [4][3]int{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{[3]int{0, 0, -1}, [4][3]int{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// Surface extracts the boundary of all voxels above threshold as a closed
// triangle mesh in mm. Each exposed voxel face becomes two triangles and
// corners shared between faces are welded.
func (v *Viewer) Surface(threshold float64) models.MeshData {
	inside := func(x, y, z int) bool { return v.At(x, y, z) > threshold }

	mesh := models.MeshData{VoxelSpacing: v.spacing}
	index := make(map[[3]int]uint32)
	vertex := func(c [3]int) uint32 {
		if i, ok := index[c]; ok {
			return i
		}
		i := uint32(len(mesh.Vertices))
		index[c] = i
		mesh.Vertices = append(mesh.Vertices, [3]float32{
			float32(float64(c[0]) * v.spacing[0]),
			float32(float64(c[1]) * v.spacing[1]),
			float32(float64(c[2]) * v.spacing[2]),
		})
		return i
	}

	for z := 0; z < v.depth; z++ {
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				if !inside(x, y, z) {
					continue
				}
				for _, f := range faceCorners {
					if inside(x+f.neighbour[0], y+f.neighbour[1], z+f.neighbour[2]) {
						continue
					}
					var q [4]uint32
					for k, c := range f.corners {
						q[k] = vertex([3]int{x + c[0], y + c[1], z + c[2]})
					}
					mesh.Faces = append(mesh.Faces, [3]uint32{q[0], q[1], q[2]}, [3]uint32{q[0], q[2], q[3]})
				}
			}
		}
	}

	if len(mesh.Vertices) == 0 {
		return mesh
	}
	var sum [3]float64
	mesh.Bounds.Min = [3]float64{float64(mesh.Vertices[0][0]), float64(mesh.Vertices[0][1]), float64(mesh.Vertices[0][2])}
	mesh.Bounds.Max = mesh.Bounds.Min
	for _, p := range mesh.Vertices {
		for d := 0; d < 3; d++ {
			c := float64(p[d])
			sum[d] += c
			if c < mesh.Bounds.Min[d] {
				mesh.Bounds.Min[d] = c
			}
			if c > mesh.Bounds.Max[d] {
				mesh.Bounds.Max[d] = c
			}
		}
	}
	n := float64(len(mesh.Vertices))
	mesh.Centroid = [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
	return mesh
}
