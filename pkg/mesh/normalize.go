package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"

	"brainviewer/internal/models"
)

// Normalization methods accepted by the imaging service
const (
	Cartesian = "cartesian"
	Spherical = "spherical"
)

// TransformInfo records how a surface was rescaled
type TransformInfo struct {
	Method         string     `json:"method"`
	OriginalCenter [3]float64 `json:"original_center"`
	ScaleFactor    float64    `json:"scale_factor"`
	TargetSize     float64    `json:"target_size,omitempty"`
	TargetRadius   float64    `json:"target_radius,omitempty"`
}

// NormalizeCartesian centres the surface on its vertex centroid and scales it
// uniformly so the largest side of its bounding box equals targetSize
func NormalizeCartesian(data models.MeshData, targetSize float64) (models.MeshData, TransformInfo) {
	if targetSize <= 0 {
		targetSize = 100
	}
	center := vertexCentroid(data.Vertices)
	info := TransformInfo{Method: Cartesian, OriginalCenter: [3]float64{center.X, center.Y, center.Z}, ScaleFactor: 1, TargetSize: targetSize}

	b := boundsOf(data.Vertices)
	largest := 0.0
	for d := 0; d < 3; d++ {
		if s := b.Max[d] - b.Min[d]; s > largest {
			largest = s
		}
	}
	if largest > 0 {
		info.ScaleFactor = targetSize / largest
	}
	return transform(data, center, info.ScaleFactor), info
}

// NormalizeSpherical centres the surface on its vertex centroid and scales it
// so the farthest vertex lies at targetRadius
func NormalizeSpherical(data models.MeshData, targetRadius float64) (models.MeshData, TransformInfo) {
	if targetRadius <= 0 {
		targetRadius = 50
	}
	center := vertexCentroid(data.Vertices)
	info := TransformInfo{Method: Spherical, OriginalCenter: [3]float64{center.X, center.Y, center.Z}, ScaleFactor: 1, TargetRadius: targetRadius}

	farthest := 0.0
	for _, v := range data.Vertices {
		if d := r3.Norm(r3.Sub(toVec(v), center)); d > farthest {
			farthest = d
		}
	}
	if farthest > 0 {
		info.ScaleFactor = targetRadius / farthest
	}
	return transform(data, center, info.ScaleFactor), info
}

func transform(data models.MeshData, center r3.Vec, scale float64) models.MeshData {
	out := models.MeshData{
		Vertices:     make([][3]float32, len(data.Vertices)),
		Faces:        append([][3]uint32(nil), data.Faces...),
		VoxelSpacing: data.VoxelSpacing,
	}
	for i, v := range data.Vertices {
		p := r3.Scale(scale, r3.Sub(toVec(v), center))
		out.Vertices[i] = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
	}
	out.Bounds = boundsOf(out.Vertices)
	c := vertexCentroid(out.Vertices)
	out.Centroid = [3]float64{c.X, c.Y, c.Z}
	return out
}

func toVec(v [3]float32) r3.Vec {
	return r3.Vec{X: float64(v[0]), Y: float64(v[1]), Z: float64(v[2])}
}

func vertexCentroid(vertices [][3]float32) r3.Vec {
	var sum r3.Vec
	if len(vertices) == 0 {
		return sum
	}
	for _, v := range vertices {
		sum = r3.Add(sum, toVec(v))
	}
	return r3.Scale(1/float64(len(vertices)), sum)
}

func boundsOf(vertices [][3]float32) models.Bounds {
	pos := make([]float32, 0, 3*len(vertices))
	for _, v := range vertices {
		pos = append(pos, v[0], v[1], v[2])
	}
	return computeBounds(pos)
}
