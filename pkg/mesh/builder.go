// Package mesh turns imaging-service surfaces and lesion coordinates into
// renderable geometry: flattened vertex buffers with normals, a capped cloud of
// shared-geometry spheres, and STL streams.
package mesh

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"brainviewer/internal/models"
)

var (
	// ErrEmptyMesh is returned when a surface has no vertices or faces
	ErrEmptyMesh = errors.New("mesh has no vertices or faces")

	// ErrFaceIndexOutOfRange is returned when a face refers to a missing vertex
	ErrFaceIndexOutOfRange = errors.New("face index out of range")
)

// Geometry is an indexed triangle buffer. Positions and Normals hold three
// floats per vertex, Indices three vertex indices per triangle.
type Geometry struct {
	Positions []float32
	Normals   []float32
	Indices   []uint32
	Bounds    models.Bounds
}

// VertexCount returns the number of vertices in the buffer
func (g *Geometry) VertexCount() int { return len(g.Positions) / 3 }

// TriangleCount returns the number of triangles in the buffer
func (g *Geometry) TriangleCount() int { return len(g.Indices) / 3 }

// Vertex returns vertex i as a vector
func (g *Geometry) Vertex(i int) r3.Vec {
	return r3.Vec{X: float64(g.Positions[3*i]), Y: float64(g.Positions[3*i+1]), Z: float64(g.Positions[3*i+2])}
}

// Normal returns the unit normal of vertex i
func (g *Geometry) Normal(i int) r3.Vec {
	if 3*i+2 >= len(g.Normals) {
		return r3.Vec{}
	}
	return r3.Vec{X: float64(g.Normals[3*i]), Y: float64(g.Normals[3*i+1]), Z: float64(g.Normals[3*i+2])}
}

// Object is a surface ready to be added to a scene
type Object struct {
	Geometry *Geometry
	Material Material
}

// BuildMesh validates a surface and flattens it into an Object with
// per-vertex normals
func BuildMesh(data models.MeshData, mat Material) (*Object, error) {
	if len(data.Vertices) == 0 || len(data.Faces) == 0 {
		return nil, ErrEmptyMesh
	}

	n := uint32(len(data.Vertices))
	for i, f := range data.Faces {
		for _, idx := range f {
			if idx >= n {
				return nil, fmt.Errorf("face %d refers to vertex %d of %d: %w", i, idx, n, ErrFaceIndexOutOfRange)
			}
		}
	}

	g := &Geometry{
		Positions: make([]float32, 0, 3*len(data.Vertices)),
		Indices:   make([]uint32, 0, 3*len(data.Faces)),
	}
	for _, v := range data.Vertices {
		g.Positions = append(g.Positions, v[0], v[1], v[2])
	}
	for _, f := range data.Faces {
		g.Indices = append(g.Indices, f[0], f[1], f[2])
	}
	g.Normals = computeNormals(g.Positions, g.Indices)
	g.Bounds = computeBounds(g.Positions)

	return &Object{Geometry: g, Material: mat.finalize()}, nil
}

// computeNormals accumulates area-weighted face normals on every vertex and
// normalizes the sums
func computeNormals(positions []float32, indices []uint32) []float32 {
	count := len(positions) / 3
	acc := make([]r3.Vec, count)
	at := func(i uint32) r3.Vec {
		return r3.Vec{X: float64(positions[3*i]), Y: float64(positions[3*i+1]), Z: float64(positions[3*i+2])}
	}

	for t := 0; t+2 < len(indices); t += 3 {
		a, b, c := indices[t], indices[t+1], indices[t+2]
		pa, pb, pc := at(a), at(b), at(c)
		fn := r3.Cross(r3.Sub(pb, pa), r3.Sub(pc, pa))
		acc[a] = r3.Add(acc[a], fn)
		acc[b] = r3.Add(acc[b], fn)
		acc[c] = r3.Add(acc[c], fn)
	}

	normals := make([]float32, 3*count)
	for i, v := range acc {
		if r3.Norm(v) == 0 {
			continue
		}
		u := r3.Unit(v)
		normals[3*i] = float32(u.X)
		normals[3*i+1] = float32(u.Y)
		normals[3*i+2] = float32(u.Z)
	}
	return normals
}

func computeBounds(positions []float32) models.Bounds {
	var b models.Bounds
	count := len(positions) / 3
	if count == 0 {
		return b
	}
	axis := make([]float64, count)
	for d := 0; d < 3; d++ {
		for i := 0; i < count; i++ {
			axis[i] = float64(positions[3*i+d])
		}
		b.Min[d] = floats.Min(axis)
		b.Max[d] = floats.Max(axis)
	}
	return b
}

// Center returns the midpoint of the bounding box
func Center(b models.Bounds) r3.Vec {
	return r3.Vec{
		X: (b.Min[0] + b.Max[0]) / 2,
		Y: (b.Min[1] + b.Max[1]) / 2,
		Z: (b.Min[2] + b.Max[2]) / 2,
	}
}

// Radius returns half the diagonal of the bounding box
func Radius(b models.Bounds) float64 {
	d := r3.Vec{X: b.Max[0] - b.Min[0], Y: b.Max[1] - b.Min[1], Z: b.Max[2] - b.Min[2]}
	return r3.Norm(d) / 2
}
