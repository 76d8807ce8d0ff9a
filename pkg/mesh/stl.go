package mesh

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hschendel/stl"
	"gonum.org/v1/gonum/spatial/r3"

	"brainviewer/internal/models"
)

// EncodeSTL writes a surface as a binary STL solid
func EncodeSTL(data models.MeshData, name string, w io.Writer) error {
	obj, err := BuildMesh(data, Material{})
	if err != nil {
		return err
	}
	g := obj.Geometry

	solid := &stl.Solid{Name: name, Triangles: make([]stl.Triangle, 0, g.TriangleCount())}
	for t := 0; t+2 < len(g.Indices); t += 3 {
		var tri stl.Triangle
		var v [3]r3.Vec
		for k := 0; k < 3; k++ {
			v[k] = g.Vertex(int(g.Indices[t+k]))
			tri.Vertices[k] = stl.Vec3{float32(v[k].X), float32(v[k].Y), float32(v[k].Z)}
		}
		n := r3.Cross(r3.Sub(v[1], v[0]), r3.Sub(v[2], v[0]))
		if r3.Norm(n) > 0 {
			n = r3.Unit(n)
		}
		tri.Normal = stl.Vec3{float32(n.X), float32(n.Y), float32(n.Z)}
		solid.Triangles = append(solid.Triangles, tri)
	}

	if err := solid.WriteAll(w); err != nil {
		return fmt.Errorf("failed to write STL: %w", err)
	}
	return nil
}

// DecodeSTL reads an ASCII or binary STL stream into a surface. Vertices are
// welded by exact position so shared corners map to one index.
func DecodeSTL(r io.Reader) (models.MeshData, error) {
	// the STL reader seeks to tell ASCII from binary
	b, err := io.ReadAll(r)
	if err != nil {
		return models.MeshData{}, fmt.Errorf("failed to read STL: %w", err)
	}
	solid, err := stl.ReadAll(bytes.NewReader(b))
	if err != nil {
		return models.MeshData{}, fmt.Errorf("failed to read STL: %w", err)
	}
	if len(solid.Triangles) == 0 {
		return models.MeshData{}, ErrEmptyMesh
	}

	var data models.MeshData
	index := make(map[[3]float32]uint32)
	for _, tri := range solid.Triangles {
		var face [3]uint32
		for k, v := range tri.Vertices {
			key := [3]float32{v[0], v[1], v[2]}
			i, ok := index[key]
			if !ok {
				i = uint32(len(data.Vertices))
				index[key] = i
				data.Vertices = append(data.Vertices, key)
			}
			face[k] = i
		}
		data.Faces = append(data.Faces, face)
	}

	pos := make([]float32, 0, 3*len(data.Vertices))
	for _, v := range data.Vertices {
		pos = append(pos, v[0], v[1], v[2])
	}
	data.Bounds = computeBounds(pos)
	c := Center(data.Bounds)
	data.Centroid = [3]float64{c.X, c.Y, c.Z}
	return data, nil
}
