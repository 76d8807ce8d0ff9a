package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/spatial/r3"

	"brainviewer/internal/models"
)

// DefaultPointCap is the maximum number of lesion spheres drawn
const DefaultPointCap = 5000

// PointOptions controls how a lesion coordinate set becomes a sphere cloud
type PointOptions struct {
	Cap      int
	Radius   float64
	Segments int
	Material Material
}

// DefaultPointOptions matches the viewer defaults
func DefaultPointOptions() PointOptions {
	return PointOptions{Cap: DefaultPointCap, Radius: 1.5, Segments: 8, Material: DefaultLesionMaterial()}
}

// PointCloud is a set of identical spheres sharing one geometry and one
// material, placed at the subsampled lesion coordinates
type PointCloud struct {
	Sphere   *Geometry
	Material Material
	Centers  []r3.Vec

	// Step is the stride used when subsampling and Total the size of the
	// original coordinate set
	Step  int
	Total int

	tree *kdtree.Tree
}

// Subsample returns the stride and the indices kept when at most cap of n
// items may be drawn. Every step-th item is kept starting at index 0.
func Subsample(n, cap int) (int, []int) {
	if n <= 0 {
		return 1, nil
	}
	step := 1
	if cap > 0 && n > cap {
		step = int(math.Ceil(float64(n) / float64(cap)))
	}
	idx := make([]int, 0, (n+step-1)/step)
	for i := 0; i < n; i += step {
		idx = append(idx, i)
	}
	return step, idx
}

// BuildPoints builds the capped sphere cloud for a lesion coordinate set.
// The result is deterministic for a given input.
func BuildPoints(set models.LesionCoordinateSet, opts PointOptions) *PointCloud {
	if opts.Radius <= 0 {
		opts.Radius = 1.5
	}
	if opts.Segments < 3 {
		opts.Segments = 8
	}
	step, idx := Subsample(len(set.Coordinates), opts.Cap)

	pc := &PointCloud{
		Sphere:   Sphere(opts.Radius, opts.Segments),
		Material: opts.Material.finalize(),
		Centers:  make([]r3.Vec, len(idx)),
		Step:     step,
		Total:    len(set.Coordinates),
	}
	pts := make(points, len(idx))
	for i, j := range idx {
		c := set.Coordinates[j]
		v := r3.Vec{X: float64(c[0]), Y: float64(c[1]), Z: float64(c[2])}
		pc.Centers[i] = v
		pts[i] = point{Vec: v, index: i}
	}
	if len(pts) > 0 {
		pc.tree = kdtree.New(pts, false)
	}
	return pc
}

// Len returns the number of spheres drawn
func (pc *PointCloud) Len() int { return len(pc.Centers) }

// Nearest returns the index into Centers of the sphere closest to p and its
// distance. ok is false for an empty cloud.
func (pc *PointCloud) Nearest(p r3.Vec) (index int, dist float64, ok bool) {
	if pc == nil || pc.tree == nil {
		return 0, 0, false
	}
	got, d2 := pc.tree.Nearest(point{Vec: p})
	if got == nil {
		return 0, 0, false
	}
	return got.(point).index, math.Sqrt(d2), true
}

// Centroid returns the mean position of the drawn spheres
func (pc *PointCloud) Centroid() r3.Vec {
	var sum r3.Vec
	if len(pc.Centers) == 0 {
		return sum
	}
	for _, c := range pc.Centers {
		sum = r3.Add(sum, c)
	}
	return r3.Scale(1/float64(len(pc.Centers)), sum)
}

// Sphere builds a UV sphere with the given number of width and height segments
func Sphere(radius float64, segments int) *Geometry {
	if segments < 3 {
		segments = 3
	}
	ws, hs := segments, segments
	g := &Geometry{}

	for iy := 0; iy <= hs; iy++ {
		v := float64(iy) / float64(hs)
		for ix := 0; ix <= ws; ix++ {
			u := float64(ix) / float64(ws)
			n := r3.Vec{
				X: -math.Cos(u*2*math.Pi) * math.Sin(v*math.Pi),
				Y: math.Cos(v * math.Pi),
				Z: math.Sin(u*2*math.Pi) * math.Sin(v*math.Pi),
			}
			p := r3.Scale(radius, n)
			g.Positions = append(g.Positions, float32(p.X), float32(p.Y), float32(p.Z))
			g.Normals = append(g.Normals, float32(n.X), float32(n.Y), float32(n.Z))
		}
	}

	row := ws + 1
	for iy := 0; iy < hs; iy++ {
		for ix := 0; ix < ws; ix++ {
			a := uint32(iy*row + ix + 1)
			b := uint32(iy*row + ix)
			c := uint32((iy+1)*row + ix)
			d := uint32((iy+1)*row + ix + 1)
			if iy != 0 {
				g.Indices = append(g.Indices, a, b, d)
			}
			if iy != hs-1 {
				g.Indices = append(g.Indices, b, c, d)
			}
		}
	}
	g.Bounds = models.Bounds{
		Min: [3]float64{-radius, -radius, -radius},
		Max: [3]float64{radius, radius, radius},
	}
	return g
}

// point is a sphere centre that satisfies kdtree.Comparable
type point struct {
	r3.Vec
	index int
}

func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	d := r3.Sub(p.Vec, q.Vec)
	return r3.Dot(d, d)
}

// points satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfRandoms(plane{points: p, Dim: d}, 100))
}

// plane sorts points along one dimension for partitioning
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].X < p.points[j].X
	case 1:
		return p.points[i].Y < p.points[j].Y
	case 2:
		return p.points[i].Z < p.points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}
