package scene

import (
	"image"
	"math"
	"sort"

	"github.com/gogpu/gg"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"brainviewer/pkg/mesh"
)

// Light is a directional light shining along -Direction
type Light struct {
	Direction r3.Vec
	Intensity float64
}

// Lighting is an ambient term plus directional lights
type Lighting struct {
	Ambient     float64
	Directional []Light
}

// DefaultLighting is an ambient fill with a key light and a weaker back light
func DefaultLighting() Lighting {
	return Lighting{
		Ambient: 0.4,
		Directional: []Light{
			{Direction: r3.Unit(r3.Vec{X: 1, Y: 1, Z: 1}), Intensity: 0.8},
			{Direction: r3.Unit(r3.Vec{X: -1, Y: -1, Z: -1}), Intensity: 0.4},
		},
	}
}

const specularStrength = 0.3

// shade applies Lambert diffuse and Blinn-Phong specular terms for a surface
// with normal n seen from direction view
func (l Lighting) shade(base mesh.Color, n, view r3.Vec, shininess float64) mesh.Color {
	if r3.Dot(n, view) < 0 {
		n = r3.Scale(-1, n)
	}
	diffuse := l.Ambient
	specular := 0.0
	for _, light := range l.Directional {
		d := r3.Dot(n, light.Direction)
		if d <= 0 {
			continue
		}
		diffuse += light.Intensity * d
		h := r3.Unit(r3.Add(light.Direction, view))
		specular += light.Intensity * specularStrength * math.Pow(math.Max(0, r3.Dot(n, h)), shininess)
	}
	return mesh.Color{
		R: clamp01(base.R*diffuse + specular),
		G: clamp01(base.G*diffuse + specular),
		B: clamp01(base.B*diffuse + specular),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// camera is a perspective camera looking from position at target with +Y up
type camera struct {
	position r3.Vec
	target   r3.Vec
	fov      float64
	near     float64
	far      float64
	aspect   float64
}

// viewProjection returns the combined projection * view matrix in row-major
// order
func (c camera) viewProjection() [16]float64 {
	f := r3.Unit(r3.Sub(c.target, c.position))
	up := r3.Vec{Y: 1}
	if math.Abs(r3.Dot(f, up)) > 0.999 {
		up = r3.Vec{Z: 1}
	}
	s := r3.Unit(r3.Cross(f, up))
	u := r3.Cross(s, f)
	eye := c.position

	view := mat.NewDense(4, 4, []float64{
		s.X, s.Y, s.Z, -r3.Dot(s, eye),
		u.X, u.Y, u.Z, -r3.Dot(u, eye),
		-f.X, -f.Y, -f.Z, r3.Dot(f, eye),
		0, 0, 0, 1,
	})

	fy := 1 / math.Tan(c.fov*math.Pi/360)
	proj := mat.NewDense(4, 4, []float64{
		fy / c.aspect, 0, 0, 0,
		0, fy, 0, 0,
		0, 0, (c.far + c.near) / (c.near - c.far), 2 * c.far * c.near / (c.near - c.far),
		0, 0, -1, 0,
	})

	var vp mat.Dense
	vp.Mul(proj, view)
	var out [16]float64
	copy(out[:], vp.RawMatrix().Data)
	return out
}

// projected is a vertex in screen pixels with its clip w, which grows with
// distance from the camera
type projected struct {
	x, y, w float64
}

type projector struct {
	m      [16]float64
	width  float64
	height float64
	near   float64
	focal  float64
}

func newProjector(c camera, width, height int) projector {
	return projector{
		m:      c.viewProjection(),
		width:  float64(width),
		height: float64(height),
		near:   c.near,
		focal:  1 / math.Tan(c.fov*math.Pi/360),
	}
}

// project maps a world point to the screen; ok is false behind the near plane
func (p projector) project(v r3.Vec) (projected, bool) {
	m := p.m
	x := m[0]*v.X + m[1]*v.Y + m[2]*v.Z + m[3]
	y := m[4]*v.X + m[5]*v.Y + m[6]*v.Z + m[7]
	w := m[12]*v.X + m[13]*v.Y + m[14]*v.Z + m[15]
	if w < p.near {
		return projected{}, false
	}
	return projected{
		x: (x/w + 1) / 2 * p.width,
		y: (1 - y/w) / 2 * p.height,
		w: w,
	}, true
}

// radius converts a world radius at clip depth w into screen pixels
func (p projector) radius(r, w float64) float64 {
	return r * p.focal * p.height / 2 / w
}

type primitiveKind int

const (
	triangle primitiveKind = iota
	edgeLoop
	disc
)

// primitive is one shaded element queued for the painter
type primitive struct {
	kind   primitiveKind
	pts    [3]projected
	radius float64
	depth  float64
	color  gg.RGBA
}

// rasterizer draws scene objects with the painter's algorithm
type rasterizer struct {
	dc         *gg.Context
	lighting   Lighting
	background gg.RGBA
	queue      []primitive
}

func newRasterizer(width, height int, lighting Lighting, background gg.RGBA) *rasterizer {
	return &rasterizer{dc: gg.NewContext(width, height), lighting: lighting, background: background}
}

func (r *rasterizer) resize(width, height int) error {
	return r.dc.Resize(width, height)
}

func (r *rasterizer) close() error {
	return r.dc.Close()
}

// draw renders helpers and objects and returns a copy of the frame
func (r *rasterizer) draw(cam camera, helpers, objects []*object) (*image.RGBA, error) {
	w, h := r.dc.Width(), r.dc.Height()
	cam.aspect = float64(w) / float64(h)
	p := newProjector(cam, w, h)

	r.dc.ClearWithColor(r.background)
	for _, o := range helpers {
		r.drawLines(p, o)
	}

	r.queue = r.queue[:0]
	for _, o := range objects {
		switch {
		case o.surface != nil:
			r.queueSurface(p, cam, o)
		case o.points != nil:
			r.queuePoints(p, cam, o)
		}
	}
	// farthest first
	sort.SliceStable(r.queue, func(i, j int) bool { return r.queue[i].depth > r.queue[j].depth })
	for _, prim := range r.queue {
		r.paint(prim)
	}

	if err := r.dc.FlushGPU(); err != nil {
		return nil, err
	}
	if img, ok := r.dc.Image().(*image.RGBA); ok {
		return img, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), r.dc.Image(), image.Point{}, draw.Src)
	return img, nil
}

func (r *rasterizer) drawLines(p projector, o *object) {
	r.dc.SetLineWidth(1)
	for _, l := range o.lines {
		a, okA := p.project(l.from)
		b, okB := p.project(l.to)
		if !okA || !okB {
			continue
		}
		r.dc.SetColor(l.color.Color())
		r.dc.DrawLine(a.x, a.y, b.x, b.y)
		_ = r.dc.Stroke()
	}
}

func (r *rasterizer) queueSurface(p projector, cam camera, o *object) {
	g := o.surface.Geometry
	material := o.surface.Material
	n := g.VertexCount()
	proj := make([]projected, n)
	visible := make([]bool, n)
	for i := 0; i < n; i++ {
		proj[i], visible[i] = p.project(g.Vertex(i))
	}

	for t := 0; t+2 < len(g.Indices); t += 3 {
		ia, ib, ic := g.Indices[t], g.Indices[t+1], g.Indices[t+2]
		if !visible[ia] || !visible[ib] || !visible[ic] {
			continue
		}
		prim := primitive{
			kind:  triangle,
			pts:   [3]projected{proj[ia], proj[ib], proj[ic]},
			depth: (proj[ia].w + proj[ib].w + proj[ic].w) / 3,
		}
		if material.Wireframe {
			prim.kind = edgeLoop
			prim.color = rgba(material.Color, material.Opacity)
			r.queue = append(r.queue, prim)
			continue
		}

		a, b, c := g.Vertex(int(ia)), g.Vertex(int(ib)), g.Vertex(int(ic))
		normal := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if r3.Norm(normal) == 0 {
			continue
		}
		centre := r3.Scale(1.0/3, r3.Add(a, r3.Add(b, c)))
		view := r3.Unit(r3.Sub(cam.position, centre))
		shaded := r.lighting.shade(material.Color, r3.Unit(normal), view, material.Shininess)
		prim.color = rgba(shaded, material.Opacity)
		r.queue = append(r.queue, prim)
	}
}

func (r *rasterizer) queuePoints(p projector, cam camera, o *object) {
	pc := o.points
	radius := 0.0
	if b := pc.Sphere.Bounds; b.Max[0] > b.Min[0] {
		radius = (b.Max[0] - b.Min[0]) / 2
	}
	for _, c := range pc.Centers {
		s, ok := p.project(c)
		if !ok {
			continue
		}
		// a sphere seen head-on is brightest where its normal faces the viewer
		view := r3.Unit(r3.Sub(cam.position, c))
		shaded := r.lighting.shade(pc.Material.Color, view, view, pc.Material.Shininess)
		r.queue = append(r.queue, primitive{
			kind:   disc,
			pts:    [3]projected{s},
			radius: math.Max(0.5, p.radius(radius, s.w)),
			depth:  s.w,
			color:  rgba(shaded, pc.Material.Opacity),
		})
	}
}

func (r *rasterizer) paint(prim primitive) {
	dc := r.dc
	dc.SetColor(prim.color.Color())
	switch prim.kind {
	case disc:
		dc.DrawCircle(prim.pts[0].x, prim.pts[0].y, prim.radius)
		_ = dc.Fill()
	case edgeLoop:
		dc.SetLineWidth(1)
		dc.MoveTo(prim.pts[0].x, prim.pts[0].y)
		dc.LineTo(prim.pts[1].x, prim.pts[1].y)
		dc.LineTo(prim.pts[2].x, prim.pts[2].y)
		dc.ClosePath()
		_ = dc.Stroke()
	default:
		dc.MoveTo(prim.pts[0].x, prim.pts[0].y)
		dc.LineTo(prim.pts[1].x, prim.pts[1].y)
		dc.LineTo(prim.pts[2].x, prim.pts[2].y)
		dc.ClosePath()
		_ = dc.Fill()
	}
}

func rgba(c mesh.Color, alpha float64) gg.RGBA {
	return gg.RGBA{R: c.R, G: c.G, B: c.B, A: alpha}
}
