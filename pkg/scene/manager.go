// Package scene owns the 3D view: the render surface, the camera and its
// orbit controller, lights and helpers, the render loop, and one scene object
// per role. Replacing an object always releases the previous object's
// geometry and material before the new one is inserted.
package scene

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/gogpu/gg"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/spatial/r3"

	"brainviewer/internal/models"
	"brainviewer/pkg/mesh"
	"brainviewer/pkg/orbit"
)

var (
	ErrNotMounted     = errors.New("scene is not mounted")
	ErrAlreadyMounted = errors.New("scene is already mounted")
)

// ViewMode selects between the slice viewer and the 3D view. Objects exist
// only in 3D mode.
type ViewMode int

const (
	Mode2D ViewMode = iota
	Mode3D
)

func (m ViewMode) String() string {
	if m == Mode3D {
		return "3d"
	}
	return "2d"
}

// Style is the user-adjustable appearance of a role's object
type Style struct {
	Color     mesh.Color
	Opacity   float64
	Wireframe bool
}

// BrainStyle returns the default brain appearance
func BrainStyle() Style {
	m := mesh.DefaultBrainMaterial()
	return Style{Color: m.Color, Opacity: m.Opacity}
}

// LesionStyle returns the default lesion appearance
func LesionStyle() Style {
	m := mesh.DefaultLesionMaterial()
	return Style{Color: m.Color, Opacity: m.Opacity}
}

func (s Style) material() mesh.Material {
	return mesh.Material{Color: s.Color, Opacity: s.Opacity, Wireframe: s.Wireframe}
}

// Options configures a Manager
type Options struct {
	FPS  int
	FOV  float64
	Near float64
	Far  float64

	// Camera is the initial camera position; the camera looks at the origin
	Camera     r3.Vec
	Limits     orbit.Limits
	Orbit      orbit.Options
	Points     mesh.PointOptions
	Lighting   Lighting
	Background color.Color

	// Frames creates the frame source when the scene is mounted
	Frames func(fps int) FrameSource

	Logger zerolog.Logger
}

// DefaultOptions returns a 75° camera at z=200 driven by a 60 fps ticker
func DefaultOptions() Options {
	return Options{
		FPS:        60,
		FOV:        75,
		Near:       0.1,
		Far:        10000,
		Camera:     r3.Vec{Z: 200},
		Limits:     orbit.Limits{MinDistance: 10, MaxDistance: 1000},
		Points:     mesh.DefaultPointOptions(),
		Lighting:   DefaultLighting(),
		Background: color.RGBA{R: 0x1a, G: 0x1a, B: 0x1a, A: 0xff},
		Frames:     func(fps int) FrameSource { return NewTicker(fps) },
		Logger:     zerolog.Nop(),
	}
}

type line struct {
	from, to r3.Vec
	color    gg.RGBA
}

// object is a node of the scene graph with the surface resources backing it
type object struct {
	label   string
	surface *mesh.Object
	points  *mesh.PointCloud
	lines   []line

	geometry Handle
	material Handle
}

// Manager is the scene resource manager
type Manager struct {
	mu      sync.Mutex
	surface Surface
	opts    Options
	log     zerolog.Logger

	mounted    bool
	mode       ViewMode
	raster     *rasterizer
	controller *orbit.Controller
	loop       *Loop
	helpers    []*object
	objects    map[models.FileRole]*object

	brain       *models.MeshData
	brainStyle  Style
	lesion      models.LesionVisual
	lesionStyle Style

	frames    int
	lastFrame *image.RGBA
}

// NewManager creates an unmounted manager drawing to surface
func NewManager(surface Surface, opts Options) *Manager {
	d := DefaultOptions()
	if opts.FPS <= 0 {
		opts.FPS = d.FPS
	}
	if opts.FOV <= 0 {
		opts.FOV = d.FOV
	}
	if opts.Near <= 0 {
		opts.Near = d.Near
	}
	if opts.Far <= opts.Near {
		opts.Far = d.Far
	}
	if r3.Norm(opts.Camera) == 0 {
		opts.Camera = d.Camera
	}
	if opts.Lighting.Ambient == 0 && len(opts.Lighting.Directional) == 0 {
		opts.Lighting = d.Lighting
	}
	if opts.Background == nil {
		opts.Background = d.Background
	}
	if opts.Frames == nil {
		opts.Frames = d.Frames
	}

	m := &Manager{
		surface:     surface,
		opts:        opts,
		log:         opts.Logger.With().Str("component", "scene").Logger(),
		mode:        Mode3D,
		objects:     make(map[models.FileRole]*object),
		brainStyle:  BrainStyle(),
		lesionStyle: LesionStyle(),
		lesion:      models.NoVisual{},
	}
	m.loop = NewLoop(m.onFrame)
	return m
}

// Mount sizes the surface, creates the camera, lights and helpers, attaches
// the orbit controller to events (which may be nil) and starts the render
// loop. Objects for props set before mounting are built now.
func (m *Manager) Mount(width, height int, events orbit.EventSource) error {
	m.mu.Lock()
	if m.mounted {
		m.mu.Unlock()
		return ErrAlreadyMounted
	}
	if err := m.surface.Resize(width, height); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("failed to size surface: %w", err)
	}

	bg := gg.FromColor(m.opts.Background)
	m.raster = newRasterizer(width, height, m.opts.Lighting, bg)
	m.controller = orbit.NewController(orbit.NewRig(m.opts.Camera, r3.Vec{}, m.opts.Limits), m.opts.Orbit)
	m.controller.SetViewportHeight(float64(height))

	for _, h := range []*object{axesHelper(100), gridHelper(200, 20)} {
		if err := m.allocate(h); err != nil {
			m.disposeAll()
			_ = m.raster.close()
			m.mu.Unlock()
			return err
		}
		m.helpers = append(m.helpers, h)
	}
	m.mounted = true

	if err := m.rebuild(models.Brain); err != nil {
		m.log.Error().Err(err).Msg("failed to build brain object")
	}
	if err := m.rebuild(models.Lesion); err != nil {
		m.log.Error().Err(err).Msg("failed to build lesion object")
	}
	m.log.Info().Int("width", width).Int("height", height).Msg("scene mounted")
	m.mu.Unlock()

	if events != nil {
		m.controller.Attach(events)
	}
	m.loop.Start(m.opts.Frames(m.opts.FPS))
	return nil
}

// Unmount stops the render loop, detaches the controller, releases every
// object and helper and closes the surface. Unmounting twice is a no-op.
func (m *Manager) Unmount() error {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	// the loop takes mu for each frame, so it is stopped before mu is held
	m.loop.Stop()
	m.controller.Detach()

	m.mu.Lock()
	defer m.mu.Unlock()
	// a concurrent Unmount may have finished while mu was released
	if !m.mounted {
		return nil
	}
	m.mounted = false
	m.disposeAll()
	err := errors.Join(m.raster.close(), m.surface.Close())
	m.raster = nil
	m.lastFrame = nil
	m.log.Info().Int("frames", m.frames).Msg("scene unmounted")
	return err
}

// Mounted reports whether the scene is mounted
func (m *Manager) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Running reports whether the render loop is running
func (m *Manager) Running() bool {
	return m.loop.Running()
}

// Controller returns the orbit controller, nil before the first mount
func (m *Manager) Controller() *orbit.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.controller
}

// SetViewMode switches modes. Leaving 3D releases both role objects; entering
// 3D rebuilds them from the current props.
func (m *Manager) SetViewMode(mode ViewMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == mode {
		return nil
	}
	m.mode = mode
	return errors.Join(m.rebuild(models.Brain), m.rebuild(models.Lesion))
}

// ViewMode returns the current mode
func (m *Manager) ViewMode() ViewMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SetBrain replaces the brain surface. A nil mesh removes it. A mesh that
// fails validation is rejected and the current surface stays. The camera is
// re-aimed at the new surface.
func (m *Manager) SetBrain(data *models.MeshData, style Style) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data != nil {
		d := *data
		data = &d
	}
	o, err := buildBrain(data, style)
	if err != nil {
		return err
	}
	m.brain = data
	m.brainStyle = style
	if err := m.replace(models.Brain, o); err != nil {
		return err
	}
	if o != nil && m.controller != nil {
		b := o.surface.Geometry.Bounds
		m.controller.Retarget(mesh.Center(b), mesh.Radius(b)*2.5)
	}
	return nil
}

// SetLesion replaces the lesion object with the resolved visual. An invalid
// lesion mesh is rejected and the current lesion object stays.
func (m *Manager) SetLesion(visual models.LesionVisual, style Style) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if visual == nil {
		visual = models.NoVisual{}
	}
	o, err := m.buildLesion(visual, style)
	if err != nil {
		return err
	}
	m.lesion = visual
	m.lesionStyle = style
	return m.replace(models.Lesion, o)
}

// Count returns the number of live objects for a role, at most one
func (m *Manager) Count(role models.FileRole) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[role] != nil {
		return 1
	}
	return 0
}

// Resize updates the surface, the rasterizer viewport and the camera aspect
func (m *Manager) Resize(width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted {
		return ErrNotMounted
	}
	if err := m.surface.Resize(width, height); err != nil {
		return err
	}
	if err := m.raster.resize(width, height); err != nil {
		return err
	}
	m.controller.SetViewportHeight(float64(height))
	return nil
}

// RenderFrame advances the controller and draws and presents one frame
func (m *Manager) RenderFrame() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.render()
}

func (m *Manager) render() error {
	if !m.mounted {
		return ErrNotMounted
	}
	pos, target := m.controller.Update()
	cam := camera{position: pos, target: target, fov: m.opts.FOV, near: m.opts.Near, far: m.opts.Far}

	var objects []*object
	if m.mode == Mode3D {
		for _, role := range models.Roles {
			if o := m.objects[role]; o != nil {
				objects = append(objects, o)
			}
		}
	}
	img, err := m.raster.draw(cam, m.helpers, objects)
	if err != nil {
		return fmt.Errorf("failed to draw frame: %w", err)
	}
	if err := m.surface.Present(img); err != nil {
		return fmt.Errorf("failed to present frame: %w", err)
	}
	m.lastFrame = img
	m.frames++
	return nil
}

func (m *Manager) onFrame(time.Time) {
	if err := m.RenderFrame(); err != nil {
		m.log.Error().Err(err).Msg("frame failed")
	}
}

// Snapshot returns a copy of the last presented frame, rendering one first
// if nothing has been presented yet
func (m *Manager) Snapshot() (*image.RGBA, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted {
		return nil, ErrNotMounted
	}
	if m.lastFrame == nil {
		if err := m.render(); err != nil {
			return nil, err
		}
	}
	out := image.NewRGBA(m.lastFrame.Bounds())
	copy(out.Pix, m.lastFrame.Pix)
	return out, nil
}

// FocusNearestLesion aims the camera at the lesion point closest to p and
// returns it. ok is false when the lesion is not shown as points.
func (m *Manager) FocusNearestLesion(p r3.Vec) (r3.Vec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.objects[models.Lesion]
	if o == nil || o.points == nil || m.controller == nil {
		return r3.Vec{}, false
	}
	i, _, ok := o.points.Nearest(p)
	if !ok {
		return r3.Vec{}, false
	}
	c := o.points.Centers[i]
	m.controller.Retarget(c, 0)
	return c, true
}

// rebuild rebuilds the role's object from the current props. Called with mu
// held.
func (m *Manager) rebuild(role models.FileRole) error {
	var o *object
	var err error
	if role == models.Brain {
		o, err = buildBrain(m.brain, m.brainStyle)
	} else {
		o, err = m.buildLesion(m.lesion, m.lesionStyle)
	}
	if err != nil {
		return err
	}
	return m.replace(role, o)
}

// replace releases the role's object and, when mounted in 3D mode, inserts
// o, which may be nil. o has already been validated. Called with mu held.
func (m *Manager) replace(role models.FileRole, o *object) error {
	if old := m.objects[role]; old != nil {
		delete(m.objects, role)
		m.dispose(old)
	}
	if o == nil || !m.mounted || m.mode != Mode3D {
		return nil
	}
	if err := m.allocate(o); err != nil {
		return err
	}
	m.objects[role] = o
	m.log.Debug().Str("role", role.String()).Str("object", o.label).Msg("object inserted")
	return nil
}

func buildBrain(data *models.MeshData, style Style) (*object, error) {
	if data == nil {
		return nil, nil
	}
	obj, err := mesh.BuildMesh(*data, style.material())
	if err != nil {
		return nil, fmt.Errorf("failed to build brain mesh: %w", err)
	}
	return &object{label: "brain-mesh", surface: obj}, nil
}

func (m *Manager) buildLesion(visual models.LesionVisual, style Style) (*object, error) {
	switch v := visual.(type) {
	case models.MeshVisual:
		obj, err := mesh.BuildMesh(v.Mesh, style.material())
		if err != nil {
			return nil, fmt.Errorf("failed to build lesion mesh: %w", err)
		}
		return &object{label: "lesion-mesh", surface: obj}, nil
	case models.PointsVisual:
		if len(v.Set.Coordinates) == 0 {
			return nil, nil
		}
		opts := m.opts.Points
		opts.Material = style.material()
		pc := mesh.BuildPoints(v.Set, opts)
		if pc.Step > 1 {
			m.log.Info().Int("total", pc.Total).Int("drawn", pc.Len()).Int("step", pc.Step).Msg("lesion points subsampled")
		}
		return &object{label: "lesion-points", points: pc}, nil
	default:
		return nil, nil
	}
}

// allocate reserves the geometry and material buffers of o
func (m *Manager) allocate(o *object) error {
	g, err := m.surface.Allocate(GeometryResource, o.label)
	if err != nil {
		return fmt.Errorf("failed to allocate geometry for %s: %w", o.label, err)
	}
	mat, err := m.surface.Allocate(MaterialResource, o.label)
	if err != nil {
		if rerr := m.surface.Release(g); rerr != nil {
			m.log.Error().Err(rerr).Str("object", o.label).Msg("failed to release geometry")
		}
		return fmt.Errorf("failed to allocate material for %s: %w", o.label, err)
	}
	o.geometry, o.material = g, mat
	return nil
}

// dispose releases the buffers of o. Failures are logged and never stop the
// manager.
func (m *Manager) dispose(o *object) {
	if o.geometry != 0 {
		if err := m.surface.Release(o.geometry); err != nil {
			m.log.Error().Err(err).Str("object", o.label).Msg("failed to release geometry")
		}
		o.geometry = 0
	}
	if o.material != 0 {
		if err := m.surface.Release(o.material); err != nil {
			m.log.Error().Err(err).Str("object", o.label).Msg("failed to release material")
		}
		o.material = 0
	}
}

func (m *Manager) disposeAll() {
	for role, o := range m.objects {
		delete(m.objects, role)
		m.dispose(o)
	}
	for _, h := range m.helpers {
		m.dispose(h)
	}
	m.helpers = nil
}

// axesHelper draws the X, Y and Z axes in red, green and blue
func axesHelper(length float64) *object {
	return &object{
		label: "axes-helper",
		lines: []line{
			{to: r3.Vec{X: length}, color: gg.RGBA{R: 1, A: 1}},
			{to: r3.Vec{Y: length}, color: gg.RGBA{G: 1, A: 1}},
			{to: r3.Vec{Z: length}, color: gg.RGBA{B: 1, A: 1}},
		},
	}
}

// gridHelper draws a square grid on the XZ plane centred on the origin
func gridHelper(size float64, divisions int) *object {
	half := size / 2
	step := size / float64(divisions)
	col := gg.RGBA{R: 0.27, G: 0.27, B: 0.27, A: 1}
	o := &object{label: "grid-helper"}
	for i := 0; i <= divisions; i++ {
		k := -half + float64(i)*step
		o.lines = append(o.lines,
			line{from: r3.Vec{X: k, Z: -half}, to: r3.Vec{X: k, Z: half}, color: col},
			line{from: r3.Vec{X: -half, Z: k}, to: r3.Vec{X: half, Z: k}, color: col},
		)
	}
	return o
}
