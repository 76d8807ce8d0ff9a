package orbit

import (
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// EventKind identifies an input event
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
	Wheel
)

// Button identifies the pointer button held during a drag
type Button int

const (
	LeftButton Button = iota
	MiddleButton
	RightButton
)

// Event is a pointer or wheel event in canvas pixels
type Event struct {
	Kind   EventKind
	X, Y   float64
	Button Button
	Shift  bool
	Delta  float64
}

// EventSource delivers input events to subscribers. Subscribe returns a
// function that removes the subscription.
type EventSource interface {
	Subscribe(func(Event)) (unsubscribe func())
}

type dragMode int

const (
	dragNone dragMode = iota
	dragRotate
	dragPan
)

// Controller drives a Rig from input events
type Controller struct {
	mu  sync.Mutex
	rig Rig

	rotateSpeed     float64
	autoRotate      bool
	autoRotateSpeed float64
	viewportHeight  float64

	drag        dragMode
	lastX       float64
	lastY       float64
	unsubscribe func()
}

// Options configures a Controller
type Options struct {
	RotateSpeed     float64
	AutoRotate      bool
	AutoRotateSpeed float64
	ViewportHeight  float64
}

// NewController creates a controller around an initial rig
func NewController(rig Rig, opts Options) *Controller {
	if opts.RotateSpeed <= 0 {
		opts.RotateSpeed = 0.005
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 600
	}
	return &Controller{
		rig:             rig,
		rotateSpeed:     opts.RotateSpeed,
		autoRotate:      opts.AutoRotate,
		autoRotateSpeed: opts.AutoRotateSpeed,
		viewportHeight:  opts.ViewportHeight,
	}
}

// Attach subscribes to src. Attaching twice keeps a single subscription.
func (c *Controller) Attach(src EventSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribe != nil {
		return
	}
	c.unsubscribe = src.Subscribe(c.Handle)
}

// Detach removes the subscription made by Attach. It is safe to call when
// not attached.
func (c *Controller) Detach() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.drag = dragNone
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Attached reports whether the controller is subscribed to a source
func (c *Controller) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribe != nil
}

// Handle applies one event to the rig
func (c *Controller) Handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case PointerDown:
		c.drag = dragRotate
		if e.Shift || e.Button == RightButton || e.Button == MiddleButton {
			c.drag = dragPan
		}
		c.lastX, c.lastY = e.X, e.Y
	case PointerMove:
		dx, dy := e.X-c.lastX, e.Y-c.lastY
		c.lastX, c.lastY = e.X, e.Y
		switch c.drag {
		case dragRotate:
			c.rig = Rotate(c.rig, -dx*c.rotateSpeed, -dy*c.rotateSpeed)
		case dragPan:
			c.rig = Pan(c.rig, dx, dy, c.viewportHeight)
		}
	case PointerUp:
		c.drag = dragNone
	case Wheel:
		c.rig = Zoom(c.rig, e.Delta)
	}
}

// SetViewportHeight updates the height used to scale panning
func (c *Controller) SetViewportHeight(h float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h > 0 {
		c.viewportHeight = h
	}
}

// SetAutoRotate toggles the idle spin
func (c *Controller) SetAutoRotate(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoRotate = on
}

// Retarget moves the orbit centre without changing the camera angles
func (c *Controller) Retarget(target r3.Vec, radius float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rig.Target = target
	if radius > 0 {
		c.rig.Radius = radius
	}
}

// Update advances one frame and returns the camera position and look-at target
func (c *Controller) Update() (position, target r3.Vec) {
	c.mu.Lock()
	defer c.mu.Unlock()
	spin := 0.0
	if c.autoRotate {
		spin = c.autoRotateSpeed
	}
	c.rig, position, target = Update(c.rig, spin)
	return position, target
}

// Rig returns a copy of the current rig
func (c *Controller) Rig() Rig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rig
}

// Bus is an in-process EventSource that fans events out to every subscriber
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns its removal function
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Len returns the number of live subscriptions
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish delivers e to every subscriber
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(e)
	}
}
