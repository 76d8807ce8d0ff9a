package orbit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

var defaultLimits = Limits{MinDistance: 10, MaxDistance: 1000}

func startRig() Rig {
	return NewRig(r3.Vec{Z: 100}, r3.Vec{}, defaultLimits)
}

func assertVec(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9)
	assert.InDelta(t, want.Y, got.Y, 1e-9)
	assert.InDelta(t, want.Z, got.Z, 1e-9)
}

func TestNewRigRecoversSphericalCoordinates(t *testing.T) {
	rig := startRig()
	assert.InDelta(t, 100.0, rig.Radius, 1e-9)
	assert.InDelta(t, math.Pi/2, rig.Polar, 1e-9)
	assert.InDelta(t, 0.0, rig.Azimuth, 1e-9)
	assertVec(t, r3.Vec{Z: 100}, rig.Position())
}

func TestUpdateClampsPolarAngle(t *testing.T) {
	rig, _, _ := Update(Rotate(startRig(), 0, -10), 0)
	assert.InDelta(t, polarEpsilon, rig.Polar, 1e-12)

	rig, _, _ = Update(Rotate(startRig(), 0, 10), 0)
	assert.InDelta(t, math.Pi-polarEpsilon, rig.Polar, 1e-12)
}

func TestZoom(t *testing.T) {
	rig, pos, _ := Update(Zoom(startRig(), 1), 0)
	assert.InDelta(t, 110.0, rig.Radius, 1e-9)
	assert.InDelta(t, 110.0, pos.Z, 1e-9)

	rig, _, _ = Update(Zoom(startRig(), -1), 0)
	assert.InDelta(t, 90.0, rig.Radius, 1e-9)

	rig = startRig()
	for i := 0; i < 50; i++ {
		rig, _, _ = Update(Zoom(rig, -1), 0)
	}
	assert.Equal(t, 10.0, rig.Radius)

	for i := 0; i < 100; i++ {
		rig, _, _ = Update(Zoom(rig, 1), 0)
	}
	assert.Equal(t, 1000.0, rig.Radius)
}

func TestUpdateClearsDeltas(t *testing.T) {
	rig := Rotate(startRig(), 0.3, 0.2)
	rig = Zoom(rig, 1)
	rig = Pan(rig, 5, 5, 100)

	rig, _, _ = Update(rig, 0)
	assert.Zero(t, rig.AzimuthDelta)
	assert.Zero(t, rig.PolarDelta)
	assert.Equal(t, r3.Vec{}, rig.PanDelta)
	assert.Equal(t, 1.0, rig.Scale)

	// A second update with no input is a no-op
	again, _, _ := Update(rig, 0)
	assert.Equal(t, rig, again)
}

func TestAutoRotate(t *testing.T) {
	rig, _, _ := Update(startRig(), 0.01)
	assert.InDelta(t, 0.01, rig.Azimuth, 1e-12)
}

func TestPanMovesTargetInViewPlane(t *testing.T) {
	rig, pos, target := Update(Pan(startRig(), 10, 0, 100), 0)
	assertVec(t, r3.Vec{X: -10}, target)
	assertVec(t, r3.Vec{X: -10, Z: 100}, pos)
	assert.InDelta(t, 100.0, rig.Radius, 1e-9)
}

func TestControllerRotatesOnDrag(t *testing.T) {
	c := NewController(startRig(), Options{RotateSpeed: 0.005})
	c.Handle(Event{Kind: PointerDown})
	c.Handle(Event{Kind: PointerMove, X: 100})
	c.Handle(Event{Kind: PointerUp, X: 100})
	c.Update()
	assert.InDelta(t, -0.5, c.Rig().Azimuth, 1e-9)

	// Moves after release do nothing
	c.Handle(Event{Kind: PointerMove, X: 200})
	c.Update()
	assert.InDelta(t, -0.5, c.Rig().Azimuth, 1e-9)
}

func TestControllerShiftDragPans(t *testing.T) {
	c := NewController(startRig(), Options{ViewportHeight: 100})
	c.Handle(Event{Kind: PointerDown, Shift: true})
	c.Handle(Event{Kind: PointerMove, X: 10})
	_, target := c.Update()
	assertVec(t, r3.Vec{X: -10}, target)
}

func TestAttachDetachIsIdempotent(t *testing.T) {
	bus := NewBus()
	c := NewController(startRig(), Options{})

	c.Attach(bus)
	c.Attach(bus)
	require.Equal(t, 1, bus.Len())
	assert.True(t, c.Attached())

	bus.Publish(Event{Kind: Wheel, Delta: 1})
	c.Update()
	assert.InDelta(t, 110.0, c.Rig().Radius, 1e-9)

	c.Detach()
	c.Detach()
	assert.Equal(t, 0, bus.Len())
	assert.False(t, c.Attached())

	bus.Publish(Event{Kind: Wheel, Delta: 1})
	c.Update()
	assert.InDelta(t, 110.0, c.Rig().Radius, 1e-9)

	// Re-attaching after detach works
	c.Attach(bus)
	assert.Equal(t, 1, bus.Len())
	c.Detach()
}

func TestAutoRotateToggle(t *testing.T) {
	c := NewController(startRig(), Options{AutoRotate: true, AutoRotateSpeed: 0.02})
	c.Update()
	c.SetAutoRotate(false)
	c.Update()
	assert.InDelta(t, 0.02, c.Rig().Azimuth, 1e-12)
}
