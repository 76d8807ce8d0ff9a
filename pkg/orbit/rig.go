// Package orbit implements spherical camera navigation around a target point:
// drag to rotate, shift-drag or right-drag to pan, wheel to zoom.
package orbit

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// polarEpsilon keeps the camera off the poles
	polarEpsilon = 0.01

	zoomOutFactor = 1.1
	zoomInFactor  = 0.9
)

// Limits bounds the rig
type Limits struct {
	MinDistance float64
	MaxDistance float64
}

// Rig is the camera state: a point on a sphere of Radius around Target.
// Polar is measured from +Y, Azimuth around +Y starting at +Z. Pending
// deltas accumulate between frames and are consumed by Update.
type Rig struct {
	Radius  float64
	Polar   float64
	Azimuth float64
	Target  r3.Vec

	PolarDelta   float64
	AzimuthDelta float64
	PanDelta     r3.Vec
	Scale        float64

	Limits Limits
}

// NewRig places the camera at position looking at target
func NewRig(position, target r3.Vec, limits Limits) Rig {
	offset := r3.Sub(position, target)
	radius := r3.Norm(offset)
	rig := Rig{Radius: radius, Target: target, Scale: 1, Limits: limits}
	if radius > 0 {
		rig.Polar = math.Acos(clamp(offset.Y/radius, -1, 1))
		rig.Azimuth = math.Atan2(offset.X, offset.Z)
	}
	return rig
}

// Rotate queues an angular change in radians
func Rotate(r Rig, dAzimuth, dPolar float64) Rig {
	r.AzimuthDelta += dAzimuth
	r.PolarDelta += dPolar
	return r
}

// Pan queues a translation of the target in the view plane. dx and dy are in
// screen pixels and are scaled by the current radius so panning feels the same
// at any zoom.
func Pan(r Rig, dx, dy, viewportHeight float64) Rig {
	if viewportHeight <= 0 {
		viewportHeight = 1
	}
	pos := r.Position()
	forward := r3.Unit(r3.Sub(r.Target, pos))
	up := r3.Vec{Y: 1}
	right := r3.Cross(forward, up)
	if r3.Norm(right) == 0 {
		right = r3.Vec{X: 1}
	}
	right = r3.Unit(right)
	camUp := r3.Unit(r3.Cross(right, forward))

	k := r.Radius / viewportHeight
	move := r3.Add(r3.Scale(-dx*k, right), r3.Scale(dy*k, camUp))
	r.PanDelta = r3.Add(r.PanDelta, move)
	return r
}

// Zoom queues a dolly step; positive wheel deltas move away from the target
func Zoom(r Rig, wheelDelta float64) Rig {
	if r.Scale == 0 {
		r.Scale = 1
	}
	switch {
	case wheelDelta > 0:
		r.Scale *= zoomOutFactor
	case wheelDelta < 0:
		r.Scale *= zoomInFactor
	}
	return r
}

// Update applies pending deltas and autoRotate (radians), clamps the polar
// angle to [ε, π-ε] and the radius to the rig limits, and returns the new
// state with deltas cleared plus the camera position and look-at target.
func Update(r Rig, autoRotate float64) (Rig, r3.Vec, r3.Vec) {
	if r.Scale == 0 {
		r.Scale = 1
	}
	r.Azimuth += r.AzimuthDelta + autoRotate
	r.Polar = clamp(r.Polar+r.PolarDelta, polarEpsilon, math.Pi-polarEpsilon)
	r.Radius *= r.Scale
	if r.Limits.MinDistance > 0 && r.Radius < r.Limits.MinDistance {
		r.Radius = r.Limits.MinDistance
	}
	if r.Limits.MaxDistance > 0 && r.Radius > r.Limits.MaxDistance {
		r.Radius = r.Limits.MaxDistance
	}
	r.Target = r3.Add(r.Target, r.PanDelta)

	r.AzimuthDelta, r.PolarDelta = 0, 0
	r.PanDelta = r3.Vec{}
	r.Scale = 1

	return r, r.Position(), r.Target
}

// Position returns the camera position for the current angles and radius
func (r Rig) Position() r3.Vec {
	sp := math.Sin(r.Polar)
	offset := r3.Vec{
		X: r.Radius * sp * math.Sin(r.Azimuth),
		Y: r.Radius * math.Cos(r.Polar),
		Z: r.Radius * sp * math.Cos(r.Azimuth),
	}
	return r3.Add(r.Target, offset)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
