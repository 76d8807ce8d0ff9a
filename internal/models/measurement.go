package models

import (
	"fmt"
	"time"
)

// Point2D is a pixel position on a slice
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Spacing is the physical size of one pixel in mm along columns (X) and rows (Y)
type Spacing struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UnitSpacing is 1 mm in both directions
var UnitSpacing = Spacing{X: 1, Y: 1}

// MeasurementKind tags the Measurement variant
type MeasurementKind int

const (
	Distance MeasurementKind = iota
	Area
)

func (k MeasurementKind) String() string {
	if k == Area {
		return "area"
	}
	return "distance"
}

func (k MeasurementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MeasurementKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "distance":
		*k = Distance
	case "area":
		*k = Area
	default:
		return fmt.Errorf("unknown measurement kind: %q", b)
	}
	return nil
}

// Measurement is a finished or in-progress annotation on a slice.
// Distance measurements carry exactly two points; area measurements carry the
// polygon vertices in drawing order.
type Measurement struct {
	ID     string          `json:"id"`
	Kind   MeasurementKind `json:"kind"`
	Points []Point2D       `json:"points"`

	// Value is the length in mm for distances or the surface in mm² for areas
	Value float64 `json:"value"`

	CreatedAt time.Time `json:"created_at"`

	// Axis and SliceIndex record where the measurement was taken
	Axis       Axis `json:"axis"`
	SliceIndex int  `json:"slice_index"`
}

// Unit returns the physical unit of Value
func (m Measurement) Unit() string {
	if m.Kind == Area {
		return "mm²"
	}
	return "mm"
}

// Label formats the value the way it is drawn next to the annotation
func (m Measurement) Label() string {
	return fmt.Sprintf("%.1f %s", m.Value, m.Unit())
}

// Clone returns a deep copy so callers cannot alias the points slice
func (m Measurement) Clone() Measurement {
	c := m
	c.Points = append([]Point2D(nil), m.Points...)
	return c
}
