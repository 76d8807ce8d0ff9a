package models

import (
	"fmt"
	"strings"
)

// Axis identifies one of the three anatomical viewing planes
type Axis int

const (
	Axial Axis = iota
	Coronal
	Sagittal
)

// Axes lists the anatomical axes in display order
var Axes = []Axis{Axial, Coronal, Sagittal}

// String returns the wire name of the axis as used by the imaging service
func (a Axis) String() string {
	switch a {
	case Axial:
		return "axial"
	case Coronal:
		return "coronal"
	case Sagittal:
		return "sagittal"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// ParseAxis converts a wire name into an Axis
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "axial", "z":
		return Axial, nil
	case "coronal", "y":
		return Coronal, nil
	case "sagittal", "x":
		return Sagittal, nil
	default:
		return Axial, fmt.Errorf("invalid axis: %q (must be axial, coronal or sagittal)", s)
	}
}

func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Axis) UnmarshalText(b []byte) error {
	v, err := ParseAxis(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// FileRole distinguishes the brain volume from the lesion mask
type FileRole int

const (
	Brain FileRole = iota
	Lesion
)

// Roles lists every file role
var Roles = []FileRole{Brain, Lesion}

func (r FileRole) String() string {
	if r == Lesion {
		return "lesion"
	}
	return "brain"
}

// ParseFileRole converts the upload "type" field into a FileRole
func ParseFileRole(s string) (FileRole, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "brain", "flair", "":
		return Brain, nil
	case "lesion":
		return Lesion, nil
	default:
		return Brain, fmt.Errorf("invalid file role: %q", s)
	}
}

// VolumeRef identifies a volume held by the imaging service
type VolumeRef struct {
	// FileID is the opaque identifier assigned by the service on upload
	FileID string

	// Role tells whether this volume is the brain or the lesion mask
	Role FileRole

	// Shape is the voxel grid extent along x, y and z
	Shape [3]int

	// Spacing is the physical voxel size in mm along x, y and z
	Spacing [3]float64

	// DataType is the scalar type tag reported by the service (e.g. "float32")
	DataType string

	// Min and Max are the cached intensity range of the whole volume
	Min float64
	Max float64

	Mean         float64
	NonZeroMean  float64
	NonZeroCount int
	TotalVoxels  int
}

// Extent returns the number of slices available along the given axis.
// Axial slices walk z, coronal slices walk y and sagittal slices walk x.
func (v VolumeRef) Extent(axis Axis) int {
	switch axis {
	case Axial:
		return v.Shape[2]
	case Coronal:
		return v.Shape[1]
	case Sagittal:
		return v.Shape[0]
	default:
		return 0
	}
}

// PixelSpacing returns the in-plane column and row spacing in mm for slices
// along the given axis, after radiological orientation has been applied.
func (v VolumeRef) PixelSpacing(axis Axis) Spacing {
	s := v.Spacing
	for i := range s {
		if s[i] <= 0 {
			s[i] = 1
		}
	}
	switch axis {
	case Coronal:
		return Spacing{X: s[0], Y: s[2]}
	case Sagittal:
		return Spacing{X: s[1], Y: s[2]}
	default:
		return Spacing{X: s[0], Y: s[1]}
	}
}

// Valid reports whether the reference describes a usable 3D volume
func (v VolumeRef) Valid() bool {
	return v.FileID != "" && v.Shape[0] > 0 && v.Shape[1] > 0 && v.Shape[2] > 0
}

// SliceImage is a single oriented 2D cross-section of a volume
type SliceImage struct {
	// Data holds the scalar values in row-major order, Height rows of Width columns
	Data [][]float64

	// Width and Height are the dimensions of the slice in pixels
	Width  int
	Height int

	// Axis and Index locate the slice in its volume
	Axis  Axis
	Index int

	// MaxIndex is the number of slices available along Axis
	MaxIndex int

	// OrientationApplied asserts the source already reordered the axes into
	// radiological convention
	OrientationApplied bool
}

// Valid reports whether Data matches the declared shape
func (s *SliceImage) Valid() bool {
	if s == nil || s.Width <= 0 || s.Height <= 0 || len(s.Data) != s.Height {
		return false
	}
	for _, row := range s.Data {
		if len(row) != s.Width {
			return false
		}
	}
	return true
}

// At returns the value at column x, row y, or 0 outside the slice
func (s *SliceImage) At(x, y int) float64 {
	if s == nil || y < 0 || y >= len(s.Data) || x < 0 || x >= len(s.Data[y]) {
		return 0
	}
	return s.Data[y][x]
}
