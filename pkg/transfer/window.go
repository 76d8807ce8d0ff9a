// Package transfer maps raw voxel intensities to display values.
//
// The first stage applies a window/level transfer function with gamma contrast
// and a brightness offset, producing 8-bit values. The second stage turns 8-bit
// values into RGB through a colormap. Both stages are pure: malformed input
// yields an empty result instead of an error.
package transfer

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultLevel and DefaultWidth form the sentinel window. When a caller passes
// exactly this window and the slice has positive voxels, Render substitutes an
// auto-ranged window derived from the slice itself.
const (
	DefaultLevel = 40.0
	DefaultWidth = 80.0
)

// autoWidthFactor scales the non-zero intensity span into the auto window width
const autoWidthFactor = 0.8

// IsSentinel reports whether level and width are the auto-range sentinel
func IsSentinel(level, width float64) bool {
	return level == DefaultLevel && width == DefaultWidth
}

// AutoWindow derives a window from the positive voxels of a slice: the level is
// their mean and the width is 0.8 times their range. ok is false when the slice
// has no positive voxels.
func AutoWindow(slice [][]float64) (level, width float64, ok bool) {
	var nonZero []float64
	for _, row := range slice {
		for _, v := range row {
			if v > 0 && !math.IsInf(v, 0) {
				nonZero = append(nonZero, v)
			}
		}
	}
	if len(nonZero) == 0 {
		return 0, 0, false
	}
	level = stat.Mean(nonZero, nil)
	width = (floats.Max(nonZero) - floats.Min(nonZero)) * autoWidthFactor
	return level, width, true
}

// Render maps every voxel of slice to [0,255].
//
// Each value is clamped to [level-width/2, level+width/2], normalized to [0,1],
// raised to 1/contrast, offset by brightness/100, clamped again and scaled to
// 255 with rounding. Rows keep their own lengths.
func Render(slice [][]float64, level, width, contrast, brightness float64) [][]uint8 {
	if len(slice) == 0 || !(contrast > 0) || math.IsNaN(level) || math.IsNaN(width) || math.IsNaN(brightness) {
		return nil
	}

	if IsSentinel(level, width) {
		if l, w, ok := AutoWindow(slice); ok {
			level, width = l, w
		}
	}
	// A single-valued slice auto-ranges to zero width; keep the window usable.
	if width < 1 {
		width = 1
	}

	lo := level - width/2
	hi := level + width/2
	gamma := 1 / contrast
	offset := brightness / 100

	out := make([][]uint8, len(slice))
	for y, row := range slice {
		dst := make([]uint8, len(row))
		for x, v := range row {
			dst[x] = mapValue(v, lo, hi, gamma, offset)
		}
		out[y] = dst
	}
	return out
}

func mapValue(v, lo, hi, gamma, offset float64) uint8 {
	if math.IsNaN(v) {
		return 0
	}
	v = clamp(v, lo, hi)
	n := (v - lo) / (hi - lo)
	if gamma != 1 {
		n = math.Pow(n, gamma)
	}
	n = clamp(n+offset, 0, 1)
	return uint8(math.Round(n * 255))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
