package transfer

import (
	"image"
	"image/color"
	"math"

	"brainviewer/internal/models"
)

// RGB is an 8-bit colour triple
type RGB [3]uint8

// viridisAnchors are evenly spaced samples of the viridis colormap
var viridisAnchors = [...][3]float64{
	{0x44, 0x01, 0x54},
	{0x48, 0x28, 0x78},
	{0x3e, 0x4a, 0x89},
	{0x31, 0x68, 0x8e},
	{0x26, 0x82, 0x8e},
	{0x1f, 0x9e, 0x89},
	{0x35, 0xb7, 0x79},
	{0x6d, 0xcd, 0x59},
	{0xb4, 0xde, 0x2c},
	{0xfd, 0xe7, 0x25},
}

// Map converts an 8-bit display value into a colour
func Map(cmap models.Colormap, v uint8) RGB {
	t := float64(v) / 255
	switch cmap {
	case models.Jet:
		return fromUnit(jet(t))
	case models.Hot:
		return fromUnit(hot(t))
	case models.Rainbow:
		return fromUnit(hslToRGB((1-t)*240, 1, 0.5))
	case models.Viridis:
		return viridis(t)
	default:
		return RGB{v, v, v}
	}
}

// Table precomputes all 256 colours of a colormap
func Table(cmap models.Colormap) [256]RGB {
	var lut [256]RGB
	for i := range lut {
		lut[i] = Map(cmap, uint8(i))
	}
	return lut
}

// Apply rasterizes 8-bit values through a colormap into an opaque RGBA image.
// The image is as wide as the longest row; short rows leave black pixels.
func Apply(values [][]uint8, cmap models.Colormap) *image.RGBA {
	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
	}
	img := image.NewRGBA(image.Rect(0, 0, width, len(values)))
	lut := Table(cmap)
	for y, row := range values {
		for x, v := range row {
			c := lut[v]
			img.SetRGBA(x, y, color.RGBA{R: c[0], G: c[1], B: c[2], A: 255})
		}
	}
	return img
}

// jet is piecewise linear with breakpoints at the quartiles: blue, cyan,
// yellow, red.
func jet(t float64) (r, g, b float64) {
	switch {
	case t < 0.25:
		return 0, 4 * t, 1
	case t < 0.5:
		return 0, 1, 1 - 4*(t-0.25)
	case t < 0.75:
		return 4 * (t - 0.5), 1, 0
	default:
		return 1, 1 - 4*(t-0.75), 0
	}
}

// hot ramps red over the lower half, then green, then blue over the top quartile
func hot(t float64) (r, g, b float64) {
	switch {
	case t < 0.5:
		return 2 * t, 0, 0
	case t < 0.75:
		return 1, 4 * (t - 0.5), 0
	default:
		return 1, 1, 4 * (t - 0.75)
	}
}

func viridis(t float64) RGB {
	pos := t * float64(len(viridisAnchors)-1)
	i := int(math.Floor(pos))
	if i >= len(viridisAnchors)-1 {
		a := viridisAnchors[len(viridisAnchors)-1]
		return RGB{uint8(a[0]), uint8(a[1]), uint8(a[2])}
	}
	f := pos - float64(i)
	a, b := viridisAnchors[i], viridisAnchors[i+1]
	var c RGB
	for k := range c {
		c[k] = uint8(math.Round(a[k] + (b[k]-a[k])*f))
	}
	return c
}

// hslToRGB converts hue in degrees, saturation and lightness in [0,1]
func hslToRGB(h, s, l float64) (r, g, b float64) {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	switch {
	case hp < 1:
		r, g, b = c, x, 0
	case hp < 2:
		r, g, b = x, c, 0
	case hp < 3:
		r, g, b = 0, c, x
	case hp < 4:
		r, g, b = 0, x, c
	case hp < 5:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := l - c/2
	return r + m, g + m, b + m
}

func fromUnit(r, g, b float64) RGB {
	return RGB{unitTo8(r), unitTo8(g), unitTo8(b)}
}

func unitTo8(v float64) uint8 {
	return uint8(math.Round(clamp(v, 0, 1) * 255))
}
