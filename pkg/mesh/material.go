package mesh

import (
	"fmt"
	"strconv"
	"strings"
)

// Color is a linear RGB colour with channels in [0,1]
type Color struct {
	R, G, B float64
}

// ParseHexColor parses "#rrggbb" or "rrggbb"
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid colour %q: expected 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return Color{
		R: float64(v>>16&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v&0xff) / 255,
	}, nil
}

// Material describes how a surface is shaded
type Material struct {
	Color     Color
	Opacity   float64
	Wireframe bool

	// Transparent is derived from Opacity when the object is built
	Transparent bool

	// Shininess is the Phong specular exponent
	Shininess float64
}

// DefaultBrainMaterial is the translucent pink used for the brain surface
func DefaultBrainMaterial() Material {
	return Material{Color: Color{R: 1, G: 0xc0 / 255.0, B: 0xcb / 255.0}, Opacity: 0.8, Shininess: 30}
}

// DefaultLesionMaterial is the opaque red used for lesion surfaces and points
func DefaultLesionMaterial() Material {
	return Material{Color: Color{R: 1}, Opacity: 1, Shininess: 30}
}

func (m Material) finalize() Material {
	if m.Opacity <= 0 || m.Opacity > 1 {
		m.Opacity = 1
	}
	m.Transparent = m.Opacity < 1
	if m.Shininess <= 0 {
		m.Shininess = 30
	}
	return m
}
