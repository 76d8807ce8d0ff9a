package models

import (
	"fmt"
	"strings"
)

// Colormap selects how 8-bit display values are turned into RGB
type Colormap int

const (
	Gray Colormap = iota
	Jet
	Hot
	Rainbow
	Viridis
)

// Colormaps lists every supported colormap
var Colormaps = []Colormap{Gray, Jet, Hot, Rainbow, Viridis}

func (c Colormap) String() string {
	switch c {
	case Gray:
		return "gray"
	case Jet:
		return "jet"
	case Hot:
		return "hot"
	case Rainbow:
		return "rainbow"
	case Viridis:
		return "viridis"
	default:
		return fmt.Sprintf("colormap(%d)", int(c))
	}
}

// ParseColormap converts a colormap name into a Colormap
func ParseColormap(s string) (Colormap, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gray", "grey", "":
		return Gray, nil
	case "jet":
		return Jet, nil
	case "hot":
		return Hot, nil
	case "rainbow":
		return Rainbow, nil
	case "viridis":
		return Viridis, nil
	default:
		return Gray, fmt.Errorf("unknown colormap: %q", s)
	}
}

// DisplaySettings controls how a slice is mapped to screen pixels.
// It is a plain value; renderers read it and never keep it.
type DisplaySettings struct {
	// Level is the centre of the intensity window
	Level float64

	// Width is the extent of the intensity window
	Width float64

	// Contrast is the gamma exponent applied after windowing (1 = linear)
	Contrast float64

	// Brightness is an additive offset in percent of the display range
	Brightness float64

	Colormap Colormap
}

// DefaultDisplaySettings returns the sentinel window that triggers auto-ranging
func DefaultDisplaySettings() DisplaySettings {
	return DisplaySettings{
		Level:      40,
		Width:      80,
		Contrast:   1,
		Brightness: 0,
		Colormap:   Gray,
	}
}
