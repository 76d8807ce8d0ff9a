package measure

import (
	"fmt"
	"time"

	"brainviewer/internal/models"
)

// ToolKind selects the measurement gesture
type ToolKind int

const (
	NoTool ToolKind = iota
	DistanceTool
	AreaTool
)

func (k ToolKind) String() string {
	switch k {
	case DistanceTool:
		return "distance"
	case AreaTool:
		return "area"
	default:
		return "none"
	}
}

// ParseToolKind converts a tool name into a ToolKind
func ParseToolKind(s string) (ToolKind, error) {
	switch s {
	case "", "none":
		return NoTool, nil
	case "distance":
		return DistanceTool, nil
	case "area":
		return AreaTool, nil
	default:
		return NoTool, fmt.Errorf("unknown measurement tool: %q", s)
	}
}

// State is the phase of the current gesture
type State int

const (
	Idle State = iota
	Drawing
	Committed
)

func (s State) String() string {
	switch s {
	case Drawing:
		return "drawing"
	case Committed:
		return "committed"
	default:
		return "idle"
	}
}

// Tool turns pointer gestures into measurements.
//
// Distance: press anchors the first point, drag previews the second, release
// commits. Area: every click appends a vertex, double-click commits once the
// polygon has at least three vertices. Switching tools or calling Cancel drops
// the gesture in progress.
type Tool struct {
	kind    ToolKind
	state   State
	spacing models.Spacing
	points  []models.Point2D
	preview *models.Point2D

	axis  models.Axis
	slice int

	now    func() time.Time
	nextID int
}

// NewTool creates an idle tool with no measurement kind selected
func NewTool() *Tool {
	return &Tool{spacing: models.UnitSpacing, now: time.Now}
}

// SetClock replaces the timestamp source
func (t *Tool) SetClock(now func() time.Time) {
	t.now = now
}

// Kind returns the selected gesture
func (t *Tool) Kind() ToolKind { return t.kind }

// State returns the gesture phase
func (t *Tool) State() State { return t.state }

// SetKind selects a gesture. Any gesture in progress is discarded.
func (t *Tool) SetKind(k ToolKind) {
	if k != t.kind {
		t.Cancel()
	}
	t.kind = k
}

// SetContext sets the pixel spacing and slice location used for new points
func (t *Tool) SetContext(spacing models.Spacing, axis models.Axis, slice int) {
	if spacing.X <= 0 || spacing.Y <= 0 {
		spacing = models.UnitSpacing
	}
	t.spacing = spacing
	t.axis = axis
	t.slice = slice
}

// Cancel discards the in-progress gesture without producing a measurement
func (t *Tool) Cancel() {
	t.points = nil
	t.preview = nil
	t.state = Idle
}

// PointerDown starts a distance gesture
func (t *Tool) PointerDown(p models.Point2D) {
	if t.kind != DistanceTool {
		return
	}
	t.points = []models.Point2D{p}
	t.preview = &p
	t.state = Drawing
}

// PointerMove updates the live end point of a distance gesture or the rubber
// band vertex of an area gesture
func (t *Tool) PointerMove(p models.Point2D) {
	if t.state != Drawing {
		return
	}
	t.preview = &p
}

// PointerUp completes a distance gesture. It returns the committed
// measurement and true when the gesture produced one.
func (t *Tool) PointerUp(p models.Point2D) (models.Measurement, bool) {
	if t.kind != DistanceTool || t.state != Drawing || len(t.points) != 1 {
		return models.Measurement{}, false
	}
	t.points = append(t.points, p)
	m := t.build(models.Distance)
	t.points = nil
	t.preview = nil
	t.state = Committed
	return m, true
}

// Click appends a vertex to an area gesture, starting one if needed.
// A click on the same position as the last vertex is ignored.
func (t *Tool) Click(p models.Point2D) {
	if t.kind != AreaTool {
		return
	}
	if t.state != Drawing {
		t.points = nil
		t.state = Drawing
	}
	if n := len(t.points); n > 0 && t.points[n-1] == p {
		return
	}
	t.points = append(t.points, p)
	t.preview = nil
}

// DoubleClick commits an area gesture with at least three vertices and
// returns the tool to Idle
func (t *Tool) DoubleClick(p models.Point2D) (models.Measurement, bool) {
	if t.kind != AreaTool || t.state != Drawing {
		return models.Measurement{}, false
	}
	t.Click(p)
	if len(t.points) < 3 {
		return models.Measurement{}, false
	}
	m := t.build(models.Area)
	t.Cancel()
	return m, true
}

// Current returns the in-progress measurement, including the live preview
// point, or false when nothing is being drawn
func (t *Tool) Current() (models.Measurement, bool) {
	if t.state != Drawing || len(t.points) == 0 {
		return models.Measurement{}, false
	}
	pts := append([]models.Point2D(nil), t.points...)
	if t.preview != nil && (t.kind == DistanceTool || pts[len(pts)-1] != *t.preview) {
		pts = append(pts, *t.preview)
	}
	m := models.Measurement{Points: pts, Axis: t.axis, SliceIndex: t.slice}
	if t.kind == AreaTool {
		m.Kind = models.Area
		m.Value = Area(pts, t.spacing)
	} else {
		m.Kind = models.Distance
		if len(pts) >= 2 {
			m.Value = Distance(pts[0], pts[1], t.spacing)
		}
	}
	return m, true
}

func (t *Tool) build(kind models.MeasurementKind) models.Measurement {
	t.nextID++
	m := models.Measurement{
		ID:         fmt.Sprintf("m%d", t.nextID),
		Kind:       kind,
		Points:     append([]models.Point2D(nil), t.points...),
		CreatedAt:  t.now(),
		Axis:       t.axis,
		SliceIndex: t.slice,
	}
	if kind == models.Area {
		m.Value = Area(m.Points, t.spacing)
	} else {
		m.Value = Distance(m.Points[0], m.Points[1], t.spacing)
	}
	return m
}
