package session

import (
	"brainviewer/internal/models"
	"brainviewer/pkg/measure"
)

// Tool returns the selected measurement gesture
func (s *Session) Tool() measure.ToolKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool.Kind()
}

// SetTool selects a measurement gesture and drops any gesture in progress
func (s *Session) SetTool(k measure.ToolKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.Cancel()
	s.tool.SetKind(k)
}

// CancelGesture drops the gesture in progress
func (s *Session) CancelGesture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tool.Cancel()
}

// prepareTool points the tool at the displayed slice. Called with mu held.
func (s *Session) prepareTool() {
	spacing := models.UnitSpacing
	if v := s.volumes[models.Brain]; v != nil {
		spacing = v.PixelSpacing(s.axis)
	} else if v := s.volumes[models.Lesion]; v != nil {
		spacing = v.PixelSpacing(s.axis)
	}
	s.tool.SetContext(spacing, s.axis, s.current[s.axis])
}

// PointerDown routes a press on the canvas, in slice pixel coordinates
func (s *Session) PointerDown(p models.Point2D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareTool()
	s.tool.PointerDown(p)
}

// PointerMove previews the gesture in progress. With no tool selected the
// crosshair follows the pointer.
func (s *Session) PointerMove(p models.Point2D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tool.Kind() == measure.NoTool {
		s.crosshair = &p
		return
	}
	s.tool.PointerMove(p)
}

// PointerUp completes a distance gesture and records it
func (s *Session) PointerUp(p models.Point2D) (models.Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tool.PointerUp(p)
	if ok {
		s.record(m)
	}
	return m, ok
}

// Click adds a vertex to an area gesture
func (s *Session) Click(p models.Point2D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareTool()
	s.tool.Click(p)
}

// DoubleClick closes an area gesture and records it
func (s *Session) DoubleClick(p models.Point2D) (models.Measurement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tool.DoubleClick(p)
	if ok {
		s.record(m)
	}
	return m, ok
}

func (s *Session) record(m models.Measurement) {
	s.list.Append(m)
	s.log.Info().
		Str("kind", m.Kind.String()).
		Str("axis", m.Axis.String()).
		Int("slice", m.SliceIndex).
		Float64("value", m.Value).
		Msg("measurement added")
}

// Measurements returns every recorded measurement in insertion order
func (s *Session) Measurements() []models.Measurement {
	return s.list.All()
}

// List exposes the measurement list for export
func (s *Session) List() *measure.List {
	return s.list
}

// ClearMeasurements removes every recorded measurement
func (s *Session) ClearMeasurements() {
	s.list.Clear()
}
