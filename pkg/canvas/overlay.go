package canvas

import (
	"github.com/gogpu/gg"

	"brainviewer/internal/models"
)

var (
	gridColor      = gg.RGBA{R: 1, G: 1, B: 1, A: 0.3}
	crosshairColor = gg.RGBA{R: 0, G: 1, B: 0, A: 0.8}
	committedColor = gg.RGBA{R: 1, G: 1, B: 0, A: 1}
	draftColor     = gg.RGBA{R: 0, G: 1, B: 1, A: 1}
	labelColor     = gg.RGBA{R: 1, G: 1, B: 1, A: 1}
)

const (
	lineWidth    = 2
	markerRadius = 3
)

// drawGrid strokes one-pixel lines every GridSpacing raw pixels. Lines sit on
// pixel centres so they cover whole columns and rows.
func (r *Renderer) drawGrid(dc *gg.Context) {
	w, h := float64(dc.Width()), float64(dc.Height())
	step := r.opts.GridSpacing

	dc.SetColor(gridColor.Color())
	dc.SetLineWidth(1)
	for x := step; x < dc.Width(); x += step {
		dc.DrawLine(float64(x)+0.5, 0, float64(x)+0.5, h)
	}
	for y := step; y < dc.Height(); y += step {
		dc.DrawLine(0, float64(y)+0.5, w, float64(y)+0.5)
	}
	_ = dc.Stroke()
}

// drawCrosshair strokes dashed full-width and full-height lines through p
func (r *Renderer) drawCrosshair(dc *gg.Context, p models.Point2D) {
	w, h := float64(dc.Width()), float64(dc.Height())
	x, y := float64(int(p.X))+0.5, float64(int(p.Y))+0.5

	dc.SetColor(crosshairColor.Color())
	dc.SetLineWidth(1)
	if len(r.opts.CrosshairDash) > 0 {
		dc.SetDash(r.opts.CrosshairDash...)
	}
	// separate strokes so both lines start at the beginning of the pattern
	dc.DrawLine(x, 0, x, h)
	_ = dc.Stroke()
	dc.DrawLine(0, y, w, y)
	_ = dc.Stroke()
	dc.ClearDash()
}

// drawMeasurement strokes a distance segment or an area polygon with vertex
// markers and its value label
func (r *Renderer) drawMeasurement(dc *gg.Context, m models.Measurement, col gg.RGBA) {
	if len(m.Points) == 0 {
		return
	}

	dc.SetColor(col.Color())
	dc.SetLineWidth(lineWidth)

	if len(m.Points) > 1 {
		dc.MoveTo(m.Points[0].X, m.Points[0].Y)
		for _, p := range m.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		if m.Kind == models.Area && len(m.Points) > 2 {
			dc.ClosePath()
		}
		_ = dc.Stroke()
	}

	for _, p := range m.Points {
		dc.DrawCircle(p.X, p.Y, markerRadius)
	}
	_ = dc.Fill()

	if len(m.Points) < 2 {
		return
	}
	anchor := m.Points[len(m.Points)-1]
	if m.Kind == models.Area {
		anchor = centroid(m.Points)
	}
	dc.SetFont(r.face)
	dc.SetColor(labelColor.Color())
	dc.DrawString(m.Label(), anchor.X+markerRadius+2, anchor.Y-markerRadius-2)
}

func centroid(points []models.Point2D) models.Point2D {
	var c models.Point2D
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return models.Point2D{X: c.X / n, Y: c.Y / n}
}
