// Package measure computes physical distances and areas on slices and keeps
// the measurement annotations drawn by the user.
package measure

import (
	"math"

	"brainviewer/internal/models"
)

// Distance returns the physical length in mm between two pixel positions
func Distance(p1, p2 models.Point2D, spacing models.Spacing) float64 {
	dx := (p2.X - p1.X) * spacing.X
	dy := (p2.Y - p1.Y) * spacing.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Area returns the physical surface in mm² of the polygon given by points,
// using the shoelace formula on pixel coordinates. Fewer than three points
// enclose no area.
func Area(points []models.Point2D, spacing models.Spacing) float64 {
	n := len(points)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2 * spacing.X * spacing.Y
}

// Perimeter returns the closed outline length in mm of a polygon
func Perimeter(points []models.Point2D, spacing models.Spacing) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var total float64
	for i := 0; i < n; i++ {
		total += Distance(points[i], points[(i+1)%n], spacing)
	}
	return total
}
