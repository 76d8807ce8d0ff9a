package canvas

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"

	"brainviewer/internal/models"
)

// Rect is the on-screen placement of a canvas element in client coordinates
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// PointerToPixel maps a client position onto the canvas pixel grid. The canvas
// may be displayed at a size different from its pixel size, so the offset is
// scaled by canvas/rendered size before flooring. ok is false when the rect is
// degenerate or the position falls outside the canvas.
func PointerToPixel(clientX, clientY float64, rect Rect, canvasWidth, canvasHeight int) (models.Point2D, bool) {
	if rect.Width <= 0 || rect.Height <= 0 || canvasWidth <= 0 || canvasHeight <= 0 {
		return models.Point2D{}, false
	}
	x := math.Floor((clientX - rect.X) * (float64(canvasWidth) / rect.Width))
	y := math.Floor((clientY - rect.Y) * (float64(canvasHeight) / rect.Height))
	if x < 0 || y < 0 || x >= float64(canvasWidth) || y >= float64(canvasHeight) {
		return models.Point2D{X: x, Y: y}, false
	}
	return models.Point2D{X: x, Y: y}, true
}

// EncodePNG writes a rendered frame as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode screenshot: %w", err)
	}
	return nil
}

// ScaleToFit enlarges or shrinks img to the largest size that fits within
// maxWidth x maxHeight while keeping its aspect ratio. Pixels are replicated
// without smoothing so individual voxels stay visible.
func ScaleToFit(img image.Image, maxWidth, maxHeight int) *image.RGBA {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 || maxWidth <= 0 || maxHeight <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}
	scale := math.Min(float64(maxWidth)/float64(b.Dx()), float64(maxHeight)/float64(b.Dy()))
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
