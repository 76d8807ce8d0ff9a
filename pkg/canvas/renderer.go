// Package canvas draws slice frames.
//
// A frame is the slice raster produced by the transfer functions, an optional
// lesion overlay, and vector overlays for the grid, the crosshair and the
// measurements. Every call to Render redraws the whole frame from its inputs.
package canvas

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"

	"brainviewer/internal/models"
	"brainviewer/pkg/transfer"
)

// ErrNoSlice is returned when a frame has no drawable slice
var ErrNoSlice = errors.New("no slice to draw")

// Frame holds everything a slice canvas shows
type Frame struct {
	Slice   *models.SliceImage
	Lesion  *models.SliceImage
	Display models.DisplaySettings

	ShowGrid      bool
	ShowCrosshair bool
	Crosshair     *models.Point2D

	// Measurements are the committed annotations of the displayed slice and
	// Current is the gesture in progress, if any
	Measurements []models.Measurement
	Current      *models.Measurement
}

// Options configures overlay drawing
type Options struct {
	// GridSpacing is the distance in raw pixels between grid lines
	GridSpacing int

	CrosshairDash []float64

	// LesionOpacity blends lesion voxels over the slice in red
	LesionOpacity float64

	// LabelSize is the measurement label font size in points
	LabelSize float64
}

// DefaultOptions returns the standard overlay configuration
func DefaultOptions() Options {
	return Options{
		GridSpacing:   50,
		CrosshairDash: []float64{5, 5},
		LesionOpacity: 0.5,
		LabelSize:     12,
	}
}

// Renderer draws frames. It is safe to reuse across frames but not for
// concurrent calls.
type Renderer struct {
	opts Options
	font *text.FontSource
	face text.Face
}

// NewRenderer creates a renderer with the embedded Go font for labels
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.GridSpacing <= 0 {
		opts.GridSpacing = 50
	}
	if opts.LabelSize <= 0 {
		opts.LabelSize = 12
	}
	src, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to load label font: %w", err)
	}
	return &Renderer{opts: opts, font: src, face: src.Face(opts.LabelSize)}, nil
}

// Close releases the label font
func (r *Renderer) Close() error {
	return r.font.Close()
}

// Render draws a frame into a new image as large as the slice
func (r *Renderer) Render(f Frame) (*image.RGBA, error) {
	if !f.Slice.Valid() {
		return nil, ErrNoSlice
	}
	d := f.Display
	values := transfer.Render(f.Slice.Data, d.Level, d.Width, d.Contrast, d.Brightness)
	if values == nil {
		return nil, fmt.Errorf("display settings produced no image (level %g, width %g, contrast %g)", d.Level, d.Width, d.Contrast)
	}
	img := transfer.Apply(values, d.Colormap)

	if f.Lesion.Valid() && f.Lesion.Width == f.Slice.Width && f.Lesion.Height == f.Slice.Height {
		blendLesion(img, f.Lesion, r.opts.LesionOpacity)
	}

	if err := r.drawOverlays(img, f); err != nil {
		return nil, err
	}
	return img, nil
}

// drawOverlays strokes the vector overlays on a transparent layer and
// composites it over the raster, leaving uncovered pixels untouched
func (r *Renderer) drawOverlays(img *image.RGBA, f Frame) error {
	showCrosshair := f.ShowCrosshair && f.Crosshair != nil
	if !f.ShowGrid && !showCrosshair && len(f.Measurements) == 0 && f.Current == nil {
		return nil
	}

	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	defer dc.Close()

	if f.ShowGrid {
		r.drawGrid(dc)
	}
	if showCrosshair {
		r.drawCrosshair(dc, *f.Crosshair)
	}
	for _, m := range f.Measurements {
		r.drawMeasurement(dc, m, committedColor)
	}
	if f.Current != nil {
		r.drawMeasurement(dc, *f.Current, draftColor)
	}

	if err := dc.FlushGPU(); err != nil {
		return fmt.Errorf("failed to flush overlays: %w", err)
	}
	draw.Draw(img, b, dc.Image(), image.Point{}, draw.Over)
	return nil
}

// blendLesion tints every voxel above zero in red
func blendLesion(img *image.RGBA, lesion *models.SliceImage, opacity float64) {
	if opacity <= 0 {
		return
	}
	if opacity > 1 {
		opacity = 1
	}
	for y := 0; y < lesion.Height; y++ {
		for x := 0; x < lesion.Width; x++ {
			if lesion.Data[y][x] <= 0 {
				continue
			}
			c := img.RGBAAt(x, y)
			img.SetRGBA(x, y, color.RGBA{
				R: mix(c.R, 255, opacity),
				G: mix(c.G, 0, opacity),
				B: mix(c.B, 0, opacity),
				A: 255,
			})
		}
	}
}

func mix(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t + 0.5)
}
