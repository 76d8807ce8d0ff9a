package visualization

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"brainviewer/internal/models"
	"brainviewer/pkg/transfer"
)

// RenderSlice extracts a slice and maps it through the display settings
func (v *Viewer) RenderSlice(axis models.Axis, index int, settings models.DisplaySettings) (*image.RGBA, error) {
	slice, err := v.ExtractSlice(axis, index)
	if err != nil {
		return nil, err
	}
	values := transfer.Render(slice.Data, settings.Level, settings.Width, settings.Contrast, settings.Brightness)
	if values == nil {
		return nil, fmt.Errorf("display settings produced no image")
	}
	return transfer.Apply(values, settings.Colormap), nil
}

// SaveSlice writes an image as PNG
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence renders every slice along axis and writes them to
// outputDir as slice_<axis>_NNN.png
func (v *Viewer) SaveSliceSequence(axis models.Axis, outputDir string, settings models.DisplaySettings) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	extent := v.Extent(axis)
	if extent == 0 {
		return fmt.Errorf("invalid axis: %s", axis)
	}

	for pos := 0; pos < extent; pos++ {
		img, err := v.RenderSlice(axis, pos, settings)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}
	return nil
}
