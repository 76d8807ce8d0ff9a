// Package visualization holds volumes in memory and cuts radiologically
// oriented slices from them. It backs the viewer when no imaging service is
// available and provides the reference data for the in-process fake service.
package visualization

import (
	"errors"
	"fmt"

	"brainviewer/internal/models"
)

// ErrSliceOutOfRange is returned when a slice index is outside the volume
var ErrSliceOutOfRange = errors.New("slice index out of range")

// Viewer is an in-memory scalar volume. Voxels are stored x fastest, then y,
// then z: index = z*width*height + y*width + x.
type Viewer struct {
	// volumeData holds the voxel intensities
	volumeData []float64

	// dimensions of the volume along x, y and z
	width  int
	height int
	depth  int

	// spacing is the physical voxel size in mm along x, y and z
	spacing [3]float64
}

// NewViewer wraps volume data of the given dimensions. Missing trailing voxels
// read as zero.
func NewViewer(volumeData []float64, width, height, depth int, spacing [3]float64) *Viewer {
	for i := range spacing {
		if spacing[i] <= 0 {
			spacing[i] = 1
		}
	}
	return &Viewer{
		volumeData: volumeData,
		width:      width,
		height:     height,
		depth:      depth,
		spacing:    spacing,
	}
}

// Shape returns the voxel grid extent along x, y and z
func (v *Viewer) Shape() [3]int {
	return [3]int{v.width, v.height, v.depth}
}

// Spacing returns the voxel size in mm along x, y and z
func (v *Viewer) Spacing() [3]float64 {
	return v.spacing
}

// Data returns the underlying voxel buffer
func (v *Viewer) Data() []float64 {
	return v.volumeData
}

// At returns the voxel at x, y, z or 0 outside the volume
func (v *Viewer) At(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= v.width || y >= v.height || z >= v.depth {
		return 0
	}
	idx := z*v.width*v.height + y*v.width + x
	if idx >= len(v.volumeData) {
		return 0
	}
	return v.volumeData[idx]
}

// Extent returns the number of slices along axis
func (v *Viewer) Extent(axis models.Axis) int {
	switch axis {
	case models.Axial:
		return v.depth
	case models.Coronal:
		return v.height
	case models.Sagittal:
		return v.width
	default:
		return 0
	}
}

// ExtractSlice cuts slice index along axis and orients it radiologically:
// patient left on the image right, anterior up on axial slices and superior
// up on coronal and sagittal slices.
func (v *Viewer) ExtractSlice(axis models.Axis, index int) (*models.SliceImage, error) {
	extent := v.Extent(axis)
	if extent == 0 {
		return nil, fmt.Errorf("invalid axis: %s", axis)
	}
	if index < 0 || index >= extent {
		return nil, fmt.Errorf("%s index %d of %d: %w", axis, index, extent, ErrSliceOutOfRange)
	}

	var rows, cols int
	var at func(i, j int) float64

	switch axis {
	case models.Axial:
		rows, cols = v.height, v.width
		at = func(i, j int) float64 { return v.At(v.width-1-j, v.height-1-i, index) }
	case models.Coronal:
		rows, cols = v.depth, v.width
		at = func(i, j int) float64 { return v.At(j, index, v.depth-1-i) }
	case models.Sagittal:
		rows, cols = v.depth, v.height
		at = func(i, j int) float64 { return v.At(index, v.height-1-j, v.depth-1-i) }
	}

	data := make([][]float64, rows)
	for i := range data {
		row := make([]float64, cols)
		for j := range row {
			row[j] = at(i, j)
		}
		data[i] = row
	}

	return &models.SliceImage{
		Data:               data,
		Width:              cols,
		Height:             rows,
		Axis:               axis,
		Index:              index,
		MaxIndex:           extent,
		OrientationApplied: true,
	}, nil
}

// ExtractRegion extracts a 3D subregion from the volume in the same x-fastest
// layout
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]float64, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if startX+sizeX > v.width || startY+sizeY > v.height || startZ+sizeZ > v.depth {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := make([]float64, sizeX*sizeY*sizeZ)
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region[z*sizeX*sizeY+y*sizeX+x] = v.At(startX+x, startY+y, startZ+z)
			}
		}
	}
	return region, nil
}

// Ref describes the volume the way the imaging service does after an upload
func (v *Viewer) Ref(fileID string, role models.FileRole) models.VolumeRef {
	st := v.Stats()
	return models.VolumeRef{
		FileID:       fileID,
		Role:         role,
		Shape:        v.Shape(),
		Spacing:      v.spacing,
		DataType:     "float64",
		Min:          st.Min,
		Max:          st.Max,
		Mean:         st.Mean,
		NonZeroMean:  st.NonZeroMean,
		NonZeroCount: st.NonZeroCount,
		TotalVoxels:  st.TotalVoxels,
	}
}

// LesionCoordinates returns the physical position in mm of every voxel above
// zero, centred on their mean when center is set
func (v *Viewer) LesionCoordinates(center bool) models.LesionCoordinateSet {
	var coords [][3]float32
	var sum [3]float64
	for z := 0; z < v.depth; z++ {
		for y := 0; y < v.height; y++ {
			for x := 0; x < v.width; x++ {
				if v.At(x, y, z) <= 0 {
					continue
				}
				p := [3]float64{float64(x) * v.spacing[0], float64(y) * v.spacing[1], float64(z) * v.spacing[2]}
				sum[0] += p[0]
				sum[1] += p[1]
				sum[2] += p[2]
				coords = append(coords, [3]float32{float32(p[0]), float32(p[1]), float32(p[2])})
			}
		}
	}

	set := models.LesionCoordinateSet{Coordinates: coords}
	set.Stats.LesionCount = len(coords)
	set.Stats.CoordinateType = "voxel_mm"
	if len(coords) == 0 {
		return set
	}
	n := float64(len(coords))
	set.Stats.OriginalCenter = [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}
	if center {
		c := set.Stats.OriginalCenter
		for i := range coords {
			coords[i][0] -= float32(c[0])
			coords[i][1] -= float32(c[1])
			coords[i][2] -= float32(c[2])
		}
		set.Stats.Centered = true
	}
	return set
}
