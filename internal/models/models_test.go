package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAxis(t *testing.T) {
	for _, a := range Axes {
		got, err := ParseAxis(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseAxis(" Coronal ")
	require.NoError(t, err)
	assert.Equal(t, Coronal, got)

	_, err = ParseAxis("oblique")
	assert.Error(t, err)
}

func TestVolumeRefExtentAndSpacing(t *testing.T) {
	v := VolumeRef{FileID: "f", Shape: [3]int{256, 200, 180}, Spacing: [3]float64{0.5, 0.8, 2}}
	assert.True(t, v.Valid())
	assert.Equal(t, 180, v.Extent(Axial))
	assert.Equal(t, 200, v.Extent(Coronal))
	assert.Equal(t, 256, v.Extent(Sagittal))

	assert.Equal(t, Spacing{X: 0.5, Y: 0.8}, v.PixelSpacing(Axial))
	assert.Equal(t, Spacing{X: 0.5, Y: 2}, v.PixelSpacing(Coronal))
	assert.Equal(t, Spacing{X: 0.8, Y: 2}, v.PixelSpacing(Sagittal))

	v.Spacing = [3]float64{}
	assert.Equal(t, UnitSpacing, v.PixelSpacing(Axial), "missing spacing falls back to 1 mm")

	v.Shape[1] = 0
	assert.False(t, v.Valid())
	assert.False(t, VolumeRef{Shape: [3]int{1, 1, 1}}.Valid())
}

func TestSliceImageValid(t *testing.T) {
	s := &SliceImage{Data: [][]float64{{1, 2, 3}, {4, 5, 6}}, Width: 3, Height: 2}
	assert.True(t, s.Valid())
	assert.Equal(t, 6.0, s.At(2, 1))
	assert.Equal(t, 0.0, s.At(3, 0))
	assert.Equal(t, 0.0, s.At(0, -1))

	s.Data[1] = s.Data[1][:2]
	assert.False(t, s.Valid())

	var nilSlice *SliceImage
	assert.False(t, nilSlice.Valid())
	assert.Equal(t, 0.0, nilSlice.At(0, 0))
}

func TestMeasurementJSON(t *testing.T) {
	m := Measurement{
		ID:         "m1",
		Kind:       Area,
		Points:     []Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}},
		Value:      50,
		Axis:       Sagittal,
		SliceIndex: 12,
	}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"kind":"area"`)
	assert.Contains(t, string(b), `"axis":"sagittal"`)

	var back Measurement
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Area, back.Kind)
	assert.Equal(t, Sagittal, back.Axis)
	assert.Equal(t, "50.0 mm²", back.Label())

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"angle"}`), &back))
}

func TestMeasurementClone(t *testing.T) {
	m := Measurement{Points: []Point2D{{X: 1, Y: 1}, {X: 2, Y: 2}}}
	c := m.Clone()
	c.Points[0].X = 99
	assert.Equal(t, 1.0, m.Points[0].X)
	assert.Equal(t, "mm", c.Unit())
}

func TestResolveLesionVisual(t *testing.T) {
	mesh := &MeshData{Vertices: [][3]float32{{0, 0, 0}}}
	set := &LesionCoordinateSet{Coordinates: [][3]float32{{1, 2, 3}}}

	assert.IsType(t, PointsVisual{}, ResolveLesionVisual(mesh, set))
	assert.IsType(t, MeshVisual{}, ResolveLesionVisual(mesh, nil))
	assert.IsType(t, NoVisual{}, ResolveLesionVisual(&MeshData{}, nil))
	assert.IsType(t, NoVisual{}, ResolveLesionVisual(nil, nil))
}

func TestParseColormapAndRole(t *testing.T) {
	for _, c := range Colormaps {
		got, err := ParseColormap(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseColormap("plasma")
	assert.Error(t, err)

	r, err := ParseFileRole("flair")
	require.NoError(t, err)
	assert.Equal(t, Brain, r)
	r, err = ParseFileRole("lesion")
	require.NoError(t, err)
	assert.Equal(t, Lesion, r)
	_, err = ParseFileRole("mask")
	assert.Error(t, err)
}
