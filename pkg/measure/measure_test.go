package measure

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainviewer/internal/models"
)

func pt(x, y float64) models.Point2D { return models.Point2D{X: x, Y: y} }

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5.0, Distance(pt(0, 0), pt(3, 4), models.UnitSpacing), 1e-9)
	assert.InDelta(t, 0.0, Distance(pt(7, 7), pt(7, 7), models.UnitSpacing), 1e-9)

	// Anisotropic spacing scales each component independently
	d := Distance(pt(0, 0), pt(3, 4), models.Spacing{X: 2, Y: 0.5})
	assert.InDelta(t, 6.324555320336759, d, 1e-9)
}

func TestArea(t *testing.T) {
	square := []models.Point2D{pt(0, 0), pt(1, 0), pt(1, 1), pt(0, 1)}
	assert.InDelta(t, 1.0, Area(square, models.UnitSpacing), 1e-9)

	// Winding order does not change the magnitude
	reversed := []models.Point2D{pt(0, 1), pt(1, 1), pt(1, 0), pt(0, 0)}
	assert.InDelta(t, 1.0, Area(reversed, models.UnitSpacing), 1e-9)

	assert.InDelta(t, 6.0, Area(square, models.Spacing{X: 2, Y: 3}), 1e-9)

	assert.Zero(t, Area(nil, models.UnitSpacing))
	assert.Zero(t, Area([]models.Point2D{pt(0, 0), pt(4, 4)}, models.UnitSpacing))
}

func TestPerimeter(t *testing.T) {
	square := []models.Point2D{pt(0, 0), pt(2, 0), pt(2, 2), pt(0, 2)}
	assert.InDelta(t, 8.0, Perimeter(square, models.UnitSpacing), 1e-9)
	assert.Zero(t, Perimeter([]models.Point2D{pt(1, 1)}, models.UnitSpacing))
}

func fixedClock() func() time.Time {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestDistanceGesture(t *testing.T) {
	tool := NewTool()
	tool.SetClock(fixedClock())
	tool.SetKind(DistanceTool)
	tool.SetContext(models.UnitSpacing, models.Axial, 90)

	tool.PointerDown(pt(10, 10))
	assert.Equal(t, Drawing, tool.State())

	tool.PointerMove(pt(10, 60))
	cur, ok := tool.Current()
	require.True(t, ok)
	assert.InDelta(t, 50.0, cur.Value, 1e-9)
	assert.Len(t, cur.Points, 2)

	m, ok := tool.PointerUp(pt(10, 110))
	require.True(t, ok)
	assert.Equal(t, models.Distance, m.Kind)
	assert.InDelta(t, 100.0, m.Value, 1e-9)
	assert.Equal(t, "100.0 mm", m.Label())
	assert.Equal(t, models.Axial, m.Axis)
	assert.Equal(t, 90, m.SliceIndex)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, Committed, tool.State())

	_, ok = tool.Current()
	assert.False(t, ok)
}

func TestPointerUpWithoutDownIsIgnored(t *testing.T) {
	tool := NewTool()
	tool.SetKind(DistanceTool)
	_, ok := tool.PointerUp(pt(1, 1))
	assert.False(t, ok)
	assert.Equal(t, Idle, tool.State())
}

func TestAreaGesture(t *testing.T) {
	tool := NewTool()
	tool.SetClock(fixedClock())
	tool.SetKind(AreaTool)
	tool.SetContext(models.Spacing{X: 0.5, Y: 0.5}, models.Coronal, 3)

	tool.Click(pt(0, 0))
	tool.Click(pt(10, 0))
	tool.Click(pt(10, 0)) // repeated vertex
	tool.PointerMove(pt(10, 10))

	cur, ok := tool.Current()
	require.True(t, ok)
	assert.Len(t, cur.Points, 3, "rubber band vertex is previewed")

	m, ok := tool.DoubleClick(pt(10, 10))
	require.True(t, ok)
	assert.Equal(t, models.Area, m.Kind)
	assert.Len(t, m.Points, 3)
	// Triangle of 50 px² at 0.25 mm² per pixel
	assert.InDelta(t, 12.5, m.Value, 1e-9)
	assert.Equal(t, "12.5 mm²", m.Label())
	assert.Equal(t, Idle, tool.State())
}

func TestAreaNeedsThreeVertices(t *testing.T) {
	tool := NewTool()
	tool.SetKind(AreaTool)
	tool.Click(pt(0, 0))
	_, ok := tool.DoubleClick(pt(5, 5))
	assert.False(t, ok)
	assert.Equal(t, Drawing, tool.State())
}

func TestSwitchingToolCancelsGesture(t *testing.T) {
	tool := NewTool()
	tool.SetKind(AreaTool)
	tool.Click(pt(0, 0))
	tool.Click(pt(5, 0))

	tool.SetKind(DistanceTool)
	assert.Equal(t, Idle, tool.State())
	_, ok := tool.Current()
	assert.False(t, ok)

	tool.SetKind(NoTool)
	tool.PointerDown(pt(1, 1))
	assert.Equal(t, Idle, tool.State(), "no tool selected means no gesture")
}

func TestCancel(t *testing.T) {
	tool := NewTool()
	tool.SetKind(DistanceTool)
	tool.PointerDown(pt(0, 0))
	tool.Cancel()
	_, ok := tool.PointerUp(pt(3, 4))
	assert.False(t, ok)
}

func TestParseToolKind(t *testing.T) {
	k, err := ParseToolKind("area")
	require.NoError(t, err)
	assert.Equal(t, AreaTool, k)

	k, err = ParseToolKind("")
	require.NoError(t, err)
	assert.Equal(t, NoTool, k)

	_, err = ParseToolKind("angle")
	assert.Error(t, err)
}

func TestListOrderingAndIsolation(t *testing.T) {
	l := NewList()
	l.Append(models.Measurement{ID: "a", Points: []models.Point2D{pt(0, 0), pt(1, 1)}, Axis: models.Axial, SliceIndex: 1})
	l.Append(models.Measurement{ID: "b", Axis: models.Sagittal, SliceIndex: 1})
	l.Append(models.Measurement{ID: "c", Axis: models.Axial, SliceIndex: 1})

	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "c", all[2].ID)

	all[0].Points[0] = pt(99, 99)
	assert.Equal(t, pt(0, 0), l.All()[0].Points[0])

	on := l.ForSlice(models.Axial, 1)
	require.Len(t, on, 2)
	assert.Equal(t, "c", on[1].ID)

	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func TestListExport(t *testing.T) {
	l := NewList()
	l.Append(models.Measurement{
		ID:        "m1",
		Kind:      models.Distance,
		Points:    []models.Point2D{pt(0, 0), pt(3, 4)},
		Value:     5,
		CreatedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Axis:      models.Axial,
	})

	var buf bytes.Buffer
	require.NoError(t, l.WriteCSV(&buf))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"m1", "distance", "axial", "0", "5.000", "mm", "0:0 3:4", "2024-03-01T12:00:00Z"}, rows[1])

	buf.Reset()
	require.NoError(t, l.WriteJSON(&buf))
	var decoded []models.Measurement
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, 5.0, decoded[0].Value)

	buf.Reset()
	require.NoError(t, NewList().WriteJSON(&buf))
	assert.Equal(t, "[]\n", buf.String())
}
