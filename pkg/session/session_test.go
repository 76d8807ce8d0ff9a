package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainviewer/internal/models"
	"brainviewer/pkg/imaging"
	"brainviewer/pkg/measure"
	"brainviewer/pkg/visualization"
)

type gate struct {
	entered chan struct{}
	release chan struct{}
}

// fakeSource returns constant slices filled with the requested index
type fakeSource struct {
	mu    sync.Mutex
	calls int
	errs  map[models.FileRole]error
	gates map[int]*gate
}

func newFakeSource() *fakeSource {
	return &fakeSource{errs: map[models.FileRole]error{}, gates: map[int]*gate{}}
}

func (f *fakeSource) fail(role models.FileRole, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[role] = err
}

// hold makes the next fetch of index wait until release is closed
func (f *fakeSource) hold(index int) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.gates[index] = g
	return g
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSource) FetchSlice(ctx context.Context, ref models.VolumeRef, axis models.Axis, index int) (*models.SliceImage, error) {
	f.mu.Lock()
	f.calls++
	err := f.errs[ref.Role]
	g := f.gates[index]
	delete(f.gates, index)
	f.mu.Unlock()

	if g != nil {
		close(g.entered)
		<-g.release
	}
	if err != nil {
		return nil, err
	}

	var w, h int
	switch axis {
	case models.Axial:
		w, h = ref.Shape[0], ref.Shape[1]
	case models.Coronal:
		w, h = ref.Shape[0], ref.Shape[2]
	default:
		w, h = ref.Shape[1], ref.Shape[2]
	}
	data := make([][]float64, h)
	for y := range data {
		data[y] = make([]float64, w)
		for x := range data[y] {
			data[y][x] = float64(index)
		}
	}
	return &models.SliceImage{
		Data:               data,
		Width:              w,
		Height:             h,
		Axis:               axis,
		Index:              index,
		MaxIndex:           ref.Extent(axis),
		OrientationApplied: true,
	}, nil
}

func ref(id string, role models.FileRole, x, y, z int) models.VolumeRef {
	return models.VolumeRef{FileID: id, Role: role, Shape: [3]int{x, y, z}, Spacing: [3]float64{1, 1, 1}}
}

func TestLoadVolumeCentresIndices(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())

	res, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 256, 256, 180))
	require.NoError(t, err)
	assert.True(t, res.Brain.OK())
	assert.True(t, res.Lesion.Skipped)

	assert.Equal(t, models.Axial, s.Axis())
	assert.Equal(t, 180, s.MaxIndex())
	assert.Equal(t, 90, s.Index())

	idx, count := s.Position(models.Coronal)
	assert.Equal(t, 128, idx)
	assert.Equal(t, 256, count)

	slice := s.Slice(models.Brain)
	require.NotNil(t, slice)
	assert.Equal(t, 90, slice.Index)
	assert.Equal(t, 256, slice.Width)
}

func TestLoadVolumeRejectsEmptyShape(t *testing.T) {
	s := New(newFakeSource(), DefaultOptions())
	_, err := s.LoadVolume(context.Background(), ref("brain_1", models.Brain, 0, 10, 10))
	assert.Error(t, err)
	_, ok := s.Volume(models.Brain)
	assert.False(t, ok)
}

func TestLesionShapeOnlyWithoutBrain(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())

	_, err := s.LoadVolume(ctx, ref("lesion_1", models.Lesion, 20, 20, 12))
	require.NoError(t, err)
	assert.Equal(t, 12, s.MaxIndex())
	assert.Equal(t, 6, s.Index())

	_, err = s.LoadVolume(ctx, ref("brain_1", models.Brain, 20, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, 30, s.MaxIndex())
	assert.Equal(t, 15, s.Index())

	// a later lesion does not move the brain-defined position
	_, err = s.LoadVolume(ctx, ref("lesion_2", models.Lesion, 20, 20, 30))
	require.NoError(t, err)
	assert.Equal(t, 15, s.Index())
}

func TestSetIndexRejectsOutOfRange(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	s := New(src, DefaultOptions())

	_, err := s.SetIndex(ctx, 1)
	assert.ErrorIs(t, err, ErrNoVolume)

	_, err = s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)

	_, err = s.SetIndex(ctx, 3)
	require.NoError(t, err)
	calls := src.Calls()

	for _, i := range []int{-1, 10, 15} {
		_, err = s.SetIndex(ctx, i)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "index %d", i)
		assert.Equal(t, 3, s.Index())
	}
	assert.Equal(t, calls, src.Calls(), "rejected indices must not fetch")

	_, err = s.SetIndexText(ctx, "abc")
	assert.ErrorIs(t, err, ErrInvalidIndex)
	assert.Equal(t, 3, s.Index())

	_, err = s.SetIndexText(ctx, " 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, s.Index())
	assert.Equal(t, 7, s.Slice(models.Brain).Index)
}

func TestStepClamps(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	s := New(src, DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)

	_, err = s.Step(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Index())

	_, err = s.Step(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Index())

	calls := src.Calls()
	_, err = s.Step(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 9, s.Index())
	assert.Equal(t, calls, src.Calls())

	_, err = s.Step(ctx, -100)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Index())
}

func TestAxesKeepTheirOwnIndex(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 16, 8, 10))
	require.NoError(t, err)

	_, err = s.SetIndex(ctx, 2)
	require.NoError(t, err)

	res := s.SetAxis(ctx, models.Sagittal)
	assert.True(t, res.Brain.OK())
	assert.Equal(t, 16, s.MaxIndex())
	assert.Equal(t, 8, s.Index())
	assert.Equal(t, models.Sagittal, s.Slice(models.Brain).Axis)

	s.SetAxis(ctx, models.Axial)
	assert.Equal(t, 2, s.Index())
}

func TestLesionFailureKeepsBrainSlice(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	s := New(src, DefaultOptions())

	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)
	src.fail(models.Lesion, fmt.Errorf("fetch slice: %w", imaging.ErrTimeout))

	res, err := s.LoadVolume(ctx, ref("lesion_1", models.Lesion, 8, 8, 10))
	require.NoError(t, err)
	assert.True(t, res.Brain.OK())
	assert.ErrorIs(t, res.Lesion.Err, imaging.ErrTimeout)
	assert.ErrorIs(t, res.Err(), imaging.ErrTimeout)
	assert.False(t, res.SessionExpired())

	assert.NotNil(t, s.Slice(models.Brain))
	assert.Nil(t, s.Slice(models.Lesion))
	assert.Empty(t, s.Status(models.Brain))
	assert.Contains(t, s.Status(models.Lesion), "timed out")

	s.Dismiss(models.Lesion)
	assert.Empty(t, s.Status(models.Lesion))

	f := s.Frame()
	assert.NotNil(t, f.Slice)
	assert.Nil(t, f.Lesion)
}

func TestSessionExpiredStatus(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	s := New(src, DefaultOptions())
	src.fail(models.Brain, fmt.Errorf("fetch slice: %w", imaging.ErrSessionExpired))

	res, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)
	assert.True(t, res.SessionExpired())
	assert.Contains(t, s.Status(models.Brain), "session has expired")

	src.fail(models.Brain, &imaging.BackendError{Status: 404, Message: "File not found"})
	s.Refresh(ctx)
	assert.Equal(t, "Error loading brain slice: File not found", s.Status(models.Brain))

	src.fail(models.Brain, nil)
	res = s.Refresh(ctx)
	assert.True(t, res.Brain.OK())
	assert.Empty(t, s.Status(models.Brain), "a successful fetch clears the status")
}

func TestLesionShorterThanBrain(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)
	_, err = s.LoadVolume(ctx, ref("lesion_1", models.Lesion, 8, 8, 4))
	require.NoError(t, err)

	res, err := s.SetIndex(ctx, 8)
	require.NoError(t, err)
	assert.True(t, res.Brain.OK())
	assert.ErrorIs(t, res.Lesion.Err, ErrIndexOutOfRange)
	assert.NotEmpty(t, s.Status(models.Lesion))
}

func TestLesionFromOtherIndexIsNotBlended(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)
	_, err = s.LoadVolume(ctx, ref("lesion_1", models.Lesion, 8, 8, 4))
	require.NoError(t, err)

	_, err = s.SetIndex(ctx, 2)
	require.NoError(t, err)
	f := s.Frame()
	require.NotNil(t, f.Lesion)
	assert.Equal(t, 2, f.Lesion.Index)

	_, err = s.SetIndex(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, s.Slice(models.Lesion), "a failed fetch drops the old slice")
	f = s.Frame()
	assert.Equal(t, 8, f.Slice.Index)
	assert.Nil(t, f.Lesion)

	_, err = s.SetIndex(ctx, 3)
	require.NoError(t, err)
	f = s.Frame()
	require.NotNil(t, f.Lesion)
	assert.Equal(t, 3, f.Lesion.Index)
	assert.Empty(t, s.Status(models.Lesion))
}

func TestStaleRepliesAreDiscarded(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	s := New(src, DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)

	g := src.hold(2)
	done := make(chan FetchResult, 1)
	go func() {
		res, _ := s.SetIndex(ctx, 2)
		done <- res
	}()
	<-g.entered

	res, err := s.SetIndex(ctx, 3)
	require.NoError(t, err)
	assert.True(t, res.Brain.OK())

	close(g.release)
	slow := <-done
	assert.True(t, slow.Brain.Stale)
	assert.False(t, slow.Brain.OK())
	assert.Equal(t, 3, s.Slice(models.Brain).Index)
}

func TestLastWriteWinsWhenStaleKept(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	opts := DefaultOptions()
	opts.DiscardStale = false
	s := New(src, opts)
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)

	g := src.hold(2)
	done := make(chan FetchResult, 1)
	go func() {
		res, _ := s.SetIndex(ctx, 2)
		done <- res
	}()
	<-g.entered

	_, err = s.SetIndex(ctx, 3)
	require.NoError(t, err)

	close(g.release)
	slow := <-done
	assert.False(t, slow.Brain.Stale)
	assert.Equal(t, 2, s.Slice(models.Brain).Index)
}

func TestUnloadDropsInFlightReply(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	s := New(src, DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 8, 8, 10))
	require.NoError(t, err)

	g := src.hold(1)
	done := make(chan FetchResult, 1)
	go func() {
		res, _ := s.SetIndex(ctx, 1)
		done <- res
	}()
	<-g.entered
	s.Unload(models.Brain)
	close(g.release)

	assert.True(t, (<-done).Brain.Stale)
	assert.Nil(t, s.Slice(models.Brain))
	assert.Equal(t, 0, s.MaxIndex())
}

func TestDistanceMeasurementOnDisplayedSlice(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Clock = func() time.Time { return created }
	s := New(newFakeSource(), opts)

	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 256, 256, 180))
	require.NoError(t, err)

	s.SetTool(measure.DistanceTool)
	s.PointerDown(models.Point2D{X: 10, Y: 10})
	s.PointerMove(models.Point2D{X: 10, Y: 60})

	f := s.Frame()
	require.NotNil(t, f.Current)
	assert.InDelta(t, 50.0, f.Current.Value, 1e-9)
	assert.Nil(t, f.Crosshair, "pointer moves feed the tool while it is active")

	m, ok := s.PointerUp(models.Point2D{X: 10, Y: 110})
	require.True(t, ok)
	assert.InDelta(t, 100.0, m.Value, 1e-9)
	assert.Equal(t, "100.0 mm", m.Label())
	assert.Equal(t, models.Axial, m.Axis)
	assert.Equal(t, 90, m.SliceIndex)
	assert.Equal(t, created, m.CreatedAt)

	f = s.Frame()
	assert.Nil(t, f.Current)
	require.Len(t, f.Measurements, 1)

	_, err = s.SetIndex(ctx, 91)
	require.NoError(t, err)
	assert.Empty(t, s.Frame().Measurements, "other slices show their own measurements")
	assert.Len(t, s.Measurements(), 1)

	s.ClearMeasurements()
	assert.Empty(t, s.Measurements())
}

func TestAreaMeasurement(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 64, 64, 8))
	require.NoError(t, err)

	s.SetTool(measure.AreaTool)
	s.Click(models.Point2D{X: 0, Y: 0})
	s.Click(models.Point2D{X: 10, Y: 0})
	s.Click(models.Point2D{X: 10, Y: 10})
	m, ok := s.DoubleClick(models.Point2D{X: 0, Y: 10})
	require.True(t, ok)
	assert.Equal(t, models.Area, m.Kind)
	assert.InDelta(t, 100.0, m.Value, 1e-9)
	assert.Equal(t, 1, s.List().Len())
}

func TestSetToolCancelsGesture(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeSource(), DefaultOptions())
	_, err := s.LoadVolume(ctx, ref("brain_1", models.Brain, 64, 64, 8))
	require.NoError(t, err)

	s.SetTool(measure.DistanceTool)
	s.PointerDown(models.Point2D{X: 1, Y: 1})
	require.NotNil(t, s.Frame().Current)

	s.SetTool(measure.DistanceTool)
	assert.Nil(t, s.Frame().Current)

	s.PointerDown(models.Point2D{X: 1, Y: 1})
	_, err = s.SetIndex(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, s.Frame().Current, "changing slice drops the gesture")

	_, ok := s.PointerUp(models.Point2D{X: 5, Y: 5})
	assert.False(t, ok)
	assert.Empty(t, s.Measurements())
}

func TestCrosshairFollowsPointerWithoutTool(t *testing.T) {
	s := New(newFakeSource(), DefaultOptions())
	s.SetCrosshair(true)
	s.PointerMove(models.Point2D{X: 4, Y: 7})

	f := s.Frame()
	assert.True(t, f.ShowCrosshair)
	require.NotNil(t, f.Crosshair)
	assert.Equal(t, models.Point2D{X: 4, Y: 7}, *f.Crosshair)

	s.MoveCrosshair(&models.Point2D{X: 1, Y: 2})
	assert.Equal(t, models.Point2D{X: 1, Y: 2}, *s.Frame().Crosshair)
	s.MoveCrosshair(nil)
	assert.Nil(t, s.Frame().Crosshair)
}

func TestDisplayAndGrid(t *testing.T) {
	s := New(newFakeSource(), DefaultOptions())
	assert.Equal(t, models.DefaultDisplaySettings(), s.Display())

	d := models.DisplaySettings{Level: 100, Width: 50, Contrast: 2, Colormap: models.Hot}
	s.SetDisplay(d)
	s.SetGrid(true)

	f := s.Frame()
	assert.Equal(t, d, f.Display)
	assert.True(t, f.ShowGrid)
	assert.Nil(t, f.Slice)
}

func TestLocalSourceUsesPhysicalSpacing(t *testing.T) {
	ctx := context.Background()
	src := visualization.NewSource()
	brain, lesion := visualization.NewPhantom([3]int{32, 32, 16}, [3]float64{1, 1, 2})
	s := New(src, DefaultOptions())

	_, err := s.LoadVolume(ctx, src.Add(models.Brain, brain))
	require.NoError(t, err)
	res, err := s.LoadVolume(ctx, src.Add(models.Lesion, lesion))
	require.NoError(t, err)
	require.True(t, res.Lesion.OK())

	s.SetAxis(ctx, models.Coronal)
	want, err := brain.ExtractSlice(models.Coronal, 16)
	require.NoError(t, err)
	assert.Equal(t, want.Data, s.Frame().Slice.Data)
	assert.NotNil(t, s.Frame().Lesion)

	// coronal rows walk z, which is 2 mm thick
	s.SetTool(measure.DistanceTool)
	s.PointerDown(models.Point2D{X: 5, Y: 0})
	m, ok := s.PointerUp(models.Point2D{X: 5, Y: 10})
	require.True(t, ok)
	assert.InDelta(t, 20.0, m.Value, 1e-9)
}
