// Package session drives the slice viewer: which volumes are loaded, which
// axis and slice are shown, how slices are fetched, and the measurement tool
// and list of the viewer.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"brainviewer/internal/models"
	"brainviewer/pkg/canvas"
	"brainviewer/pkg/measure"
)

var (
	ErrIndexOutOfRange = errors.New("slice index out of range")
	ErrInvalidIndex    = errors.New("invalid slice index")
	ErrNoVolume        = errors.New("no volume loaded")
)

// SliceSource produces oriented slices of a volume
type SliceSource interface {
	FetchSlice(ctx context.Context, ref models.VolumeRef, axis models.Axis, index int) (*models.SliceImage, error)
}

// Options configures a Session
type Options struct {
	// DiscardStale drops a slice reply when a newer request for the same role
	// has been issued since. When false the last reply to arrive wins.
	DiscardStale bool

	Display models.DisplaySettings
	Logger  zerolog.Logger

	// Clock stamps new measurements; time.Now when nil
	Clock func() time.Time
}

// DefaultOptions discards stale replies and starts with the auto-range window
func DefaultOptions() Options {
	return Options{DiscardStale: true, Display: models.DefaultDisplaySettings(), Logger: zerolog.Nop()}
}

type sliceKey struct {
	role models.FileRole
	axis models.Axis
}

// Session is the state of one slice viewer. All methods are safe for
// concurrent use; fetches run without holding the lock.
type Session struct {
	mu  sync.Mutex
	src SliceSource
	log zerolog.Logger

	discardStale bool

	volumes [2]*models.VolumeRef
	axis    models.Axis
	current [3]int
	max     [3]int

	slices map[sliceKey]*models.SliceImage
	issued [2]uint64
	status [2]string

	display       models.DisplaySettings
	showGrid      bool
	showCrosshair bool
	crosshair     *models.Point2D

	tool *measure.Tool
	list *measure.List
}

// New creates an empty session reading slices from src
func New(src SliceSource, opts Options) *Session {
	tool := measure.NewTool()
	if opts.Clock != nil {
		tool.SetClock(opts.Clock)
	}
	return &Session{
		src:          src,
		log:          opts.Logger.With().Str("component", "session").Logger(),
		discardStale: opts.DiscardStale,
		slices:       make(map[sliceKey]*models.SliceImage),
		display:      opts.Display,
		tool:         tool,
		list:         measure.NewList(),
	}
}

// LoadVolume installs ref for its role, replacing any previous volume of that
// role and its cached slices, then fetches the slices of the active axis.
// Indices are reset to the midpoints when ref defines the viewer shape, which
// is the brain volume or a lesion loaded without a brain.
func (s *Session) LoadVolume(ctx context.Context, ref models.VolumeRef) (FetchResult, error) {
	if !ref.Valid() {
		return FetchResult{}, fmt.Errorf("cannot load %s volume %q with shape %v", ref.Role, ref.FileID, ref.Shape)
	}

	s.mu.Lock()
	r := ref
	s.volumes[ref.Role] = &r
	for _, axis := range models.Axes {
		delete(s.slices, sliceKey{ref.Role, axis})
	}
	s.status[ref.Role] = ""
	if ref.Role == models.Brain || s.volumes[models.Brain] == nil {
		for _, axis := range models.Axes {
			s.max[axis] = ref.Extent(axis)
			s.current[axis] = s.max[axis] / 2
		}
		s.tool.Cancel()
	}
	s.log.Info().
		Str("role", ref.Role.String()).
		Str("id", ref.FileID).
		Ints("shape", ref.Shape[:]).
		Msg("volume loaded")
	s.mu.Unlock()

	return s.Refresh(ctx), nil
}

// Unload removes the volume of a role and its slices
func (s *Session) Unload(role models.FileRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[role] = nil
	s.status[role] = ""
	s.issued[role]++
	for _, axis := range models.Axes {
		delete(s.slices, sliceKey{role, axis})
	}
	if s.volumes[models.Brain] == nil && s.volumes[models.Lesion] == nil {
		s.max = [3]int{}
		s.current = [3]int{}
		s.tool.Cancel()
	}
}

// Volume returns the loaded volume of a role
func (s *Session) Volume(role models.FileRole) (models.VolumeRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v := s.volumes[role]; v != nil {
		return *v, true
	}
	return models.VolumeRef{}, false
}

// Axis returns the active axis
func (s *Session) Axis() models.Axis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.axis
}

// Index returns the current slice index of the active axis
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[s.axis]
}

// MaxIndex returns the number of slices of the active axis
func (s *Session) MaxIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max[s.axis]
}

// Position returns the current index and slice count of any axis
func (s *Session) Position(axis models.Axis) (index, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current[axis], s.max[axis]
}

// SetAxis activates another axis and fetches its current slices. Every axis
// keeps its own index.
func (s *Session) SetAxis(ctx context.Context, axis models.Axis) FetchResult {
	s.mu.Lock()
	changed := axis != s.axis
	s.axis = axis
	if changed {
		s.tool.Cancel()
	}
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// SetIndex moves the active axis to slice i. An index outside [0, MaxIndex)
// is rejected, the previous index is kept and nothing is fetched.
func (s *Session) SetIndex(ctx context.Context, i int) (FetchResult, error) {
	s.mu.Lock()
	if s.volumes[models.Brain] == nil && s.volumes[models.Lesion] == nil {
		s.mu.Unlock()
		return FetchResult{}, ErrNoVolume
	}
	count := s.max[s.axis]
	if i < 0 || i >= count {
		s.mu.Unlock()
		return FetchResult{}, fmt.Errorf("%w: %d not in [0, %d]", ErrIndexOutOfRange, i, count-1)
	}
	changed := s.current[s.axis] != i
	s.current[s.axis] = i
	if changed {
		s.tool.Cancel()
	}
	s.mu.Unlock()
	return s.Refresh(ctx), nil
}

// SetIndexText parses typed input and behaves like SetIndex
func (s *Session) SetIndexText(ctx context.Context, text string) (FetchResult, error) {
	i, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %q", ErrInvalidIndex, text)
	}
	return s.SetIndex(ctx, i)
}

// Step moves the active axis by delta slices, stopping at the first and last
// slice. Nothing is fetched when the index does not change.
func (s *Session) Step(ctx context.Context, delta int) (FetchResult, error) {
	s.mu.Lock()
	if s.volumes[models.Brain] == nil && s.volumes[models.Lesion] == nil {
		s.mu.Unlock()
		return FetchResult{}, ErrNoVolume
	}
	i := min(max(s.current[s.axis]+delta, 0), s.max[s.axis]-1)
	unchanged := i == s.current[s.axis]
	s.mu.Unlock()

	if unchanged {
		return FetchResult{}, nil
	}
	return s.SetIndex(ctx, i)
}

// Slice returns the cached slice of a role for the active axis
func (s *Session) Slice(role models.FileRole) *models.SliceImage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slices[sliceKey{role, s.axis}]
}

// Status returns the dismissible error text of a role, empty when fine
func (s *Session) Status(role models.FileRole) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[role]
}

// Dismiss clears the error text of a role
func (s *Session) Dismiss(role models.FileRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[role] = ""
}

// Display returns the current display settings
func (s *Session) Display() models.DisplaySettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// SetDisplay replaces the display settings
func (s *Session) SetDisplay(d models.DisplaySettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = d
}

// SetGrid toggles the grid overlay
func (s *Session) SetGrid(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showGrid = on
}

// SetCrosshair toggles the crosshair overlay
func (s *Session) SetCrosshair(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showCrosshair = on
}

// MoveCrosshair places the crosshair; nil removes its position
func (s *Session) MoveCrosshair(p *models.Point2D) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		s.crosshair = nil
		return
	}
	c := *p
	s.crosshair = &c
}

// Frame assembles the canvas input for the active axis. Only measurements
// taken on the displayed slice are included, and the lesion is blended only
// when it shows the same slice as the brain.
func (s *Session) Frame() canvas.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := canvas.Frame{
		Slice:         s.slices[sliceKey{models.Brain, s.axis}],
		Lesion:        s.slices[sliceKey{models.Lesion, s.axis}],
		Display:       s.display,
		ShowGrid:      s.showGrid,
		ShowCrosshair: s.showCrosshair,
		Measurements:  s.list.ForSlice(s.axis, s.current[s.axis]),
	}
	if f.Slice == nil {
		f.Slice, f.Lesion = f.Lesion, nil
	}
	if f.Lesion != nil && f.Lesion.Index != f.Slice.Index {
		f.Lesion = nil
	}
	if s.crosshair != nil {
		c := *s.crosshair
		f.Crosshair = &c
	}
	if m, ok := s.tool.Current(); ok {
		f.Current = &m
	}
	return f
}
