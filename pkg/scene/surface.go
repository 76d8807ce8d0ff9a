package scene

import (
	"errors"
	"fmt"
	"image"
	"sync"
)

var (
	ErrSurfaceClosed   = errors.New("surface is closed")
	ErrUnknownResource = errors.New("unknown resource")
)

// ResourceKind tags a device resource
type ResourceKind int

const (
	GeometryResource ResourceKind = iota
	MaterialResource
)

func (k ResourceKind) String() string {
	if k == MaterialResource {
		return "material"
	}
	return "geometry"
}

// Handle identifies a resource allocated on a surface
type Handle uint64

// Surface is the render target of a scene. Geometry and material buffers are
// allocated on it and must be released explicitly.
type Surface interface {
	Resize(width, height int) error
	Size() (width, height int)
	Allocate(kind ResourceKind, label string) (Handle, error)
	Release(h Handle) error
	Present(frame *image.RGBA) error
	Close() error
}

type resource struct {
	kind  ResourceKind
	label string
}

// SoftwareSurface is an in-memory surface. It keeps the last presented frame
// and a table of live resources so leaks can be observed.
type SoftwareSurface struct {
	mu        sync.Mutex
	width     int
	height    int
	live      map[Handle]resource
	next      Handle
	frame     *image.RGBA
	presented int
	closed    bool
}

// NewSoftwareSurface creates a surface of the given size
func NewSoftwareSurface(width, height int) *SoftwareSurface {
	return &SoftwareSurface{width: width, height: height, live: make(map[Handle]resource)}
}

func (s *SoftwareSurface) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
	return nil
}

func (s *SoftwareSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *SoftwareSurface) Allocate(kind ResourceKind, label string) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSurfaceClosed
	}
	s.next++
	s.live[s.next] = resource{kind: kind, label: label}
	return s.next, nil
}

func (s *SoftwareSurface) Release(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live[h]; !ok {
		return fmt.Errorf("%w: handle %d", ErrUnknownResource, h)
	}
	delete(s.live, h)
	return nil
}

func (s *SoftwareSurface) Present(frame *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSurfaceClosed
	}
	s.frame = frame
	s.presented++
	return nil
}

// Close detaches the surface. Resources still allocated stay counted so a
// leak remains visible after close.
func (s *SoftwareSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Live returns the number of allocated resources of a kind
func (s *SoftwareSurface) Live(kind ResourceKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.live {
		if r.kind == kind {
			n++
		}
	}
	return n
}

// LiveLabels returns the labels of every allocated resource
func (s *SoftwareSurface) LiveLabels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.live))
	for _, r := range s.live {
		out = append(out, r.kind.String()+":"+r.label)
	}
	return out
}

// Frame returns the last presented frame
func (s *SoftwareSurface) Frame() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Presented returns the number of frames presented so far
func (s *SoftwareSurface) Presented() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presented
}

// Closed reports whether Close was called
func (s *SoftwareSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
