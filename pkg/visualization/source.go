package visualization

import (
	"context"
	"fmt"
	"sync"

	"brainviewer/internal/models"
)

// Source serves slices from in-memory volumes. It satisfies the slice source
// used by the viewing session, so a session can run without an imaging service.
type Source struct {
	mu      sync.RWMutex
	volumes map[string]*Viewer
	nextID  int
}

// NewSource creates an empty source
func NewSource() *Source {
	return &Source{volumes: make(map[string]*Viewer)}
}

// Add registers a volume and returns its reference
func (s *Source) Add(role models.FileRole, v *Viewer) models.VolumeRef {
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("local-%s-%d", role, s.nextID)
	s.volumes[id] = v
	s.mu.Unlock()
	return v.Ref(id, role)
}

// Volume looks up a registered volume
func (s *Source) Volume(fileID string) (*Viewer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.volumes[fileID]
	return v, ok
}

// FetchSlice extracts the requested oriented slice
func (s *Source) FetchSlice(ctx context.Context, ref models.VolumeRef, axis models.Axis, index int) (*models.SliceImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := s.Volume(ref.FileID)
	if !ok {
		return nil, fmt.Errorf("unknown volume %q", ref.FileID)
	}
	return v.ExtractSlice(axis, index)
}
