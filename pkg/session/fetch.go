package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"brainviewer/internal/models"
	"brainviewer/pkg/imaging"
)

// RoleResult is the outcome of fetching one role's slice
type RoleResult struct {
	Role  models.FileRole
	Slice *models.SliceImage
	Err   error

	// Stale is set when the reply was dropped because a newer request for the
	// same role had been issued
	Stale bool

	// Skipped is set when no volume of this role is loaded
	Skipped bool
}

// OK reports whether a slice was fetched and applied
func (r RoleResult) OK() bool {
	return r.Err == nil && !r.Stale && !r.Skipped && r.Slice != nil
}

// FetchResult holds the per-role outcome of a refresh. Roles fail
// independently.
type FetchResult struct {
	Brain  RoleResult
	Lesion RoleResult
}

// Role returns the result of one role
func (f FetchResult) Role(role models.FileRole) RoleResult {
	if role == models.Lesion {
		return f.Lesion
	}
	return f.Brain
}

// Err joins the role errors, nil when neither failed
func (f FetchResult) Err() error {
	return errors.Join(f.Brain.Err, f.Lesion.Err)
}

// SessionExpired reports whether either fetch was rejected for expired credentials
func (f FetchResult) SessionExpired() bool {
	return errors.Is(f.Brain.Err, imaging.ErrSessionExpired) || errors.Is(f.Lesion.Err, imaging.ErrSessionExpired)
}

type fetchJob struct {
	role  models.FileRole
	ref   models.VolumeRef
	axis  models.Axis
	index int
	token uint64
}

// Refresh fetches the slices of the active axis and current index for every
// loaded role. Brain and lesion are fetched concurrently and a failure of one
// never clears the other.
func (s *Session) Refresh(ctx context.Context) FetchResult {
	s.mu.Lock()
	var jobs []fetchJob
	for _, role := range models.Roles {
		v := s.volumes[role]
		if v == nil {
			continue
		}
		s.issued[role]++
		jobs = append(jobs, fetchJob{
			role:  role,
			ref:   *v,
			axis:  s.axis,
			index: s.current[s.axis],
			token: s.issued[role],
		})
	}
	s.mu.Unlock()

	res := FetchResult{
		Brain:  RoleResult{Role: models.Brain, Skipped: true},
		Lesion: RoleResult{Role: models.Lesion, Skipped: true},
	}
	results := make([]RoleResult, len(jobs))

	var wg sync.WaitGroup
	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.fetch(ctx, job)
		}()
	}
	wg.Wait()

	for _, r := range results {
		if r.Role == models.Lesion {
			res.Lesion = r
		} else {
			res.Brain = r
		}
	}
	return res
}

func (s *Session) fetch(ctx context.Context, job fetchJob) RoleResult {
	out := RoleResult{Role: job.role}

	// the lesion mask may be smaller than the brain along this axis
	if job.index >= job.ref.Extent(job.axis) {
		out.Err = fmt.Errorf("%w: %s slice %d beyond %s extent %d",
			ErrIndexOutOfRange, job.role, job.index, job.axis, job.ref.Extent(job.axis))
	} else {
		out.Slice, out.Err = s.src.FetchSlice(ctx, job.ref, job.axis, job.index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.volumes[job.role]
	replaced := current == nil || current.FileID != job.ref.FileID
	if replaced || (s.discardStale && job.token < s.issued[job.role]) {
		s.log.Debug().
			Str("role", job.role.String()).
			Str("axis", job.axis.String()).
			Int("index", job.index).
			Msg("discarding stale slice")
		out.Stale = true
		return out
	}
	if out.Err != nil {
		if errors.Is(out.Err, context.Canceled) {
			return out
		}
		// the cached slice belongs to another index or volume
		delete(s.slices, sliceKey{job.role, job.axis})
		s.status[job.role] = statusText(job.role, out.Err)
		s.log.Warn().Err(out.Err).
			Str("role", job.role.String()).
			Str("axis", job.axis.String()).
			Int("index", job.index).
			Msg("slice fetch failed")
		return out
	}

	s.slices[sliceKey{job.role, job.axis}] = out.Slice
	s.status[job.role] = ""
	s.log.Debug().
		Str("role", job.role.String()).
		Str("axis", job.axis.String()).
		Int("index", job.index).
		Msg("slice fetched")
	return out
}

// statusText turns a fetch error into the message shown next to the viewer
func statusText(role models.FileRole, err error) string {
	var backend *imaging.BackendError
	switch {
	case errors.Is(err, imaging.ErrSessionExpired):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, imaging.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("Loading the %s slice timed out. Please try again.", role)
	case errors.Is(err, imaging.ErrUnavailable):
		return "The imaging service is unavailable."
	case errors.Is(err, imaging.ErrMalformedResponse):
		return fmt.Sprintf("The %s slice could not be read.", role)
	case errors.Is(err, ErrIndexOutOfRange):
		return fmt.Sprintf("The %s volume has no slice at this position.", role)
	case errors.As(err, &backend) && backend.Message != "":
		return fmt.Sprintf("Error loading %s slice: %s", role, backend.Message)
	default:
		return fmt.Sprintf("Error loading %s slice: %v", role, err)
	}
}
