package imaging

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainviewer/internal/models"
	"brainviewer/pkg/imaging/imagingtest"
	"brainviewer/pkg/mesh"
	"brainviewer/pkg/visualization"
)

func newClient(t *testing.T, baseURL string, creds *Credentials) *Client {
	t.Helper()
	c, err := New(Options{BaseURL: baseURL, RequestTimeout: 2 * time.Second, Logger: zerolog.Nop()}, creds)
	require.NoError(t, err)
	return c
}

func phantomServer(t *testing.T) (*imagingtest.Server, *visualization.Viewer, models.VolumeRef, models.VolumeRef) {
	t.Helper()
	srv := imagingtest.NewServer()
	t.Cleanup(srv.Close)
	brain, lesion := visualization.NewPhantom([3]int{8, 6, 4}, [3]float64{1, 1, 2})
	return srv, brain, srv.Add(models.Brain, brain), srv.Add(models.Lesion, lesion)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "localhost"}, nil)
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "http://localhost:5000/"}, nil)
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	srv.RequireAuth(true)
	c := newClient(t, srv.URL, nil)

	_, err := c.FetchSlice(context.Background(), brainRef, models.Axial, 1)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = c.Login(context.Background(), imagingtest.Email, "wrong")
	assert.ErrorIs(t, err, ErrSessionExpired)

	token, err := c.Login(context.Background(), imagingtest.Email, imagingtest.Password)
	require.NoError(t, err)
	got, ok := c.Credentials().Token()
	assert.True(t, ok)
	assert.Equal(t, token, got)
	assert.False(t, c.Credentials().Invalidated())

	_, err = c.FetchSlice(context.Background(), brainRef, models.Axial, 1)
	assert.NoError(t, err)
}

func TestFetchSliceMatchesLocalExtraction(t *testing.T) {
	srv, brain, brainRef, _ := phantomServer(t)
	c := newClient(t, srv.URL, nil)

	for _, axis := range models.Axes {
		got, err := c.FetchSlice(context.Background(), brainRef, axis, 1)
		require.NoError(t, err, axis.String())
		want, err := brain.ExtractSlice(axis, 1)
		require.NoError(t, err)

		assert.Equal(t, want.Width, got.Width, axis.String())
		assert.Equal(t, want.Height, got.Height, axis.String())
		assert.Equal(t, want.Data, got.Data, axis.String())
		assert.Equal(t, brainRef.Extent(axis), got.MaxIndex, axis.String())
		assert.True(t, got.OrientationApplied)
	}
}

func TestFetchSliceBackendErrors(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	c := newClient(t, srv.URL, nil)

	_, err := c.FetchSlice(context.Background(), brainRef, models.Axial, 99)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.Equal(t, "Slice index out of range", be.Message)

	_, err = c.FetchSlice(context.Background(), models.VolumeRef{FileID: "missing"}, models.Axial, 0)
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusNotFound, be.Status)

	srv.FailSlices(brainRef.FileID, true)
	_, err = c.FetchSlice(context.Background(), brainRef, models.Axial, 1)
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusInternalServerError, be.Status)
}

func TestExpiredTokenInvalidatesCredentials(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	srv.RequireAuth(true)
	creds := NewCredentials(srv.IssueToken())
	c := newClient(t, srv.URL, creds)

	_, err := c.FetchSlice(context.Background(), brainRef, models.Coronal, 2)
	require.NoError(t, err)

	srv.ExpireTokens()
	_, err = c.FetchSlice(context.Background(), brainRef, models.Coronal, 2)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.True(t, creds.Invalidated())
	_, ok := creds.Token()
	assert.False(t, ok)
}

func TestTimeoutIsDistinctFromUnavailable(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	srv.SetSliceDelay(500 * time.Millisecond)

	c, err := New(Options{BaseURL: srv.URL, RequestTimeout: 20 * time.Millisecond, Logger: zerolog.Nop()}, nil)
	require.NoError(t, err)
	_, err = c.FetchSlice(context.Background(), brainRef, models.Axial, 1)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrUnavailable)

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	c = newClient(t, url, nil)
	_, err = c.FetchSlice(context.Background(), brainRef, models.Axial, 1)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestCanceledContextIsReturnedAsIs(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	srv.SetSliceDelay(500 * time.Millisecond)
	c := newClient(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := c.FetchSlice(ctx, brainRef, models.Axial, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchMesh(t *testing.T) {
	srv, _, brainRef, lesionRef := phantomServer(t)
	c := newClient(t, srv.URL, nil)
	ctx := context.Background()

	res, err := c.FetchMesh(ctx, brainRef, DefaultMeshParams())
	require.NoError(t, err)
	require.NotNil(t, res.Mesh)
	assert.False(t, res.FromCache)
	assert.Equal(t, len(res.Mesh.Faces), res.Stats.FaceCount)
	assert.IsType(t, models.MeshVisual{}, res.Visual())

	res, err = c.FetchMesh(ctx, brainRef, DefaultMeshParams())
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	res, err = c.FetchMesh(ctx, lesionRef, DefaultMeshParams())
	require.NoError(t, err)
	require.NotNil(t, res.Lesion)
	assert.Nil(t, res.Mesh)
	assert.Equal(t, len(res.Lesion.Coordinates), res.Lesion.Stats.LesionCount)
	assert.Greater(t, res.Lesion.Stats.LesionCount, 0)
	assert.True(t, res.Lesion.Stats.Centered)
	assert.Equal(t, "original_centered", res.Lesion.Stats.CoordinateType)
	assert.IsType(t, models.PointsVisual{}, res.Visual())

	srv.LesionAsMesh(true)
	res, err = c.FetchMesh(ctx, lesionRef, DefaultMeshParams())
	require.NoError(t, err)
	assert.IsType(t, models.MeshVisual{}, res.Visual())
}

func TestUpload(t *testing.T) {
	srv := imagingtest.NewServer()
	defer srv.Close()
	c := newClient(t, srv.URL, nil)

	ref, err := c.Upload(context.Background(), models.Lesion, "mask.nii.gz", strings.NewReader("not really nifti"))
	require.NoError(t, err)
	assert.True(t, ref.Valid())
	assert.Equal(t, models.Lesion, ref.Role)
	assert.Equal(t, [3]int{32, 32, 16}, ref.Shape)
	assert.Equal(t, [3]float64{1, 1, 2}, ref.Spacing)
	assert.Equal(t, 32*32*16, ref.TotalVoxels)
	assert.Equal(t, 1.0, ref.Max)

	img, err := c.FetchSlice(context.Background(), ref, models.Axial, ref.Extent(models.Axial)/2)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Width)
}

func TestExportMesh(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	c := newClient(t, srv.URL, nil)
	ctx := context.Background()

	exp, err := c.ExportMesh(ctx, brainRef, DefaultMeshParams(), "STL")
	require.NoError(t, err)
	assert.Equal(t, brainRef.FileID+"_mesh.stl", exp.Filename)
	assert.Greater(t, exp.Triangles, 0)

	path, err := exp.Save(t.TempDir())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_mesh.stl"))

	_, err = c.ExportMesh(ctx, brainRef, DefaultMeshParams(), "xyz")
	assert.Error(t, err)

	_, err = c.ExportMesh(ctx, brainRef, DefaultMeshParams(), "obj")
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.Status)
}

func TestExportVolume(t *testing.T) {
	srv, _, brainRef, _ := phantomServer(t)
	c := newClient(t, srv.URL, nil)

	exp, err := c.ExportVolume(context.Background(), brainRef, true)
	require.NoError(t, err)
	assert.Equal(t, brainRef.FileID+"_original.nii.gz", exp.Filename)
	assert.NotEmpty(t, exp.Data)
}

func TestNormalizeMesh(t *testing.T) {
	srv, _, brainRef, lesionRef := phantomServer(t)
	c := newClient(t, srv.URL, nil)
	ctx := context.Background()

	nm, err := c.NormalizeMesh(ctx, brainRef, mesh.Cartesian, map[string]float64{"target_size": 10})
	require.NoError(t, err)
	assert.Equal(t, mesh.Cartesian, nm.Transform.Method)
	largest := 0.0
	for d := 0; d < 3; d++ {
		largest = max(largest, nm.Mesh.Bounds.Max[d]-nm.Mesh.Bounds.Min[d])
	}
	assert.InDelta(t, 10.0, largest, 1e-3)

	res, err := c.FetchMesh(ctx, brainRef, MeshParams{Threshold: 0.1, UseCache: true, UseNormalized: true})
	require.NoError(t, err)
	assert.Equal(t, nm.Mesh.Vertices, res.Mesh.Vertices)

	_, err = c.NormalizeMesh(ctx, lesionRef, mesh.Spherical, nil)
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, http.StatusBadRequest, be.Status)

	_, err = c.NormalizeMesh(ctx, brainRef, "zscore", nil)
	assert.Error(t, err)
}

func TestAnalysis(t *testing.T) {
	srv, brain, brainRef, _ := phantomServer(t)
	c := newClient(t, srv.URL, nil)

	a, err := c.Analysis(context.Background(), brainRef)
	require.NoError(t, err)
	want := brain.Analyze()
	assert.Equal(t, 8*6*4, a.Volume.TotalVoxels)
	assert.Equal(t, want.Volume.TissueVoxels, a.Volume.TissueVoxels)
	assert.InDelta(t, 2.0, a.Volume.VoxelVolume, 1e-9)
	assert.Len(t, a.Histogram.Counts, visualization.AnalysisBins)
	assert.Contains(t, a.Intensity.Percentiles, "p50")
	assert.Equal(t, "none", a.Normalization.Method)
}

func TestMalformedAndFailedReplies(t *testing.T) {
	var mu sync.Mutex
	var contentType, auth string
	seen := func() (string, string) {
		mu.Lock()
		defer mu.Unlock()
		return contentType, auth
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		contentType = r.Header.Get("Content-Type")
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		_, _ = io.Copy(io.Discard, r.Body)
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/slice/ragged"):
			_, _ = io.WriteString(w, `{"success":true,"slice_data":[[1,2],[3]],"shape":[2,2]}`)
		case strings.HasPrefix(r.URL.Path, "/api/slice/garbage"):
			_, _ = io.WriteString(w, `<html>oops</html>`)
		case strings.HasPrefix(r.URL.Path, "/api/mesh/"):
			_, _ = io.WriteString(w, `{"success":false,"error":"No mesh available"}`)
		case strings.HasPrefix(r.URL.Path, "/api/normalize-mesh/"):
			_, _ = io.WriteString(w, `{"success":true,"normalized_mesh_data":{"vertices":[[0,0,0]],"faces":[[0,1,2]]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := newClient(t, srv.URL, NewCredentials("abc"))
	ctx := context.Background()

	_, err := c.FetchSlice(ctx, models.VolumeRef{FileID: "ragged"}, models.Axial, 0)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	ct, bearer := seen()
	assert.Equal(t, "Bearer abc", bearer)
	assert.Empty(t, ct)

	_, err = c.FetchSlice(ctx, models.VolumeRef{FileID: "garbage"}, models.Axial, 0)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = c.FetchMesh(ctx, models.VolumeRef{FileID: "x"}, DefaultMeshParams())
	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "No mesh available", be.Message)

	_, err = c.NormalizeMesh(ctx, models.VolumeRef{FileID: "x"}, mesh.Cartesian, nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	ct, _ = seen()
	assert.Equal(t, "application/json", ct)
}
