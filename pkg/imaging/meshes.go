package imaging

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"brainviewer/internal/models"
	"brainviewer/pkg/mesh"
)

// MeshParams are the surface extraction parameters of mesh fetches and exports
type MeshParams struct {
	Threshold     float64
	Smoothing     float64
	UseCache      bool
	UseNormalized bool
}

// DefaultMeshParams matches the service defaults
func DefaultMeshParams() MeshParams {
	return MeshParams{Threshold: 0.1, Smoothing: 1.0, UseCache: true}
}

func (p MeshParams) query() url.Values {
	q := url.Values{}
	q.Set("threshold", strconv.FormatFloat(p.Threshold, 'f', -1, 64))
	q.Set("smoothing", strconv.FormatFloat(p.Smoothing, 'f', -1, 64))
	q.Set("use_cache", strconv.FormatBool(p.UseCache))
	q.Set("use_normalized", strconv.FormatBool(p.UseNormalized))
	return q
}

// MeshResult is the reply of a mesh fetch. The service answers with a surface
// for brain volumes and with a point set for lesion masks.
type MeshResult struct {
	Mesh      *models.MeshData
	Stats     models.MeshStats
	Lesion    *models.LesionCoordinateSet
	FromCache bool
}

// Visual resolves the lesion representation of the reply
func (r *MeshResult) Visual() models.LesionVisual {
	return models.ResolveLesionVisual(r.Mesh, r.Lesion)
}

// FetchMesh retrieves the surface or lesion coordinates of a stored volume
func (c *Client) FetchMesh(ctx context.Context, ref models.VolumeRef, params MeshParams) (*MeshResult, error) {
	var reply meshReply
	if err := c.getJSON(ctx, "/api/mesh/"+escape(ref.FileID), params.query(), &reply); err != nil {
		return nil, fmt.Errorf("mesh of %s: %w", ref.FileID, err)
	}

	res := &MeshResult{Stats: reply.MeshStats, FromCache: reply.FromCache}
	res.Stats.FromCache = reply.FromCache

	switch {
	case reply.DataType == "lesion_coordinates" || reply.LesionData != nil:
		if reply.LesionData == nil {
			return nil, fmt.Errorf("mesh of %s: %w: lesion reply without lesion_data", ref.FileID, ErrMalformedResponse)
		}
		set := &models.LesionCoordinateSet{
			Coordinates: reply.LesionData.Coordinates,
			Stats:       reply.LesionStats,
		}
		if set.Stats.LesionCount == 0 {
			set.Stats.LesionCount = len(set.Coordinates)
		}
		set.Stats.Centered = set.Stats.Centered || reply.LesionData.CenteringApplied
		if len(reply.LesionData.OriginalCentroid) == 3 {
			copy(set.Stats.OriginalCenter[:], reply.LesionData.OriginalCentroid)
		}
		res.Lesion = set
	case reply.MeshData != nil:
		if err := checkFaces(reply.MeshData); err != nil {
			return nil, fmt.Errorf("mesh of %s: %w", ref.FileID, err)
		}
		res.Mesh = reply.MeshData
	default:
		return nil, fmt.Errorf("mesh of %s: %w: neither mesh_data nor lesion_data", ref.FileID, ErrMalformedResponse)
	}

	c.log.Debug().
		Str("id", ref.FileID).
		Bool("lesion", res.Lesion != nil).
		Bool("cached", res.FromCache).
		Msg("mesh fetched")
	return res, nil
}

// NormalizedMesh is the reply of a geometric normalization request
type NormalizedMesh struct {
	Mesh      models.MeshData
	Stats     models.MeshStats
	Transform mesh.TransformInfo
}

// NormalizeMesh asks the service to centre and rescale the surface of a brain
// volume. method is mesh.Cartesian or mesh.Spherical; params may carry
// target_size or target_radius.
func (c *Client) NormalizeMesh(ctx context.Context, ref models.VolumeRef, method string, params map[string]float64) (*NormalizedMesh, error) {
	if method != mesh.Cartesian && method != mesh.Spherical {
		return nil, fmt.Errorf("unknown normalization method %q", method)
	}
	var reply normalizeReply
	in := normalizeRequest{Method: method, Params: params}
	if err := c.postJSON(ctx, "/api/normalize-mesh/"+escape(ref.FileID), in, &reply); err != nil {
		return nil, fmt.Errorf("normalize mesh of %s: %w", ref.FileID, err)
	}
	if reply.NormalizedMeshData == nil {
		return nil, fmt.Errorf("normalize mesh of %s: %w: no normalized_mesh_data", ref.FileID, ErrMalformedResponse)
	}
	if err := checkFaces(reply.NormalizedMeshData); err != nil {
		return nil, fmt.Errorf("normalize mesh of %s: %w", ref.FileID, err)
	}
	return &NormalizedMesh{
		Mesh:      *reply.NormalizedMeshData,
		Stats:     reply.MeshStats,
		Transform: reply.TransformInfo,
	}, nil
}

// checkFaces rejects surfaces whose faces point past the vertex list
func checkFaces(m *models.MeshData) error {
	n := uint32(len(m.Vertices))
	for i, f := range m.Faces {
		if f[0] >= n || f[1] >= n || f[2] >= n {
			return fmt.Errorf("%w: face %d references vertex beyond %d", ErrMalformedResponse, i, n)
		}
	}
	return nil
}
