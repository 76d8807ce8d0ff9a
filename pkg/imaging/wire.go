package imaging

import (
	"brainviewer/internal/models"
	"brainviewer/pkg/mesh"
)

// envelope carries the fields every reply of the service may contain
type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type fileInfo struct {
	FileID       string    `json:"file_id"`
	FileType     string    `json:"file_type"`
	Shape        []int     `json:"shape"`
	Zooms        []float64 `json:"zooms"`
	DataType     string    `json:"data_type"`
	MinValue     float64   `json:"min_value"`
	MaxValue     float64   `json:"max_value"`
	MeanValue    float64   `json:"mean_value"`
	StdValue     float64   `json:"std_value"`
	NonZeroCount int       `json:"non_zero_count"`
	TotalVoxels  int       `json:"total_voxels"`
	NonZeroMean  float64   `json:"non_zero_mean"`
}

// ref converts the upload description into a VolumeRef. Only the first three
// dimensions are kept.
func (fi fileInfo) ref(fallbackID string, role models.FileRole) (models.VolumeRef, error) {
	if len(fi.Shape) < 3 {
		return models.VolumeRef{}, ErrMalformedResponse
	}
	ref := models.VolumeRef{
		FileID:       fi.FileID,
		Role:         role,
		DataType:     fi.DataType,
		Min:          fi.MinValue,
		Max:          fi.MaxValue,
		Mean:         fi.MeanValue,
		NonZeroMean:  fi.NonZeroMean,
		NonZeroCount: fi.NonZeroCount,
		TotalVoxels:  fi.TotalVoxels,
	}
	if ref.FileID == "" {
		ref.FileID = fallbackID
	}
	for i := 0; i < 3; i++ {
		ref.Shape[i] = fi.Shape[i]
		ref.Spacing[i] = 1
		if i < len(fi.Zooms) && fi.Zooms[i] > 0 {
			ref.Spacing[i] = fi.Zooms[i]
		}
	}
	if fi.FileType != "" {
		if r, err := models.ParseFileRole(fi.FileType); err == nil {
			ref.Role = r
		}
	}
	return ref, nil
}

type uploadReply struct {
	FileID   string   `json:"file_id"`
	FileInfo fileInfo `json:"file_info"`
}

type loginReply struct {
	AccessToken string `json:"access_token"`
}

type sliceReply struct {
	SliceData          [][]float64 `json:"slice_data"`
	ViewType           string      `json:"view_type"`
	SliceIndex         int         `json:"slice_index"`
	Shape              []int       `json:"shape"`
	MaxSlices          int         `json:"max_slices"`
	OriginalShape      []int       `json:"original_shape"`
	OrientationApplied bool        `json:"orientation_applied"`
}

type lesionData struct {
	Coordinates      [][3]float32 `json:"coordinates"`
	Type             string       `json:"type"`
	VoxelSpacing     []float64    `json:"voxel_spacing"`
	CenteringApplied bool         `json:"centering_applied"`
	OriginalCentroid []float64    `json:"original_centroid"`
}

type meshReply struct {
	DataType    string             `json:"data_type"`
	MeshData    *models.MeshData   `json:"mesh_data"`
	MeshStats   models.MeshStats   `json:"mesh_stats"`
	LesionData  *lesionData        `json:"lesion_data"`
	LesionStats models.LesionStats `json:"lesion_stats"`
	FromCache   bool               `json:"from_cache"`
	Normalized  bool               `json:"normalized"`
}

type normalizeRequest struct {
	Method string             `json:"method"`
	Params map[string]float64 `json:"params,omitempty"`
}

type normalizeReply struct {
	NormalizedMeshData *models.MeshData   `json:"normalized_mesh_data"`
	MeshStats          models.MeshStats   `json:"mesh_stats"`
	TransformApplied   bool               `json:"transform_applied"`
	Method             string             `json:"method"`
	TransformInfo      mesh.TransformInfo `json:"transform_info"`
}

type analysisReply struct {
	Analysis models.Analysis `json:"analysis"`
}
