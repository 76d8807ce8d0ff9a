package models

// MeshData is a read-only snapshot of a triangulated surface produced by the
// imaging service. Face indices refer to Vertices and must be in range.
type MeshData struct {
	Vertices [][3]float32 `json:"vertices"`
	Faces    [][3]uint32  `json:"faces"`

	// Centroid, Bounds and VoxelSpacing are informational and may be zero
	Centroid     [3]float64 `json:"centroid"`
	Bounds       Bounds     `json:"bounds"`
	VoxelSpacing [3]float64 `json:"voxel_spacing"`
}

// Bounds is an axis aligned bounding box
type Bounds struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// MeshStats describes how the service produced a mesh
type MeshStats struct {
	VertexCount   int     `json:"vertex_count"`
	FaceCount     int     `json:"face_count"`
	Threshold     float64 `json:"threshold_used"`
	Smoothing     float64 `json:"smoothing_sigma"`
	Normalized    bool    `json:"normalization_applied"`
	NormMethod    string  `json:"normalization_method"`
	FromCache     bool    `json:"-"`
	VoxelsInRange int     `json:"voxels_above_threshold"`
}

// LesionStats summarises a lesion coordinate set
type LesionStats struct {
	LesionCount     int        `json:"lesion_count"`
	CoordinateType  string     `json:"coordinate_type"`
	TransformMethod string     `json:"transform_method"`
	Transformed     bool       `json:"transform_applied"`
	Centered        bool       `json:"centering_applied"`
	OriginalCenter  [3]float64 `json:"original_centroid"`
}

// LesionCoordinateSet is the point-cloud representation of lesion voxels in mm
type LesionCoordinateSet struct {
	Coordinates [][3]float32 `json:"coordinates"`
	Stats       LesionStats  `json:"stats"`
}

// LesionVisual is the resolved representation of the lesion role. Exactly one
// of MeshVisual, PointsVisual or NoVisual.
type LesionVisual interface {
	isLesionVisual()
}

// MeshVisual renders the lesion as a triangle surface
type MeshVisual struct {
	Mesh MeshData
}

// PointsVisual renders the lesion as a capped sphere cloud
type PointsVisual struct {
	Set LesionCoordinateSet
}

// NoVisual means nothing is drawn for the lesion role
type NoVisual struct{}

func (MeshVisual) isLesionVisual()   {}
func (PointsVisual) isLesionVisual() {}
func (NoVisual) isLesionVisual()     {}

// ResolveLesionVisual picks the lesion representation once, at load time.
// Coordinate data wins over a legacy mesh whenever it is present.
func ResolveLesionVisual(mesh *MeshData, coords *LesionCoordinateSet) LesionVisual {
	if coords != nil {
		return PointsVisual{Set: *coords}
	}
	if mesh != nil && len(mesh.Vertices) > 0 {
		return MeshVisual{Mesh: *mesh}
	}
	return NoVisual{}
}
