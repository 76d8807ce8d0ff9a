package models

// Analysis is the intensity and volume report of a stored volume
type Analysis struct {
	Volume        VolumeAnalysis    `json:"volume_analysis"`
	Intensity     IntensityStats    `json:"intensity_statistics"`
	Histogram     HistogramData     `json:"histogram_data"`
	Normalization NormalizationInfo `json:"normalization_info"`
}

// VolumeAnalysis counts tissue (non-zero) voxels and their physical volume
type VolumeAnalysis struct {
	TotalVoxels      int     `json:"total_voxels"`
	TissueVoxels     int     `json:"tissue_voxels"`
	BackgroundVoxels int     `json:"background_voxels"`
	TotalVolume      float64 `json:"total_volume_mm3"`
	TissueVolume     float64 `json:"tissue_volume_mm3"`
	TissuePercentage float64 `json:"tissue_percentage"`
	VoxelVolume      float64 `json:"voxel_volume_mm3"`
}

// IntensityStats holds global and tissue-only statistics. Percentiles are keyed
// p5, p25, p50, p75 and p95 and are only present when there is tissue.
type IntensityStats struct {
	GlobalMin   float64            `json:"global_min"`
	GlobalMax   float64            `json:"global_max"`
	GlobalMean  float64            `json:"global_mean"`
	GlobalStd   float64            `json:"global_std"`
	TissueMin   float64            `json:"tissue_min"`
	TissueMax   float64            `json:"tissue_max"`
	TissueMean  float64            `json:"tissue_mean"`
	TissueStd   float64            `json:"tissue_std"`
	Percentiles map[string]float64 `json:"percentiles,omitempty"`
}

// HistogramData lists the lower edge of every bin with its count
type HistogramData struct {
	Bins   []float64 `json:"bins"`
	Counts []float64 `json:"counts"`
}

type NormalizationInfo struct {
	Applied bool   `json:"applied"`
	Method  string `json:"method"`
}
