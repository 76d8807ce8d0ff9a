package visualization

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"brainviewer/internal/models"
)

// AnalysisBins is the number of histogram bins in an analysis report
const AnalysisBins = 50

var percentiles = []float64{5, 25, 50, 75, 95}

// Analyze reports voxel counts, physical volume and intensity statistics.
// Tissue is every non-zero voxel; the histogram covers tissue only.
func (v *Viewer) Analyze() models.Analysis {
	var a models.Analysis
	a.Normalization.Method = "none"

	total := v.width * v.height * v.depth
	data := v.volumeData
	if total < len(data) {
		data = data[:total]
	}
	voxel := v.spacing[0] * v.spacing[1] * v.spacing[2]

	tissue := make([]float64, 0, len(data))
	for _, x := range data {
		if x != 0 {
			tissue = append(tissue, x)
		}
	}

	a.Volume = models.VolumeAnalysis{
		TotalVoxels:      total,
		TissueVoxels:     len(tissue),
		BackgroundVoxels: total - len(tissue),
		TotalVolume:      float64(total) * voxel,
		TissueVolume:     float64(len(tissue)) * voxel,
		VoxelVolume:      voxel,
	}
	if total > 0 {
		a.Volume.TissuePercentage = float64(len(tissue)) / float64(total) * 100
	}

	if len(data) > 0 {
		a.Intensity.GlobalMin = floats.Min(data)
		a.Intensity.GlobalMax = floats.Max(data)
		a.Intensity.GlobalMean, a.Intensity.GlobalStd = stat.PopMeanStdDev(data, nil)
	}
	if len(tissue) == 0 {
		return a
	}

	sort.Float64s(tissue)
	a.Intensity.TissueMin = tissue[0]
	a.Intensity.TissueMax = tissue[len(tissue)-1]
	a.Intensity.TissueMean, a.Intensity.TissueStd = stat.PopMeanStdDev(tissue, nil)
	a.Intensity.Percentiles = make(map[string]float64, len(percentiles))
	for _, p := range percentiles {
		a.Intensity.Percentiles[fmt.Sprintf("p%g", p)] = stat.Quantile(p/100, stat.LinInterp, tissue, nil)
	}

	lo, hi := tissue[0], tissue[len(tissue)-1]
	if hi <= lo {
		hi = lo + 1
	}
	edges := floats.Span(make([]float64, AnalysisBins+1), lo, hi)
	dividers := append([]float64(nil), edges...)
	dividers[AnalysisBins] = math.Nextafter(hi, math.Inf(1))
	a.Histogram.Counts = stat.Histogram(nil, dividers, tissue, nil)
	a.Histogram.Bins = edges[:AnalysisBins]
	return a
}
