package visualization

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the intensities of a volume
type Stats struct {
	Min          float64 `json:"min_value"`
	Max          float64 `json:"max_value"`
	Mean         float64 `json:"mean_value"`
	StdDev       float64 `json:"std_value"`
	NonZeroMean  float64 `json:"non_zero_mean"`
	NonZeroCount int     `json:"non_zero_count"`
	TotalVoxels  int     `json:"total_voxels"`
}

// Stats computes the intensity summary of the whole volume
func (v *Viewer) Stats() Stats {
	data := v.volumeData
	if n := v.width * v.height * v.depth; n < len(data) {
		data = data[:n]
	}
	st := Stats{TotalVoxels: v.width * v.height * v.depth}
	if len(data) == 0 {
		return st
	}

	st.Min = floats.Min(data)
	st.Max = floats.Max(data)
	st.Mean, st.StdDev = stat.MeanStdDev(data, nil)
	if len(data) == 1 {
		st.StdDev = 0
	}

	nonZero := make([]float64, 0, len(data))
	for _, x := range data {
		if x != 0 {
			nonZero = append(nonZero, x)
		}
	}
	st.NonZeroCount = len(nonZero)
	if len(nonZero) > 0 {
		st.NonZeroMean = stat.Mean(nonZero, nil)
	}
	return st
}

// Histogram bins the volume intensities into bins equal-width buckets spanning
// [min, max]. It returns the counts and the bins+1 bucket edges.
func (v *Viewer) Histogram(bins int) (counts, edges []float64) {
	if bins <= 0 || len(v.volumeData) == 0 {
		return nil, nil
	}
	sorted := append([]float64(nil), v.volumeData...)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi <= lo {
		hi = lo + 1
	}
	edges = floats.Span(make([]float64, bins+1), lo, hi)
	// stat.Histogram excludes the upper edge
	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts = stat.Histogram(nil, dividers, sorted, nil)
	return counts, edges
}
