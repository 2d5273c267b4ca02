package headpose

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DefaultOutlierThreshold is the normalized deviation at which a sample is
// rejected.
const DefaultOutlierThreshold = 2.0

// Median returns the median of values. For an even count it is the mean of
// the two middle elements. Returns NaN for an empty slice.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// RobustMean averages values after rejecting outliers.
//
// Each sample's absolute deviation from the median is divided by the median
// absolute deviation (MAD); samples whose normalized deviation is not below
// threshold are dropped. When the MAD is zero every sample is kept.
// ok is false when no sample survives.
func RobustMean(values []float64, threshold float64) (mean float64, inliers int, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}

	med := Median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	mad := Median(dev)

	kept := make([]float64, 0, len(values))
	for i, v := range values {
		score := 0.0
		if mad != 0 {
			score = dev[i] / mad
		}
		if score < threshold {
			kept = append(kept, v)
		}
	}

	if len(kept) == 0 {
		return 0, 0, false
	}
	return stat.Mean(kept, nil), len(kept), true
}
