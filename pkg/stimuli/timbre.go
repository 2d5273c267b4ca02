package stimuli

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RolloffFraction is the share of spectral power below the rolloff frequency.
const RolloffFraction = 0.85

const (
	pcaDims        = 2
	kmeansRestarts = 10
	kmeansMaxIter  = 100
)

// Features summarizes the timbre of a sound.
type Features struct {
	Centroid float64 // Hz
	Rolloff  float64 // Hz
	ZCR      float64 // crossings per sample
}

func (f Features) vector() []float64 { return []float64{f.Centroid, f.Rolloff, f.ZCR} }

// SpectralFeatures returns the power weighted spectral centroid, the
// rolloff frequency and the zero crossing rate of s.
func SpectralFeatures(s *Sound) Features {
	n := s.Len()
	if n < 2 {
		return Features{}
	}
	spec := fft.FFTReal(s.Data)
	res := s.SampleRate / float64(n)
	power := make([]float64, n/2+1)
	for k := range power {
		m := cmplx.Abs(spec[k])
		power[k] = m * m
	}

	f := Features{ZCR: ZeroCrossingRate(s.Data)}
	total := floats.Sum(power)
	if total == 0 {
		return f
	}
	var weighted float64
	for k, p := range power {
		weighted += float64(k) * res * p
	}
	f.Centroid = weighted / total

	var cum float64
	for k, p := range power {
		cum += p
		if cum >= RolloffFraction*total {
			f.Rolloff = float64(k) * res
			break
		}
	}
	return f
}

// ZeroCrossingRate is the fraction of adjacent sample pairs that change sign.
// Zero counts as positive.
func ZeroCrossingRate(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(data); i++ {
		if (data[i-1] < 0) != (data[i] < 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(data)-1)
}

// MeanFeatures averages the features of several recordings of one talker.
func MeanFeatures(sounds []*Sound) Features {
	var f Features
	if len(sounds) == 0 {
		return f
	}
	for _, s := range sounds {
		sf := SpectralFeatures(s)
		f.Centroid += sf.Centroid
		f.Rolloff += sf.Rolloff
		f.ZCR += sf.ZCR
	}
	n := float64(len(sounds))
	f.Centroid /= n
	f.Rolloff /= n
	f.ZCR /= n
	return f
}

// ClusterTalkers groups talkers by timbre and returns one label in [0,k)
// per talker. The features are z-scored and projected onto their first two
// principal components before k-means. With k at least the number of
// talkers every talker is its own cluster.
func ClusterTalkers(feats []Features, k int, rng *rand.Rand) ([]int, error) {
	if k < 1 {
		return nil, fmt.Errorf("stimuli: cluster count must be positive, got %d", k)
	}
	if len(feats) == 0 {
		return nil, errors.New("stimuli: no talkers to cluster")
	}
	if k >= len(feats) {
		labels := make([]int, len(feats))
		for i := range labels {
			labels[i] = i
		}
		return labels, nil
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(42, 42))
	}
	points := project(standardize(feats), pcaDims)
	return kmeans(points, k, rng), nil
}

// standardize z-scores every feature column. Constant columns are centered.
func standardize(feats []Features) *mat.Dense {
	x := mat.NewDense(len(feats), 3, nil)
	for i, f := range feats {
		x.SetRow(i, f.vector())
	}
	for j := range 3 {
		col := mat.Col(nil, j, x)
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		for i, v := range col {
			x.Set(i, j, (v-mean)/std)
		}
	}
	return x
}

// project returns the scores of x on its leading principal components, or
// x itself when the decomposition fails.
func project(x *mat.Dense, dims int) [][]float64 {
	var pc stat.PC
	src := mat.Matrix(x)
	if pc.PrincipalComponents(x, nil) {
		var vecs mat.Dense
		pc.VectorsTo(&vecs)
		r, c := vecs.Dims()
		var scores mat.Dense
		scores.Mul(x, vecs.Slice(0, r, 0, min(dims, c)))
		src = &scores
	}
	n, _ := src.Dims()
	points := make([][]float64, n)
	for i := range points {
		points[i] = mat.Row(nil, i, src)
	}
	return points
}

// kmeans runs Lloyd's algorithm from k-means++ seeds several times and keeps
// the labelling with the lowest within-cluster sum of squares.
func kmeans(points [][]float64, k int, rng *rand.Rand) []int {
	var best []int
	bestSSE := math.Inf(1)
	for range kmeansRestarts {
		labels, sse := lloyd(points, seedCenters(points, k, rng))
		if sse < bestSSE {
			best, bestSSE = labels, sse
		}
	}
	return best
}

func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := [][]float64{slices.Clone(points[rng.IntN(len(points))])}
	d2 := make([]float64, len(points))
	for len(centers) < k {
		for i, p := range points {
			_, d := closest(p, centers)
			d2[i] = d * d
		}
		total := floats.Sum(d2)
		next := rng.IntN(len(points))
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range d2 {
				if r -= d; r <= 0 {
					next = i
					break
				}
			}
		}
		centers = append(centers, slices.Clone(points[next]))
	}
	return centers
}

func lloyd(points [][]float64, centers [][]float64) ([]int, float64) {
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}
	dim := len(points[0])
	var sse float64
	for range kmeansMaxIter {
		changed := false
		sse = 0
		for i, p := range points {
			c, d := closest(p, centers)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
			sse += d * d
		}
		if !changed {
			break
		}
		sums := make([][]float64, len(centers))
		counts := make([]int, len(centers))
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for c := range centers {
			// An empty cluster keeps its center.
			if counts[c] > 0 {
				floats.ScaleTo(centers[c], 1/float64(counts[c]), sums[c])
			}
		}
	}
	return labels, sse
}

func closest(p []float64, centers [][]float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, ctr := range centers {
		if d := floats.Distance(p, ctr, 2); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

// PickSpread picks n distinct talkers, taking one per cluster before any
// cluster contributes a second. Fewer than n are returned only when labels
// has fewer than n talkers.
func PickSpread(labels []int, n int, rng *rand.Rand) []int {
	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	keys := slices.Sorted(maps.Keys(groups))
	rng.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	for _, key := range keys {
		g := groups[key]
		rng.Shuffle(len(g), func(i, j int) { g[i], g[j] = g[j], g[i] })
	}

	out := make([]int, 0, min(n, len(labels)))
	for round := 0; len(out) < n; round++ {
		added := false
		for _, key := range keys {
			if g := groups[key]; round < len(g) && len(out) < n {
				out = append(out, g[round])
				added = true
			}
		}
		if !added {
			break
		}
	}
	return out
}
