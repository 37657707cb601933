// Package background estimates the sky/detector level of a frame by
// iterative sigma clipping.
package background

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"fpringfit/internal/models"
)

// Stats summarises the clipped pixel distribution
type Stats struct {
	Mean   float64
	Median float64
	StdDev float64

	// N is the number of samples that survived clipping
	N int
}

// ClippedStats computes mean, median and standard deviation of data after
// niter rounds of rejecting samples further than nsigma standard
// deviations from the median. Clipping stops early once no sample is
// rejected.
func ClippedStats(data []float64, nsigma float64, niter int) Stats {
	kept := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return Stats{Mean: math.NaN(), Median: math.NaN(), StdDev: math.NaN()}
	}
	sort.Float64s(kept)

	s := summarise(kept)
	for iter := 0; iter < niter; iter++ {
		lo := s.Median - nsigma*s.StdDev
		hi := s.Median + nsigma*s.StdDev
		start := sort.SearchFloat64s(kept, lo)
		end := sort.Search(len(kept), func(i int) bool { return kept[i] > hi })
		if start == 0 && end == len(kept) {
			break
		}
		if end-start < 2 {
			break
		}
		kept = kept[start:end]
		s = summarise(kept)
	}
	return s
}

// summarise assumes sorted input
func summarise(sorted []float64) Stats {
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = 0
	}
	return Stats{
		Mean:   mean,
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		StdDev: std,
		N:      len(sorted),
	}
}

// Subtract returns a copy of img with the background median removed and
// every pixel below thresh standard deviations set to zero
func Subtract(img *models.Image, s Stats, thresh float64) *models.Image {
	out := img.Clone()
	floor := thresh * s.StdDev
	for i, v := range out.Data {
		v -= s.Median
		if v < floor {
			v = 0
		}
		out.Data[i] = v
	}
	return out
}

// Mask marks the pixels usable by a fit: finite and no more than nsigma
// standard deviations below the background median. Dead and flagged
// pixels come out false.
func Mask(img *models.Image, s Stats, nsigma float64) []bool {
	mask := make([]bool, len(img.Data))
	level := s.Median - nsigma*s.StdDev
	for i, v := range img.Data {
		mask[i] = !math.IsNaN(v) && !math.IsInf(v, 0) && v >= level
	}
	return mask
}
