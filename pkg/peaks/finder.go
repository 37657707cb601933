// Package peaks extracts contiguous peak intervals from noisy 1D profiles.
package peaks

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Default tuning for Find
const (
	DefaultFPeak   = 0.8
	DefaultMinSize = 10
)

// Interval is an inclusive index range along a profile
type Interval struct {
	Start int
	End   int
}

// Len returns the number of samples covered by the interval
func (iv Interval) Len() int {
	return iv.End - iv.Start + 1
}

// Contains reports whether index i lies inside the interval
func (iv Interval) Contains(i int) bool {
	return i >= iv.Start && i <= iv.End
}

// Midpoint returns the centre of the interval in index units
func (iv Interval) Midpoint() float64 {
	return 0.5 * float64(iv.Start+iv.End)
}

// Find returns the runs of the median-smoothed profile that exceed fpeak
// times its maximum and are at least minsize samples long, in ascending
// index order. A profile with no qualifying run yields an empty slice.
func Find(profile []float64, fpeak float64, minsize int) []Interval {
	if len(profile) == 0 {
		return nil
	}
	if minsize < 1 {
		minsize = 1
	}

	smoothed := MedianFilter(profile, minsize)
	threshold := fpeak * floats.Max(smoothed)

	mask := make([]bool, len(smoothed))
	for i, v := range smoothed {
		mask[i] = v > threshold
	}

	var intervals []Interval
	for _, run := range Label(mask) {
		if run.Len() >= minsize {
			intervals = append(intervals, run)
		}
	}
	return intervals
}

// Label returns every maximal run of true values in mask, left to right
func Label(mask []bool) []Interval {
	var runs []Interval
	start := -1
	for i, on := range mask {
		switch {
		case on && start < 0:
			start = i
		case !on && start >= 0:
			runs = append(runs, Interval{Start: start, End: i - 1})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, Interval{Start: start, End: len(mask) - 1})
	}
	return runs
}

// ArgMax returns the index of the largest profile value inside iv
func ArgMax(profile []float64, iv Interval) int {
	return iv.Start + floats.MaxIdx(profile[iv.Start:iv.End+1])
}

// Moments returns the flux-weighted mean position and the square root of
// the flux-weighted second central moment of the profile over iv. Negative
// samples carry no weight.
func Moments(profile []float64, iv Interval) (mean, width float64) {
	var sum, first float64
	for i := iv.Start; i <= iv.End; i++ {
		w := profile[i]
		if w <= 0 {
			continue
		}
		sum += w
		first += w * float64(i)
	}
	if sum == 0 {
		return iv.Midpoint(), 0
	}
	mean = first / sum

	var second float64
	for i := iv.Start; i <= iv.End; i++ {
		w := profile[i]
		if w <= 0 {
			continue
		}
		d := float64(i) - mean
		second += w * d * d
	}
	return mean, math.Sqrt(second / sum)
}
