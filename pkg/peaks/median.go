package peaks

import (
	"sort"
)

// MedianFilter smooths profile with a running median of the given window.
// Even windows are widened by one so the window stays centred on each
// sample. Samples beyond the ends are mirrored (d c b a | a b c d | d c b a).
func MedianFilter(profile []float64, window int) []float64 {
	n := len(profile)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if window <= 1 {
		copy(out, profile)
		return out
	}
	if window%2 == 0 {
		window++
	}
	half := window / 2

	buf := make([]float64, window)
	for i := 0; i < n; i++ {
		for k := -half; k <= half; k++ {
			buf[k+half] = profile[reflect(i+k, n)]
		}
		sort.Float64s(buf)
		out[i] = buf[half]
	}
	return out
}

// reflect maps an out-of-range index back into [0, n) with edge repetition
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
