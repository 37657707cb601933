package fitting

import (
	"fmt"
	"math"
	"sort"
)

// CurveFunc evaluates y = f(x; p) and writes df/dp into grad
type CurveFunc func(x float64, p []float64, grad []float64) float64

// CurveFit fits f to the samples (xs, ys) starting from p0
func CurveFit(f CurveFunc, xs, ys, p0 []float64, settings *Settings) (*Result, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("curve fit: %d x values for %d y values", len(xs), len(ys))
	}
	prob := Problem{
		Model: func(p []float64, i int, grad []float64) float64 {
			return f(xs[i], p, grad)
		},
		Observed: ys,
	}
	return LeastSquares(prob, p0, settings)
}

// Polyfit fits a polynomial of the given degree to (xs, ys) and returns
// its coefficients in increasing order of power.
func Polyfit(xs, ys []float64, degree int) ([]float64, error) {
	if len(xs) < degree+1 {
		return nil, fmt.Errorf("polyfit degree %d: %w", degree, ErrInsufficientData)
	}
	poly := func(x float64, p []float64, grad []float64) float64 {
		var y float64
		pow := 1.0
		for k := range p {
			grad[k] = pow
			y += p[k] * pow
			pow *= x
		}
		return y
	}
	res, err := CurveFit(poly, xs, ys, make([]float64, degree+1), nil)
	if err != nil {
		return nil, fmt.Errorf("polyfit degree %d: %w", degree, err)
	}
	return res.X, nil
}

// Polyval evaluates the polynomial with coefficients c (increasing power) at x
func Polyval(c []float64, x float64) float64 {
	var y float64
	for k := len(c) - 1; k >= 0; k-- {
		y = y*x + c[k]
	}
	return y
}

// CubicMax returns the position of the largest value of the cubic c on
// [lo, hi], restricted to interior stationary points. ok is false when
// the cubic has no interior maximum on the interval.
func CubicMax(c []float64, lo, hi float64) (x float64, ok bool) {
	if len(c) != 4 {
		return 0, false
	}
	// p'(x) = 3 c3 x^2 + 2 c2 x + c1; a maximum has p''(x) = 6 c3 x + 2 c2 < 0
	a, b, cc := 3*c[3], 2*c[2], c[1]
	var roots []float64
	switch {
	case a == 0 && b == 0:
		return 0, false
	case a == 0:
		roots = []float64{-cc / b}
	default:
		disc := b*b - 4*a*cc
		if disc < 0 {
			return 0, false
		}
		sq := math.Sqrt(disc)
		roots = []float64{(-b - sq) / (2 * a), (-b + sq) / (2 * a)}
	}
	sort.Float64s(roots)

	best := math.Inf(-1)
	for _, r := range roots {
		if r <= lo || r >= hi {
			continue
		}
		if 6*c[3]*r+2*c[2] >= 0 {
			continue
		}
		if v := Polyval(c, r); v > best {
			best, x, ok = v, r, true
		}
	}
	return x, ok
}
