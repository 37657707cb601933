package rings

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"fpringfit/internal/models"
	"fpringfit/pkg/fitting"
)

// maskFloor marks pixels below it as invalid in the default mask
const maskFloor = -999

// FitResult is the outcome of a least-squares ring fit
type FitResult struct {
	// Ring holds the fitted parameters
	Ring *models.Ring

	// Background is the fitted flat background level
	Background float64

	// Cost is the sum of squared residuals over the masked pixels
	Cost float64

	// Iterations is the number of solver iterations
	Iterations int
}

// Parameter order of the ring fit
const (
	parXc = iota
	parYc
	parRadius
	parAmplitude
	parSigma
	parBackground
	numParams
)

// DefaultMask selects every pixel with a value above -999
func DefaultMask(img *models.Image) []bool {
	mask := make([]bool, len(img.Data))
	for i, v := range img.Data {
		mask[i] = v > maskFloor
	}
	return mask
}

// RingFit fits a ring plus a flat background to the masked pixels of img.
// A nil mask selects DefaultMask; a nil guess starts from the image
// midpoint with opts.DefaultRadius. The fitted radius error comes from the
// solver covariance when it is available; otherwise the guess's error is
// carried over.
func RingFit(img *models.Image, mask []bool, guess *models.Ring, opts FitOptions) (*FitResult, error) {
	if mask == nil {
		mask = DefaultMask(img)
	}
	if len(mask) != len(img.Data) {
		return nil, fmt.Errorf("ring fit: mask length %d does not match %d pixels", len(mask), len(img.Data))
	}

	var xs, ys, obs []float64
	for i, ok := range mask {
		if !ok {
			continue
		}
		xs = append(xs, float64(i%img.Width))
		ys = append(ys, float64(i/img.Width))
		obs = append(obs, img.Data[i])
	}
	if len(obs) <= numParams {
		return nil, fmt.Errorf("ring fit: %d masked pixels: %w", len(obs), fitting.ErrInsufficientData)
	}

	p0 := initialParams(img, guess, obs, opts)

	model := func(p []float64, i int, grad []float64) float64 {
		dx := xs[i] - p[parXc]
		dy := ys[i] - p[parYc]
		r := math.Hypot(dx, dy)
		s := p[parSigma]
		d := r - p[parRadius]
		e := math.Exp(-(d * d) / (s * s))
		ae := p[parAmplitude] * e

		dr := ae * 2 * d / (s * s)
		if r > 0 {
			grad[parXc] = dr * dx / r
			grad[parYc] = dr * dy / r
		}
		grad[parRadius] = dr
		grad[parAmplitude] = e
		grad[parSigma] = dr * d / s
		grad[parBackground] = 1
		return ae + p[parBackground]
	}

	res, err := fitting.LeastSquares(fitting.Problem{Model: model, Observed: obs}, p0, &opts.Solver)
	if err != nil {
		return nil, fmt.Errorf("ring fit: %w", err)
	}

	p := res.X
	ring := models.NewRing(p[parXc], p[parYc], p[parRadius], p[parAmplitude], math.Abs(p[parSigma]))
	if guess != nil {
		ring.PeakRadiusError = guess.PeakRadiusError
	}
	if se := res.StdErr(parRadius); se > 0 && !math.IsInf(se, 0) {
		ring.PeakRadiusError = se
	}

	return &FitResult{
		Ring:       ring,
		Background: p[parBackground],
		Cost:       res.Cost,
		Iterations: res.Iterations,
	}, nil
}

func initialParams(img *models.Image, guess *models.Ring, obs []float64, opts FitOptions) []float64 {
	sorted := make([]float64, len(obs))
	copy(sorted, obs)
	sort.Float64s(sorted)
	background := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	p := make([]float64, numParams)
	if guess == nil {
		p[parXc], p[parYc] = img.Midpoint()
		p[parRadius] = opts.DefaultRadius
		p[parAmplitude] = floats.Max(obs) - background
		p[parSigma] = opts.DefaultSigma
	} else {
		p[parXc], p[parYc] = guess.Xc, guess.Yc
		p[parRadius] = guess.PeakRadius
		p[parAmplitude] = guess.Amplitude - background
		p[parSigma] = guess.Sigma
	}
	if p[parSigma] <= 0 || math.IsNaN(p[parSigma]) {
		p[parSigma] = opts.DefaultSigma
	}
	if p[parSigma] <= 0 {
		p[parSigma] = 1
	}
	p[parBackground] = background
	return p
}
