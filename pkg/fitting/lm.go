// Package fitting provides a Levenberg–Marquardt nonlinear least-squares
// solver and the curve-fit helpers built on it.
package fitting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is returned when the iteration budget runs out
	ErrNotConverged = errors.New("least squares did not converge")

	// ErrSingular is returned when the normal equations cannot be solved at all
	ErrSingular = errors.New("singular normal equations")

	// ErrNonFinite is returned when the model produces NaN or Inf
	ErrNonFinite = errors.New("non-finite residuals")

	// ErrInsufficientData is returned when there are fewer observations than parameters
	ErrInsufficientData = errors.New("insufficient data points")
)

// Model evaluates the model for observation i at parameters p and writes
// the partial derivatives with respect to each parameter into grad.
type Model func(p []float64, i int, grad []float64) float64

// Problem describes a least-squares problem over a fixed set of observations
type Problem struct {
	// Model is evaluated once per observation
	Model Model

	// Observed holds the data values the model is fitted to
	Observed []float64
}

// Settings controls termination of the solver
type Settings struct {
	// MaxIter bounds the number of accepted or rejected outer iterations
	MaxIter int `yaml:"maxIter"`

	// FTol is the relative cost reduction below which the fit has converged
	FTol float64 `yaml:"ftol"`

	// XTol is the relative step size below which the fit has converged
	XTol float64 `yaml:"xtol"`

	// Lambda is the initial damping factor
	Lambda float64 `yaml:"lambda"`
}

// DefaultSettings returns the tolerances used when none are supplied
func DefaultSettings() Settings {
	return Settings{
		MaxIter: 200,
		FTol:    1e-10,
		XTol:    1e-10,
		Lambda:  1e-3,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxIter <= 0 {
		s.MaxIter = d.MaxIter
	}
	if s.FTol <= 0 {
		s.FTol = d.FTol
	}
	if s.XTol <= 0 {
		s.XTol = d.XTol
	}
	if s.Lambda <= 0 {
		s.Lambda = d.Lambda
	}
	return s
}

// Result holds the solution of a least-squares problem
type Result struct {
	// X is the parameter vector at the minimum
	X []float64

	// Cost is the sum of squared residuals at X
	Cost float64

	// Iterations is the number of outer iterations performed
	Iterations int

	// Covariance is the estimated parameter covariance, nil when the
	// normal matrix is singular at the solution
	Covariance *mat.SymDense
}

// StdErr returns the one-sigma uncertainty of parameter j, or NaN if no
// covariance is available
func (r *Result) StdErr(j int) float64 {
	if r.Covariance == nil {
		return math.NaN()
	}
	v := r.Covariance.At(j, j)
	if v < 0 {
		return math.NaN()
	}
	return math.Sqrt(v)
}

const maxLambda = 1e16

// LeastSquares minimises the sum of squared residuals of prob starting at p0
func LeastSquares(prob Problem, p0 []float64, settings *Settings) (*Result, error) {
	s := DefaultSettings()
	if settings != nil {
		s = *settings
	}
	s = s.withDefaults()
	n := len(p0)
	m := len(prob.Observed)
	if m < n {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrInsufficientData, m, n)
	}

	p := make([]float64, n)
	copy(p, p0)

	jtj := mat.NewSymDense(n, nil)
	jtr := mat.NewVecDense(n, nil)
	grad := make([]float64, n)

	cost := normalEquations(prob, p, jtj, jtr, grad)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return nil, fmt.Errorf("%w at initial guess", ErrNonFinite)
	}

	lambda := s.Lambda
	step := mat.NewVecDense(n, nil)
	damped := mat.NewSymDense(n, nil)
	trial := make([]float64, n)
	var chol mat.Cholesky

	converged := cost == 0
	iter := 0
	for ; iter < s.MaxIter && !converged; iter++ {
		accepted := false
		solved := false
		for !accepted {
			damped.CopySym(jtj)
			for j := 0; j < n; j++ {
				d := jtj.At(j, j)
				if d <= 0 {
					d = 1e-12
				}
				damped.SetSym(j, j, jtj.At(j, j)+lambda*d)
			}

			if chol.Factorize(damped) && chol.SolveVecTo(step, jtr) == nil {
				solved = true
				for j := 0; j < n; j++ {
					trial[j] = p[j] + step.AtVec(j)
				}
				trialCost := sumSquares(prob, trial)
				if trialCost < cost {
					accepted = true
					reduction := (cost - trialCost) / cost
					stepNorm := floats.Norm(step.RawVector().Data, 2)
					copy(p, trial)
					cost = normalEquations(prob, p, jtj, jtr, grad)
					lambda = math.Max(lambda/10, 1e-15)
					if cost == 0 || reduction <= s.FTol || stepNorm <= s.XTol*(floats.Norm(p, 2)+s.XTol) {
						converged = true
					}
					break
				}
			}

			lambda *= 10
			if lambda > maxLambda {
				if !solved {
					return nil, fmt.Errorf("%w after %d iterations", ErrSingular, iter)
				}
				// No downhill step exists at working precision.
				converged = true
				break
			}
		}
	}

	res := &Result{X: p, Cost: cost, Iterations: iter}
	if m > n && chol.Factorize(jtj) {
		cov := mat.NewSymDense(n, nil)
		if err := chol.InverseTo(cov); err == nil {
			cov.ScaleSym(cost/float64(m-n), cov)
			res.Covariance = cov
		}
	}

	if !converged {
		return res, fmt.Errorf("%w in %d iterations (cost %g)", ErrNotConverged, iter, cost)
	}
	return res, nil
}

// normalEquations fills J^T J and J^T r at p and returns the cost
func normalEquations(prob Problem, p []float64, jtj *mat.SymDense, jtr *mat.VecDense, grad []float64) float64 {
	n := len(p)
	a := make([]float64, n*n)
	b := make([]float64, n)
	var cost float64
	for i, obs := range prob.Observed {
		for j := range grad {
			grad[j] = 0
		}
		r := obs - prob.Model(p, i, grad)
		cost += r * r
		for j := 0; j < n; j++ {
			gj := grad[j]
			if gj == 0 {
				continue
			}
			b[j] += gj * r
			for k := j; k < n; k++ {
				a[j*n+k] += gj * grad[k]
			}
		}
	}
	for j := 0; j < n; j++ {
		for k := j; k < n; k++ {
			jtj.SetSym(j, k, a[j*n+k])
		}
		jtr.SetVec(j, b[j])
	}
	return cost
}

func sumSquares(prob Problem, p []float64) float64 {
	grad := make([]float64, len(p))
	var cost float64
	for i, obs := range prob.Observed {
		r := obs - prob.Model(p, i, grad)
		cost += r * r
	}
	if math.IsNaN(cost) {
		return math.Inf(1)
	}
	return cost
}
