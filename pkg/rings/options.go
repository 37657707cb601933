// Package rings locates Fabry-Pérot interference rings in calibration
// frames and refines their parameters.
//
// FindRings produces initial guesses from two orthogonal profile cuts
// through a candidate centre. FindCenter then refines one guess with a
// selectable Method: a joint least-squares fit (FIT), an annular flux hill
// climb (MAX) or angular-sector centroiding (CENTER).
package rings

import (
	"errors"

	"fpringfit/pkg/fitting"
)

var (
	// ErrNoRings is returned when neither profile cut contains a peak pair
	ErrNoRings = errors.New("no rings detected")

	// ErrAsymmetricPeaks is returned in strict mode when the two cuts disagree
	ErrAsymmetricPeaks = errors.New("asymmetric peak counts between profile cuts")

	// ErrUnsupportedMethod is returned for an unknown refinement method
	ErrUnsupportedMethod = errors.New("unsupported method")
)

// EstimateOptions controls the initial ring search
type EstimateOptions struct {
	// Thresh is the detection threshold in units of background stddev.
	// The estimator carries it for the fitting stages; the driver uses it
	// to mask background pixels.
	Thresh float64 `yaml:"thresh"`

	// MinSize is the median window and minimum peak run length in pixels
	MinSize int `yaml:"minSize"`

	// FPeak is the fraction of the profile maximum a peak must exceed
	FPeak float64 `yaml:"fpeak"`

	// CenterX and CenterY fix the ring centre when set
	CenterX *float64 `yaml:"centerX,omitempty"`
	CenterY *float64 `yaml:"centerY,omitempty"`

	// Strict turns the asymmetric peak count warning into an error
	Strict bool `yaml:"strict"`
}

// RefineOptions holds the tunables of the MAX and CENTER methods
type RefineOptions struct {
	// NIter bounds the outer MAX iterations
	NIter int `yaml:"niter"`

	// Conv is the centre shift in pixels below which MAX stops
	Conv float64 `yaml:"conv"`

	// RadStep is the half-width of the annulus used for flux sums
	RadStep float64 `yaml:"radStep"`

	// RStep is the radius increment of the radius search
	RStep float64 `yaml:"rStep"`

	// MaxIter bounds each hill climb
	MaxIter int `yaml:"maxIter"`

	// NBins is the number of angular sectors used by CENTER
	NBins int `yaml:"nbins"`
}

// FitOptions configures the least-squares ring fit
type FitOptions struct {
	Solver fitting.Settings `yaml:"solver"`

	// DefaultRadius is the starting radius when no guess is supplied
	DefaultRadius float64 `yaml:"defaultRadius"`

	// DefaultSigma replaces a missing or zero width in the starting guess
	DefaultSigma float64 `yaml:"defaultSigma"`

	// Mask selects the pixels the FIT method uses, row-major like the
	// image. Nil falls back to DefaultMask.
	Mask []bool `yaml:"-"`
}

// Options is the single configuration structure passed from the estimator
// through the refiners down to the fitter
type Options struct {
	Estimate EstimateOptions `yaml:"estimate"`
	Refine   RefineOptions   `yaml:"refine"`
	Fit      FitOptions      `yaml:"fit"`
}

// DefaultOptions returns the standard tuning
func DefaultOptions() Options {
	return Options{
		Estimate: EstimateOptions{
			Thresh:  1.0,
			MinSize: 10,
			FPeak:   0.4,
		},
		Refine: RefineOptions{
			NIter:   10,
			Conv:    0.05,
			RadStep: 10,
			RStep:   0.25,
			MaxIter: 100,
			NBins:   8,
		},
		Fit: FitOptions{
			Solver:        fitting.DefaultSettings(),
			DefaultRadius: 383,
			DefaultSigma:  5,
		},
	}
}
