package models

import (
	"fmt"
	"math"
)

// Ring is the parametric description of one annular intensity feature.
// The radial profile is a Gaussian of width Sigma centred on PeakRadius.
type Ring struct {
	// Xc and Yc are the centre coordinates in pixel units
	Xc float64 `yaml:"xc" json:"xc"`
	Yc float64 `yaml:"yc" json:"yc"`

	// PeakRadius is the distance from the centre to the ring's peak intensity
	PeakRadius float64 `yaml:"peakRadius" json:"peakRadius"`

	// PeakRadiusError is the uncertainty on PeakRadius
	PeakRadiusError float64 `yaml:"peakRadiusError" json:"peakRadiusError"`

	// Amplitude is the peak intensity above background
	Amplitude float64 `yaml:"amplitude" json:"amplitude"`

	// Sigma is the Gaussian width of the radial profile. Zero marks a
	// degenerate guess that must not be evaluated.
	Sigma float64 `yaml:"sigma" json:"sigma"`

	// Ellipticity is reserved; the model is circularly symmetric and this is always 0
	Ellipticity float64 `yaml:"ellipticity" json:"ellipticity"`
}

// NewRing returns a ring with the default radius error of 1 pixel
func NewRing(xc, yc, radius, amplitude, sigma float64) *Ring {
	return &Ring{
		Xc:              xc,
		Yc:              yc,
		PeakRadius:      radius,
		PeakRadiusError: 1.0,
		Amplitude:       amplitude,
		Sigma:           sigma,
	}
}

// Degenerate reports whether the ring cannot be evaluated
func (r *Ring) Degenerate() bool {
	return r.Sigma == 0 || math.IsNaN(r.Sigma)
}

// Radius returns the distance of (x, y) from the ring centre
func (r *Ring) Radius(x, y float64) float64 {
	return math.Hypot(x-r.Xc, y-r.Yc)
}

// Eval returns the model intensity at (x, y). Callers must check
// Degenerate first; a zero Sigma yields NaN or 0.
func (r *Ring) Eval(x, y float64) float64 {
	d := (r.Radius(x, y) - r.PeakRadius) / r.Sigma
	return r.Amplitude * math.Exp(-d*d)
}

// Render adds the ring to every pixel of img
func (r *Ring) Render(img *Image) {
	if r.Degenerate() {
		return
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			img.Data[y*img.Width+x] += r.Eval(float64(x), float64(y))
		}
	}
}

func (r *Ring) String() string {
	return fmt.Sprintf("ring(xc=%.3f yc=%.3f r=%.3f±%.3f amp=%.3f sigma=%.3f)",
		r.Xc, r.Yc, r.PeakRadius, r.PeakRadiusError, r.Amplitude, r.Sigma)
}
