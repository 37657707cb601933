package rings

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/floats"

	"fpringfit/internal/models"
	"fpringfit/pkg/peaks"
)

// FindRings returns initial ring guesses, innermost first, from the row
// and column profiles through the candidate centre. The candidate is the
// fixed centre from opts when given, otherwise the image midpoint.
func FindRings(img *models.Image, opts EstimateOptions) ([]*models.Ring, error) {
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrNoRings)
	}

	cx, cy := img.Midpoint()
	if opts.CenterX != nil {
		cx = *opts.CenterX
	}
	if opts.CenterY != nil {
		cy = *opts.CenterY
	}

	xdata := img.Row(int(cy))
	ydata := img.Column(int(cx))

	xPeaks := peaks.Find(xdata, opts.FPeak, opts.MinSize)
	yPeaks := peaks.Find(ydata, opts.FPeak, opts.MinSize)

	if d := len(yPeaks) - len(xPeaks); d > 1 || d < -1 {
		if opts.Strict {
			return nil, fmt.Errorf("%w: %d row peaks, %d column peaks", ErrAsymmetricPeaks, len(xPeaks), len(yPeaks))
		}
		log.Printf("Warning: asymmetric ring detection, %d row peaks vs %d column peaks", len(xPeaks), len(yPeaks))
	}

	nrings := max(len(yPeaks)/2, len(xPeaks)/2)
	if nrings < 1 {
		return nil, fmt.Errorf("%w: %d row peaks, %d column peaks", ErrNoRings, len(xPeaks), len(yPeaks))
	}

	xcut := newCut(xdata, xPeaks, cx, opts.CenterX != nil)
	ycut := newCut(ydata, yPeaks, cy, opts.CenterY != nil)

	rings := make([]*models.Ring, 0, nrings)
	for k := 0; k < nrings; k++ {
		xe := xcut.estimate(k)
		ye := ycut.estimate(k)

		ring := models.NewRing(
			xe.center,
			ye.center,
			math.Max(xe.halfSpan, ye.halfSpan),
			math.Max(xe.amplitude, ye.amplitude),
			math.Max(xe.sigma, ye.sigma),
		)
		ring.PeakRadiusError = math.Max(1.0, 0.5*math.Abs(ye.halfSpan-xe.halfSpan))
		rings = append(rings, ring)
	}
	return rings, nil
}

// cut is one 1D profile through the candidate centre with its peak
// intervals split into those before and after the centre
type cut struct {
	profile []float64
	center  float64
	fixed   bool
	before  []peaks.Interval
	after   []peaks.Interval
}

// axisEstimate is one ring's parameters as seen along a single cut
type axisEstimate struct {
	center    float64
	amplitude float64
	halfSpan  float64
	sigma     float64
}

func newCut(profile []float64, intervals []peaks.Interval, center float64, fixed bool) *cut {
	c := &cut{profile: profile, center: center, fixed: fixed}
	for _, iv := range intervals {
		// A peak covering the centre is a central spot, not a ring crossing.
		if iv.Contains(int(center)) {
			log.Printf("Warning: ignoring peak [%d, %d] covering the centre %d", iv.Start, iv.End, int(center))
			continue
		}
		if iv.Midpoint() < center {
			c.before = append(c.before, iv)
		} else {
			c.after = append(c.after, iv)
		}
	}
	return c
}

// pair returns the k-th interval on either side of the centre, counting
// outward, so that ring k is crossed once before and once after it
func (c *cut) pair(k int) (peaks.Interval, peaks.Interval, bool) {
	if k >= len(c.before) || k >= len(c.after) {
		return peaks.Interval{}, peaks.Interval{}, false
	}
	return c.before[len(c.before)-1-k], c.after[k], true
}

func (c *cut) estimate(k int) axisEstimate {
	lo, hi, ok := c.pair(k)
	if !ok {
		return axisEstimate{
			center:    c.center,
			amplitude: floats.Max(c.profile),
		}
	}

	p1 := peaks.ArgMax(c.profile, lo)
	p2 := peaks.ArgMax(c.profile, hi)
	_, w1 := peaks.Moments(c.profile, lo)
	_, w2 := peaks.Moments(c.profile, hi)

	e := axisEstimate{
		center:    0.5 * float64(p1+p2),
		amplitude: math.Max(c.profile[p1], c.profile[p2]),
		halfSpan:  0.5 * math.Abs(float64(p2-p1)),
		sigma:     0.5 * (w1 + w2),
	}
	if c.fixed {
		e.center = c.center
	}
	return e
}
