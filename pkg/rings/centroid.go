package rings

import (
	"log"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"fpringfit/internal/models"
	"fpringfit/pkg/fitting"
)

// sectorSamples collects the (radius offset, intensity) samples of one
// angular sector
type sectorSamples struct {
	dr []float64
	v  []float64
}

// SectorRadii measures the ring radius in nbins equal angular sectors
// around the ring centre. Within each sector a cubic in radius is fitted
// to the pixels with |r - PeakRadius| < halfWidth and the radius of its
// maximum is taken. Sectors whose fit fails report NaN.
func SectorRadii(img *models.Image, ring *models.Ring, nbins int, halfWidth float64) []float64 {
	sectors := make([]sectorSamples, nbins)
	binWidth := 2 * math.Pi / float64(nbins)
	outer := ring.PeakRadius + halfWidth

	x0 := max(0, int(math.Floor(ring.Xc-outer)))
	x1 := min(img.Width-1, int(math.Ceil(ring.Xc+outer)))
	y0 := max(0, int(math.Floor(ring.Yc-outer)))
	y1 := min(img.Height-1, int(math.Ceil(ring.Yc+outer)))

	for y := y0; y <= y1; y++ {
		dy := float64(y) - ring.Yc
		for x := x0; x <= x1; x++ {
			dx := float64(x) - ring.Xc
			dr := math.Hypot(dx, dy) - ring.PeakRadius
			if math.Abs(dr) >= halfWidth {
				continue
			}
			theta := math.Atan2(dy, dx)
			if theta < 0 {
				theta += 2 * math.Pi
			}
			k := min(int(theta/binWidth), nbins-1)
			sectors[k].dr = append(sectors[k].dr, dr)
			sectors[k].v = append(sectors[k].v, img.At(x, y))
		}
	}

	radii := make([]float64, nbins)
	for k, s := range sectors {
		radii[k] = math.NaN()
		c, err := fitting.Polyfit(s.dr, s.v, 3)
		if err != nil {
			log.Printf("Warning: sector %d of %d skipped: %v", k, nbins, err)
			continue
		}
		peak, ok := fitting.CubicMax(c, -halfWidth, halfWidth)
		if !ok {
			continue
		}
		radii[k] = ring.PeakRadius + peak
	}
	return radii
}

// centroidRefiner moves the ring centre to the circle traced by the
// sector radii
type centroidRefiner struct {
	opts RefineOptions
}

func (c centroidRefiner) Refine(img *models.Image, ring *models.Ring) error {
	nbins := c.opts.NBins
	if nbins < 1 || ring.PeakRadius <= 0 {
		return nil
	}
	halfWidth := ring.Sigma
	if halfWidth <= 0 {
		halfWidth = c.opts.RadStep
	}

	binWidth := 2 * math.Pi / float64(nbins)
	radii := SectorRadii(img, ring, nbins, halfWidth)

	var angles, rs []float64
	for k, r := range radii {
		if math.IsNaN(r) {
			continue
		}
		angles = append(angles, (float64(k)+0.5)*binWidth)
		rs = append(rs, r)
	}
	if len(rs) == 0 {
		return nil
	}

	xc, yc := ring.Xc, ring.Yc
	if len(rs) >= 3 {
		if dx, dy, ok := circleOffset(angles, rs, binWidth); ok {
			xc += dx
			yc += dy
		}
	}

	// Ring points in Cartesian form, measured again from the new centre.
	dist := make([]float64, len(rs))
	for i, r := range rs {
		px := ring.Xc + r*math.Cos(angles[i])
		py := ring.Yc + r*math.Sin(angles[i])
		dist[i] = math.Hypot(px-xc, py-yc)
	}

	ring.Xc, ring.Yc = xc, yc
	ring.PeakRadius = stat.Mean(dist, nil)
	if len(dist) > 1 {
		ring.PeakRadiusError = stat.StdDev(dist, nil)
	}
	return nil
}

// circleOffset solves r_k = R + s*(dx cos t_k + dy sin t_k) in the least
// squares sense, where s corrects for averaging over a sector of the
// given angular width
func circleOffset(angles, rs []float64, binWidth float64) (float64, float64, bool) {
	half := binWidth / 2
	s := math.Sin(half) / half

	n := len(rs)
	a := mat.NewDense(n, 3, nil)
	for i, t := range angles {
		a.Set(i, 0, 1)
		a.Set(i, 1, s*math.Cos(t))
		a.Set(i, 2, s*math.Sin(t))
	}
	b := mat.NewVecDense(n, rs)

	var qr mat.QR
	qr.Factorize(a)
	var sol mat.VecDense
	if err := qr.SolveVecTo(&sol, false, b); err != nil {
		return 0, 0, false
	}
	return sol.AtVec(1), sol.AtVec(2), true
}
