package rings

import (
	"math"

	"fpringfit/internal/models"
)

// AnnularFlux sums the pixels whose distance r from (xc, yc) satisfies
// radius-halfWidth < r < radius+halfWidth
func AnnularFlux(img *models.Image, xc, yc, radius, halfWidth float64) float64 {
	inner := radius - halfWidth
	outer := radius + halfWidth
	if outer <= 0 {
		return 0
	}
	inner2 := -1.0
	if inner > 0 {
		inner2 = inner * inner
	}
	outer2 := outer * outer

	x0 := max(0, int(math.Floor(xc-outer)))
	x1 := min(img.Width-1, int(math.Ceil(xc+outer)))
	y0 := max(0, int(math.Floor(yc-outer)))
	y1 := min(img.Height-1, int(math.Ceil(yc+outer)))

	var flux float64
	for y := y0; y <= y1; y++ {
		dy := float64(y) - yc
		row := img.Data[y*img.Width:]
		for x := x0; x <= x1; x++ {
			dx := float64(x) - xc
			r2 := dx*dx + dy*dy
			if r2 > inner2 && r2 < outer2 {
				flux += row[x]
			}
		}
	}
	return flux
}

// MaxFluxCenter moves the centre in whole-pixel steps towards the
// neighbour with the largest annular flux until no neighbour improves or
// maxiter steps were taken. It returns the new centre and its flux.
func MaxFluxCenter(img *models.Image, xc, yc, radius, radstep float64, maxiter int) (float64, float64, float64) {
	bx, by := 0, 0
	best := AnnularFlux(img, xc, yc, radius, radstep)

	for iter := 0; iter < maxiter; iter++ {
		improved := false
		cx, cy := bx, by
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				f := AnnularFlux(img, xc+float64(cx+dx), yc+float64(cy+dy), radius, radstep)
				if f > best {
					best = f
					bx, by = cx+dx, cy+dy
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}
	return xc + float64(bx), yc + float64(by), best
}

// FindRadius searches radius in steps of rstep for the largest annular
// flux at a fixed centre. The returned error is radius/sqrt(flux), an ad
// hoc scale rather than a statistical uncertainty; it is NaN when the
// flux is not positive.
func FindRadius(img *models.Image, xc, yc, radius, rstep, radstep float64, maxiter int) (float64, float64) {
	best := AnnularFlux(img, xc, yc, radius, radstep)

	for iter := 0; iter < maxiter; iter++ {
		improved := false
		current := radius
		for _, step := range []float64{-rstep, rstep} {
			r := current + step
			if r <= 0 {
				continue
			}
			f := AnnularFlux(img, xc, yc, r, radstep)
			if f > best {
				best = f
				radius = r
				improved = true
			}
		}
		if !improved {
			break
		}
	}

	if best <= 0 {
		return radius, math.NaN()
	}
	return radius, radius * math.Sqrt(1/best)
}

// maxRefiner alternates centre and radius searches until the centre settles
type maxRefiner struct {
	opts RefineOptions
}

func (m maxRefiner) Refine(img *models.Image, ring *models.Ring) error {
	o := m.opts
	for iter := 0; iter < o.NIter; iter++ {
		xc, yc, _ := MaxFluxCenter(img, ring.Xc, ring.Yc, ring.PeakRadius, o.RadStep, o.MaxIter)
		shift := math.Hypot(xc-ring.Xc, yc-ring.Yc)
		ring.Xc, ring.Yc = xc, yc

		radius, rerr := FindRadius(img, xc, yc, ring.PeakRadius, o.RStep, o.RadStep, o.MaxIter)
		ring.PeakRadius = radius
		if !math.IsNaN(rerr) {
			ring.PeakRadiusError = rerr
		}

		if shift <= o.Conv {
			break
		}
	}
	return nil
}
