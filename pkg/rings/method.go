package rings

import (
	"fmt"
	"strings"

	"fpringfit/internal/models"
)

// Method selects a centre refinement strategy
type Method int

const (
	// MethodFit fits all ring parameters jointly by least squares
	MethodFit Method = iota

	// MethodMax maximises the flux inside an annulus
	MethodMax

	// MethodCenter centroids ring radii in angular sectors
	MethodCenter

	// MethodMoment is reserved and leaves the ring untouched
	MethodMoment
)

var methodNames = map[Method]string{
	MethodFit:    "FIT",
	MethodMax:    "MAX",
	MethodCenter: "CENTER",
	MethodMoment: "MOMENT",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod maps a case-insensitive method name to a Method
func ParseMethod(name string) (Method, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for m, n := range methodNames {
		if n == upper {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, name)
}

// Refiner improves one ring guess in place using the image data
type Refiner interface {
	Refine(img *models.Image, ring *models.Ring) error
}

// NewRefiner returns the strategy implementing m
func NewRefiner(m Method, opts Options) (Refiner, error) {
	switch m {
	case MethodFit:
		return fitRefiner{opts: opts.Fit}, nil
	case MethodMax:
		return maxRefiner{opts: opts.Refine}, nil
	case MethodCenter:
		return centroidRefiner{opts: opts.Refine}, nil
	case MethodMoment:
		return momentRefiner{}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedMethod, m)
	}
}

// FindCenter refines ring in place with the given method
func FindCenter(img *models.Image, ring *models.Ring, m Method, opts Options) error {
	r, err := NewRefiner(m, opts)
	if err != nil {
		return err
	}
	return r.Refine(img, ring)
}

type fitRefiner struct {
	opts FitOptions
}

func (f fitRefiner) Refine(img *models.Image, ring *models.Ring) error {
	res, err := RingFit(img, f.opts.Mask, ring, f.opts)
	if err != nil {
		return err
	}
	*ring = *res.Ring
	return nil
}

// momentRefiner is a placeholder for moment-based refinement
type momentRefiner struct{}

func (momentRefiner) Refine(*models.Image, *models.Ring) error { return nil }
