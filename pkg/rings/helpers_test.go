package rings

import (
	"math"
	"math/rand/v2"
	"testing"

	"fpringfit/internal/models"
)

// synthImage renders the given rings on a flat background with optional
// deterministic Gaussian noise
func synthImage(width, height int, background, noise float64, rings ...*models.Ring) *models.Image {
	img := models.NewImage(width, height)
	for i := range img.Data {
		img.Data[i] = background
	}
	for _, r := range rings {
		r.Render(img)
	}
	if noise > 0 {
		rng := rand.New(rand.NewPCG(1, 2))
		for i := range img.Data {
			img.Data[i] += noise * rng.NormFloat64()
		}
	}
	return img
}

func assertClose(t *testing.T, name string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: expected %f within %g, got %f", name, want, tol, got)
	}
}
