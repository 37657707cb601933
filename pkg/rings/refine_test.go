package rings

import (
	"errors"
	"math"
	"testing"

	"fpringfit/internal/models"
	"fpringfit/pkg/fitting"
)

// TestParseMethod verifies method name parsing
func TestParseMethod(t *testing.T) {
	tests := []struct {
		in   string
		want Method
	}{
		{"FIT", MethodFit},
		{"max", MethodMax},
		{" Center ", MethodCenter},
		{"MOMENT", MethodMoment},
	}
	for _, tc := range tests {
		got, err := ParseMethod(tc.in)
		if err != nil {
			t.Errorf("ParseMethod(%q) failed: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", tc.in, got, tc.want)
		}
		if got.String() != methodNames[tc.want] {
			t.Errorf("Method %v has unexpected name %q", tc.want, got.String())
		}
	}

	if _, err := ParseMethod("GRADIENT"); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
}

// TestNewRefinerUnknown verifies that unknown enum values are rejected
func TestNewRefinerUnknown(t *testing.T) {
	if _, err := NewRefiner(Method(42), DefaultOptions()); !errors.Is(err, ErrUnsupportedMethod) {
		t.Errorf("Expected ErrUnsupportedMethod, got %v", err)
	}
}

// TestMomentLeavesRingUntouched verifies the reserved method is a no-op
func TestMomentLeavesRingUntouched(t *testing.T) {
	img := synthImage(100, 100, 0, 0, models.NewRing(50, 50, 30, 10, 4))
	ring := models.NewRing(51, 49, 31, 10, 4)
	before := *ring
	if err := FindCenter(img, ring, MethodMoment, DefaultOptions()); err != nil {
		t.Fatalf("MOMENT failed: %v", err)
	}
	if *ring != before {
		t.Errorf("MOMENT modified ring: %v -> %v", before, *ring)
	}
}

// TestFindCenterFit verifies convergence of the least-squares fit from the estimator guess
func TestFindCenterFit(t *testing.T) {
	truth := models.NewRing(100.3, 99.6, 50.2, 100, 6)
	img := synthImage(200, 200, 10, 0, truth)
	opts := DefaultOptions()

	guesses, err := FindRings(img, opts.Estimate)
	if err != nil {
		t.Fatalf("FindRings failed: %v", err)
	}
	if len(guesses) != 1 {
		t.Fatalf("Expected 1 ring, got %d", len(guesses))
	}

	ring := guesses[0]
	if err := FindCenter(img, ring, MethodFit, opts); err != nil {
		t.Fatalf("FIT failed: %v", err)
	}

	check := func(name string, got, want float64) {
		if math.Abs(got-want) > 1e-3*math.Abs(want) {
			t.Errorf("%s: expected %f, got %f", name, want, got)
		}
	}
	check("xc", ring.Xc, truth.Xc)
	check("yc", ring.Yc, truth.Yc)
	check("radius", ring.PeakRadius, truth.PeakRadius)
	check("amplitude", ring.Amplitude, truth.Amplitude)
	check("sigma", ring.Sigma, truth.Sigma)
}

// TestRingFitBackgroundAndError verifies the background term and covariance radius error
func TestRingFitBackgroundAndError(t *testing.T) {
	truth := models.NewRing(80, 82, 40, 50, 5)
	img := synthImage(160, 160, 20, 1.0, truth)

	guess := models.NewRing(81, 81, 41, 65, 4)
	res, err := RingFit(img, nil, guess, DefaultOptions().Fit)
	if err != nil {
		t.Fatalf("RingFit failed: %v", err)
	}

	assertClose(t, "background", res.Background, 20, 0.1)
	assertClose(t, "radius", res.Ring.PeakRadius, 40, 0.1)
	assertClose(t, "xc", res.Ring.Xc, 80, 0.1)
	assertClose(t, "yc", res.Ring.Yc, 82, 0.1)
	if e := res.Ring.PeakRadiusError; !(e > 0 && e < 0.1) {
		t.Errorf("Expected small positive radius error, got %g", e)
	}
	if res.Iterations == 0 {
		t.Error("Expected at least one solver iteration")
	}
}

// TestRingFitDefaultGuess verifies the midpoint starting guess
func TestRingFitDefaultGuess(t *testing.T) {
	truth := models.NewRing(60, 60, 30, 40, 5)
	img := synthImage(120, 120, 0, 0, truth)

	opts := DefaultOptions().Fit
	opts.DefaultRadius = 28
	res, err := RingFit(img, nil, nil, opts)
	if err != nil {
		t.Fatalf("RingFit failed: %v", err)
	}
	assertClose(t, "radius", res.Ring.PeakRadius, 30, 1e-3)
	assertClose(t, "sigma", res.Ring.Sigma, 5, 1e-3)
}

// TestRingFitMask verifies that masked pixels are ignored
func TestRingFitMask(t *testing.T) {
	truth := models.NewRing(60, 60, 30, 40, 5)
	img := synthImage(120, 120, 0, 0, truth)
	mask := DefaultMask(img)
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, 1e6)
			mask[y*img.Width+x] = false
		}
	}

	res, err := RingFit(img, mask, models.NewRing(61, 59, 31, 40, 4), DefaultOptions().Fit)
	if err != nil {
		t.Fatalf("RingFit failed: %v", err)
	}
	assertClose(t, "radius", res.Ring.PeakRadius, 30, 1e-3)
	assertClose(t, "background", res.Background, 0, 1e-3)
}

// TestFindCenterFitUsesMask verifies that FIT honours the mask carried in the options
func TestFindCenterFitUsesMask(t *testing.T) {
	truth := models.NewRing(60, 60, 30, 40, 5)
	img := synthImage(120, 120, 0, 0, truth)
	opts := DefaultOptions()
	opts.Fit.Mask = DefaultMask(img)
	for y := 50; y < 70; y++ {
		for x := 85; x < 95; x++ {
			// dead pixels above the -999 floor
			img.Set(x, y, -500)
			opts.Fit.Mask[y*img.Width+x] = false
		}
	}

	ring := models.NewRing(61, 59, 31, 40, 4)
	if err := FindCenter(img, ring, MethodFit, opts); err != nil {
		t.Fatalf("FIT failed: %v", err)
	}
	assertClose(t, "xc", ring.Xc, 60, 1e-3)
	assertClose(t, "yc", ring.Yc, 60, 1e-3)
	assertClose(t, "radius", ring.PeakRadius, 30, 1e-3)
}

// TestFindCenterFitPropagatesSolverErrors verifies that solver failures reach the caller
func TestFindCenterFitPropagatesSolverErrors(t *testing.T) {
	img := models.NewImage(2, 2)
	ring := models.NewRing(1, 1, 1, 1, 1)
	err := FindCenter(img, ring, MethodFit, DefaultOptions())
	if !errors.Is(err, fitting.ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", err)
	}

	if _, err := RingFit(img, []bool{true}, ring, DefaultOptions().Fit); err == nil {
		t.Error("Expected error for mismatched mask length")
	}
}

// TestFindCenterMax verifies the annular flux hill climb
func TestFindCenterMax(t *testing.T) {
	truth := models.NewRing(100, 100, 60, 100, 4)
	img := synthImage(200, 200, 0, 0, truth)

	ring := models.NewRing(102, 99, 61.5, 100, 4)
	if err := FindCenter(img, ring, MethodMax, DefaultOptions()); err != nil {
		t.Fatalf("MAX failed: %v", err)
	}
	assertClose(t, "xc", ring.Xc, 100, 1)
	assertClose(t, "yc", ring.Yc, 100, 1)
	assertClose(t, "radius", ring.PeakRadius, 60, 1)
	if ring.PeakRadiusError <= 0 || ring.PeakRadiusError >= 1 {
		t.Errorf("Expected radius error in (0, 1), got %f", ring.PeakRadiusError)
	}
}

// TestFindRadiusErrorScale verifies the radius error is radius/sqrt(flux) at the returned radius
func TestFindRadiusErrorScale(t *testing.T) {
	img := synthImage(200, 200, 0, 0, models.NewRing(100, 100, 60, 100, 4))

	r, rerr := FindRadius(img, 100, 100, 58, 0.25, 10, 100)
	assertClose(t, "radius", r, 60, 0.5)

	flux := AnnularFlux(img, 100, 100, r, 10)
	want := r * math.Sqrt(1/flux)
	if math.Abs(rerr-want) > 1e-12*want {
		t.Errorf("Expected radius error %g, got %g", want, rerr)
	}

	if _, e := FindRadius(models.NewImage(50, 50), 25, 25, 10, 0.25, 2, 10); !math.IsNaN(e) {
		t.Errorf("Expected NaN error for zero flux, got %f", e)
	}
}

// TestFindCenterMaxStopsWhenConverged verifies that MAX stops after the first
// round whose centre shift is within Conv
func TestFindCenterMaxStopsWhenConverged(t *testing.T) {
	img := synthImage(200, 200, 0, 0, models.NewRing(100, 100, 60, 100, 4))
	opts := DefaultOptions()
	opts.Refine.NIter = 5
	opts.Refine.Conv = 1e9
	o := opts.Refine

	ring := models.NewRing(104, 97, 57, 100, 4)
	if err := FindCenter(img, ring, MethodMax, opts); err != nil {
		t.Fatalf("MAX failed: %v", err)
	}

	xc, yc, _ := MaxFluxCenter(img, 104, 97, 57, o.RadStep, o.MaxIter)
	r, rerr := FindRadius(img, xc, yc, 57, o.RStep, o.RadStep, o.MaxIter)
	if ring.Xc != xc || ring.Yc != yc || ring.PeakRadius != r || ring.PeakRadiusError != rerr {
		t.Errorf("Expected a single round (%f, %f, r=%f ± %f), got (%f, %f, r=%f ± %f)",
			xc, yc, r, rerr, ring.Xc, ring.Yc, ring.PeakRadius, ring.PeakRadiusError)
	}
}

// TestAnnularFlux verifies the flux of a uniform image against the annulus area
func TestAnnularFlux(t *testing.T) {
	img := synthImage(200, 200, 1, 0)
	got := AnnularFlux(img, 100, 100, 50, 10)
	want := 4 * math.Pi * 50 * 10
	if math.Abs(got-want) > 0.02*want {
		t.Errorf("Expected flux near %f, got %f", want, got)
	}

	if f := AnnularFlux(img, 100, 100, 5, 10); f <= 0 {
		t.Errorf("Expected positive flux for annulus containing the centre, got %f", f)
	}
	if f := AnnularFlux(img, 100, 100, -20, 10); f != 0 {
		t.Errorf("Expected zero flux for negative annulus, got %f", f)
	}
}

// TestMaxFluxCenterStopsAtMaxIter verifies the hill climb budget
func TestMaxFluxCenterStopsAtMaxIter(t *testing.T) {
	img := synthImage(200, 200, 0, 0, models.NewRing(100, 100, 50, 100, 4))
	xc, yc, _ := MaxFluxCenter(img, 105, 100, 50, 10, 2)
	if xc != 103 || yc != 100 {
		t.Errorf("Expected two unit steps to (103, 100), got (%f, %f)", xc, yc)
	}
}

// TestFindCenterCentroid verifies sector centroiding on a perfectly centred guess
func TestFindCenterCentroid(t *testing.T) {
	truth := models.NewRing(100, 100, 50, 100, 5)
	img := synthImage(200, 200, 0, 0, truth)

	ring := models.NewRing(100, 100, 50, 100, 5)
	if err := FindCenter(img, ring, MethodCenter, DefaultOptions()); err != nil {
		t.Fatalf("CENTER failed: %v", err)
	}
	assertClose(t, "radius", ring.PeakRadius, 50, 0.25)
	assertClose(t, "xc", ring.Xc, 100, 0.25)
	assertClose(t, "yc", ring.Yc, 100, 0.25)
	if ring.PeakRadiusError > 0.25 {
		t.Errorf("Expected small sector spread, got %f", ring.PeakRadiusError)
	}
}

// TestFindCenterCentroidOffset verifies that an offset guess moves towards the true centre
func TestFindCenterCentroidOffset(t *testing.T) {
	truth := models.NewRing(100, 100, 50, 100, 5)
	img := synthImage(200, 200, 0, 0, truth)

	ring := models.NewRing(100.8, 99.4, 50.5, 100, 5)
	if err := FindCenter(img, ring, MethodCenter, DefaultOptions()); err != nil {
		t.Fatalf("CENTER failed: %v", err)
	}
	assertClose(t, "xc", ring.Xc, 100, 0.5)
	assertClose(t, "yc", ring.Yc, 100, 0.5)
	assertClose(t, "radius", ring.PeakRadius, 50, 0.5)
}

// TestSectorRadiiSkipsEmptySectors verifies that sectors without data report NaN
func TestSectorRadiiSkipsEmptySectors(t *testing.T) {
	// Ring centred on the left edge so half the sectors fall outside the frame.
	img := synthImage(80, 120, 0, 0, models.NewRing(0, 60, 40, 100, 5))
	ring := models.NewRing(0, 60, 40, 100, 5)
	radii := SectorRadii(img, ring, 8, 5)

	var valid, skipped int
	for _, r := range radii {
		if math.IsNaN(r) {
			skipped++
			continue
		}
		valid++
		assertClose(t, "sector radius", r, 40, 0.5)
	}
	if valid == 0 || skipped == 0 {
		t.Errorf("Expected both valid and skipped sectors, got %d valid and %d skipped", valid, skipped)
	}
}
