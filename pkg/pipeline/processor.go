// Package pipeline drives ring detection for one calibration frame: it
// loads the frame, optionally removes the background, estimates the rings,
// refines each of them and writes the results.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"fpringfit/internal/models"
	"fpringfit/pkg/background"
	"fpringfit/pkg/imageio"
	"fpringfit/pkg/peaks"
	"fpringfit/pkg/region"
	"fpringfit/pkg/rings"
	"fpringfit/pkg/visualization"
)

// Params holds the processing configuration for one frame
type Params struct {
	// InputFile is the calibration frame (PNG, JPEG, TIFF or raw float64)
	InputFile string

	// RawWidth is the row length of raw float64 frames
	RawWidth int

	// OutputDir receives the region file, table and diagnostics
	OutputDir string

	// Options is passed unchanged to the estimator, refiners and fitter
	Options rings.Options

	// Method selects the centre refinement; Refine disables it when false
	Method rings.Method
	Refine bool

	// NumCores bounds the number of rings refined concurrently
	NumCores int

	// SubtractBackground runs the estimator on a background-masked copy
	SubtractBackground bool
	ClipSigma          float64
	ClipIter           int

	// Output switches
	SaveRegions bool
	SaveTable   bool
	SavePlot    bool
	SaveOverlay bool

	// SaveWorkFrame writes the frame the engine saw, as a TIFF preview and
	// as raw float64 samples
	SaveWorkFrame bool

	// Verbose enables progress messages
	Verbose bool
}

// Processor runs the ring pipeline on a single frame
type Processor struct {
	params *Params

	// frame is the frame as loaded; work is what the engine sees
	frame *models.Image
	work  *models.Image

	background background.Stats
	rings      []*models.Ring
	elapsed    time.Duration
}

// NewProcessor creates a processor for the given parameters
func NewProcessor(params *Params) *Processor {
	return &Processor{params: params}
}

// Process loads the input frame and runs the pipeline on it
func (p *Processor) Process() error {
	p.logf("Loading %s...\n", p.params.InputFile)
	frame, err := loadFrame(p.params.InputFile, p.params.RawWidth)
	if err != nil {
		return fmt.Errorf("failed to load frame: %w", err)
	}
	return p.Run(frame)
}

// Run processes a frame that is already in memory
func (p *Processor) Run(frame *models.Image) error {
	start := time.Now()
	p.frame = frame
	p.work = frame

	if p.params.SubtractBackground {
		p.background = background.ClippedStats(frame.Data, p.params.ClipSigma, p.params.ClipIter)
		p.logf("Background: median %.3f, stddev %.3f (%d pixels kept)\n",
			p.background.Median, p.background.StdDev, p.background.N)
		p.work = background.Subtract(frame, p.background, p.params.Options.Estimate.Thresh)
	}

	p.logf("Estimating rings...\n")
	found, err := rings.FindRings(p.work, p.params.Options.Estimate)
	if err != nil {
		return fmt.Errorf("failed to estimate rings: %w", err)
	}
	p.rings = found
	p.logf("Found %d ring(s)\n", len(found))

	if p.params.Refine {
		p.logf("Refining rings with %v...\n", p.params.Method)
		if err := RefineAll(p.work, p.rings, p.params.Method, p.refineOptions(), p.params.NumCores); err != nil {
			return fmt.Errorf("failed to refine rings: %w", err)
		}
	}
	p.elapsed = time.Since(start)

	return p.writeOutputs()
}

// Rings returns the rings found by the last run, innermost first
func (p *Processor) Rings() []*models.Ring {
	return p.rings
}

// Background returns the clipped background statistics of the last run
func (p *Processor) Background() background.Stats {
	return p.background
}

// Provenance describes how the last result was produced
func (p *Processor) Provenance() region.Provenance {
	method := "NONE"
	if p.params.Refine {
		method = p.params.Method.String()
	}
	prov := region.Provenance{
		"source":  p.params.InputFile,
		"method":  method,
		"rings":   fmt.Sprintf("%d", len(p.rings)),
		"elapsed": p.elapsed.Round(time.Millisecond).String(),
	}
	if p.frame != nil {
		prov["size"] = fmt.Sprintf("%dx%d", p.frame.Width, p.frame.Height)
	}
	if p.params.SubtractBackground {
		prov["background"] = fmt.Sprintf("median=%.4f stddev=%.4f", p.background.Median, p.background.StdDev)
	}
	return prov
}

// refineOptions returns the engine options for refinement. With background
// subtraction the fit skips pixels the clipped statistics flag as dead.
func (p *Processor) refineOptions() rings.Options {
	opts := p.params.Options
	if p.params.SubtractBackground && opts.Fit.Mask == nil {
		opts.Fit.Mask = background.Mask(p.frame, p.background, p.params.ClipSigma)
	}
	return opts
}

// RefineAll refines every ring in place with up to numCores workers. Each
// worker reads the shared image and writes only its own ring. The first
// failure in ring order is returned.
func RefineAll(img *models.Image, list []*models.Ring, method rings.Method, opts rings.Options, numCores int) error {
	refiner, err := rings.NewRefiner(method, opts)
	if err != nil {
		return err
	}
	if numCores < 1 {
		numCores = runtime.NumCPU()
	}

	errs := make([]error, len(list))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(numCores, len(list)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = refiner.Refine(img, list[i])
			}
		}()
	}
	for i := range list {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("ring %d: %w", i, err)
		}
	}
	return nil
}

func (p *Processor) writeOutputs() error {
	prm := p.params
	if !(prm.SaveRegions || prm.SaveTable || prm.SavePlot || prm.SaveOverlay || prm.SaveWorkFrame) {
		return nil
	}
	if err := os.MkdirAll(prm.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if prm.SaveRegions {
		path := p.outputPath(".reg")
		if err := region.SaveRegions(path, p.rings); err != nil {
			return err
		}
		p.logf("Region file saved to: %s\n", path)
	}
	if prm.SaveTable {
		path := p.outputPath("_rings.txt")
		if err := region.SaveTable(path, p.rings, p.Provenance()); err != nil {
			return err
		}
		p.logf("Ring table saved to: %s\n", path)
	}
	if prm.SaveWorkFrame {
		tif, raw := p.outputPath("_work.tif"), p.outputPath("_work.f64")
		if err := imageio.SaveTIFF(tif, p.work); err != nil {
			return err
		}
		if err := imageio.SaveRaw(raw, p.work); err != nil {
			return err
		}
		p.logf("Work frame saved to: %s and %s\n", tif, raw)
	}

	// Diagnostics are best effort.
	if prm.SavePlot {
		path := p.outputPath("_profiles.png")
		if err := visualization.SaveProfilePlot(path, p.profiles()); err != nil {
			fmt.Printf("Warning: Failed to save profile plot: %v\n", err)
		} else {
			p.logf("Profile plot saved to: %s\n", path)
		}
	}
	if prm.SaveOverlay {
		path := p.outputPath("_overlay.jpg")
		if err := visualization.NewOverlay(p.frame, p.rings).Save(path); err != nil {
			fmt.Printf("Warning: Failed to save overlay: %v\n", err)
		} else {
			p.logf("Overlay saved to: %s\n", path)
		}
	}
	return nil
}

// profiles rebuilds the two estimator cuts for plotting
func (p *Processor) profiles() []visualization.Profile {
	opts := p.params.Options.Estimate
	cx, cy := p.work.Midpoint()
	if opts.CenterX != nil {
		cx = *opts.CenterX
	}
	if opts.CenterY != nil {
		cy = *opts.CenterY
	}
	row := p.work.Row(int(cy))
	col := p.work.Column(int(cx))
	return []visualization.Profile{
		{Title: fmt.Sprintf("row %d", int(cy)), Values: row, Intervals: peaks.Find(row, opts.FPeak, opts.MinSize)},
		{Title: fmt.Sprintf("column %d", int(cx)), Values: col, Intervals: peaks.Find(col, opts.FPeak, opts.MinSize)},
	}
}

func (p *Processor) outputPath(suffix string) string {
	base := filepath.Base(p.params.InputFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		base = "frame"
	}
	return filepath.Join(p.params.OutputDir, base+suffix)
}

func (p *Processor) logf(format string, args ...any) {
	if p.params.Verbose {
		fmt.Printf(format, args...)
	}
}

func loadFrame(path string, rawWidth int) (*models.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".raw", ".f64":
		return imageio.LoadRaw(path, rawWidth)
	default:
		return imageio.Load(path)
	}
}
