// Package config provides configuration loading and management for fpringfit.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"fpringfit/pkg/fitting"
	"fpringfit/pkg/rings"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Estimator parameters for the initial ring search
	Estimator struct {
		// Thresh is the background detection threshold in stddev units
		Thresh float64 `yaml:"thresh"`

		// MinSize is the median window and minimum peak width in pixels
		MinSize int `yaml:"minSize"`

		// FPeak is the fraction of the profile maximum a peak must exceed
		FPeak float64 `yaml:"fpeak"`

		// CenterX and CenterY fix the ring centre when present
		CenterX *float64 `yaml:"centerX,omitempty"`
		CenterY *float64 `yaml:"centerY,omitempty"`

		// Strict fails on inconsistent peak counts between the two cuts
		Strict bool `yaml:"strict"`
	} `yaml:"estimator"`

	// Refine parameters for centre refinement
	Refine struct {
		// Method is one of FIT, MAX, CENTER or MOMENT; empty skips refinement
		Method string `yaml:"method"`

		NIter   int     `yaml:"niter"`
		Conv    float64 `yaml:"conv"`
		RadStep float64 `yaml:"radStep"`
		RStep   float64 `yaml:"rStep"`
		MaxIter int     `yaml:"maxIter"`
		NBins   int     `yaml:"nbins"`
	} `yaml:"refine"`

	// Fit parameters for the least-squares ring fit
	Fit struct {
		MaxIter       int     `yaml:"maxIter"`
		FTol          float64 `yaml:"ftol"`
		XTol          float64 `yaml:"xtol"`
		DefaultRadius float64 `yaml:"defaultRadius"`
		DefaultSigma  float64 `yaml:"defaultSigma"`
	} `yaml:"fit"`

	// Background estimation
	Background struct {
		// Subtract runs the estimator on a background-masked copy
		Subtract bool `yaml:"subtract"`

		// ClipSigma is the rejection threshold of the sigma clipping
		ClipSigma float64 `yaml:"clipSigma"`

		// ClipIter is the number of clipping rounds
		ClipIter int `yaml:"clipIter"`
	} `yaml:"background"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many rings are refined concurrently
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		SaveRegions bool `yaml:"saveRegions"`
		SaveTable   bool `yaml:"saveTable"`
		SavePlot    bool `yaml:"savePlot"`
		SaveOverlay bool `yaml:"saveOverlay"`

		// SaveWorkFrame writes the background-subtracted frame (.tif and .f64)
		SaveWorkFrame bool `yaml:"saveWorkFrame"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	def := rings.DefaultOptions()

	cfg.Estimator.Thresh = def.Estimate.Thresh
	cfg.Estimator.MinSize = def.Estimate.MinSize
	cfg.Estimator.FPeak = def.Estimate.FPeak

	cfg.Refine.Method = rings.MethodFit.String()
	cfg.Refine.NIter = def.Refine.NIter
	cfg.Refine.Conv = def.Refine.Conv
	cfg.Refine.RadStep = def.Refine.RadStep
	cfg.Refine.RStep = def.Refine.RStep
	cfg.Refine.MaxIter = def.Refine.MaxIter
	cfg.Refine.NBins = def.Refine.NBins

	cfg.Fit.MaxIter = def.Fit.Solver.MaxIter
	cfg.Fit.FTol = def.Fit.Solver.FTol
	cfg.Fit.XTol = def.Fit.Solver.XTol
	cfg.Fit.DefaultRadius = def.Fit.DefaultRadius
	cfg.Fit.DefaultSigma = def.Fit.DefaultSigma

	cfg.Background.Subtract = false
	cfg.Background.ClipSigma = 3.0
	cfg.Background.ClipIter = 5

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.SaveRegions = true
	cfg.Output.SaveTable = true
	cfg.Output.Verbose = true

	return cfg
}

// RingOptions collects the engine tunables into one options structure
func (c *Config) RingOptions() rings.Options {
	solver := fitting.DefaultSettings()
	solver.MaxIter = c.Fit.MaxIter
	solver.FTol = c.Fit.FTol
	solver.XTol = c.Fit.XTol

	return rings.Options{
		Estimate: rings.EstimateOptions{
			Thresh:  c.Estimator.Thresh,
			MinSize: c.Estimator.MinSize,
			FPeak:   c.Estimator.FPeak,
			CenterX: c.Estimator.CenterX,
			CenterY: c.Estimator.CenterY,
			Strict:  c.Estimator.Strict,
		},
		Refine: rings.RefineOptions{
			NIter:   c.Refine.NIter,
			Conv:    c.Refine.Conv,
			RadStep: c.Refine.RadStep,
			RStep:   c.Refine.RStep,
			MaxIter: c.Refine.MaxIter,
			NBins:   c.Refine.NBins,
		},
		Fit: rings.FitOptions{
			Solver:        solver,
			DefaultRadius: c.Fit.DefaultRadius,
			DefaultSigma:  c.Fit.DefaultSigma,
		},
	}
}

// Method returns the configured refinement method. ok is false when
// refinement is disabled by an empty method name.
func (c *Config) Method() (m rings.Method, ok bool, err error) {
	if c.Refine.Method == "" {
		return 0, false, nil
	}
	m, err = rings.ParseMethod(c.Refine.Method)
	if err != nil {
		return 0, false, fmt.Errorf("invalid refine method: %w", err)
	}
	return m, true, nil
}

// Validate reports the first setting the engine cannot run with
func (c *Config) Validate() error {
	if _, _, err := c.Method(); err != nil {
		return err
	}
	switch {
	case c.Estimator.FPeak <= 0 || c.Estimator.FPeak >= 1:
		return fmt.Errorf("estimator.fpeak must be in (0, 1), got %g", c.Estimator.FPeak)
	case c.Estimator.MinSize < 1:
		return fmt.Errorf("estimator.minSize must be positive, got %d", c.Estimator.MinSize)
	case c.Refine.NBins < 1:
		return fmt.Errorf("refine.nbins must be positive, got %d", c.Refine.NBins)
	case c.Refine.RadStep <= 0 || c.Refine.RStep <= 0:
		return fmt.Errorf("refine.radStep and refine.rStep must be positive")
	case c.Background.Subtract && c.Background.ClipSigma <= 0:
		return fmt.Errorf("background.clipSigma must be positive, got %g", c.Background.ClipSigma)
	}
	return nil
}

// LoadConfig reads a YAML configuration over the defaults. A missing or
// empty file yields the defaults; unknown keys are rejected so that a
// misspelt option is not silently ignored.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	file, err := os.Open(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML with two-space indentation, creating the
// parent directory if needed
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# fpringfit configuration\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// CreateDefaultConfigFile writes the default configuration to configPath
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
