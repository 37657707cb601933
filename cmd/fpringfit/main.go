package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"fpringfit/pkg/config"
	"fpringfit/pkg/pipeline"
	"fpringfit/pkg/rings"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "fpringfit.yaml", "YAML configuration file")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration to -config and exit")
	inputFile := flag.String("input", "", "Calibration frame (PNG, JPEG, TIFF or .raw float64)")
	rawWidth := flag.Int("raw-width", 0, "Row length of .raw frames")
	outputDir := flag.String("output", ".", "Directory for region file, table and diagnostics")
	method := flag.String("method", "", "Refinement method: FIT, MAX, CENTER or MOMENT (overrides config)")
	noRefine := flag.Bool("no-refine", false, "Only estimate initial ring guesses")
	centerX := flag.Float64("xc", -1, "Fixed ring centre x (negative: image midpoint)")
	centerY := flag.Float64("yc", -1, "Fixed ring centre y (negative: image midpoint)")
	numCores := flag.Int("cores", 0, "Number of rings refined concurrently (0: config value)")
	quiet := flag.Bool("quiet", false, "Suppress progress output")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Command line overrides
	if *method != "" {
		cfg.Refine.Method = *method
	}
	if *noRefine {
		cfg.Refine.Method = ""
	}
	if *centerX >= 0 {
		cfg.Estimator.CenterX = centerX
	}
	if *centerY >= 0 {
		cfg.Estimator.CenterY = centerY
	}
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *quiet {
		cfg.Output.Verbose = false
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	m, refine, err := cfg.Method()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	params := &pipeline.Params{
		InputFile:          *inputFile,
		RawWidth:           *rawWidth,
		OutputDir:          *outputDir,
		Options:            cfg.RingOptions(),
		Method:             m,
		Refine:             refine,
		NumCores:           cfg.Processing.NumCores,
		SubtractBackground: cfg.Background.Subtract,
		ClipSigma:          cfg.Background.ClipSigma,
		ClipIter:           cfg.Background.ClipIter,
		SaveRegions:        cfg.Output.SaveRegions,
		SaveTable:          cfg.Output.SaveTable,
		SavePlot:           cfg.Output.SavePlot,
		SaveOverlay:        cfg.Output.SaveOverlay,
		SaveWorkFrame:      cfg.Output.SaveWorkFrame,
		Verbose:            cfg.Output.Verbose,
	}

	processor := pipeline.NewProcessor(params)
	startTime := time.Now()
	if err := processor.Process(); err != nil {
		log.Fatalf("Ring detection failed: %v", err)
	}

	if cfg.Output.Verbose {
		fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
		printRings(processor, m, refine)
	}
}

func printRings(p *pipeline.Processor, m rings.Method, refine bool) {
	label := "estimate only"
	if refine {
		label = m.String()
	}
	fmt.Printf("Rings (%s):\n", label)
	fmt.Println("=======================================")
	for i, r := range p.Rings() {
		fmt.Printf("%d: xc=%.3f yc=%.3f r=%.3f ± %.3f amp=%.3f sigma=%.3f\n",
			i, r.Xc, r.Yc, r.PeakRadius, r.PeakRadiusError, r.Amplitude, r.Sigma)
	}
}
