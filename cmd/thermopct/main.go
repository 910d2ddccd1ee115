package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"thermopct/internal/logger"
	"thermopct/pkg/config"
	"thermopct/pkg/decompose"
	"thermopct/pkg/pipeline"
	"thermopct/pkg/region"
	"thermopct/pkg/video"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "YAML configuration file")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	afterPath := flag.String("after", "", "Heated (after) video file or frame directory")
	beforePath := flag.String("before", "", "Baseline (before) video file or frame directory (optional)")
	roi := flag.String("roi", "", "Region of interest as x,y,width,height (default: full frame)")
	method := flag.String("method", "", "Decomposition method: svd, pca or ppt")
	norm := flag.String("norm", "", "Normalization: none, standardize or row-wise")
	strict := flag.Bool("strict", false, "Disable the epsilon guard in normalization")
	backend := flag.String("backend", "", "Video decoder: ffmpeg, images or gocv")
	outputDir := flag.String("output", "", "Directory to save output maps")
	prefix := flag.String("prefix", "", "Output file name prefix (default: derived from the run ID)")
	formats := flag.String("formats", "", "Comma separated output formats: png, jpg, tiff, raw")
	truncate := flag.Bool("truncate", false, "Truncate aligned videos to the shorter length")
	cold := flag.Bool("cold", true, "Compute the cold subtraction difference map when a before video is given")
	coldPolicy := flag.String("cold-policy", "", "Negative difference handling: signed, clip or wrap")
	saveIntermediary := flag.Bool("save-intermediary", false, "Save intermediary results during processing")
	intermediaryDir := flag.String("intermediary-dir", "intermediary_results", "Directory to save intermediary results")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn or error")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	if *afterPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags given explicitly override the file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "roi":
			cfg.Region.ROI = *roi
		case "method":
			cfg.Processing.Method = *method
		case "norm":
			cfg.Processing.Normalization = *norm
		case "strict":
			cfg.Processing.Strict = *strict
		case "backend":
			cfg.Input.Backend = *backend
		case "output":
			cfg.Output.Dir = *outputDir
		case "prefix":
			cfg.Output.Prefix = *prefix
		case "formats":
			cfg.Output.Formats = *formats
		case "truncate":
			if *truncate {
				cfg.Region.Lengths = region.TruncateToShorter.String()
			} else {
				cfg.Region.Lengths = region.Independent.String()
			}
		case "cold":
			cfg.ColdSubtraction.Enabled = *cold
		case "cold-policy":
			cfg.ColdSubtraction.Policy = *coldPolicy
		case "save-intermediary":
			cfg.Output.SaveIntermediaryResults = *saveIntermediary
		case "log-level":
			cfg.Output.LogLevel = *logLevel
		}
	})

	settings, err := cfg.Validate()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Output.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	runID := uuid.New().String()
	zlog = zlog.With(zap.String("runID", runID))
	if cfg.Output.Prefix == "" {
		cfg.Output.Prefix = "pct-" + runID[:8]
	}

	fmt.Println("================================")
	fmt.Println("PRINCIPAL COMPONENT THERMOGRAPHY")
	fmt.Printf("Run %s\n", runID)
	fmt.Println("================================")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := video.OpenOptions{Backend: settings.Backend, FFmpeg: settings.FFmpeg}
	after, err := video.Open(ctx, *afterPath, opts)
	if err != nil {
		zlog.Fatal("failed to open after video", zap.String("path", *afterPath), zap.Error(err))
	}
	var before video.FrameSource
	if *beforePath != "" {
		if before, err = video.Open(ctx, *beforePath, opts); err != nil {
			after.Close()
			zlog.Fatal("failed to open before video", zap.String("path", *beforePath), zap.Error(err))
		}
	}

	var sel region.Selector = region.FullFrame{}
	if settings.ROI != nil {
		sel = region.Fixed(*settings.ROI)
	}

	params := &pipeline.Params{
		After:                   after,
		Before:                  before,
		Selector:                sel,
		BlankThreshold:          settings.Blank,
		Lengths:                 settings.Lengths,
		Normalization:           settings.Normalization,
		Method:                  settings.Method,
		ColdSubtraction:         settings.Cold,
		ColdPolicy:              settings.ColdPolicy,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         filepath.Join(cfg.Output.Dir, *intermediaryDir),
		Logger:                  zlog,
	}

	processor := pipeline.NewProcessor(params)

	fmt.Println("Starting thermography analysis...")
	startTime := time.Now()
	if err := processor.Process(ctx); err != nil {
		zlog.Fatal("processing failed", zap.Error(err))
	}
	processingTime := time.Since(startTime)

	viewer, err := processor.Viewer()
	if err != nil {
		zlog.Fatal("failed to collect output maps", zap.Error(err))
	}
	written, err := viewer.SaveAll(cfg.Output.Dir, cfg.Output.Prefix, settings.Formats)
	if err != nil {
		zlog.Fatal("failed to save output maps", zap.Error(err))
	}

	results := processor.Results()
	metrics := processor.GetMetrics()

	fmt.Printf("\nAnalysis completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Region of interest: %s\n", results.ROI)
	fmt.Printf("After video: %d frames (%d blank frames skipped)\n", results.AfterFrames, results.AfterSkipped)
	if before != nil {
		fmt.Printf("Before video: %d frames (%d blank frames skipped)\n", results.BeforeFrames, results.BeforeSkipped)
	}

	res := results.Decomposition
	fmt.Printf("\nDecomposition (%s):\n", res.Method)
	fmt.Printf("=======================================\n")
	for i := 0; i < len(res.Values) && i < 4; i++ {
		if res.Method == decompose.PPT {
			fmt.Printf("Harmonic %d mean amplitude: %.4f\n", i+1, res.Values[i])
			continue
		}
		fmt.Printf("Component %d: value %.4f, explained variance %.2f%%\n", i+1, res.Values[i], 100*res.Explained[i])
	}
	if res.Method != decompose.PPT {
		fmt.Printf("EOF1 and EOF2 together explain %.2f%% of the variance\n", 100*metrics.Explained)
	}
	fmt.Printf("EOF1 mean %.4f, std %.4f\n", metrics.EOF1Mean, metrics.EOF1Std)

	if results.Difference != nil {
		fmt.Printf("\nCold subtraction (%s): mean %.2f, std %.2f\n", settings.ColdPolicy, metrics.DiffMean, metrics.DiffStd)
	}

	fmt.Printf("\nOutput maps saved to %s:\n", cfg.Output.Dir)
	fmt.Println(strings.Join(written, "\n"))

	// Print information about intermediary results if saved
	if cfg.Output.SaveIntermediaryResults {
		fmt.Println("\nIntermediary results saved to:")
		fmt.Printf("%s\n", params.IntermediaryDir)
		fmt.Println("The following stages were saved:")
		fmt.Println("- 01_aligned_after, 01_aligned_before: Cropped frames after blank skipping")
		fmt.Println("- 02_mean: Per-pixel mean images")
		fmt.Println("- 03_normalized: First frame of the normalized after video")
	}
}
