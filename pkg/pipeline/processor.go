// Package pipeline runs a thermography capture through alignment, decoding,
// normalization, decomposition and cold subtraction.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"thermopct/internal/logger"
	"thermopct/internal/models"
	"thermopct/pkg/coldsub"
	"thermopct/pkg/decompose"
	"thermopct/pkg/normalize"
	"thermopct/pkg/region"
	"thermopct/pkg/video"
	"thermopct/pkg/visualization"
)

// Params holds the processing configuration.
type Params struct {
	// After is the heated capture that is decomposed. Required.
	After video.FrameSource

	// Before is the baseline capture. Optional; when present the region is
	// selected from its first usable frame and applied to both videos.
	Before video.FrameSource

	// Selector supplies the region of interest; nil selects the full frame
	Selector region.Selector

	// BlankThreshold is the mean intensity that ends the leading blank run;
	// zero uses region.DefaultBlankThreshold
	BlankThreshold float64

	// Lengths decides how unequal aligned video lengths are handled
	Lengths region.LengthPolicy

	// Normalization is applied to the after video's observation matrix
	Normalization normalize.Policy

	// Method selects the decomposition
	Method decompose.Method

	// ColdSubtraction enables the after - before difference map
	ColdSubtraction bool

	// ColdPolicy controls how negative differences are represented
	ColdPolicy coldsub.Policy

	// SaveIntermediaryResults determines whether to save intermediary processing results
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary results are written
	IntermediaryDir string

	// Logger receives progress; nil discards it
	Logger *zap.Logger
}

// Results holds everything a run produced.
type Results struct {
	ROI models.ROI

	// AfterFrames and BeforeFrames are the aligned frame counts
	AfterFrames  int
	BeforeFrames int

	// AfterSkipped and BeforeSkipped count dropped leading blank frames
	AfterSkipped  int
	BeforeSkipped int

	Decomposition *decompose.Result

	// Difference is nil unless cold subtraction ran
	Difference *models.Map
}

// Metrics summarizes a run for reporting.
type Metrics struct {
	// Explained is the variance fraction carried by the two returned
	// components; zero for phase analysis
	Explained float64

	// EOF1Mean and EOF1Std describe the first spatial map
	EOF1Mean float64
	EOF1Std  float64

	// DiffMean and DiffStd describe the difference map when present
	DiffMean float64
	DiffStd  float64
}

// Processor runs the pipeline once.
//
// The run consists of:
// 1. Skipping leading blank frames and cropping both videos to one region
// 2. Decoding the aligned frames into intensity tensors
// 3. Normalizing the after video's pixel time series
// 4. Decomposing the normalized observation matrix
// 5. Subtracting the before video's mean image from the after video's
type Processor struct {
	params *Params
	log    *zap.Logger

	after  *video.Matrix
	before *video.Matrix

	results Results
}

// NewProcessor creates a processor for params.
func NewProcessor(params *Params) *Processor {
	return &Processor{
		params: params,
		log:    logger.OrNop(params.Logger),
	}
}

// Process runs the complete pipeline. Every source in the params is closed
// before Process returns.
func (p *Processor) Process(ctx context.Context) error {
	if p.params.After == nil {
		if p.params.Before != nil {
			p.params.Before.Close()
		}
		return fmt.Errorf("an after video is required")
	}

	// Steps 1 and 2: the cropped frames only live until the tensors are built
	if err := p.alignAndDecode(ctx); err != nil {
		return err
	}
	p.results.AfterFrames = p.after.Frames
	if p.before != nil {
		p.results.BeforeFrames = p.before.Frames
	}
	p.saveMap("02_mean", "after", p.after.MeanImage())
	if p.before != nil {
		p.saveMap("02_mean", "before", p.before.MeanImage())
	}

	// Step 3: Normalize pixel time series
	p.log.Info("Step 3: Normalizing pixel time series...",
		zap.Stringer("method", p.params.Normalization.Method),
		zap.Bool("strict", p.params.Normalization.Strict))
	obs := p.after.Observation()
	if err := normalize.ApplyInPlace(obs, p.params.Normalization); err != nil {
		return fmt.Errorf("failed to normalize: %w", err)
	}
	if p.params.SaveIntermediaryResults {
		normalized, err := video.FromObservation(obs, p.after.Height, p.after.Width)
		if err == nil {
			first := &models.Map{Data: normalized.Frame(0), Width: normalized.Width, Height: normalized.Height}
			p.saveMap("03_normalized", "frame_000", first)
		}
	}

	// Step 4: Decompose
	p.log.Info("Step 4: Decomposing observation matrix...", zap.Stringer("method", p.params.Method))
	res, err := decompose.Decompose(obs, p.after.Height, p.after.Width, p.params.Method)
	if err != nil {
		return fmt.Errorf("failed to decompose: %w", err)
	}
	p.results.Decomposition = res
	p.log.Debug("decomposition complete", zap.Float64s("values", head(res.Values, 4)))

	// Step 5: Cold subtraction
	if p.params.ColdSubtraction && p.before != nil {
		p.log.Info("Step 5: Subtracting cold baseline...", zap.Stringer("policy", p.params.ColdPolicy))
		diff, err := coldsub.Subtract(p.after, p.before, p.params.ColdPolicy)
		if err != nil {
			return fmt.Errorf("failed to subtract cold baseline: %w", err)
		}
		p.results.Difference = diff
	}

	return nil
}

func (p *Processor) alignAndDecode(ctx context.Context) error {
	// Step 1: Align the videos
	p.log.Info("Step 1: Aligning videos...")
	frames, err := p.align(ctx)
	if err != nil {
		return fmt.Errorf("failed to align videos: %w", err)
	}
	p.saveFrames("01_aligned_after", frames.after)
	p.saveFrames("01_aligned_before", frames.before)

	// Step 2: Decode aligned frames
	p.log.Info("Step 2: Decoding aligned frames...")
	if p.after, err = video.Decode(frames.after); err != nil {
		return fmt.Errorf("failed to decode after video: %w", err)
	}
	if frames.before != nil {
		if p.before, err = video.Decode(frames.before); err != nil {
			return fmt.Errorf("failed to decode before video: %w", err)
		}
	}
	return nil
}

type alignedFrames struct {
	after  []image.Image
	before []image.Image
}

func (p *Processor) align(ctx context.Context) (*alignedFrames, error) {
	aligner := region.NewSynchronizer(p.log)
	aligner.Lengths = p.params.Lengths
	if p.params.BlankThreshold > 0 {
		aligner.BlankThreshold = p.params.BlankThreshold
	}
	sel := p.params.Selector
	if sel == nil {
		sel = region.FullFrame{}
	}

	if p.params.Before == nil {
		roi, seq, err := aligner.Align(ctx, p.params.After, sel)
		if err != nil {
			return nil, err
		}
		p.results.ROI = roi
		p.results.AfterSkipped = seq.Skipped
		return &alignedFrames{after: seq.Frames}, nil
	}

	// The baseline is video 1: the region is chosen on its first usable frame
	pair, err := aligner.Synchronize(ctx, p.params.Before, p.params.After, sel)
	if err != nil {
		return nil, err
	}
	p.results.ROI = pair.ROI
	p.results.BeforeSkipped = pair.First.Skipped
	p.results.AfterSkipped = pair.Second.Skipped
	p.log.Info("videos aligned",
		zap.Stringer("roi", pair.ROI),
		zap.Int("afterFrames", len(pair.Second.Frames)),
		zap.Int("beforeFrames", len(pair.First.Frames)))
	return &alignedFrames{after: pair.Second.Frames, before: pair.First.Frames}, nil
}

// Results returns what the last Process call produced.
func (p *Processor) Results() *Results {
	return &p.results
}

// GetMetrics returns summary statistics of the last run
func (p *Processor) GetMetrics() Metrics {
	var m Metrics
	if res := p.results.Decomposition; res != nil {
		if len(res.Explained) >= 2 {
			m.Explained = floats.Sum(res.Explained[:2])
		}
		m.EOF1Mean, m.EOF1Std = stat.MeanStdDev(res.EOF1().Data, nil)
	}
	if diff := p.results.Difference; diff != nil {
		m.DiffMean, m.DiffStd = stat.MeanStdDev(diff.Data, nil)
	}
	return m
}

// Viewer collects the run's spatial maps under their output names.
func (p *Processor) Viewer() (*visualization.Viewer, error) {
	v := visualization.NewViewer()
	if res := p.results.Decomposition; res != nil {
		for i := range res.Components {
			if err := v.Add(ComponentName(res.Method, i), &res.Components[i]); err != nil {
				return nil, err
			}
		}
	}
	if p.results.Difference != nil {
		if err := v.Add("difference", p.results.Difference); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ComponentName is the output name of component i: EOF1, EOF2 for the
// factorizations and phase1, phase2 for phase analysis.
func ComponentName(m decompose.Method, i int) string {
	if m == decompose.PPT {
		return fmt.Sprintf("phase%d", i+1)
	}
	return fmt.Sprintf("EOF%d", i+1)
}

// saveFrames saves an aligned sequence when intermediary results are enabled.
func (p *Processor) saveFrames(stage string, frames []image.Image) {
	if !p.params.SaveIntermediaryResults || len(frames) == 0 {
		return
	}
	dir := filepath.Join(p.params.IntermediaryDir, stage)
	if err := visualization.SaveSequence(frames, dir, "frame"); err != nil {
		p.log.Warn("failed to save intermediary frames", zap.String("stage", stage), zap.Error(err))
	}
}

// saveMap saves a spatial map as PNG and raw when intermediary results are enabled.
func (p *Processor) saveMap(stage, name string, m *models.Map) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	v := visualization.NewViewer()
	if err := v.Add(name, m); err != nil {
		p.log.Warn("failed to save intermediary map", zap.String("stage", stage), zap.Error(err))
		return
	}
	dir := filepath.Join(p.params.IntermediaryDir, stage)
	if _, err := v.SaveAll(dir, "", []visualization.Format{visualization.PNG, visualization.Raw}); err != nil {
		p.log.Warn("failed to save intermediary map", zap.String("stage", stage), zap.Error(err))
	}
}

func head(values []float64, n int) []float64 {
	if len(values) < n {
		return values
	}
	return values[:n]
}
