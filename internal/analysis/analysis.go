// Package analysis defines the feature-extraction capability consumed by the
// intrinsic extractors, plus a native reference implementation. The
// interfaces keep the numerical library pluggable: extractors depend only on
// the contracts here and report a clear unavailable failure when no analyzer
// is injected.
package analysis

import (
	"context"

	"patchpipe/pkg/domain"
)

// HeroSweepFeatures summarizes spike-shape features of the representative
// suprathreshold sweep. Voltages are in mV, upstroke/downstroke in V/s,
// width in seconds, following the analyzer's unit conventions.
type HeroSweepFeatures struct {
	UpstrokeDownstrokeRatio float64
	Upstroke                float64
	Downstroke              float64
	Width                   float64
	ThresholdV              float64 // mV
	PeakDeltaV              float64 // mV, peak relative to threshold
	FastTroughDeltaV        float64 // mV, fast trough relative to threshold
}

// AdaptationRatios are last-to-first ratios across the hero sweep's spike
// train, describing how spike shape and timing adapt over the step.
type AdaptationRatios struct {
	ISI        float64
	Upstroke   float64
	Downstroke float64
	Width      float64
	ThresholdV float64
}

// LongSquareResult is the full output of a long-square protocol analysis.
// Units follow feature-library conventions (pA, mV, MOhm); the extractor
// undoes them when building the persisted feature map.
type LongSquareResult struct {
	AvgRate           float64 // Hz, mean over spiking sweeps
	RheobaseI         float64 // pA
	FIFitSlope        float64 // Hz/pA
	InputResistance   float64 // MOhm, peak deflection fit
	InputResistanceSS float64 // MOhm, steady-state fit
	Sag               float64
	AdaptMean         float64
	Hero              HeroSweepFeatures
	Adapt             AdaptationRatios
}

// ChirpResult is the frequency-domain impedance summary of a chirp sweep
// set. Frequencies in Hz, impedance in MOhm, phase in radians.
type ChirpResult struct {
	PeakFreq            float64
	ThreeDBFreq         float64
	PeakRatio           float64
	PeakImpedance       float64
	SyncFreq            float64
	TotalInductivePhase float64
}

// LongSquareAnalyzer runs spike and subthreshold feature extraction over a
// qualified long-square sweep set. The analysis window is [0, window.End]
// on the aligned time base; subthreshMinAmp floors which hyperpolarizing
// steps participate in subthreshold fits (pA).
//
// Implementations report domain.AnalysisError for failures of the analysis
// itself and any other error type for unexpected ones; callers treat both as
// recoverable per cell.
type LongSquareAnalyzer interface {
	AnalyzeLongSquare(ctx context.Context, set domain.SweepSet, window domain.TimeWindow, subthreshMinAmp float64) (LongSquareResult, error)
}

// ChirpAnalyzer runs FFT impedance analysis over a qualified chirp sweep
// set, restricted to [minFreq, maxFreq] Hz.
type ChirpAnalyzer interface {
	AnalyzeChirp(ctx context.Context, set domain.SweepSet, minFreq, maxFreq float64) (ChirpResult, error)
}

// Analyzer bundles both protocol capabilities.
type Analyzer interface {
	LongSquareAnalyzer
	ChirpAnalyzer
}
