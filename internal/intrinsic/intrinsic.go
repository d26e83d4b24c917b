// Package intrinsic maps analyzer output for one cell onto the fixed named
// feature schema persisted by the pipeline. Extraction failures never
// propagate: each protocol yields either a complete feature map or an empty
// one plus a per-cell diagnostic string, so one bad cell cannot abort its
// siblings.
package intrinsic

import (
	"context"
	"fmt"
	"math"

	"patchpipe/internal/analysis"
	"patchpipe/internal/sweep"
	"patchpipe/pkg/domain"
)

// subthreshMinAmp floors which hyperpolarizing steps participate in
// subthreshold analysis (pA), matching the feature library's convention.
const subthreshMinAmp = -200.0

// Chirp analysis band in Hz.
const (
	chirpMinFreq = 1.0
	chirpMaxFreq = 15.0
)

// GetLongSquareFeatures runs the long-square protocol analysis over a cell's
// qualified recordings and maps the result onto the named feature schema.
// Scale factors undo the analyzer's pA/mV/MOhm conventions back to native
// SI-like units.
func GetLongSquareFeatures(ctx context.Context, analyzer analysis.LongSquareAnalyzer, recs []domain.RawRecording, cellID string) (domain.FeatureMap, []string) {
	sel, errs := sweep.SelectLongSquare(recs, cellID)
	if len(errs) > 0 {
		return domain.FeatureMap{}, errs
	}
	if analyzer == nil {
		return domain.FeatureMap{}, []string{fmt.Sprintf("Error running long square analysis for cell %s: %s", cellID, domain.ErrAnalyzerUnavailable)}
	}

	window := domain.TimeWindow{Start: 0, End: sel.MinPulseDur}
	res, err := analyzer.AnalyzeLongSquare(ctx, sel.Set, window, subthreshMinAmp)
	if err != nil {
		// AnalysisError and unexpected failures get identical handling:
		// capture, record, continue with the next cell.
		return domain.FeatureMap{}, []string{fmt.Sprintf("Error running long square analysis for cell %s: %s", cellID, err)}
	}

	return domain.FeatureMap{
		domain.FeatAvgFiringRate:        res.AvgRate,
		domain.FeatRheobase:             res.RheobaseI * 1e-12, // unscale from pA
		domain.FeatFISlope:              res.FIFitSlope * 1e-12,
		domain.FeatInputResistance:      res.InputResistance * 1e6, // unscale from MOhm
		domain.FeatInputResistanceSS:    res.InputResistanceSS * 1e6,
		domain.FeatSag:                  res.Sag,
		domain.FeatAdaptationIndex:      res.AdaptMean,
		domain.FeatUpstrokeDownstroke:   res.Hero.UpstrokeDownstrokeRatio,
		domain.FeatUpstroke:             res.Hero.Upstroke,
		domain.FeatDownstroke:           res.Hero.Downstroke,
		domain.FeatWidth:                res.Hero.Width,
		domain.FeatThresholdV:           res.Hero.ThresholdV * 1e-3, // unscale from mV
		domain.FeatPeakDeltaV:           res.Hero.PeakDeltaV * 1e-3,
		domain.FeatFastTroughDeltaV:     res.Hero.FastTroughDeltaV * 1e-3,
		domain.FeatISIAdaptRatio:        res.Adapt.ISI,
		domain.FeatUpstrokeAdaptRatio:   res.Adapt.Upstroke,
		domain.FeatDownstrokeAdaptRatio: res.Adapt.Downstroke,
		domain.FeatWidthAdaptRatio:      res.Adapt.Width,
		domain.FeatThresholdVAdaptRatio: res.Adapt.ThresholdV,
	}, nil
}

// GetChirpFeatures runs FFT impedance analysis over a cell's qualified chirp
// recordings and maps the result onto the named schema. No unit rescaling is
// applied.
func GetChirpFeatures(ctx context.Context, analyzer analysis.ChirpAnalyzer, recs []domain.RawRecording, cellID string) (domain.FeatureMap, []string) {
	set, errs := sweep.SelectChirp(recs, cellID)
	if len(errs) > 0 {
		return domain.FeatureMap{}, errs
	}
	if analyzer == nil {
		return domain.FeatureMap{}, []string{fmt.Sprintf("Error processing chirps for cell %s: %s", cellID, domain.ErrAnalyzerUnavailable)}
	}

	res, err := analyzer.AnalyzeChirp(ctx, set, chirpMinFreq, chirpMaxFreq)
	if err != nil {
		return domain.FeatureMap{}, []string{fmt.Sprintf("Error processing chirps for cell %s: %s", cellID, err)}
	}

	return domain.FeatureMap{
		domain.FeatChirpPeakFreq:       res.PeakFreq,
		domain.FeatChirp3DBFreq:        res.ThreeDBFreq,
		domain.FeatChirpPeakRatio:      res.PeakRatio,
		domain.FeatChirpPeakImpedance:  res.PeakImpedance,
		domain.FeatChirpSyncFreq:       res.SyncFreq,
		domain.FeatChirpInductivePhase: res.TotalInductivePhase,
	}, nil
}

// Sanitize drops non-finite values from a feature map so records never carry
// NaN or Inf into the store.
func Sanitize(features domain.FeatureMap) domain.FeatureMap {
	for k, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			delete(features, k)
		}
	}
	return features
}
