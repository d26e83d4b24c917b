package domain

import (
	"fmt"
	"testing"
)

func TestApplyFeaturesSetsOnlyPresentKeys(t *testing.T) {
	var rec IntrinsicRecord
	rec.ApplyFeatures(FeatureMap{
		FeatRheobase:      50e-12,
		FeatChirpPeakFreq: 2.5,
		"made_up_feature": 1,
	})

	if rec.Rheobase == nil || *rec.Rheobase != 50e-12 {
		t.Fatalf("rheobase = %v, want 50e-12", rec.Rheobase)
	}
	if rec.ChirpPeakFreq == nil || *rec.ChirpPeakFreq != 2.5 {
		t.Fatalf("chirp peak freq = %v, want 2.5", rec.ChirpPeakFreq)
	}
	if rec.AvgFiringRate != nil || rec.InputResistance != nil || rec.Chirp3DBFreq != nil {
		t.Fatalf("absent keys must stay null: %+v", rec)
	}
}

func TestApplyFeaturesEmptyMapLeavesAllNull(t *testing.T) {
	var rec IntrinsicRecord
	rec.ApplyFeatures(nil)
	if rec.Rheobase != nil || rec.Width != nil || rec.ChirpSyncFreq != nil {
		t.Fatalf("empty feature map must not populate fields: %+v", rec)
	}
}

func TestFeatureKeyListsMatchSchema(t *testing.T) {
	var rec IntrinsicRecord
	all := FeatureMap{}
	for i, key := range append(append([]string{}, LongSquareFeatureKeys...), ChirpFeatureKeys...) {
		all[key] = float64(i + 1)
	}
	rec.ApplyFeatures(all)

	fields := []*float64{
		rec.AvgFiringRate, rec.Rheobase, rec.FISlope, rec.InputResistance,
		rec.InputResistanceSS, rec.Sag, rec.AdaptationIndex,
		rec.UpstrokeDownstrokeRatio, rec.Upstroke, rec.Downstroke, rec.Width,
		rec.ThresholdV, rec.PeakDeltaV, rec.FastTroughDeltaV, rec.ISIAdaptRatio,
		rec.UpstrokeAdaptRatio, rec.DownstrokeAdaptRatio, rec.WidthAdaptRatio,
		rec.ThresholdVAdaptRatio, rec.ChirpPeakFreq, rec.Chirp3DBFreq,
		rec.ChirpPeakRatio, rec.ChirpPeakImpedance, rec.ChirpSyncFreq,
		rec.ChirpInductivePhase,
	}
	if len(fields) != len(LongSquareFeatureKeys)+len(ChirpFeatureKeys) {
		t.Fatalf("schema drift: %d fields vs %d keys", len(fields), len(LongSquareFeatureKeys)+len(ChirpFeatureKeys))
	}
	for i, f := range fields {
		if f == nil {
			t.Fatalf("field %d not populated by its key", i)
		}
		if *f != float64(i+1) {
			t.Fatalf("field %d = %g, want %d", i, *f, i+1)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsAnalysisError(AnalysisError{Detail: "no spiking sweeps"}) {
		t.Fatalf("AnalysisError must classify as analysis failure")
	}
	wrapped := fmt.Errorf("analyze cell: %w", AnalysisError{Detail: "degenerate window"})
	if !IsAnalysisError(wrapped) {
		t.Fatalf("wrapped AnalysisError must classify as analysis failure")
	}
	if IsAnalysisError(UnexpectedError{Err: fmt.Errorf("nil pointer")}) {
		t.Fatalf("UnexpectedError must not classify as analysis failure")
	}
	if IsAnalysisError(nil) {
		t.Fatalf("nil is not an analysis failure")
	}
}

func TestPairKeyUsesExtIDs(t *testing.T) {
	p := Pair{ID: "row", PreCellID: "c1", PostCellID: "c2", PreExtID: "1627683272.3 1", PostExtID: "1627683272.3 2"}
	if got := p.Key(); got != "1627683272.3 1~1627683272.3 2" {
		t.Fatalf("pair key = %q", got)
	}
}
