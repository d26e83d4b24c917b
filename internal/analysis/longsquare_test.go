package analysis

import (
	"context"
	"math"
	"testing"

	"patchpipe/pkg/domain"
)

// Synthetic long-square sweeps: 20 kHz sampling, baseline -65 mV, pulse over
// [0, 1) s with 0.1 s of pre-pulse baseline. Spikes are triangular templates
// with a 10 mV/sample rise (200 V/s) and symmetric fall, so every shape
// feature has a closed-form expected value.
const lsRate = 20000.0

func spikeTemplate(v []float64, s int) {
	for k := 1; k <= 4; k++ {
		v[s+k] = -65 + 10*float64(k)
	}
	for k := 1; k <= 5; k++ {
		v[s+4+k] = -25 - 10*float64(k)
	}
	for k := 1; k <= 20; k++ {
		v[s+9+k] = -75 + 0.5*float64(k)
	}
}

func makeLongSquareSweep(num int, amp float64, spikeTimes []float64) domain.NormalizedSweep {
	n := int(1.1 * lsRate)
	t := make([]float64, n)
	v := make([]float64, n)
	i := make([]float64, n)
	for idx := 0; idx < n; idx++ {
		t[idx] = float64(idx-2000) / lsRate
		v[idx] = -65
		if len(spikeTimes) == 0 && t[idx] >= 0 && t[idx] < 1 {
			// Passive deflection at 0.1 mV/pA (100 MOhm).
			v[idx] += 0.1 * amp
		}
		if t[idx] >= 0 && t[idx] < 1 {
			i[idx] = amp
		}
	}
	for _, st := range spikeTimes {
		spikeTemplate(v, int((st+0.1)*lsRate))
	}
	return domain.NormalizedSweep{T: t, V: v, I: i, ClampMode: domain.CurrentClamp, SampleRate: lsRate, SweepNumber: num}
}

func longSquareFixture() domain.SweepSet {
	return domain.SweepSet{
		Protocol: domain.ProtocolLongSquare,
		Sweeps: []domain.NormalizedSweep{
			makeLongSquareSweep(0, -100, nil),
			makeLongSquareSweep(1, -50, nil),
			makeLongSquareSweep(2, 50, []float64{0.3, 0.5}),
			makeLongSquareSweep(3, 100, []float64{0.2, 0.4, 0.6, 0.8}),
		},
	}
}

var lsWindow = domain.TimeWindow{Start: 0, End: 1}

func TestAnalyzeLongSquareRheobaseAndRates(t *testing.T) {
	res, err := NewNativeAnalyzer().AnalyzeLongSquare(context.Background(), longSquareFixture(), lsWindow, -200)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.RheobaseI != 50 {
		t.Fatalf("rheobase = %g pA, want 50 (smallest spiking amplitude)", res.RheobaseI)
	}
	if res.AvgRate != 3 {
		t.Fatalf("avg rate = %g Hz, want 3", res.AvgRate)
	}
	if math.Abs(res.FIFitSlope-0.04) > 1e-12 {
		t.Fatalf("fi slope = %g, want 0.04", res.FIFitSlope)
	}
}

func TestAnalyzeLongSquareHeroShapeDeterminism(t *testing.T) {
	a := NewNativeAnalyzer()
	res, err := a.AnalyzeLongSquare(context.Background(), longSquareFixture(), lsWindow, -200)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// Hero is the 100 pA sweep: lowest spiking amplitude >= rheobase + 40.
	hero := res.Hero
	if hero.ThresholdV != -65 {
		t.Fatalf("threshold_v = %g mV, want -65", hero.ThresholdV)
	}
	if hero.PeakDeltaV != 40 {
		t.Fatalf("peak_deltav = %g mV, want 40", hero.PeakDeltaV)
	}
	if hero.FastTroughDeltaV != -10 {
		t.Fatalf("fast_trough_deltav = %g mV, want -10", hero.FastTroughDeltaV)
	}
	if hero.Upstroke != 200 || hero.Downstroke != -200 {
		t.Fatalf("upstroke/downstroke = %g/%g V/s, want 200/-200", hero.Upstroke, hero.Downstroke)
	}
	if hero.UpstrokeDownstrokeRatio != 1 {
		t.Fatalf("upstroke/downstroke ratio = %g, want 1", hero.UpstrokeDownstrokeRatio)
	}
	if math.Abs(hero.Width-2e-4) > 1e-9 {
		t.Fatalf("width = %g s, want 2e-4", hero.Width)
	}

	// Identical templates and equal ISIs: all adaptation ratios are unity.
	if math.Abs(res.Adapt.ISI-1) > 1e-9 || res.Adapt.Upstroke != 1 || res.Adapt.Width != 1 {
		t.Fatalf("adaptation ratios = %+v, want all 1", res.Adapt)
	}
	if math.Abs(res.AdaptMean) > 1e-9 {
		t.Fatalf("mean adaptation = %g, want 0 for equal ISIs", res.AdaptMean)
	}

	// Determinism: a second run over the same set reproduces the hero exactly.
	res2, err := a.AnalyzeLongSquare(context.Background(), longSquareFixture(), lsWindow, -200)
	if err != nil {
		t.Fatalf("analyze again: %v", err)
	}
	if res2.Hero != hero {
		t.Fatalf("hero features changed across runs: %+v vs %+v", res2.Hero, hero)
	}
}

func TestAnalyzeLongSquareInputResistance(t *testing.T) {
	res, err := NewNativeAnalyzer().AnalyzeLongSquare(context.Background(), longSquareFixture(), lsWindow, -200)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if math.Abs(res.InputResistance-100) > 1e-6 {
		t.Fatalf("input resistance = %g MOhm, want 100", res.InputResistance)
	}
	if math.Abs(res.InputResistanceSS-100) > 1e-6 {
		t.Fatalf("steady-state input resistance = %g MOhm, want 100", res.InputResistanceSS)
	}
	// Flat deflection: no sag.
	if math.Abs(res.Sag) > 1e-9 {
		t.Fatalf("sag = %g, want 0", res.Sag)
	}
}

func TestAnalyzeLongSquareFailureModes(t *testing.T) {
	a := NewNativeAnalyzer()
	ctx := context.Background()

	_, err := a.AnalyzeLongSquare(ctx, domain.SweepSet{Protocol: domain.ProtocolLongSquare}, lsWindow, -200)
	if !domain.IsAnalysisError(err) {
		t.Fatalf("empty set: got %v, want analysis error", err)
	}

	_, err = a.AnalyzeLongSquare(ctx, longSquareFixture(), domain.TimeWindow{Start: 1, End: 1}, -200)
	if !domain.IsAnalysisError(err) {
		t.Fatalf("degenerate window: got %v, want analysis error", err)
	}

	subthreshOnly := domain.SweepSet{
		Protocol: domain.ProtocolLongSquare,
		Sweeps: []domain.NormalizedSweep{
			makeLongSquareSweep(0, -100, nil),
			makeLongSquareSweep(1, -50, nil),
		},
	}
	_, err = a.AnalyzeLongSquare(ctx, subthreshOnly, lsWindow, -200)
	if !domain.IsAnalysisError(err) {
		t.Fatalf("no spiking sweeps: got %v, want analysis error", err)
	}

	tooFewSubthresh := domain.SweepSet{
		Protocol: domain.ProtocolLongSquare,
		Sweeps: []domain.NormalizedSweep{
			makeLongSquareSweep(0, -50, nil),
			makeLongSquareSweep(1, 50, []float64{0.5}),
		},
	}
	_, err = a.AnalyzeLongSquare(ctx, tooFewSubthresh, lsWindow, -200)
	if !domain.IsAnalysisError(err) {
		t.Fatalf("one subthreshold sweep: got %v, want analysis error", err)
	}
}
