package analysis

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"patchpipe/pkg/domain"
)

// NativeAnalyzer is the in-process implementation of the feature-extraction
// capability. It reproduces the analysis contract of the external feature
// library: long-square spike/subthreshold characterization with a hero-sweep
// summary, and FFT impedance analysis for chirp sweeps.
type NativeAnalyzer struct{}

// NewNativeAnalyzer constructs the native analyzer.
func NewNativeAnalyzer() *NativeAnalyzer { return &NativeAnalyzer{} }

var _ Analyzer = (*NativeAnalyzer)(nil)

// heroAmpOffset is how far above rheobase (pA) the preferred hero sweep sits.
const heroAmpOffset = 40.0

// sweepSummary is the per-sweep classification used by the long-square
// analysis.
type sweepSummary struct {
	sweep   domain.NormalizedSweep
	amp     float64 // pA, step amplitude relative to pre-pulse baseline
	spikes  []Spike
	avgRate float64 // Hz over the analysis window
}

// AnalyzeLongSquare implements LongSquareAnalyzer.
func (a *NativeAnalyzer) AnalyzeLongSquare(ctx context.Context, set domain.SweepSet, window domain.TimeWindow, subthreshMinAmp float64) (LongSquareResult, error) {
	if err := ctx.Err(); err != nil {
		return LongSquareResult{}, err
	}
	if set.Len() == 0 {
		return LongSquareResult{}, domain.AnalysisError{Detail: "empty sweep set"}
	}
	dur := window.Duration()
	if dur <= 0 {
		return LongSquareResult{}, domain.AnalysisError{Detail: fmt.Sprintf("degenerate analysis window [%g, %g]", window.Start, window.End)}
	}

	var spiking, subthresh []sweepSummary
	for _, sw := range set.Sweeps {
		s := summarizeSweep(sw, window)
		switch {
		case len(s.spikes) > 0:
			spiking = append(spiking, s)
		case s.amp >= subthreshMinAmp && s.amp != 0:
			subthresh = append(subthresh, s)
		}
	}
	if len(spiking) == 0 {
		return LongSquareResult{}, domain.AnalysisError{Detail: "no spiking sweeps in analysis window"}
	}
	if len(subthresh) < 2 {
		return LongSquareResult{}, domain.AnalysisError{Detail: "not enough subthreshold sweeps to fit input resistance"}
	}

	sort.Slice(spiking, func(i, j int) bool { return spiking[i].amp < spiking[j].amp })

	res := LongSquareResult{}
	var rateSum float64
	for _, s := range spiking {
		rateSum += s.avgRate
	}
	res.AvgRate = rateSum / float64(len(spiking))
	res.RheobaseI = spiking[0].amp
	res.FIFitSlope = fiSlope(spiking)
	res.InputResistance, res.InputResistanceSS = inputResistances(subthresh, window)
	res.Sag = sagRatio(subthresh, window)
	res.AdaptMean = meanAdaptation(spiking)

	hero := chooseHero(spiking, res.RheobaseI)
	res.Hero = heroFeatures(hero)
	res.Adapt = adaptationRatios(hero.spikes)
	return res, nil
}

func summarizeSweep(sw domain.NormalizedSweep, window domain.TimeWindow) sweepSummary {
	base := meanWhere(sw.T, sw.I, window.Start-0.1, window.Start)
	step := meanWhere(sw.T, sw.I, window.Start, window.End)
	spikes := detectSpikes(sw, window)
	return sweepSummary{
		sweep:   sw,
		amp:     step - base,
		spikes:  spikes,
		avgRate: float64(len(spikes)) / window.Duration(),
	}
}

// fiSlope fits rate against step amplitude over the spiking sweeps. With a
// single spiking sweep the F-I curve degenerates to a line through the
// origin.
func fiSlope(spiking []sweepSummary) float64 {
	if len(spiking) == 1 {
		if spiking[0].amp == 0 {
			return 0
		}
		return spiking[0].avgRate / spiking[0].amp
	}
	amps := make([]float64, len(spiking))
	rates := make([]float64, len(spiking))
	for i, s := range spiking {
		amps[i] = s.amp
		rates[i] = s.avgRate
	}
	_, slope := stat.LinearRegression(amps, rates, nil, false)
	return slope
}

// inputResistances fits peak and steady-state voltage deflection against
// step amplitude over the subthreshold sweeps. Slopes come out in mV/pA and
// are reported in MOhm.
func inputResistances(subthresh []sweepSummary, window domain.TimeWindow) (peak, ss float64) {
	amps := make([]float64, len(subthresh))
	peaks := make([]float64, len(subthresh))
	steadies := make([]float64, len(subthresh))
	for i, s := range subthresh {
		base, pk, st := deflections(s.sweep, window)
		amps[i] = s.amp
		peaks[i] = pk - base
		steadies[i] = st - base
	}
	_, slopePeak := stat.LinearRegression(amps, peaks, nil, false)
	_, slopeSS := stat.LinearRegression(amps, steadies, nil, false)
	return slopePeak * 1e3, slopeSS * 1e3 // mV/pA -> MOhm
}

// sagRatio is (peak - steady) / (peak - baseline) deflection on the most
// hyperpolarizing subthreshold sweep.
func sagRatio(subthresh []sweepSummary, window domain.TimeWindow) float64 {
	deepest := subthresh[0]
	for _, s := range subthresh[1:] {
		if s.amp < deepest.amp {
			deepest = s
		}
	}
	base, pk, st := deflections(deepest.sweep, window)
	if pk == base {
		return 0
	}
	return (pk - st) / (pk - base)
}

// deflections returns the pre-pulse baseline voltage, the extremal voltage
// within the window, and the steady-state voltage over the final fifth of
// the window.
func deflections(sw domain.NormalizedSweep, window domain.TimeWindow) (base, peak, steady float64) {
	base = meanWhere(sw.T, sw.V, window.Start-0.1, window.Start)
	peak = base
	maxDev := 0.0
	for i, t := range sw.T {
		if t < window.Start || t > window.End {
			continue
		}
		if dev := math.Abs(sw.V[i] - base); dev > maxDev {
			maxDev = dev
			peak = sw.V[i]
		}
	}
	steady = meanWhere(sw.T, sw.V, window.End-window.Duration()/5, window.End)
	return base, peak, steady
}

// meanAdaptation averages the ISI adaptation index over spiking sweeps with
// at least three spikes. Sweeps with too few spikes contribute nothing.
func meanAdaptation(spiking []sweepSummary) float64 {
	var sum float64
	var n int
	for _, s := range spiking {
		if len(s.spikes) < 3 {
			continue
		}
		isis := interSpikeIntervals(s.spikes)
		var ai float64
		for i := 0; i < len(isis)-1; i++ {
			ai += (isis[i+1] - isis[i]) / (isis[i+1] + isis[i])
		}
		sum += ai / float64(len(isis)-1)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// chooseHero picks the representative suprathreshold sweep: the lowest
// spiking amplitude at least one step above rheobase, falling back to the
// highest-rate sweep.
func chooseHero(spiking []sweepSummary, rheobase float64) sweepSummary {
	target := rheobase + heroAmpOffset
	for _, s := range spiking {
		if s.amp >= target {
			return s
		}
	}
	hero := spiking[0]
	for _, s := range spiking[1:] {
		if s.avgRate > hero.avgRate {
			hero = s
		}
	}
	return hero
}

func heroFeatures(hero sweepSummary) HeroSweepFeatures {
	var f HeroSweepFeatures
	n := float64(len(hero.spikes))
	if n == 0 {
		return f
	}
	for _, sp := range hero.spikes {
		f.Upstroke += sp.Upstroke
		f.Downstroke += sp.Downstroke
		f.Width += sp.Width
		f.ThresholdV += sp.ThresholdV
		f.PeakDeltaV += sp.PeakV - sp.ThresholdV
		f.FastTroughDeltaV += sp.FastTroughV - sp.ThresholdV
	}
	f.Upstroke /= n
	f.Downstroke /= n
	f.Width /= n
	f.ThresholdV /= n
	f.PeakDeltaV /= n
	f.FastTroughDeltaV /= n
	if f.Downstroke != 0 {
		f.UpstrokeDownstrokeRatio = f.Upstroke / math.Abs(f.Downstroke)
	}
	return f
}

// adaptationRatios compares the last spike of the hero train to the first.
// Trains with a single spike yield unit ratios.
func adaptationRatios(spikes []Spike) AdaptationRatios {
	r := AdaptationRatios{ISI: 1, Upstroke: 1, Downstroke: 1, Width: 1, ThresholdV: 1}
	if len(spikes) < 2 {
		return r
	}
	first, last := spikes[0], spikes[len(spikes)-1]
	r.Upstroke = ratio(last.Upstroke, first.Upstroke)
	r.Downstroke = ratio(last.Downstroke, first.Downstroke)
	r.Width = ratio(last.Width, first.Width)
	r.ThresholdV = ratio(last.ThresholdV, first.ThresholdV)
	isis := interSpikeIntervals(spikes)
	if len(isis) >= 2 {
		r.ISI = ratio(isis[len(isis)-1], isis[0])
	}
	return r
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 1
	}
	return num / den
}

func interSpikeIntervals(spikes []Spike) []float64 {
	isis := make([]float64, 0, len(spikes)-1)
	for i := 1; i < len(spikes); i++ {
		isis = append(isis, spikes[i].ThresholdT-spikes[i-1].ThresholdT)
	}
	return isis
}

// meanWhere averages ys over samples whose time lies in [lo, hi).
func meanWhere(ts, ys []float64, lo, hi float64) float64 {
	var sum float64
	var n int
	for i, t := range ts {
		if t >= lo && t < hi && i < len(ys) {
			sum += ys[i]
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
