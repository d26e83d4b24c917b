package fit

import (
	"context"
	"fmt"
	"math"

	"patchpipe/pkg/domain"
)

// PSPFitter is the default fitting collaborator: a deterministic
// grid-and-refine least-squares fit of the standard PSP shape
//
//	f(t) = yoffset + amp * (1 - exp(-(t-xoffset)/rise))^2 * exp(-(t-xoffset)/decay)
//
// for t >= xoffset, with an optional extra exponential component fitted to
// the residual. It trades optimizer sophistication for reproducibility; the
// Fitter interface keeps heavier backends pluggable.
type PSPFitter struct{}

// NewPSPFitter constructs the default fitter.
func NewPSPFitter() *PSPFitter { return &PSPFitter{} }

var _ Fitter = (*PSPFitter)(nil)

// Search grids in seconds.
var (
	riseGrid  = []float64{0.5e-3, 1e-3, 2e-3, 4e-3, 8e-3}
	decayGrid = []float64{5e-3, 10e-3, 20e-3, 50e-3, 100e-3}
	expGrid   = []float64{20e-3, 50e-3, 100e-3, 200e-3}
)

// FitAverage implements Fitter.
func (f *PSPFitter) FitAverage(ctx context.Context, avg domain.ResponseAverage) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	n := len(avg.Data)
	if n < 10 || avg.SampleRate <= 0 {
		return Result{}, fmt.Errorf("averaged response has no usable samples")
	}
	dt := 1 / avg.SampleRate

	// Baseline from the pre-onset portion.
	baseEnd := int(avg.Latency / dt)
	if baseEnd < 2 || baseEnd >= n {
		baseEnd = n / 10
		if baseEnd < 2 {
			baseEnd = 2
		}
	}
	var yoffset float64
	for _, v := range avg.Data[:baseEnd] {
		yoffset += v
	}
	yoffset /= float64(baseEnd)

	// Extremum after onset fixes the amplitude sign and scale.
	amp := 0.0
	for _, v := range avg.Data[baseEnd:] {
		if d := v - yoffset; math.Abs(d) > math.Abs(amp) {
			amp = d
		}
	}
	if amp == 0 {
		return Result{}, fmt.Errorf("averaged response is flat")
	}

	best := Result{YOffset: yoffset, Amp: amp, NRMSE: math.Inf(1)}
	for _, xoff := range latencyCandidates(avg.Latency) {
		for _, rise := range riseGrid {
			for _, decay := range decayGrid {
				if decay <= rise {
					continue
				}
				sse := ssePSP(avg.Data, dt, yoffset, amp, xoff, rise, decay)
				if nr := nrmse(sse, avg.Data, yoffset); nr < best.NRMSE {
					best.NRMSE = nr
					best.XOffset = xoff
					best.RiseTime = rise
					best.DecayTau = decay
				}
			}
		}
	}
	if math.IsInf(best.NRMSE, 1) {
		return Result{}, fmt.Errorf("no admissible fit for averaged response")
	}
	best.Latency = best.XOffset
	best.ExpAmp, best.ExpTau = fitResidualExp(avg.Data, dt, best)
	return best, nil
}

// latencyCandidates brackets the averaging-stage onset estimate.
func latencyCandidates(latency float64) []float64 {
	if latency < 0 {
		latency = 0
	}
	out := make([]float64, 0, 11)
	for k := -5; k <= 5; k++ {
		if c := latency + float64(k)*2e-4; c >= 0 {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = append(out, 0)
	}
	return out
}

func pspValue(t, yoffset, amp, xoffset, rise, decay float64) float64 {
	if t < xoffset {
		return yoffset
	}
	x := t - xoffset
	r := 1 - math.Exp(-x/rise)
	return yoffset + amp*r*r*math.Exp(-x/decay)
}

func ssePSP(data []float64, dt, yoffset, amp, xoffset, rise, decay float64) float64 {
	var sse float64
	for i, v := range data {
		d := v - pspValue(float64(i)*dt, yoffset, amp, xoffset, rise, decay)
		sse += d * d
	}
	return sse
}

// nrmse normalizes the fit error by the response's own RMS deviation from
// baseline, so fit quality is comparable across amplitudes.
func nrmse(sse float64, data []float64, yoffset float64) float64 {
	var ref float64
	for _, v := range data {
		d := v - yoffset
		ref += d * d
	}
	if ref == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(sse / ref)
}

// fitResidualExp fits a single decaying exponential to the residual left by
// the PSP fit. For each candidate tau the optimal amplitude has a closed
// form, so this stays a one-dimensional search.
func fitResidualExp(data []float64, dt float64, r Result) (expAmp, expTau float64) {
	n := len(data)
	resid := make([]float64, n)
	for i, v := range data {
		resid[i] = v - pspValue(float64(i)*dt, r.YOffset, r.Amp, r.XOffset, r.RiseTime, r.DecayTau)
	}
	bestSSE := math.Inf(1)
	for _, tau := range expGrid {
		var num, den float64
		for i := range resid {
			e := math.Exp(-float64(i) * dt / tau)
			num += resid[i] * e
			den += e * e
		}
		if den == 0 {
			continue
		}
		a := num / den
		var sse float64
		for i := range resid {
			d := resid[i] - a*math.Exp(-float64(i)*dt/tau)
			sse += d * d
		}
		if sse < bestSSE {
			bestSSE = sse
			expAmp, expTau = a, tau
		}
	}
	return expAmp, expTau
}
