package analysis

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"patchpipe/pkg/domain"
)

// AnalyzeChirp implements ChirpAnalyzer. The impedance profile is the ratio
// of response to stimulus spectra, averaged across sweeps and restricted to
// [minFreq, maxFreq] Hz.
func (a *NativeAnalyzer) AnalyzeChirp(ctx context.Context, set domain.SweepSet, minFreq, maxFreq float64) (ChirpResult, error) {
	if err := ctx.Err(); err != nil {
		return ChirpResult{}, err
	}
	if set.Len() == 0 {
		return ChirpResult{}, domain.AnalysisError{Detail: "empty sweep set"}
	}

	// Common length across sweeps; frequency resolution must reach minFreq.
	n := len(set.Sweeps[0].V)
	for _, sw := range set.Sweeps[1:] {
		if len(sw.V) < n {
			n = len(sw.V)
		}
	}
	rate := set.Sweeps[0].SampleRate
	if n < 2 || rate <= 0 {
		return ChirpResult{}, domain.AnalysisError{Detail: "chirp sweep has no usable samples"}
	}
	if df := rate / float64(n); df > minFreq {
		return ChirpResult{}, domain.AnalysisError{Detail: fmt.Sprintf("chirp sweep too short: %.3g Hz resolution exceeds %.3g Hz minimum", df, minFreq)}
	}

	fft := fourier.NewFFT(n)
	bins := n/2 + 1
	mag := make([]float64, bins)
	phase := make([]float64, bins)
	for _, sw := range set.Sweeps {
		if len(sw.I) < n {
			return ChirpResult{}, domain.AnalysisError{Detail: "chirp sweep stimulus shorter than response"}
		}
		vc := fft.Coefficients(nil, sw.V[:n])
		ic := fft.Coefficients(nil, sw.I[:n])
		for k := 0; k < bins; k++ {
			if cmplx.Abs(ic[k]) == 0 {
				continue
			}
			z := vc[k] / ic[k]
			mag[k] += cmplx.Abs(z)
			phase[k] += cmplx.Phase(z)
		}
	}
	nsweeps := float64(set.Len())
	for k := range mag {
		mag[k] /= nsweeps
		phase[k] /= nsweeps
	}

	// Band selection.
	df := rate / float64(n)
	lo := int(math.Ceil(minFreq / df))
	hi := int(math.Floor(maxFreq / df))
	if hi >= bins {
		hi = bins - 1
	}
	if hi-lo < 2 {
		return ChirpResult{}, domain.AnalysisError{Detail: "too few frequency bins in analysis band"}
	}

	res := ChirpResult{}
	peakIdx := lo
	for k := lo; k <= hi; k++ {
		if mag[k] > mag[peakIdx] {
			peakIdx = k
		}
	}
	z0 := mag[lo] * 1e3 // mV/pA -> MOhm
	res.PeakImpedance = mag[peakIdx] * 1e3
	res.PeakFreq = float64(peakIdx) * df
	if z0 != 0 {
		res.PeakRatio = res.PeakImpedance / z0
	}

	res.ThreeDBFreq = float64(hi) * df
	cutoff := res.PeakImpedance / math.Sqrt2
	for k := peakIdx; k <= hi; k++ {
		if mag[k]*1e3 <= cutoff {
			res.ThreeDBFreq = float64(k) * df
			break
		}
	}

	res.SyncFreq = float64(hi) * df
	for k := peakIdx; k <= hi; k++ {
		if mag[k]*1e3 <= z0 {
			res.SyncFreq = float64(k) * df
			break
		}
	}

	for k := lo; k <= hi; k++ {
		if phase[k] > 0 {
			res.TotalInductivePhase += phase[k] * df
		}
	}
	return res, nil
}
