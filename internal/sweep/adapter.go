// Package sweep converts raw acquisition recordings into the normalized
// sweep sets consumed by the feature analyzers.
package sweep

import (
	"patchpipe/pkg/domain"
)

// Build converts one raw recording into a normalized sweep. Sample times are
// shifted so they begin at t0 (callers pass -pulseStart to align pulse onset
// across sweeps), voltage is scaled to mV, and current to pA with the holding
// current removed.
//
// The second return is false when the recording cannot be normalized because
// it has no holding-current stimulus epoch. That is a skip, not an error:
// callers drop the recording and continue.
func Build(rec domain.RawRecording, t0 float64) (domain.NormalizedSweep, bool) {
	holding, ok := rec.HoldingAmplitude()
	if !ok {
		return domain.NormalizedSweep{}, false
	}

	n := len(rec.Primary)
	t := make([]float64, n)
	v := make([]float64, n)
	for idx := 0; idx < n; idx++ {
		t[idx] = t0 + float64(idx)/rec.SampleRate
		v[idx] = rec.Primary[idx] * 1e3 // V -> mV
	}
	i := make([]float64, len(rec.Command))
	for idx, c := range rec.Command {
		i[idx] = (c - holding) * 1e12 // A -> pA, holding subtracted
	}

	return domain.NormalizedSweep{
		T:           t,
		V:           v,
		I:           i,
		ClampMode:   domain.ClampModeFromCode(rec.ClampCode),
		SampleRate:  rec.SampleRate,
		SweepNumber: rec.SweepKey,
	}, true
}
