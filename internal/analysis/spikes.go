package analysis

import (
	"patchpipe/pkg/domain"
)

// Spike holds shape features for one detected action potential. Voltages in
// mV, rates of change in V/s, times and widths in seconds.
type Spike struct {
	ThresholdT  float64
	ThresholdV  float64
	PeakT       float64
	PeakV       float64
	FastTroughV float64
	Upstroke    float64
	Downstroke  float64
	Width       float64
}

const (
	// detectDVDT is the dV/dt threshold (V/s) that marks spike initiation.
	detectDVDT = 20.0
	// troughSearchDur bounds the fast-trough search after a peak (s).
	troughSearchDur = 0.005
	// peakSearchDur bounds the peak search after threshold crossing (s).
	peakSearchDur = 0.005
)

// detectSpikes finds action potentials on the sweep within the analysis
// window and extracts per-spike shape features. Detection is a rising dV/dt
// threshold crossing; the detector re-arms once dV/dt falls back below the
// threshold after the fast trough.
func detectSpikes(sw domain.NormalizedSweep, window domain.TimeWindow) []Spike {
	n := len(sw.V)
	if n < 3 {
		return nil
	}
	dvdt := make([]float64, n)
	for i := 0; i < n-1; i++ {
		// mV * samples/s * 1e-3 = V/s
		dvdt[i] = (sw.V[i+1] - sw.V[i]) * sw.SampleRate * 1e-3
	}
	dvdt[n-1] = dvdt[n-2]

	step := int(peakSearchDur * sw.SampleRate)
	if step < 1 {
		step = 1
	}
	troughStep := int(troughSearchDur * sw.SampleRate)
	if troughStep < 1 {
		troughStep = 1
	}

	var spikes []Spike
	i := 0
	for i < n-1 {
		if sw.T[i] < window.Start {
			i++
			continue
		}
		if sw.T[i] > window.End {
			break
		}
		if dvdt[i] < detectDVDT {
			i++
			continue
		}

		thrIdx := i
		peakIdx := thrIdx
		limit := thrIdx + step
		if limit > n-1 {
			limit = n - 1
		}
		for j := thrIdx; j <= limit; j++ {
			if sw.V[j] > sw.V[peakIdx] {
				peakIdx = j
			}
			if j > thrIdx && dvdt[j] < 0 && sw.V[j] < sw.V[peakIdx] {
				break
			}
		}

		troughIdx := peakIdx
		limit = peakIdx + troughStep
		if limit > n-1 {
			limit = n - 1
		}
		for j := peakIdx; j <= limit; j++ {
			if sw.V[j] < sw.V[troughIdx] {
				troughIdx = j
			}
			// A new rapid depolarization ends the trough search.
			if j > peakIdx && dvdt[j] >= detectDVDT {
				break
			}
		}

		up := dvdt[thrIdx]
		for j := thrIdx; j < peakIdx; j++ {
			if dvdt[j] > up {
				up = dvdt[j]
			}
		}
		down := dvdt[peakIdx]
		for j := peakIdx; j < troughIdx; j++ {
			if dvdt[j] < down {
				down = dvdt[j]
			}
		}

		spikes = append(spikes, Spike{
			ThresholdT:  sw.T[thrIdx],
			ThresholdV:  sw.V[thrIdx],
			PeakT:       sw.T[peakIdx],
			PeakV:       sw.V[peakIdx],
			FastTroughV: sw.V[troughIdx],
			Upstroke:    up,
			Downstroke:  down,
			Width:       spikeWidth(sw, thrIdx, peakIdx, troughIdx),
		})

		// Re-arm past the trough.
		i = troughIdx + 1
	}
	return spikes
}

// spikeWidth measures the spike width at half height between threshold and
// peak, with linear interpolation at the crossings.
func spikeWidth(sw domain.NormalizedSweep, thrIdx, peakIdx, troughIdx int) float64 {
	half := (sw.V[thrIdx] + sw.V[peakIdx]) / 2

	rise := sw.T[peakIdx]
	for j := thrIdx; j < peakIdx; j++ {
		if sw.V[j] <= half && sw.V[j+1] > half {
			rise = crossTime(sw.T[j], sw.T[j+1], sw.V[j], sw.V[j+1], half)
			break
		}
	}
	fall := sw.T[troughIdx]
	for j := peakIdx; j < troughIdx; j++ {
		if sw.V[j] >= half && sw.V[j+1] < half {
			fall = crossTime(sw.T[j], sw.T[j+1], sw.V[j], sw.V[j+1], half)
			break
		}
	}
	if fall <= rise {
		return 0
	}
	return fall - rise
}

func crossTime(t0, t1, v0, v1, level float64) float64 {
	if v1 == v0 {
		return t0
	}
	return t0 + (t1-t0)*(level-v0)/(v1-v0)
}
