package sweep

import (
	"fmt"
	"math"

	"patchpipe/pkg/domain"
)

// LongSquareSelection is the qualified long-square sweep set for one cell
// together with the minimum common pulse duration. Pulses may differ in
// duration across sweeps; analysis windows use the smallest so every sweep's
// valid pulse interval covers them.
type LongSquareSelection struct {
	Set         domain.SweepSet
	MinPulseDur float64
}

// SelectLongSquare builds the qualified long-square sweep set for one cell.
// Recordings without a detectable pulse window are skipped silently. The
// returned error strings are per-cell diagnostics, never fatal: an empty
// selection plus one error means the cell gets an empty long-square feature
// subset and processing continues.
func SelectLongSquare(recs []domain.RawRecording, cellID string) (LongSquareSelection, []string) {
	sel := LongSquareSelection{Set: domain.SweepSet{Protocol: domain.ProtocolLongSquare}}
	if len(recs) == 0 {
		return sel, []string{fmt.Sprintf("No long pulse sweeps for cell %s", cellID)}
	}

	minDur := math.Inf(1)
	for _, rec := range recs {
		if rec.PulseWindow == nil {
			continue
		}
		if d := rec.PulseWindow.Duration(); d < minDur {
			minDur = d
		}
		if sw, ok := Build(rec, -rec.PulseWindow.Start); ok {
			sel.Set.Sweeps = append(sel.Set.Sweeps, sw)
		}
	}
	if sel.Set.Len() == 0 {
		return sel, []string{fmt.Sprintf("No long square sweeps passed qc for cell %s", cellID)}
	}
	sel.MinPulseDur = minDur
	return sel, nil
}

// SelectChirp builds the qualified chirp sweep set for one cell. Chirp
// sweeps need no time alignment; recordings missing a holding-current epoch
// are dropped.
func SelectChirp(recs []domain.RawRecording, cellID string) (domain.SweepSet, []string) {
	set := domain.SweepSet{Protocol: domain.ProtocolChirp}
	if len(recs) == 0 {
		return set, []string{fmt.Sprintf("No chirp sweeps for cell %s", cellID)}
	}
	for _, rec := range recs {
		if sw, ok := Build(rec, 0); ok {
			set.Sweeps = append(set.Sweeps, sw)
		}
	}
	if set.Len() == 0 {
		return set, []string{fmt.Sprintf("No chirp sweeps passed qc for cell %s", cellID)}
	}
	return set, nil
}
