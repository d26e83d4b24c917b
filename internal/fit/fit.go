// Package fit orchestrates curve fits of trial-averaged post-synaptic
// responses, one per (pair, clamp mode, holding potential) condition, and
// cross-references manual QC annotations from the notes database.
package fit

import (
	"context"
	"fmt"
	"math"

	"patchpipe/internal/notesdb"
	"patchpipe/pkg/domain"
)

// Condition identifies one recording condition observed among a pair's
// averaged responses.
type Condition struct {
	ClampMode domain.ClampMode
	Holding   float64 // mV
}

// Result is the fitting collaborator's output for one condition: a PSP-shape
// parameterization plus the normalized RMS error of the fit.
type Result struct {
	NRMSE    float64
	Latency  float64 // s, fitted response onset
	XOffset  float64
	YOffset  float64
	Amp      float64
	RiseTime float64
	DecayTau float64
	ExpAmp   float64 // extra exponential component (double-exp shapes)
	ExpTau   float64
}

// Fitter is the external curve-fitting collaborator. Its algorithm is
// outside this core's scope; only the error contract matters here. A failed
// fit for one condition must not poison the pair's other conditions.
type Fitter interface {
	FitAverage(ctx context.Context, avg domain.ResponseAverage) (Result, error)
}

// Outcome couples a fit result with the manual-QC agreement flag.
type Outcome struct {
	Result
	MatchesQCPass bool
}

// PairFits obtains one fit per condition for the pair's averaged responses.
// Fit failures are recorded as diagnostics and skipped; the pair's remaining
// conditions still produce records. A nil notes DB means no annotation
// exists for any condition.
func PairFits(ctx context.Context, fitter Fitter, pair domain.Pair, avgs []domain.ResponseAverage, notes *notesdb.DB) (map[Condition]Outcome, []string) {
	fits := make(map[Condition]Outcome)
	var errs []string
	for _, avg := range avgs {
		cond := Condition{ClampMode: avg.ClampMode, Holding: avg.Holding}
		if _, ok := fits[cond]; ok {
			continue
		}
		res, err := fitter.FitAverage(ctx, avg)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Error fitting average response for pair %s (%s, %gmV): %s", pair.Key(), avg.ClampMode, avg.Holding, err))
			continue
		}
		fits[cond] = Outcome{
			Result:        res,
			MatchesQCPass: matchesManualQC(ctx, notes, pair.Key(), cond, res.Latency, &errs),
		}
	}
	return fits, errs
}

// matchesManualQC reports whether the fitted latency agrees with a passing
// manual judgment for the condition. No annotation means no agreement.
func matchesManualQC(ctx context.Context, notes *notesdb.DB, pairKey string, cond Condition, latency float64, errs *[]string) bool {
	if notes == nil {
		return false
	}
	note, ok, err := notes.Note(ctx, pairKey, cond.ClampMode, cond.Holding)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("Error reading qc note for pair %s (%s, %gmV): %s", pairKey, cond.ClampMode, cond.Holding, err))
		return false
	}
	if !ok || !note.QCPass {
		return false
	}
	return math.Abs(latency-note.ExpectedLatency) <= notesdb.LatencyTolerance
}
