package pipeline

import (
	"context"
	"errors"
	"fmt"

	"patchpipe/internal/fit"
	"patchpipe/internal/notesdb"
	"patchpipe/internal/rawdata"
	"patchpipe/pkg/domain"
)

// AvgResponseFitModule fits the trial-averaged post-synaptic response of
// every connected pair, one record per (pair, clamp mode, holding potential)
// condition.
type AvgResponseFitModule struct {
	source *rawdata.Source
	fitter fit.Fitter
	notes  *notesdb.DB
}

var _ Module = (*AvgResponseFitModule)(nil)

// NewAvgResponseFitModule constructs the module. notes may be nil when no
// annotation database is configured; manual-QC agreement is then always
// false.
func NewAvgResponseFitModule(source *rawdata.Source, fitter fit.Fitter, notes *notesdb.DB) *AvgResponseFitModule {
	return &AvgResponseFitModule{source: source, fitter: fitter, notes: notes}
}

func (m *AvgResponseFitModule) Name() string { return "avg_response_fit" }

func (m *AvgResponseFitModule) Dependencies() []string {
	return []string{"experiment", "dataset", "pulse_response"}
}

// CreateDBEntries implements Module.
func (m *AvgResponseFitModule) CreateDBEntries(ctx context.Context, job Job, session domain.Session) []string {
	expt, err := session.ExperimentFromExtID(job.ID)
	if err != nil {
		return []string{fmt.Sprintf("Error loading experiment %s: %s", job.ID, err)}
	}
	data, err := m.source.Load(ctx, job.ID)
	if err != nil {
		var missing domain.MissingPrerequisiteError
		if errors.As(err, &missing) {
			return []string{missing.Reason}
		}
		return []string{fmt.Sprintf("Error loading raw data for experiment %s: %s", job.ID, err)}
	}

	var errs []string
	for _, pair := range session.PairList(expt.ID) {
		if !pair.HasSynapse {
			continue
		}
		pair := pair
		guardEntity("pair "+pair.Key(), &errs, func() []string {
			return m.processPair(ctx, session, data, pair)
		})
	}
	return errs
}

func (m *AvgResponseFitModule) processPair(ctx context.Context, session domain.Session, data *rawdata.ExperimentData, pair domain.Pair) []string {
	avgs := data.AveragesForPair(pair.Key())
	fits, errs := fit.PairFits(ctx, m.fitter, pair, avgs, m.notes)
	for cond, outcome := range fits {
		rec := domain.AvgResponseFitRecord{
			PairID:         pair.ID,
			ClampMode:      cond.ClampMode,
			Holding:        cond.Holding,
			NRMSE:          outcome.NRMSE,
			InitialXOffset: outcome.Latency,
			ManualQCPass:   outcome.MatchesQCPass,
			FitXOffset:     outcome.XOffset,
			FitYOffset:     outcome.YOffset,
			FitAmp:         outcome.Amp,
			FitRiseTime:    outcome.RiseTime,
			FitDecayTau:    outcome.DecayTau,
			FitExpAmp:      outcome.ExpAmp,
			FitExpTau:      outcome.ExpTau,
		}
		if _, err := session.AddAvgResponseFit(rec); err != nil {
			errs = append(errs, fmt.Sprintf("Error storing fit record for pair %s (%s, %gmV): %s", pair.Key(), cond.ClampMode, cond.Holding, err))
		}
	}
	return errs
}

// RecordIDs implements Module.
func (m *AvgResponseFitModule) RecordIDs(view domain.SessionView, jobIDs []string) []string {
	records := view.AvgResponseFitsForJobs(jobIDs)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

// DropRecords implements Module.
func (m *AvgResponseFitModule) DropRecords(session domain.Session, ids []string) error {
	for _, id := range ids {
		if err := session.DeleteAvgResponseFit(id); err != nil {
			return err
		}
	}
	return nil
}
