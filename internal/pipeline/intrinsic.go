package pipeline

import (
	"context"
	"errors"
	"fmt"

	"patchpipe/internal/analysis"
	"patchpipe/internal/intrinsic"
	"patchpipe/internal/rawdata"
	"patchpipe/pkg/domain"
)

// IntrinsicModule computes per-cell intrinsic excitability and chirp
// impedance features and writes one Intrinsic row per cell. A cell whose
// extraction fails entirely still gets a row with null features, so
// downstream joins see every cell exactly once.
type IntrinsicModule struct {
	source   *rawdata.Source
	analyzer analysis.Analyzer
}

var _ Module = (*IntrinsicModule)(nil)

// NewIntrinsicModule constructs the module. analyzer may be nil, in which
// case every cell reports an analyzer-unavailable diagnostic but still gets
// its row.
func NewIntrinsicModule(source *rawdata.Source, analyzer analysis.Analyzer) *IntrinsicModule {
	return &IntrinsicModule{source: source, analyzer: analyzer}
}

func (m *IntrinsicModule) Name() string { return "intrinsic" }

func (m *IntrinsicModule) Dependencies() []string { return []string{"experiment", "dataset"} }

// CreateDBEntries implements Module. A missing raw payload aborts the job
// with a single-element diagnostic list; every other failure is contained to
// its cell.
func (m *IntrinsicModule) CreateDBEntries(ctx context.Context, job Job, session domain.Session) []string {
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
	for _, cell := range session.CellList(expt.ID) {
		cell := cell
		guardEntity("cell "+cell.ExtID, &errs, func() []string {
			return m.processCell(ctx, session, data, cell)
		})
	}
	return errs
}

func (m *IntrinsicModule) processCell(ctx context.Context, session domain.Session, data *rawdata.ExperimentData, cell domain.Cell) []string {
	var errs []string
	features := domain.FeatureMap{}

	dict, err := m.source.IntrinsicRecordings(ctx, data, cell.DeviceID)
	if err != nil {
		errs = append(errs, fmt.Sprintf("Error selecting recordings for cell %s: %s", cell.ExtID, err))
	} else {
		lsFeatures, lsErrs := intrinsic.GetLongSquareFeatures(ctx, m.analyzer, dict[domain.ProtocolLongSquare], cell.ExtID)
		errs = append(errs, lsErrs...)
		chirpFeatures, chirpErrs := intrinsic.GetChirpFeatures(ctx, m.analyzer, dict[domain.ProtocolChirp], cell.ExtID)
		errs = append(errs, chirpErrs...)
		for k, v := range lsFeatures {
			features[k] = v
		}
		for k, v := range chirpFeatures {
			features[k] = v
		}
	}

	rec := domain.IntrinsicRecord{CellID: cell.ID}
	rec.ApplyFeatures(intrinsic.Sanitize(features))
	if _, err := session.AddIntrinsic(rec); err != nil {
		errs = append(errs, fmt.Sprintf("Error storing intrinsic record for cell %s: %s", cell.ExtID, err))
	}
	return errs
}

// RecordIDs implements Module.
func (m *IntrinsicModule) RecordIDs(view domain.SessionView, jobIDs []string) []string {
	records := view.IntrinsicRecordsForJobs(jobIDs)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

// DropRecords implements Module.
func (m *IntrinsicModule) DropRecords(session domain.Session, ids []string) error {
	for _, id := range ids {
		if err := session.DeleteIntrinsic(id); err != nil {
			return err
		}
	}
	return nil
}
