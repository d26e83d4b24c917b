package domain

import "context"

// Session exposes the entity operations available inside one open job
// transaction. Writes accumulate in the session; commit or rollback is the
// store's concern when the transaction function returns.
type Session interface {
	SessionView

	CreateExperiment(Experiment) (Experiment, error)
	CreateCell(Cell) (Cell, error)
	CreatePair(Pair) (Pair, error)

	AddIntrinsic(IntrinsicRecord) (IntrinsicRecord, error)
	AddAvgResponseFit(AvgResponseFitRecord) (AvgResponseFitRecord, error)

	DeleteIntrinsic(id string) error
	DeleteAvgResponseFit(id string) error
}

// SessionView provides read-only access to the entity hierarchy and to
// previously written result records.
type SessionView interface {
	ExperimentFromExtID(extID string) (Experiment, error)
	CellList(experimentID string) []Cell
	PairList(experimentID string) []Pair

	// IntrinsicRecordsForJobs and AvgResponseFitsForJobs back the
	// job_records contract: every record whose owning cell or pair traces
	// to an experiment with one of the given external IDs.
	IntrinsicRecordsForJobs(jobIDs []string) []IntrinsicRecord
	AvgResponseFitsForJobs(jobIDs []string) []AvgResponseFitRecord
}

// Store is the minimal abstraction over durable backends used by the job
// runner. Implementations serialize snapshots internally; callers rely on
// the surrounding pipeline runtime to keep concurrent jobs on disjoint
// experiments.
type Store interface {
	RunInTransaction(ctx context.Context, fn func(Session) error) error
	View(ctx context.Context, fn func(SessionView) error) error
}
