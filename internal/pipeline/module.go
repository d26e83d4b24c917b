// Package pipeline contains the job runner and the analysis modules it
// drives: each module computes derived records for one experiment job and
// writes them through a store session, reporting per-entity diagnostics
// instead of failing the job.
package pipeline

import (
	"context"
	"fmt"

	"patchpipe/pkg/domain"
)

// Job identifies one unit of work: an experiment addressed by its external
// ID.
type Job struct {
	ID string
}

// Module is one pipeline stage. CreateDBEntries computes and stores the
// module's records for the job, returning human-readable diagnostics for
// everything that went wrong; a non-empty list does not mean no rows were
// written. RecordIDs supports drop-and-rerun: it returns the IDs of every
// previously written record whose owning entity traces back to one of the
// given job IDs.
type Module interface {
	Name() string
	Dependencies() []string
	CreateDBEntries(ctx context.Context, job Job, session domain.Session) []string
	RecordIDs(view domain.SessionView, jobIDs []string) []string
	DropRecords(session domain.Session, ids []string) error
}

// guardEntity runs fn with panic containment so a defect while processing one
// cell or pair surfaces as that entity's diagnostic rather than killing the
// job.
func guardEntity(label string, errs *[]string, fn func() []string) {
	defer func() {
		if r := recover(); r != nil {
			err := domain.UnexpectedError{Err: fmt.Errorf("%v", r)}
			*errs = append(*errs, fmt.Sprintf("Unexpected error processing %s: %s", label, err))
		}
	}()
	*errs = append(*errs, fn()...)
}
