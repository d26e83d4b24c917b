package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity lookup fails within a session.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// AnalysisError reports a failure raised by the feature-extraction capability
// itself: the analysis ran but could not produce a feature set for this sweep
// set. It is recoverable at per-cell, per-protocol granularity.
type AnalysisError struct {
	Detail string
}

func (e AnalysisError) Error() string { return e.Detail }

// UnexpectedError wraps any non-analysis failure surfaced during feature
// extraction. Handling is identical to AnalysisError: capture, record,
// continue with the next entity.
type UnexpectedError struct {
	Err error
}

func (e UnexpectedError) Error() string { return e.Err.Error() }

// Unwrap exposes the underlying failure for errors.Is/As inspection.
func (e UnexpectedError) Unwrap() error { return e.Err }

// MissingPrerequisiteError aborts a whole job: the experiment has no usable
// raw data, so no entity can be processed. This is the one error coarser than
// per-entity granularity.
type MissingPrerequisiteError struct {
	ExtID  string
	Reason string
}

func (e MissingPrerequisiteError) Error() string { return e.Reason }

// ErrAnalyzerUnavailable signals that no feature-extraction capability was
// injected. Extractors report it at call time instead of silently skipping.
var ErrAnalyzerUnavailable = errors.New("feature analyzer unavailable")

// IsAnalysisError reports whether err is a capability-reported analysis
// failure as opposed to an unexpected one.
func IsAnalysisError(err error) bool {
	var ae AnalysisError
	return errors.As(err, &ae)
}
