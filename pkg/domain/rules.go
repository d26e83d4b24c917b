package domain

import "context"

// Severity captures QC rule outcomes.
type Severity string

// Rule evaluation severities determine whether a recording is excluded from
// analysis or merely annotated.
const (
	// SeverityBlock excludes the recording from every sweep set.
	SeverityBlock Severity = "block"
	// SeverityWarn annotates the recording but keeps it qualified.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed QC rule evaluation for one recording.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	SweepKey int
}

// Result aggregates violations from the QC rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// QCRule defines one recording-level quality check executed before sweep
// selection.
type QCRule interface {
	Name() string
	Evaluate(ctx context.Context, rec RawRecording) (Result, error)
}

// QCEngine orchestrates QC rule evaluation over raw recordings.
type QCEngine struct {
	rules []QCRule
}

// NewQCEngine constructs an engine instance.
func NewQCEngine() *QCEngine {
	return &QCEngine{}
}

// Register appends a rule to the engine.
func (e *QCEngine) Register(rule QCRule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules against one recording and
// aggregates their results.
func (e *QCEngine) Evaluate(ctx context.Context, rec RawRecording) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, rec)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
