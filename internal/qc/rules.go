// Package qc implements the recording-level quality-control rules applied
// before sweep selection. Blocking violations exclude a recording from every
// sweep set; warnings annotate it without excluding.
package qc

import (
	"context"
	"fmt"
	"math"

	"patchpipe/pkg/domain"
)

// NewUpstreamFlagRule returns the rule honoring the acquisition subsystem's
// own QC verdict: recordings flagged as failed upstream are excluded.
func NewUpstreamFlagRule() domain.QCRule {
	return upstreamFlagRule{}
}

type upstreamFlagRule struct{}

func (upstreamFlagRule) Name() string { return "upstream_flag" }

func (upstreamFlagRule) Evaluate(_ context.Context, rec domain.RawRecording) (domain.Result, error) {
	res := domain.Result{}
	if !rec.QCPass {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "upstream_flag",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("sweep %d failed acquisition qc", rec.SweepKey),
			SweepKey: rec.SweepKey,
		})
	}
	return res, nil
}

// NewCompletenessRule returns the rule rejecting recordings whose traces are
// missing or mismatched, which would otherwise fail deep inside analysis.
func NewCompletenessRule() domain.QCRule {
	return completenessRule{}
}

type completenessRule struct{}

func (completenessRule) Name() string { return "completeness" }

func (completenessRule) Evaluate(_ context.Context, rec domain.RawRecording) (domain.Result, error) {
	res := domain.Result{}
	switch {
	case len(rec.Primary) == 0:
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "completeness",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("sweep %d has no primary trace", rec.SweepKey),
			SweepKey: rec.SweepKey,
		})
	case len(rec.Command) != len(rec.Primary):
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "completeness",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("sweep %d command/primary length mismatch: %d != %d", rec.SweepKey, len(rec.Command), len(rec.Primary)),
			SweepKey: rec.SweepKey,
		})
	}
	if rec.SampleRate <= 0 {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "completeness",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("sweep %d has invalid sample rate %g", rec.SweepKey, rec.SampleRate),
			SweepKey: rec.SweepKey,
		})
	}
	return res, nil
}

// saturationV is the amplifier rail in volts; samples at or beyond it
// indicate a clipped recording.
const saturationV = 1.0

// NewSaturationRule returns the rule warning about clipped primary traces.
// Clipping degrades spike-shape features but does not always invalidate the
// sweep, so the violation is a warning.
func NewSaturationRule() domain.QCRule {
	return saturationRule{}
}

type saturationRule struct{}

func (saturationRule) Name() string { return "saturation" }

func (saturationRule) Evaluate(_ context.Context, rec domain.RawRecording) (domain.Result, error) {
	res := domain.Result{}
	for _, v := range rec.Primary {
		if math.Abs(v) >= saturationV {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "saturation",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("sweep %d primary trace clipped at %g V", rec.SweepKey, v),
				SweepKey: rec.SweepKey,
			})
			break
		}
	}
	return res, nil
}

// DefaultEngine builds the QC engine with the standard rule set.
func DefaultEngine() *domain.QCEngine {
	engine := domain.NewQCEngine()
	engine.Register(NewUpstreamFlagRule())
	engine.Register(NewCompletenessRule())
	engine.Register(NewSaturationRule())
	return engine
}

// Filter returns the recordings that pass all blocking rules.
func Filter(ctx context.Context, engine *domain.QCEngine, recs []domain.RawRecording) ([]domain.RawRecording, error) {
	if engine == nil {
		return recs, nil
	}
	passed := make([]domain.RawRecording, 0, len(recs))
	for _, rec := range recs {
		res, err := engine.Evaluate(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("evaluate qc rules for sweep %d: %w", rec.SweepKey, err)
		}
		if res.HasBlocking() {
			continue
		}
		passed = append(passed, rec)
	}
	return passed, nil
}
