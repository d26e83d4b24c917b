package sweep

import (
	"math"
	"testing"

	"patchpipe/pkg/domain"
)

func recordingWithHolding(holding float64) domain.RawRecording {
	return domain.RawRecording{
		SweepKey:   3,
		ClampCode:  "ic",
		SampleRate: 1000,
		Primary:    []float64{-0.065, -0.064, -0.063},
		Command:    []float64{holding, holding + 50e-12, holding + 50e-12},
		Stimulus: []domain.StimulusEpoch{
			{Description: "test pulse", Amplitude: 10e-12},
			{Description: domain.HoldingCurrentDescription, Amplitude: holding},
		},
		QCPass: true,
	}
}

func TestBuildRequiresHoldingEpoch(t *testing.T) {
	rec := recordingWithHolding(-20e-12)
	rec.Stimulus = []domain.StimulusEpoch{{Description: "test pulse", Amplitude: 10e-12}}
	if _, ok := Build(rec, 0); ok {
		t.Fatalf("expected recording without holding epoch to be unusable")
	}

	rec.Stimulus = nil
	if _, ok := Build(rec, 0); ok {
		t.Fatalf("expected recording with no stimulus epochs to be unusable")
	}
}

func TestBuildScalesAndShifts(t *testing.T) {
	rec := recordingWithHolding(-20e-12)
	sw, ok := Build(rec, -0.5)
	if !ok {
		t.Fatalf("expected recording to be usable")
	}
	if sw.ClampMode != domain.CurrentClamp {
		t.Fatalf("clamp mode = %s, want %s", sw.ClampMode, domain.CurrentClamp)
	}
	if sw.SweepNumber != 3 {
		t.Fatalf("sweep number = %d, want 3", sw.SweepNumber)
	}
	if got := sw.T[0]; got != -0.5 {
		t.Fatalf("t[0] = %g, want -0.5", got)
	}
	if got := sw.T[1] - sw.T[0]; math.Abs(got-0.001) > 1e-12 {
		t.Fatalf("sample spacing = %g, want 0.001", got)
	}
	if got := sw.V[0]; got != -65 {
		t.Fatalf("v[0] = %g mV, want -65", got)
	}
	if got := sw.I[0]; math.Abs(got) > 1e-9 {
		t.Fatalf("i[0] = %g pA, want 0 after holding subtraction", got)
	}
	if got := sw.I[1]; math.Abs(got-50) > 1e-9 {
		t.Fatalf("i[1] = %g pA, want 50", got)
	}
}

func TestBuildVoltageClampCode(t *testing.T) {
	rec := recordingWithHolding(0)
	rec.ClampCode = "vc"
	sw, ok := Build(rec, 0)
	if !ok {
		t.Fatalf("expected recording to be usable")
	}
	if sw.ClampMode != domain.VoltageClamp {
		t.Fatalf("clamp mode = %s, want %s", sw.ClampMode, domain.VoltageClamp)
	}
}
