package fit

import (
	"context"
	"math"
	"testing"

	"patchpipe/pkg/domain"
)

// syntheticPSP samples the canonical PSP shape so the grid fit has a
// recoverable optimum.
func syntheticPSP(amp, latency, rise, decay float64) domain.ResponseAverage {
	rate := 10000.0
	n := 1000
	data := make([]float64, n)
	yoffset := -65.0
	for i := range data {
		t := float64(i) / rate
		data[i] = yoffset
		if t >= latency {
			x := t - latency
			r := 1 - math.Exp(-x/rise)
			data[i] += amp * r * r * math.Exp(-x/decay)
		}
	}
	return domain.ResponseAverage{
		PairKey:    "cell1~cell2",
		ClampMode:  domain.CurrentClamp,
		Holding:    -70,
		SampleRate: rate,
		Data:       data,
		Latency:    latency,
	}
}

func TestFitAverageRecoversShape(t *testing.T) {
	avg := syntheticPSP(-0.5, 5e-3, 2e-3, 20e-3)
	res, err := NewPSPFitter().FitAverage(context.Background(), avg)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if res.Amp >= 0 {
		t.Fatalf("amp = %g, want negative (hyperpolarizing response)", res.Amp)
	}
	if math.Abs(res.YOffset-(-65)) > 0.05 {
		t.Fatalf("yoffset = %g, want near -65", res.YOffset)
	}
	if math.Abs(res.XOffset-5e-3) > 1.1e-3 {
		t.Fatalf("xoffset = %g, want near 5e-3", res.XOffset)
	}
	if res.NRMSE > 0.5 {
		t.Fatalf("nrmse = %g, want a usable fit", res.NRMSE)
	}
	if res.Latency != res.XOffset {
		t.Fatalf("latency %g should equal the fitted onset %g", res.Latency, res.XOffset)
	}
}

func TestFitAverageDeterministic(t *testing.T) {
	avg := syntheticPSP(0.8, 4e-3, 1e-3, 10e-3)
	f := NewPSPFitter()
	a, err := f.FitAverage(context.Background(), avg)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	b, err := f.FitAverage(context.Background(), avg)
	if err != nil {
		t.Fatalf("fit again: %v", err)
	}
	if a != b {
		t.Fatalf("fit not deterministic: %+v vs %+v", a, b)
	}
}

func TestFitAverageRejectsDegenerateInput(t *testing.T) {
	f := NewPSPFitter()
	ctx := context.Background()

	if _, err := f.FitAverage(ctx, domain.ResponseAverage{SampleRate: 1000, Data: make([]float64, 3)}); err == nil {
		t.Fatalf("expected error for too few samples")
	}

	flat := domain.ResponseAverage{SampleRate: 1000, Data: make([]float64, 100), Latency: 10e-3}
	for i := range flat.Data {
		flat.Data[i] = -65
	}
	if _, err := f.FitAverage(ctx, flat); err == nil {
		t.Fatalf("expected error for flat response")
	}
}
