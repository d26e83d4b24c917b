package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()

	rec.Observe(ctx, "intrinsic", true, 120*time.Millisecond)
	rec.Observe(ctx, "intrinsic", true, 80*time.Millisecond)
	rec.Observe(ctx, "intrinsic", false, 10*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second) // ignored

	snap := rec.Snapshot()
	if got := snap.Results["intrinsic"]["success"]; got != 2 {
		t.Fatalf("success count = %d, want 2", got)
	}
	if got := snap.Results["intrinsic"]["error"]; got != 1 {
		t.Fatalf("error count = %d, want 1", got)
	}
	if got := snap.DurationsMS["intrinsic"]; got != 210 {
		t.Fatalf("total duration = %gms, want 210", got)
	}
	if rec.Name() == "" {
		t.Fatalf("generated name must not be empty")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()

	rec.Observe(ctx, "intrinsic", true, 50*time.Millisecond)
	rec.Observe(ctx, "intrinsic", false, 50*time.Millisecond)
	rec.Observe(ctx, "avg_response_fit", true, 50*time.Millisecond)

	if got := testutil.ToFloat64(rec.jobs.WithLabelValues("intrinsic", "success")); got != 1 {
		t.Fatalf("intrinsic success = %g, want 1", got)
	}
	if got := testutil.ToFloat64(rec.jobs.WithLabelValues("intrinsic", "error")); got != 1 {
		t.Fatalf("intrinsic error = %g, want 1", got)
	}
	if got := testutil.ToFloat64(rec.jobs.WithLabelValues("avg_response_fit", "success")); got != 1 {
		t.Fatalf("avg_response_fit success = %g, want 1", got)
	}

	// Double registration against the same registry must fail.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
