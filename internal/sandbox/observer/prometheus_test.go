package observer

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPromRecorder(reg)
	ctx := context.Background()

	rec.ObserveCompile(ctx, "expr", true, 20*time.Millisecond)
	rec.ObserveCompile(ctx, "expr", false, 5*time.Millisecond)
	rec.ObserveRun(ctx, "expr", "Succeeded", 3*time.Millisecond)
	rec.ObserveRun(ctx, "stmt", "PolicyKilled", 0)
	rec.ObserveRejected(ctx, "expr")
	rec.ObserveRejected(ctx, "expr")

	if got := testutil.ToFloat64(rec.compiles.WithLabelValues("expr", "true")); got != 1 {
		t.Fatalf("compiles ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.runs.WithLabelValues("stmt", "PolicyKilled")); got != 1 {
		t.Fatalf("policy killed runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.rejected.WithLabelValues("expr")); got != 2 {
		t.Fatalf("rejected = %v, want 2", got)
	}
	if n := testutil.CollectAndCount(rec.runDuration); n != 1 {
		t.Fatalf("run duration series = %d, want 1", n)
	}
}

func TestNoopRecorder(t *testing.T) {
	var rec MetricsRecorder = NoopMetricsRecorder{}
	rec.ObserveCompile(context.Background(), "expr", true, time.Second)
	rec.ObserveRun(context.Background(), "expr", "Succeeded", time.Second)
	rec.ObserveRejected(context.Background(), "expr")
}
