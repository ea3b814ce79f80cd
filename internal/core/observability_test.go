package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"classledger/internal/infra/persistence/memory"
	"classledger/pkg/domain"
)

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct {
	calls []metricsCall
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetrics) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func TestServiceObservesOperations(t *testing.T) {
	metrics := &captureMetrics{}
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc, _ := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer))
	ctx := context.Background()

	if _, err := svc.CreateGroup(ctx, domain.Group{Name: "G"}); err != nil {
		t.Fatal(err)
	}
	_, _ = svc.DeleteStudent(ctx, "ghost")
	if _, err := svc.Export(ctx); err != nil {
		t.Fatal(err)
	}
	_ = svc.Import(ctx, []byte("nope"))

	for _, want := range []metricsCall{
		{"load", true},
		{"dispatch.group.create", true},
		{"save", true},
		{"dispatch.student.delete", false},
		{"export", true},
		{"import", false},
	} {
		if !metrics.has(want.op, want.success) {
			t.Errorf("missing observation %+v in %+v", want, metrics.calls)
		}
	}

	entries := tracer.Entries()
	if len(entries) == 0 {
		t.Fatal("expected trace entries")
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(entries) {
		t.Fatalf("wrote %d lines for %d entries", len(lines), len(entries))
	}
	var last JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("decode trace line: %v", err)
	}
	if last.Operation != "import" || last.Status != "error" || last.Error == "" {
		t.Fatalf("last span: %+v", last)
	}
}

func TestExpvarRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "save", true, 2*time.Millisecond)
	rec.Observe(context.Background(), "save", false, time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Second)

	snap := rec.Snapshot()
	if snap.Results["save"]["success"] != 1 || snap.Results["save"]["error"] != 1 {
		t.Fatalf("results: %+v", snap.Results)
	}
	if snap.DurationsMS["save"] != 3 {
		t.Fatalf("durations: %+v", snap.DurationsMS)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatal("empty operation must be ignored")
	}
	v := expvar.Get(rec.Name())
	if v == nil || !strings.Contains(v.String(), "results_total") {
		t.Fatalf("expvar not published under %s", rec.Name())
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	svc := New(context.Background(), memory.New(), WithMetricsRecorder(MultiRecorder{rec, nil}))
	if _, err := svc.CreateStudent(context.Background(), domain.Student{FullName: "Ada"}); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(rec.total.WithLabelValues("save", "success")); got != 1 {
		t.Fatalf("save successes = %v", got)
	}
	if got := testutil.ToFloat64(rec.total.WithLabelValues("load", "success")); got != 1 {
		t.Fatalf("load successes = %v", got)
	}
	if n := testutil.CollectAndCount(rec.duration); n != 3 {
		t.Fatalf("expected 3 latency series (load, dispatch, save), got %d", n)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("registering twice should fail")
	}
}

func TestNoopObservers(t *testing.T) {
	ctx, span := noopTracer{}.Start(context.Background(), "x")
	span.End(errors.New("ignored"))
	noopMetrics{}.Observe(ctx, "x", true, 0)
}
