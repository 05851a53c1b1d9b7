package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	ctx := context.Background()
	rec.Observe(ctx, "insert", true, 2*time.Millisecond)
	rec.Observe(ctx, "insert", false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if snap.DurationsMS["insert"] != 5 {
		t.Fatalf("unexpected duration total %v", snap.DurationsMS)
	}
	if snap.Results["insert"]["success"] != 1 || snap.Results["insert"]["error"] != 1 {
		t.Fatalf("unexpected results %v", snap.Results)
	}
	if _, ok := snap.Results[""]; ok {
		t.Fatalf("empty operation should be ignored")
	}
	published := expvar.Get(rec.Name())
	if published == nil {
		t.Fatalf("recorder not published under %s", rec.Name())
	}
	var decoded ExpvarMetricsSnapshot
	if err := json.Unmarshal([]byte(published.String()), &decoded); err != nil {
		t.Fatalf("decode expvar: %v", err)
	}
	if decoded.Results["insert"]["success"] != 1 {
		t.Fatalf("expvar export mismatch: %+v", decoded)
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "validate", true, 10*time.Millisecond)
	rec.Observe(ctx, "validate", true, 20*time.Millisecond)
	rec.Observe(ctx, "validate", false, 5*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	var histogramSamples uint64
	for _, mf := range families {
		switch mf.GetName() {
		case "carerules_host_operations_total":
			for _, m := range mf.GetMetric() {
				var status string
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "status" {
						status = lp.GetValue()
					}
				}
				counts[status] += m.GetCounter().GetValue()
			}
		case "carerules_host_operation_duration_seconds":
			for _, m := range mf.GetMetric() {
				histogramSamples += m.GetHistogram().GetSampleCount()
			}
		}
	}
	if counts["success"] != 2 || counts["error"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
	if histogramSamples != 3 {
		t.Fatalf("expected 3 histogram samples, got %d", histogramSamples)
	}
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestJSONTracerWritesEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "dispatch")
	span.End(errors.New("rule failed"))
	_, span = tracer.Start(context.Background(), "validate")
	span.End(nil)

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "error" || entries[0].Error != "rule failed" || entries[1].Status != "success" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 json lines, got %q", buf.String())
	}
}
