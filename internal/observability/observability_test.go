package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf})

	logger.Info("request processed", "outcome", "ok", "stage_count", 4)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "request processed" {
		t.Errorf("expected msg field, got %v", entry["msg"])
	}
	if entry["outcome"] != "ok" {
		t.Errorf("expected outcome attribute, got %v", entry["outcome"])
	}
}

func TestNewLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "text", Output: &buf})

	logger.Debug("noise")
	logger.Info("still noise")
	logger.Warn("important")

	out := buf.String()
	if strings.Contains(out, "noise") {
		t.Errorf("expected debug/info suppressed at warn level, got %q", out)
	}
	if !strings.Contains(out, "important") {
		t.Errorf("expected warn entry present, got %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRequestCounterLabels(t *testing.T) {
	// Use an isolated registry; NewMetrics registers with the default
	// registry and would panic on a second call within the test binary.
	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "test_requests_total",
			Help: "Test request counter",
		},
		[]string{"outcome"},
	)
	registry := prometheus.NewRegistry()
	registry.MustRegister(counter)

	counter.WithLabelValues("ok").Inc()
	counter.WithLabelValues("ok").Inc()
	counter.WithLabelValues("degraded").Inc()

	expected := `
		# HELP test_requests_total Test request counter
		# TYPE test_requests_total counter
		test_requests_total{outcome="degraded"} 1
		test_requests_total{outcome="ok"} 2
	`
	if err := testutil.CollectAndCompare(counter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metric value: %v", err)
	}
}

func TestStoreGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	nodes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_memory_nodes",
		Help: "Test node gauge",
	})
	hitRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_cache_hit_rate",
		Help: "Test hit rate gauge",
	})
	registry.MustRegister(nodes, hitRate)

	nodes.Set(42)
	hitRate.Set(0.75)

	if got := testutil.ToFloat64(nodes); got != 42 {
		t.Errorf("expected node gauge 42, got %v", got)
	}
	if got := testutil.ToFloat64(hitRate); got != 0.75 {
		t.Errorf("expected hit rate 0.75, got %v", got)
	}
}

func TestStageHistogramObservations(t *testing.T) {
	registry := prometheus.NewRegistry()
	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_stage_duration_seconds",
			Help:    "Test stage histogram",
			Buckets: []float64{0.001, 0.01, 0.1, 1},
		},
		[]string{"stage"},
	)
	registry.MustRegister(histogram)

	for _, stage := range []string{"extracting", "analyzing", "synthesizing", "validating"} {
		histogram.WithLabelValues(stage).Observe(0.005)
	}

	if count := testutil.CollectAndCount(histogram); count != 4 {
		t.Errorf("expected 4 stage series, got %d", count)
	}
}

func TestNoopTracerWithoutEndpoint(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "cortex-test"})
	defer shutdown(context.Background())

	ctx, span := tracer.TraceRequest(context.Background(), "req-1", "what is a b-tree")
	defer span.End()

	// No exporter configured, so spans must be non-recording and
	// GetTraceID must report no active trace.
	if span.IsRecording() {
		t.Error("expected non-recording span without an endpoint")
	}
	if id := GetTraceID(ctx); id != "" {
		t.Errorf("expected empty trace ID, got %q", id)
	}
}

func TestTracerRecordErrorNilSafe(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{})
	defer shutdown(context.Background())

	_, span := tracer.Start(context.Background(), "op")
	defer span.End()

	// Must not panic on nil or real errors against a no-op span.
	tracer.RecordError(span, nil)
	tracer.RecordError(span, errors.New("backend unreachable"))
}
