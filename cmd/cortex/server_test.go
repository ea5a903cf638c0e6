package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haasonsaas/cortex/internal/learning"
	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/pipeline"
	"github.com/haasonsaas/cortex/pkg/models"
)

func newTestAPI(t *testing.T) *apiServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := memory.New(context.Background(), memory.Config{Dimension: 32}, memory.Options{Logger: logger})
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine, err := learning.NewEngine(learning.Config{}, learning.Options{Store: store, Logger: logger})
	if err != nil {
		t.Fatalf("learning.NewEngine: %v", err)
	}

	processor, err := pipeline.NewProcessor(pipeline.Config{}, pipeline.Options{
		Store:   store,
		Learner: engine,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("pipeline.NewProcessor: %v", err)
	}

	// Empty endpoint keeps the tracer a no-op.
	tracer, shutdown := observability.NewTracer(observability.TraceConfig{})
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	return &apiServer{
		store:     store,
		engine:    engine,
		processor: processor,
		logger:    logger,
		tracer:    tracer,
	}
}

// testWriter routes handler log output through t.Log.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleQuery(t *testing.T) {
	api := newTestAPI(t)
	h := api.handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/query", `{"query":"what is a write-ahead log"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	var resp models.KnowledgeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("expected a generated request id")
	}
	if len(resp.ReasoningTrace) == 0 {
		t.Error("expected a reasoning trace")
	}
	if resp.Degraded {
		t.Error("healthy request should not be degraded")
	}
}

func TestHandleQueryRejectsEmptyQuery(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api.handler(), http.MethodPost, "/v1/query", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQueryRejectsMalformedBody(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api.handler(), http.MethodPost, "/v1/query", `{"query":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStoreThenStats(t *testing.T) {
	api := newTestAPI(t)
	h := api.handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/store",
		`{"content":"compaction merges sorted runs into fewer files","tags":["storage"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("store status = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
	var created map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode store response: %v", err)
	}
	if created["id"] == "" {
		t.Fatal("expected a node id")
	}

	rec = doRequest(t, h, http.MethodGet, "/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	var stats statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Store.NodeCount != 1 {
		t.Errorf("node count = %d, want 1", stats.Store.NodeCount)
	}
	if len(stats.Goals) == 0 {
		t.Error("expected learning objectives in stats")
	}
}

func TestHandleStoreRejectsEmptyContent(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api.handler(), http.MethodPost, "/v1/store", `{"content":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFeedback(t *testing.T) {
	api := newTestAPI(t)
	h := api.handler()

	rec := doRequest(t, h, http.MethodPost, "/v1/feedback",
		`{"query":"how long do refunds take","helpful":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}
	var result models.FeedbackResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Accepted {
		t.Error("expected feedback to be accepted")
	}

	rec = doRequest(t, h, http.MethodPost, "/v1/feedback", `{"query":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty query status = %d, want 400", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api.handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestQueryRequiresPost(t *testing.T) {
	api := newTestAPI(t)
	rec := doRequest(t, api.handler(), http.MethodGet, "/v1/query", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}
