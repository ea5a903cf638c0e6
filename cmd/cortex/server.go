// server.go contains the HTTP API served by the serve command.
package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/cortex/internal/learning"
	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/internal/pipeline"
	"github.com/haasonsaas/cortex/pkg/models"
)

// maxRequestBody bounds JSON request bodies; queries and feedback are
// small, sources are referenced by location rather than inlined wholesale.
const maxRequestBody = 1 << 20

// apiServer exposes the pipeline, store, and learning engine over HTTP.
type apiServer struct {
	store     *memory.Store
	engine    *learning.Engine
	processor *pipeline.Processor
	logger    *slog.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
}

// handler builds the route table. Every API route is wrapped with metrics
// and tracing instrumentation.
func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/query", s.instrument("/v1/query", s.handleQuery))
	mux.Handle("POST /v1/store", s.instrument("/v1/store", s.handleStore))
	mux.Handle("POST /v1/feedback", s.instrument("/v1/feedback", s.handleFeedback))
	mux.Handle("GET /v1/stats", s.instrument("/v1/stats", s.handleStats))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *apiServer) instrument(path string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.TraceHTTPRequest(r.Context(), r.Method, path)
		defer span.End()

		if id := observability.GetTraceID(ctx); id != "" {
			w.Header().Set("X-Trace-Id", id)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r.WithContext(ctx))

		if s.metrics != nil {
			s.metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(rec.status), time.Since(start).Seconds())
		}
	})
}

func (s *apiServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.KnowledgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	resp := s.processor.Process(r.Context(), &req)
	writeJSON(w, http.StatusOK, resp)
}

// storeRequest is the /v1/store payload.
type storeRequest struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
}

func (s *apiServer) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	id, err := s.store.Store(r.Context(), req.Content, req.Metadata, req.Tags)
	if err != nil {
		s.logger.Error("store request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *apiServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := decodeJSON(w, r, &fb); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.SubmitFeedback(r.Context(), &fb)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// statsResponse combines store state with learning progress.
type statsResponse struct {
	Store    *models.StoreStats          `json:"store"`
	Learning learningStats               `json:"learning"`
	Weights  map[string]float64          `json:"strategy_weights"`
	Goals    []*models.LearningObjective `json:"objectives"`
}

type learningStats struct {
	Processed int64 `json:"processed"`
	Dropped   int64 `json:"dropped"`
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Stats()
	if s.metrics != nil {
		s.metrics.UpdateStoreGauges(stats.NodeCount, stats.RelationshipCount, stats.CacheHitRate)
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Store: stats,
		Learning: learningStats{
			Processed: s.engine.Processed(),
			Dropped:   s.engine.Dropped(),
		},
		Weights: s.engine.StrategyWeights(),
		Goals:   s.engine.Objectives(),
	})
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
