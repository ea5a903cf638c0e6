// Package pipeline implements the five-stage knowledge pipeline that
// answers requests against the memory store: Extracting, Analyzing,
// Synthesizing, Validating, then asynchronous Learning. Stages run
// strictly forward; a failure in any synchronous stage truncates the
// run and produces a best-effort degraded response instead of an error.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/haasonsaas/cortex/internal/ingest"
	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/pkg/models"
)

// degradedTraceEntry is the canonical reasoning-trace marker of a pipeline
// failure. Callers distinguish it from a genuine low-confidence answer by
// the exact 0.0 confidence score alongside it.
const degradedTraceEntry = "error occurred during processing"

// Stage names, in execution order.
const (
	StageExtracting   = "extracting"
	StageAnalyzing    = "analyzing"
	StageSynthesizing = "synthesizing"
	StageValidating   = "validating"
	StageLearning     = "learning"
)

// Learner receives completed interactions for asynchronous learning and
// feeds adapted strategy weights back into synthesis. Implemented by
// learning.Engine; kept as an interface here so the pipeline never blocks
// on, or fails because of, the learning side.
type Learner interface {
	// Enqueue hands an interaction to the learner without blocking.
	// Returns false when the interaction was dropped under backpressure.
	Enqueue(interaction *models.Interaction) bool

	// StrategyWeights returns the current multiplier per strategy name.
	// Missing strategies default to 1.0.
	StrategyWeights() map[string]float64
}

// Config tunes pipeline behavior. Zero values get defaults.
type Config struct {
	// DefaultTimeout bounds requests that carry no MaxProcessingTime.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// RetrievalTopK is how many memory hits extraction asks for.
	RetrievalTopK int `yaml:"retrieval_top_k"`

	// RetrievalMinSimilarity filters extraction's memory search.
	RetrievalMinSimilarity float64 `yaml:"retrieval_min_similarity"`

	// StoreAnswers controls whether validated answers above the request's
	// confidence threshold are written back into the memory store.
	StoreAnswers bool `yaml:"store_answers"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 30 * time.Second
	}
	if c.RetrievalTopK == 0 {
		c.RetrievalTopK = 5
	}
	if c.RetrievalMinSimilarity == 0 {
		c.RetrievalMinSimilarity = 0.3
	}
}

// Options carries the processor's collaborators. Store is required; the
// rest are optional.
type Options struct {
	Store   *memory.Store
	Fetcher ingest.Fetcher
	Learner Learner
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Processor runs knowledge requests through the pipeline. One Processor
// serves many concurrent requests; all per-request state lives in a
// pipelineRun, so Process is safe for concurrent use.
type Processor struct {
	cfg     Config
	store   *memory.Store
	fetcher ingest.Fetcher
	learner Learner
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewProcessor builds a Processor.
func NewProcessor(cfg Config, opts Options) (*Processor, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: memory store is required")
	}
	cfg.ApplyDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:     cfg,
		store:   opts.Store,
		fetcher: opts.Fetcher,
		learner: opts.Learner,
		logger:  logger,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}, nil
}

// pipelineRun is the per-request state. Stages append to trace and fill
// their own result slot; nothing here is shared between requests.
type pipelineRun struct {
	req     *models.KnowledgeRequest
	started time.Time
	trace   []string

	extraction *extraction
	analysis   *analysis
	synthesis  *synthesis
	validation *validation
}

func (r *pipelineRun) note(format string, args ...any) {
	r.trace = append(r.trace, fmt.Sprintf(format, args...))
}

// Process runs a request through the pipeline and always returns a
// response. Business outcomes (no sources, low confidence) are encoded in
// the response; a degraded response with ConfidenceScore 0.0 signals a
// stage failure or timeout. Partial store writes committed before a
// timeout are not rolled back.
func (p *Processor) Process(ctx context.Context, req *models.KnowledgeRequest) *models.KnowledgeResponse {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	timeout := req.MaxProcessingTime
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.TraceRequest(ctx, req.ID, req.Query)
		defer span.End()
	}

	run := &pipelineRun{req: req, started: time.Now()}

	stages := []struct {
		name string
		fn   func(context.Context, *pipelineRun) error
	}{
		{StageExtracting, p.runExtract},
		{StageAnalyzing, p.runAnalyze},
		{StageSynthesizing, p.runSynthesize},
		{StageValidating, p.runValidate},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return p.degrade(run, stage.name, err)
		}
		start := time.Now()
		stageCtx := ctx
		var span trace.Span
		if p.tracer != nil {
			stageCtx, span = p.tracer.TraceStage(ctx, stage.name)
		}
		err := stage.fn(stageCtx, run)
		if span != nil {
			p.tracer.RecordError(span, err)
			span.End()
		}
		if p.metrics != nil {
			p.metrics.RecordStage(stage.name, time.Since(start).Seconds())
		}
		if err != nil {
			return p.degrade(run, stage.name, err)
		}
	}

	resp := p.buildResponse(run)

	// The answer write-back and the learning hand-off run after the
	// response is fully formed; neither can fail the request.
	p.persistAnswer(ctx, run, resp)
	p.dispatchLearning(run, resp)

	if p.metrics != nil {
		p.metrics.RecordRequest("ok", time.Since(run.started).Seconds())
	}
	return resp
}

func (p *Processor) buildResponse(run *pipelineRun) *models.KnowledgeResponse {
	return &models.KnowledgeResponse{
		RequestID:       run.req.ID,
		Content:         run.validation.Content,
		ConfidenceScore: run.validation.Confidence,
		Sources:         run.extraction.Sources,
		ReasoningTrace:  run.trace,
		Strategy:        run.synthesis.Strategy,
		ProcessingTime:  time.Since(run.started),
	}
}

// degrade truncates the pipeline and builds a best-effort response from
// whatever partial state exists.
func (p *Processor) degrade(run *pipelineRun, stage string, err error) *models.KnowledgeResponse {
	p.logger.Warn("pipeline stage failed",
		"request_id", run.req.ID,
		"stage", stage,
		"error", err,
	)

	content := ""
	var sources []string
	if run.synthesis != nil {
		content = run.synthesis.Primary
	}
	if run.extraction != nil {
		sources = run.extraction.Sources
	}

	run.note("stage %s failed: %v", stage, err)
	run.note(degradedTraceEntry)

	if p.metrics != nil {
		p.metrics.RecordRequest("degraded", time.Since(run.started).Seconds())
	}

	return &models.KnowledgeResponse{
		RequestID:       run.req.ID,
		Content:         content,
		ConfidenceScore: 0.0,
		Sources:         sources,
		ReasoningTrace:  run.trace,
		Degraded:        true,
		ProcessingTime:  time.Since(run.started),
	}
}

// persistAnswer writes a validated answer back into the memory store so
// later requests can retrieve it. Skipped for low-confidence answers and
// best-effort on store errors; capacity exhaustion is logged, not fatal.
func (p *Processor) persistAnswer(ctx context.Context, run *pipelineRun, resp *models.KnowledgeResponse) {
	if !p.cfg.StoreAnswers || resp.ConfidenceScore < run.req.ConfidenceThreshold {
		return
	}
	storeCtx := ctx
	var span trace.Span
	if p.tracer != nil {
		storeCtx, span = p.tracer.TraceStoreOperation(ctx, "store")
	}
	id, err := p.store.Store(storeCtx, resp.Content, map[string]any{
		"source":     "synthesized",
		"query":      run.req.Query,
		"strategy":   resp.Strategy,
		"confidence": resp.ConfidenceScore,
	}, []string{"synthesized"})
	if span != nil {
		if err != nil {
			p.tracer.RecordError(span, err)
		}
		span.End()
	}
	if err != nil {
		p.logger.Warn("answer write-back failed", "request_id", run.req.ID, "error", err)
		return
	}
	resp.NewMemoryIDs = append(resp.NewMemoryIDs, id)
}

// dispatchLearning hands the completed interaction to the learner without
// blocking the response path.
func (p *Processor) dispatchLearning(run *pipelineRun, resp *models.KnowledgeResponse) {
	if p.learner == nil {
		return
	}
	accepted := p.learner.Enqueue(&models.Interaction{
		RequestID:   run.req.ID,
		Query:       run.req.Query,
		Response:    resp,
		Strategy:    resp.Strategy,
		Confidence:  resp.ConfidenceScore,
		Duration:    resp.ProcessingTime,
		Context:     run.req.Context,
		CompletedAt: time.Now(),
	})
	if !accepted {
		p.logger.Debug("learning queue full, interaction dropped", "request_id", run.req.ID)
	}
}
