// Package learning implements the continuous learning engine: a bounded
// work queue of completed interactions consumed by a single worker that
// extracts learning signals, writes adjustments back into the memory
// store, watches for concept drift, and periodically re-ranks response
// strategies. Everything here is best-effort; failures are logged and the
// interaction is dropped, never surfaced to the request path.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/internal/observability"
	"github.com/haasonsaas/cortex/pkg/models"
)

// Config tunes the learning engine. Zero values get defaults.
type Config struct {
	// QueueSize bounds the pending-interaction queue. A full queue drops
	// the oldest pending job rather than blocking the enqueuer.
	QueueSize int `yaml:"queue_size"`

	// BufferSize bounds the rolling training-example buffer.
	BufferSize int `yaml:"buffer_size"`

	// DriftWindow, DriftThreshold, DriftMinSamples configure drift
	// detection over per-interaction performance.
	DriftWindow     int     `yaml:"drift_window"`
	DriftThreshold  float64 `yaml:"drift_threshold"`
	DriftMinSamples int     `yaml:"drift_min_samples"`

	// MetaInterval is how many interactions pass between meta-learning
	// optimization runs.
	MetaInterval int `yaml:"meta_interval"`

	// ReinforceDelta is the per-signal adjustment applied to node
	// importance and relationship strength.
	ReinforceDelta float64 `yaml:"reinforce_delta"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.BufferSize == 0 {
		c.BufferSize = 500
	}
	if c.DriftWindow == 0 {
		c.DriftWindow = 50
	}
	if c.DriftThreshold == 0 {
		c.DriftThreshold = 0.3
	}
	if c.DriftMinSamples == 0 {
		c.DriftMinSamples = 20
	}
	if c.MetaInterval == 0 {
		c.MetaInterval = 25
	}
	if c.ReinforceDelta == 0 {
		c.ReinforceDelta = 0.05
	}
}

// Options carries the engine's collaborators. Store is required.
type Options struct {
	Store   *memory.Store
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// OnDrift is invoked from the worker goroutine when drift is flagged.
	OnDrift func(DriftReport)
}

// strategyStat accumulates observed outcomes per response strategy.
type strategyStat struct {
	total    int64
	success  int64
	scoreSum float64
}

// Engine is the continuous learning engine. One worker goroutine consumes
// the queue; all mutable learning state is guarded by mu.
type Engine struct {
	cfg     Config
	store   *memory.Store
	logger  *slog.Logger
	metrics *observability.Metrics
	onDrift func(DriftReport)

	queue chan *models.Interaction
	done  chan struct{}
	wg    sync.WaitGroup

	mu              sync.Mutex
	buffer          []*models.TrainingExample
	bufferNext      int
	patterns        map[string]*models.NeuralPattern
	objectives      []*models.LearningObjective
	strategyStats   map[string]*strategyStat
	strategyWeights map[string]float64
	drift           *DriftDetector
	processed       int64
	dropped         int64
}

// NewEngine builds an engine. Call Start to begin consuming the queue.
func NewEngine(cfg Config, opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("learning: memory store is required")
	}
	cfg.ApplyDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:             cfg,
		store:           opts.Store,
		logger:          logger,
		metrics:         opts.Metrics,
		onDrift:         opts.OnDrift,
		queue:           make(chan *models.Interaction, cfg.QueueSize),
		done:            make(chan struct{}),
		patterns:        make(map[string]*models.NeuralPattern),
		strategyStats:   make(map[string]*strategyStat),
		strategyWeights: make(map[string]float64),
		drift:           NewDriftDetector(cfg.DriftWindow, cfg.DriftThreshold, cfg.DriftMinSamples),
		objectives: []*models.LearningObjective{
			{Name: "confidence", TargetMetric: "mean_confidence", TargetValue: 0.8},
			{Name: "helpfulness", TargetMetric: "mean_feedback", TargetValue: 0.5},
		},
	}, nil
}

// Start launches the worker goroutine.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.run()
}

// Close stops the worker and waits for it to finish the in-flight job and
// drain everything accepted before shutdown. A job enqueued before Close
// is processed, not discarded.
func (e *Engine) Close() {
	close(e.done)
	e.wg.Wait()
}

// Enqueue hands an interaction to the engine without blocking. When the
// queue is full the oldest pending job is dropped to make room, so request
// processing never waits on learning. Returns whether the interaction was
// accepted.
func (e *Engine) Enqueue(in *models.Interaction) bool {
	if in == nil {
		return false
	}
	select {
	case e.queue <- in:
		e.gaugeDepth()
		return true
	default:
	}

	// Full: evict the oldest pending job, then retry once.
	select {
	case <-e.queue:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.LearningDropped.Inc()
		}
	default:
	}
	select {
	case e.queue <- in:
		e.gaugeDepth()
		return true
	default:
		return false
	}
}

func (e *Engine) gaugeDepth() {
	if e.metrics != nil {
		e.metrics.LearningQueueDepth.Set(float64(len(e.queue)))
	}
}

// SubmitFeedback routes explicit feedback into the learning queue.
// Duplicate submissions are at worst double-counted; they never corrupt
// learning state.
func (e *Engine) SubmitFeedback(_ context.Context, fb *models.Feedback) (*models.FeedbackResult, error) {
	if fb == nil || strings.TrimSpace(fb.Query) == "" {
		return nil, fmt.Errorf("learning: feedback requires a query")
	}

	in := &models.Interaction{
		RequestID:   uuid.NewString(),
		Query:       fb.Query,
		Response:    &models.KnowledgeResponse{Content: fb.Response, ConfidenceScore: 0.5},
		Feedback:    fb,
		Context:     map[string]any{"origin": "feedback"},
		CompletedAt: time.Now(),
	}

	signals := extractSignals(in)
	accepted := e.Enqueue(in)
	return &models.FeedbackResult{Accepted: accepted, SignalCount: len(signals)}, nil
}

// StrategyWeights returns the current strategy weight multipliers, as
// adapted by meta-optimization. Strategies absent from the map carry an
// implicit weight of 1.0.
func (e *Engine) StrategyWeights() map[string]float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.strategyWeights))
	for k, v := range e.strategyWeights {
		out[k] = v
	}
	return out
}

// Objectives returns a snapshot of the engine's learning objectives.
func (e *Engine) Objectives() []*models.LearningObjective {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.LearningObjective, len(e.objectives))
	for i, o := range e.objectives {
		copied := *o
		copied.Progress = append([]float64(nil), o.Progress...)
		out[i] = &copied
	}
	return out
}

// Patterns returns a snapshot of discovered patterns.
func (e *Engine) Patterns() []*models.NeuralPattern {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*models.NeuralPattern, 0, len(e.patterns))
	for _, p := range e.patterns {
		copied := *p
		out = append(out, &copied)
	}
	return out
}

// Dropped reports how many learning jobs were evicted under backpressure.
func (e *Engine) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Processed reports how many interactions the worker has consumed.
func (e *Engine) Processed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processed
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case in := <-e.queue:
			e.gaugeDepth()
			e.process(in)
		case <-e.done:
			// Drain jobs accepted before shutdown.
			for {
				select {
				case in := <-e.queue:
					e.process(in)
				default:
					return
				}
			}
		}
	}
}

// process runs one interaction through the learning lifecycle: signal
// extraction, store update, drift check, and periodic meta-optimization.
// Every step is best-effort.
func (e *Engine) process(in *models.Interaction) {
	ctx := context.Background()

	signals := extractSignals(in)
	net := polarity(signals)

	if err := e.applySignals(ctx, in, signals, net); err != nil {
		e.logger.Warn("learning store update failed, interaction dropped",
			"request_id", in.RequestID, "error", err)
	}

	e.mu.Lock()
	e.recordExample(in, net)
	e.recordStrategy(in.Strategy, net)
	e.updateObjectives(in, net)
	report := e.drift.Add(in.Confidence)
	e.processed++
	runMeta := e.cfg.MetaInterval > 0 && e.processed%int64(e.cfg.MetaInterval) == 0
	if runMeta {
		e.metaOptimizeLocked()
	}
	e.mu.Unlock()

	if report != nil {
		e.logger.Info("concept drift detected",
			"delta", report.Delta,
			"recent_mean", report.RecentMean,
			"historical_mean", report.HistoricalMean,
			"samples", report.Samples,
		)
		if e.metrics != nil {
			e.metrics.DriftDetections.Inc()
		}
		if e.onDrift != nil {
			e.onDrift(*report)
		}
	}
}

// applySignals writes learning outcomes back into the memory store:
// reinforcing or penalizing the nodes that grounded the response,
// strengthening associations between co-used nodes, and storing user
// corrections as new knowledge.
func (e *Engine) applySignals(ctx context.Context, in *models.Interaction, signals []Signal, net float64) error {
	nodeIDs := memorySourceIDs(in.Response)
	delta := e.cfg.ReinforceDelta * net

	var firstErr error
	if delta != 0 {
		for _, id := range nodeIDs {
			if err := e.store.ReinforceNode(ctx, id, delta); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		// Co-used nodes grow associated in proportion to the outcome.
		for i := 0; i+1 < len(nodeIDs); i++ {
			if err := e.store.AdjustRelationship(ctx, nodeIDs[i], nodeIDs[i+1], delta); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	for _, s := range signals {
		if s.Kind != SignalCorrection {
			continue
		}
		tags := []string{"correction"}
		if in.Feedback != nil {
			tags = append(tags, in.Feedback.Tags...)
		}
		if _, err := e.store.Store(ctx, s.Payload, map[string]any{
			"source": "correction",
			"query":  in.Query,
		}, tags); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// recordExample appends to the rolling buffer, overwriting the oldest slot
// once full. Caller holds mu.
func (e *Engine) recordExample(in *models.Interaction, net float64) {
	output := ""
	if in.Response != nil {
		output = in.Response.Content
	}
	example := &models.TrainingExample{
		ID:        uuid.NewString(),
		Input:     in.Query,
		Output:    output,
		Feedback:  net,
		Context:   in.Context,
		Strategy:  in.Strategy,
		Timestamp: in.CompletedAt,
	}
	if len(e.buffer) < e.cfg.BufferSize {
		e.buffer = append(e.buffer, example)
		return
	}
	e.buffer[e.bufferNext] = example
	e.bufferNext = (e.bufferNext + 1) % e.cfg.BufferSize
}

// recordStrategy updates per-strategy outcome stats. Caller holds mu.
func (e *Engine) recordStrategy(strategy string, net float64) {
	if strategy == "" {
		return
	}
	stat, ok := e.strategyStats[strategy]
	if !ok {
		stat = &strategyStat{}
		e.strategyStats[strategy] = stat
	}
	stat.total++
	stat.scoreSum += net
	if net > 0 {
		stat.success++
	}
}

// updateObjectives folds the interaction into the objectives' rolling
// means. Caller holds mu.
func (e *Engine) updateObjectives(in *models.Interaction, net float64) {
	for _, o := range e.objectives {
		var value float64
		switch o.TargetMetric {
		case "mean_confidence":
			value = in.Confidence
		case "mean_feedback":
			value = net
		default:
			continue
		}
		// Exponential moving average keeps the objective responsive
		// without storing a second buffer.
		if o.CurrentValue == 0 && len(o.Progress) == 0 {
			o.CurrentValue = value
		} else {
			o.CurrentValue = 0.9*o.CurrentValue + 0.1*value
		}
	}
}

// memorySourceIDs pulls the store node ids out of a response's source
// labels.
func memorySourceIDs(resp *models.KnowledgeResponse) []string {
	if resp == nil {
		return nil
	}
	var ids []string
	for _, src := range resp.Sources {
		if id, ok := strings.CutPrefix(src, "memory:"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
