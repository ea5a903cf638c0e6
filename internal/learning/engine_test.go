package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/cortex/internal/memory"
	"github.com/haasonsaas/cortex/pkg/models"
)

func newTestEngine(t *testing.T, cfg Config) (*Engine, *memory.Store) {
	t.Helper()
	store, err := memory.New(context.Background(), memory.Config{Dimension: 32}, memory.Options{})
	require.NoError(t, err)

	engine, err := NewEngine(cfg, Options{Store: store})
	require.NoError(t, err)
	return engine, store
}

func boolPtr(b bool) *bool { return &b }

func TestNewEngineRequiresStore(t *testing.T) {
	_, err := NewEngine(Config{}, Options{})
	assert.Error(t, err)
}

func TestEnqueueDropOldestBackpressure(t *testing.T) {
	engine, _ := newTestEngine(t, Config{QueueSize: 2})
	// Worker not started, so the queue only drains via eviction.

	first := &models.Interaction{RequestID: "first"}
	assert.True(t, engine.Enqueue(first))
	assert.True(t, engine.Enqueue(&models.Interaction{RequestID: "second"}))
	assert.True(t, engine.Enqueue(&models.Interaction{RequestID: "third"}),
		"a full queue must evict the oldest job, not reject the new one")

	assert.EqualValues(t, 1, engine.Dropped())

	// The survivor set is the two newest jobs.
	got := []*models.Interaction{<-engine.queue, <-engine.queue}
	assert.Equal(t, "second", got[0].RequestID)
	assert.Equal(t, "third", got[1].RequestID)
}

func TestEnqueueNil(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	assert.False(t, engine.Enqueue(nil))
}

func TestProcessReinforcesSourceNodes(t *testing.T) {
	engine, store := newTestEngine(t, Config{})
	ctx := context.Background()

	idA, err := store.Store(ctx, "Primary fact about quorum reads.", nil, nil)
	require.NoError(t, err)
	idB, err := store.Store(ctx, "Completely different topic entirely unrelated.", nil, nil)
	require.NoError(t, err)

	beforeA, err := store.Get(ctx, idA)
	require.NoError(t, err)

	engine.process(&models.Interaction{
		RequestID: "r1",
		Query:     "quorum reads",
		Strategy:  "definition",
		Response: &models.KnowledgeResponse{
			Content:         "answer",
			ConfidenceScore: 0.6,
			Sources:         []string{"memory:" + idA, "memory:" + idB},
		},
		Feedback:    &models.Feedback{Query: "quorum reads", Helpful: boolPtr(true)},
		CompletedAt: time.Now(),
	})

	afterA, err := store.Get(ctx, idA)
	require.NoError(t, err)
	assert.Greater(t, afterA.ImportanceScore, beforeA.ImportanceScore,
		"positive feedback must reinforce the grounding nodes")

	// The association is a fresh co-occurrence edge, or a strengthened
	// existing edge when store-time linking already connected the pair.
	rels, err := store.Relationships(idA)
	require.NoError(t, err)
	found := false
	for _, rel := range rels {
		if rel.Touches(idB) && rel.Strength > 0 {
			found = true
		}
	}
	assert.True(t, found, "co-used source nodes must grow an association")
}

func TestProcessStoresCorrectionAsKnowledge(t *testing.T) {
	engine, store := newTestEngine(t, Config{})
	before := store.Stats().NodeCount

	engine.process(&models.Interaction{
		RequestID: "r2",
		Query:     "What is the retention period?",
		Response:  &models.KnowledgeResponse{Content: "thirty days", ConfidenceScore: 0.5},
		Feedback: &models.Feedback{
			Query:      "What is the retention period?",
			Score:      -0.5,
			Correction: "Retention is ninety days for audit logs.",
			Tags:       []string{"retention"},
		},
		CompletedAt: time.Now(),
	})

	assert.Equal(t, before+1, store.Stats().NodeCount, "a correction must be stored as new knowledge")

	hits, err := store.SearchSemantic(context.Background(), "Retention is ninety days for audit logs.", 1, 0.1, map[string]any{"tag": "correction"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Node.Content, "ninety days")
}

func TestMetaOptimizationAdjustsStrategyWeights(t *testing.T) {
	engine, _ := newTestEngine(t, Config{MetaInterval: 1})

	for i := 0; i < 5; i++ {
		engine.process(&models.Interaction{
			RequestID:   "good",
			Query:       "q",
			Strategy:    "definition",
			Confidence:  0.9,
			Response:    &models.KnowledgeResponse{Content: "a", ConfidenceScore: 0.9},
			Feedback:    &models.Feedback{Query: "q", Helpful: boolPtr(true)},
			CompletedAt: time.Now(),
		})
		engine.process(&models.Interaction{
			RequestID:   "bad",
			Query:       "q",
			Strategy:    "creative",
			Confidence:  0.2,
			Response:    &models.KnowledgeResponse{Content: "a", ConfidenceScore: 0.2},
			Feedback:    &models.Feedback{Query: "q", Helpful: boolPtr(false)},
			CompletedAt: time.Now(),
		})
	}

	weights := engine.StrategyWeights()
	require.Contains(t, weights, "definition")
	require.Contains(t, weights, "creative")
	assert.Greater(t, weights["definition"], 1.0, "a consistently successful strategy must be promoted")
	assert.Less(t, weights["creative"], 1.0, "a consistently failing strategy must be demoted")
	assert.GreaterOrEqual(t, weights["creative"], minStrategyWeight)
	assert.LessOrEqual(t, weights["definition"], maxStrategyWeight)
}

func TestMetaOptimizationMinesPatterns(t *testing.T) {
	engine, _ := newTestEngine(t, Config{MetaInterval: 5})

	for i := 0; i < 5; i++ {
		engine.process(&models.Interaction{
			RequestID:   "r",
			Query:       "q",
			Strategy:    "balanced",
			Confidence:  0.9,
			Response:    &models.KnowledgeResponse{Content: "a", ConfidenceScore: 0.9},
			Context:     map[string]any{"channel": "api"},
			Feedback:    &models.Feedback{Query: "q", Helpful: boolPtr(true)},
			CompletedAt: time.Now(),
		})
	}

	patterns := engine.Patterns()
	kinds := map[models.PatternKind]bool{}
	for _, p := range patterns {
		kinds[p.Kind] = true
	}
	assert.True(t, kinds[models.PatternTemporal], "expected a temporal pattern from 5 same-hour examples")
	assert.True(t, kinds[models.PatternContextual], "expected a contextual pattern from the shared context key")
	assert.True(t, kinds[models.PatternSuccess], "expected a success pattern for the balanced strategy")
}

func TestObjectivesTrackConfidence(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	for i := 0; i < 10; i++ {
		engine.process(&models.Interaction{
			RequestID:   "r",
			Query:       "q",
			Confidence:  0.9,
			Response:    &models.KnowledgeResponse{Content: "a", ConfidenceScore: 0.9},
			CompletedAt: time.Now(),
		})
	}

	var confidence *models.LearningObjective
	for _, o := range engine.Objectives() {
		if o.TargetMetric == "mean_confidence" {
			confidence = o
		}
	}
	require.NotNil(t, confidence)
	assert.Greater(t, confidence.CurrentValue, 0.8, "objective must converge toward the observed confidence")
	assert.True(t, confidence.Met())
}

func TestSubmitFeedback(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})

	result, err := engine.SubmitFeedback(context.Background(), &models.Feedback{
		Query:      "What is X?",
		Response:   "an answer",
		Helpful:    boolPtr(false),
		Correction: "X is actually Y.",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 2, result.SignalCount, "expected feedback and correction signals")

	_, err = engine.SubmitFeedback(context.Background(), &models.Feedback{})
	assert.Error(t, err, "feedback without a query must be rejected")
}

func TestWorkerLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, Config{})
	engine.Start()

	require.True(t, engine.Enqueue(&models.Interaction{
		RequestID:   "r",
		Query:       "q",
		Confidence:  0.7,
		Response:    &models.KnowledgeResponse{Content: "a", ConfidenceScore: 0.7},
		CompletedAt: time.Now(),
	}))

	assert.Eventually(t, func() bool { return engine.Processed() == 1 },
		2*time.Second, 10*time.Millisecond)
	engine.Close()
}

func TestCloseDrainsPendingQueue(t *testing.T) {
	engine, _ := newTestEngine(t, Config{QueueSize: 8})
	engine.Start()

	for i := 0; i < 5; i++ {
		require.True(t, engine.Enqueue(&models.Interaction{
			RequestID:   "r",
			Query:       "q",
			Confidence:  0.7,
			Response:    &models.KnowledgeResponse{Content: "a", ConfidenceScore: 0.7},
			CompletedAt: time.Now(),
		}))
	}
	engine.Close()

	assert.EqualValues(t, 5, engine.Processed(),
		"jobs accepted before Close must be processed, not discarded")
}

func TestFeedbackCorrectionSurvivesClose(t *testing.T) {
	engine, store := newTestEngine(t, Config{})
	engine.Start()

	before := store.Stats().NodeCount

	result, err := engine.SubmitFeedback(context.Background(), &models.Feedback{
		Query:      "how long do refunds take",
		Response:   "refunds take thirty days",
		Helpful:    boolPtr(false),
		Correction: "Refunds take ninety days to settle.",
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	// Close immediately, the way a one-shot command does.
	engine.Close()

	assert.Equal(t, before+1, store.Stats().NodeCount,
		"an accepted correction must be stored before shutdown completes")
	hits, err := store.SearchSemantic(context.Background(), "Refunds take ninety days to settle.", 5, 0.1,
		map[string]any{"tag": "correction"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Contains(t, hits[0].Node.Content, "ninety days")
}

func TestExtractSignals(t *testing.T) {
	tests := []struct {
		name  string
		in    *models.Interaction
		kinds []SignalKind
	}{
		{
			name: "helpful feedback",
			in: &models.Interaction{
				Feedback: &models.Feedback{Query: "q", Helpful: boolPtr(true)},
			},
			kinds: []SignalKind{SignalFeedback},
		},
		{
			name: "correction",
			in: &models.Interaction{
				Feedback: &models.Feedback{Query: "q", Score: -1, Correction: "fixed"},
			},
			kinds: []SignalKind{SignalFeedback, SignalCorrection},
		},
		{
			name: "fast high-confidence run",
			in: &models.Interaction{
				Duration:   100 * time.Millisecond,
				Confidence: 0.9,
				Response:   &models.KnowledgeResponse{ConfidenceScore: 0.9},
			},
			kinds: []SignalKind{SignalLatency, SignalPattern},
		},
		{
			name: "degraded run",
			in: &models.Interaction{
				Response: &models.KnowledgeResponse{Degraded: true},
			},
			kinds: []SignalKind{SignalError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals := extractSignals(tt.in)
			var kinds []SignalKind
			for _, s := range signals {
				kinds = append(kinds, s.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
		})
	}
}

func TestPolarityFeedbackDominates(t *testing.T) {
	positive := polarity([]Signal{
		{Kind: SignalFeedback, Strength: 1.0},
		{Kind: SignalLatency, Strength: -0.2},
	})
	assert.Greater(t, positive, 0.8)

	negative := polarity([]Signal{
		{Kind: SignalFeedback, Strength: -1.0},
		{Kind: SignalPattern, Strength: 0.3},
	})
	assert.Less(t, negative, -0.8)
}
