package models

import (
	"time"
)

// TrainingExample is one (input, output, feedback) triple in the learning
// engine's rolling buffer.
type TrainingExample struct {
	ID        string         `json:"id"`
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Feedback  float64        `json:"feedback"` // -1..1
	Context   map[string]any `json:"context,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// PatternKind classifies a discovered neural pattern.
type PatternKind string

const (
	PatternSuccess     PatternKind = "success"
	PatternFailure     PatternKind = "failure"
	PatternTemporal    PatternKind = "temporal"
	PatternContextual  PatternKind = "contextual"
	PatternPerformance PatternKind = "performance"
)

// NeuralPattern is a discovered success/failure pattern: the conditions
// under which it activates plus its observed outcome statistics.
type NeuralPattern struct {
	ID          string         `json:"id"`
	Kind        PatternKind    `json:"kind"`
	Conditions  map[string]any `json:"conditions,omitempty"`
	SuccessRate float64        `json:"success_rate"`
	UsageCount  int64          `json:"usage_count"`
	LastUsed    time.Time      `json:"last_used"`
}

// LearningObjective steers adaptation toward a named target metric.
type LearningObjective struct {
	Name         string    `json:"name"`
	TargetMetric string    `json:"target_metric"`
	TargetValue  float64   `json:"target_value"`
	CurrentValue float64   `json:"current_value"`
	Progress     []float64 `json:"progress,omitempty"`
}

// Met reports whether the objective's current value has reached its target.
func (o *LearningObjective) Met() bool {
	return o.CurrentValue >= o.TargetValue
}

// Interaction is one completed pipeline run handed to the learning engine.
type Interaction struct {
	RequestID  string             `json:"request_id"`
	Query      string             `json:"query"`
	Response   *KnowledgeResponse `json:"response"`
	Strategy   string             `json:"strategy"`
	Confidence float64            `json:"confidence"`
	Duration   time.Duration      `json:"duration"`
	Context    map[string]any     `json:"context,omitempty"`

	// Feedback is attached when the interaction originates from an
	// explicit feedback submission rather than a pipeline run.
	Feedback *Feedback `json:"feedback,omitempty"`

	CompletedAt time.Time `json:"completed_at"`
}

// Feedback is a structured piece of caller feedback about a response.
type Feedback struct {
	Query    string `json:"query"`
	Response string `json:"response"`

	// Score is the explicit feedback polarity in -1..1.
	Score float64 `json:"score"`

	// Helpful, when set, overrides a neutral score with a binary judgment.
	Helpful *bool `json:"helpful,omitempty"`

	// Correction is the user's corrected answer, stored as new knowledge
	// when present.
	Correction string   `json:"correction,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// FeedbackResult reports how a feedback submission was absorbed.
type FeedbackResult struct {
	Accepted    bool `json:"accepted"`
	SignalCount int  `json:"signal_count"`
}
