package models

import (
	"time"
)

// Priority orders knowledge requests for callers that queue them.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// SourceType classifies where ingested content comes from.
type SourceType string

const (
	SourceWeb        SourceType = "web"
	SourceDocument   SourceType = "document"
	SourceText       SourceType = "text"
	SourceStructured SourceType = "structured"
)

// Source describes one external content source for a request.
type Source struct {
	Type SourceType `json:"type"`

	// Location is a URL or file path, depending on Type.
	Location string `json:"location,omitempty"`

	// Inline carries the content directly for text/structured sources.
	Inline string `json:"inline,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// KnowledgeRequest is the unit of work entering the pipeline.
type KnowledgeRequest struct {
	ID      string         `json:"id"`
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`

	// Sources are optional external sources to merge with store results
	// during extraction.
	Sources []Source `json:"sources,omitempty"`

	Priority Priority `json:"priority"`

	// ConfidenceThreshold is the caller's minimum acceptable confidence.
	// Responses below it are still returned, flagged via ConfidenceScore.
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// MaxProcessingTime bounds the synchronous stages. Zero means the
	// configured default applies.
	MaxProcessingTime time.Duration `json:"max_processing_time"`

	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeResponse is the pipeline's answer to a request. A
// ConfidenceScore of exactly 0.0 together with a reasoning trace entry
// noting the failure is the canonical signal of pipeline failure; a genuine
// low-confidence answer carries a nonzero score and populated sources.
type KnowledgeResponse struct {
	RequestID       string        `json:"request_id"`
	Content         string        `json:"content"`
	ConfidenceScore float64       `json:"confidence_score"`
	Sources         []string      `json:"sources"`
	ReasoningTrace  []string      `json:"reasoning_trace"`
	NewMemoryIDs    []string      `json:"new_memory_ids,omitempty"`
	Strategy        string        `json:"strategy,omitempty"`
	Degraded        bool          `json:"degraded,omitempty"`
	ProcessingTime  time.Duration `json:"processing_time"`
}
