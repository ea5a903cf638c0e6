// Package models defines the core data types for Cortex.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MemoryNode represents a unit of stored knowledge with content, embedding,
// and metadata. Nodes are append-only: re-storing identical content at a
// later time yields a distinct node with its own id.
type MemoryNode struct {
	ID      string `json:"id"`
	Content string `json:"content"`

	// Embedding is the fixed-length vector for the content. Absent until
	// computed; not serialized to JSON.
	Embedding []float32 `json:"-"`

	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`

	// ImportanceScore is set once at creation from content heuristics and
	// never recomputed automatically.
	ImportanceScore float64 `json:"importance_score"`

	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	CreatedAt    time.Time `json:"created_at"`

	// RelationshipIDs is a bidirectional convenience index into the
	// relationship table: every relationship touching this node appears here.
	RelationshipIDs []string `json:"relationship_ids,omitempty"`
}

// NewNodeID derives a node id from the content hash plus a creation
// timestamp component, so identical content stored at different times
// produces distinct ids.
func NewNodeID(content string, createdAt time.Time) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%s-%d", hex.EncodeToString(sum[:6]), createdAt.UnixNano())
}

// HasTag reports whether the node carries the given tag.
func (n *MemoryNode) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the node. The store hands out clones so
// callers never hold a mutable reference into the node table.
func (n *MemoryNode) Clone() *MemoryNode {
	c := *n
	if n.Embedding != nil {
		c.Embedding = make([]float32, len(n.Embedding))
		copy(c.Embedding, n.Embedding)
	}
	if n.Metadata != nil {
		c.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	if n.Tags != nil {
		c.Tags = append([]string(nil), n.Tags...)
	}
	if n.RelationshipIDs != nil {
		c.RelationshipIDs = append([]string(nil), n.RelationshipIDs...)
	}
	return &c
}

// RelationType identifies the kind of edge between two nodes.
type RelationType string

const (
	// RelationSemantic links nodes whose embeddings are similar.
	RelationSemantic RelationType = "semantic_similarity"
	// RelationCoOccurrence links nodes that are frequently accessed together.
	RelationCoOccurrence RelationType = "co_occurrence"
	// RelationCausal links a cause to its effect.
	RelationCausal RelationType = "causal"
	// RelationTemporal links events ordered in time.
	RelationTemporal RelationType = "temporal"
	// RelationHierarchical links a part to its whole.
	RelationHierarchical RelationType = "hierarchical"
)

// MemoryRelationship is a directed, typed, strength-weighted edge between
// two nodes. Both endpoints must exist in the node table.
type MemoryRelationship struct {
	ID        string       `json:"id"`
	SourceID  string       `json:"source_id"`
	TargetID  string       `json:"target_id"`
	Type      RelationType `json:"type"`
	Strength  float64      `json:"strength"` // 0..1
	CreatedAt time.Time    `json:"created_at"`
}

// Touches reports whether the relationship has the given node as an endpoint.
func (r *MemoryRelationship) Touches(nodeID string) bool {
	return r.SourceID == nodeID || r.TargetID == nodeID
}

// Other returns the opposite endpoint of the edge relative to nodeID.
func (r *MemoryRelationship) Other(nodeID string) string {
	if r.SourceID == nodeID {
		return r.TargetID
	}
	return r.SourceID
}

// ScoredNode pairs a node with its similarity score for a search result.
type ScoredNode struct {
	Node       *MemoryNode `json:"node"`
	Similarity float64     `json:"similarity"`
}

// GraphResult is a single hit from a graph traversal.
type GraphResult struct {
	Node         *MemoryNode         `json:"node"`
	Relationship *MemoryRelationship `json:"relationship"`
	Distance     int                 `json:"distance"`
}

// StoreStats describes the current state of the memory store.
type StoreStats struct {
	NodeCount         int     `json:"node_count"`
	RelationshipCount int     `json:"relationship_count"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	MemoryBytes       int64   `json:"memory_bytes_estimate"`
	Generation        uint64  `json:"generation"`
	EmbeddingProvider string  `json:"embedding_provider"`
	Dimension         int     `json:"dimension"`
}

// ConsolidationResult summarizes one consolidation pass.
type ConsolidationResult struct {
	Merged               int `json:"merged"`
	RelationshipsCreated int `json:"relationships_created"`
}
