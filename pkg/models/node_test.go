package models

import (
	"strings"
	"testing"
	"time"
)

func TestNewNodeID_Deterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewNodeID("refund policy", at)
	b := NewNodeID("refund policy", at)
	if a != b {
		t.Errorf("same content and time should yield same id: %s vs %s", a, b)
	}
}

func TestNewNodeID_TimeComponent(t *testing.T) {
	a := NewNodeID("refund policy", time.Unix(0, 1))
	b := NewNodeID("refund policy", time.Unix(0, 2))
	if a == b {
		t.Error("identical content at different times must yield distinct ids")
	}
	prefix := strings.SplitN(a, "-", 2)[0]
	if !strings.HasPrefix(b, prefix) {
		t.Errorf("content hash prefix should match: %s vs %s", a, b)
	}
}

func TestMemoryNode_HasTag(t *testing.T) {
	n := &MemoryNode{Tags: []string{"policy", "billing"}}
	if !n.HasTag("policy") {
		t.Error("expected tag policy")
	}
	if n.HasTag("missing") {
		t.Error("unexpected tag missing")
	}
}

func TestMemoryNode_Clone(t *testing.T) {
	n := &MemoryNode{
		ID:        "n1",
		Content:   "hello",
		Embedding: []float32{0.1, 0.2},
		Metadata:  map[string]any{"source": "test"},
		Tags:      []string{"a"},
	}
	c := n.Clone()

	c.Embedding[0] = 9
	c.Metadata["source"] = "mutated"
	c.Tags[0] = "b"

	if n.Embedding[0] != 0.1 {
		t.Error("clone shares embedding slice")
	}
	if n.Metadata["source"] != "test" {
		t.Error("clone shares metadata map")
	}
	if n.Tags[0] != "a" {
		t.Error("clone shares tags slice")
	}
}

func TestMemoryRelationship_Endpoints(t *testing.T) {
	r := &MemoryRelationship{SourceID: "a", TargetID: "b"}
	if !r.Touches("a") || !r.Touches("b") {
		t.Error("relationship should touch both endpoints")
	}
	if r.Touches("c") {
		t.Error("relationship should not touch c")
	}
	if got := r.Other("a"); got != "b" {
		t.Errorf("Other(a) = %s, want b", got)
	}
	if got := r.Other("b"); got != "a" {
		t.Errorf("Other(b) = %s, want a", got)
	}
}

func TestLearningObjective_Met(t *testing.T) {
	o := &LearningObjective{TargetValue: 0.8, CurrentValue: 0.7}
	if o.Met() {
		t.Error("objective should not be met at 0.7/0.8")
	}
	o.CurrentValue = 0.85
	if !o.Met() {
		t.Error("objective should be met at 0.85/0.8")
	}
}
