package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Path: filepath.Join(t.TempDir(), "cortex.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func testNode(id string) *models.MemoryNode {
	return &models.MemoryNode{
		ID:              id,
		Content:         "content of " + id,
		Embedding:       []float32{0.25, -0.5, 0.125},
		Metadata:        map[string]any{"source": "test"},
		Tags:            []string{"alpha", "beta"},
		ImportanceScore: 0.42,
		AccessCount:     3,
		LastAccessed:    time.Now().UTC().Truncate(time.Second),
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		RelationshipIDs: []string{"r1"},
	}
}

func TestBackend_NodeRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	want := testNode("n1")
	if err := b.PutNode(ctx, want); err != nil {
		t.Fatalf("PutNode: %v", err)
	}

	nodes, _, err := b.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	got := nodes[0]
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.5 {
		t.Errorf("Embedding = %v, want %v", got.Embedding, want.Embedding)
	}
	if got.Metadata["source"] != "test" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "alpha" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if got.ImportanceScore != 0.42 {
		t.Errorf("ImportanceScore = %f", got.ImportanceScore)
	}
	if got.AccessCount != 3 {
		t.Errorf("AccessCount = %d", got.AccessCount)
	}
	if len(got.RelationshipIDs) != 1 || got.RelationshipIDs[0] != "r1" {
		t.Errorf("RelationshipIDs = %v", got.RelationshipIDs)
	}
}

func TestBackend_PutNodes_Batch(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	batch := []*models.MemoryNode{testNode("a"), testNode("b"), testNode("c")}
	if err := b.PutNodes(ctx, batch); err != nil {
		t.Fatalf("PutNodes: %v", err)
	}
	nodes, _, err := b.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(nodes) != 3 {
		t.Errorf("len(nodes) = %d, want 3", len(nodes))
	}
}

func TestBackend_PutNode_Upsert(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	n := testNode("n1")
	if err := b.PutNode(ctx, n); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	n.AccessCount = 99
	if err := b.PutNode(ctx, n); err != nil {
		t.Fatalf("PutNode update: %v", err)
	}
	nodes, _, _ := b.LoadAll(ctx)
	if len(nodes) != 1 {
		t.Fatalf("len(nodes) = %d, want 1", len(nodes))
	}
	if nodes[0].AccessCount != 99 {
		t.Errorf("AccessCount after update = %d, want 99", nodes[0].AccessCount)
	}
}

func TestBackend_RelationshipRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	rel := &models.MemoryRelationship{
		ID:        "r1",
		SourceID:  "a",
		TargetID:  "b",
		Type:      models.RelationSemantic,
		Strength:  0.8,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := b.PutRelationship(ctx, rel); err != nil {
		t.Fatalf("PutRelationship: %v", err)
	}

	_, rels, err := b.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(rels) != 1 {
		t.Fatalf("len(rels) = %d, want 1", len(rels))
	}
	if rels[0].Type != models.RelationSemantic {
		t.Errorf("Type = %s, want %s", rels[0].Type, models.RelationSemantic)
	}
	if rels[0].Strength != 0.8 {
		t.Errorf("Strength = %f, want 0.8", rels[0].Strength)
	}

	if err := b.DeleteRelationship(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRelationship: %v", err)
	}
	_, rels, _ = b.LoadAll(ctx)
	if len(rels) != 0 {
		t.Errorf("len(rels) after delete = %d, want 0", len(rels))
	}
}

func TestBackend_DeleteNode(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if err := b.PutNode(ctx, testNode("n1")); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	if err := b.DeleteNode(ctx, "n1"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	nodes, _, _ := b.LoadAll(ctx)
	if len(nodes) != 0 {
		t.Errorf("len(nodes) after delete = %d, want 0", len(nodes))
	}
}

func TestBackend_ReopenRebuilds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cortex.db")
	ctx := context.Background()

	b, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.PutNode(ctx, testNode("n1")); err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b2, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer b2.Close()
	nodes, _, err := b2.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll after reopen: %v", err)
	}
	if len(nodes) != 1 || nodes[0].ID != "n1" {
		t.Errorf("nodes after reopen = %v", nodes)
	}
}

func TestEncodeDecodeEmbedding(t *testing.T) {
	vec := []float32{0, 1.5, -2.25, 3.0e-8}
	got := decodeEmbedding(encodeEmbedding(vec))
	if len(got) != len(vec) {
		t.Fatalf("len = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("got[%d] = %g, want %g", i, got[i], vec[i])
		}
	}
	if decodeEmbedding(nil) != nil {
		t.Error("decode(nil) should be nil")
	}
	if encodeEmbedding(nil) != nil {
		t.Error("encode(nil) should be nil")
	}
}
