package backend

import (
	"context"
	"sync"

	"github.com/haasonsaas/cortex/pkg/models"
)

// Memory is an in-process backend keeping everything in maps. Used by tests
// and by deployments that accept losing state on restart.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]*models.MemoryNode
	rels  map[string]*models.MemoryRelationship
}

var _ Backend = (*Memory)(nil)

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]*models.MemoryNode),
		rels:  make(map[string]*models.MemoryRelationship),
	}
}

// PutNode stores a copy of the node.
func (m *Memory) PutNode(_ context.Context, node *models.MemoryNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = node.Clone()
	return nil
}

// PutNodes stores copies of all nodes.
func (m *Memory) PutNodes(_ context.Context, nodes []*models.MemoryNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range nodes {
		m.nodes[n.ID] = n.Clone()
	}
	return nil
}

// DeleteNode removes a node by id.
func (m *Memory) DeleteNode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
	return nil
}

// PutRelationship stores a copy of the relationship.
func (m *Memory) PutRelationship(_ context.Context, rel *models.MemoryRelationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *rel
	m.rels[rel.ID] = &r
	return nil
}

// DeleteRelationship removes a relationship by id.
func (m *Memory) DeleteRelationship(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rels, id)
	return nil
}

// LoadAll returns copies of every node and relationship.
func (m *Memory) LoadAll(_ context.Context) ([]*models.MemoryNode, []*models.MemoryRelationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	nodes := make([]*models.MemoryNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n.Clone())
	}
	rels := make([]*models.MemoryRelationship, 0, len(m.rels))
	for _, r := range m.rels {
		c := *r
		rels = append(rels, &c)
	}
	return nodes, rels, nil
}

// Compact is a no-op for the in-process backend.
func (m *Memory) Compact(_ context.Context) error { return nil }

// Close is a no-op for the in-process backend.
func (m *Memory) Close() error { return nil }
