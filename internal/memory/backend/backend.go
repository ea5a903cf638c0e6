// Package backend provides durable storage interfaces and implementations
// for the memory store. The in-memory similarity index is rebuilt from a
// backend's LoadAll on process restart.
package backend

import (
	"context"

	"github.com/haasonsaas/cortex/pkg/models"
)

// Backend defines the interface for durable node/relationship storage.
// Embeddings are persisted as opaque binary blobs.
type Backend interface {
	// PutNode inserts or updates a node.
	PutNode(ctx context.Context, node *models.MemoryNode) error

	// PutNodes inserts or updates a batch of nodes in one transaction.
	PutNodes(ctx context.Context, nodes []*models.MemoryNode) error

	// DeleteNode removes a node by id.
	DeleteNode(ctx context.Context, id string) error

	// PutRelationship inserts or updates a relationship.
	PutRelationship(ctx context.Context, rel *models.MemoryRelationship) error

	// DeleteRelationship removes a relationship by id.
	DeleteRelationship(ctx context.Context, id string) error

	// LoadAll returns every persisted node and relationship.
	LoadAll(ctx context.Context) ([]*models.MemoryNode, []*models.MemoryRelationship, error)

	// Compact optimizes the storage (vacuuming, reindexing, etc.).
	Compact(ctx context.Context) error

	// Close releases resources.
	Close() error
}
