// Package sqlite provides a durable memory backend using SQLite via the
// pure-Go modernc driver. Embeddings are stored as little-endian float32
// blobs; metadata and tags as JSON.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/haasonsaas/cortex/internal/memory/backend"
	"github.com/haasonsaas/cortex/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Backend implements backend.Backend on a SQLite database.
type Backend struct {
	db *sql.DB
}

var _ backend.Backend = (*Backend)(nil)

// Config contains configuration for the SQLite backend.
type Config struct {
	Path string // Path to database file; empty means :memory:
}

// New opens the database and creates the schema if needed.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b := &Backend{db: db}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding BLOB,
			metadata TEXT,
			tags TEXT,
			importance REAL NOT NULL DEFAULT 0,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed DATETIME,
			created_at DATETIME NOT NULL,
			relationship_ids TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create nodes table: %w", err)
	}

	_, err = b.db.Exec(`
		CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			type TEXT NOT NULL,
			strength REAL NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create relationships table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_nodes_created ON nodes(created_at)",
		"CREATE INDEX IF NOT EXISTS idx_rel_source ON relationships(source_id)",
		"CREATE INDEX IF NOT EXISTS idx_rel_target ON relationships(target_id)",
	}
	for _, idx := range indexes {
		if _, err := b.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// PutNode inserts or updates a node.
func (b *Backend) PutNode(ctx context.Context, node *models.MemoryNode) error {
	return b.PutNodes(ctx, []*models.MemoryNode{node})
}

// PutNodes inserts or updates a batch of nodes in one transaction.
func (b *Backend) PutNodes(ctx context.Context, nodes []*models.MemoryNode) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes
			(id, content, embedding, metadata, tags, importance, access_count, last_accessed, created_at, relationship_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, node := range nodes {
		metadata, err := json.Marshal(node.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		tags, err := json.Marshal(node.Tags)
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		relIDs, err := json.Marshal(node.RelationshipIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal relationship ids: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			node.ID,
			node.Content,
			encodeEmbedding(node.Embedding),
			string(metadata),
			string(tags),
			node.ImportanceScore,
			node.AccessCount,
			nullTime(node.LastAccessed),
			node.CreatedAt,
			string(relIDs),
		)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteNode removes a node by id.
func (b *Backend) DeleteNode(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete node %s: %w", id, err)
	}
	return nil
}

// PutRelationship inserts or updates a relationship.
func (b *Backend) PutRelationship(ctx context.Context, rel *models.MemoryRelationship) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO relationships (id, source_id, target_id, type, strength, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rel.ID, rel.SourceID, rel.TargetID, string(rel.Type), rel.Strength, rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert relationship %s: %w", rel.ID, err)
	}
	return nil
}

// DeleteRelationship removes a relationship by id.
func (b *Backend) DeleteRelationship(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM relationships WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete relationship %s: %w", id, err)
	}
	return nil
}

// LoadAll returns every persisted node and relationship.
func (b *Backend) LoadAll(ctx context.Context) ([]*models.MemoryNode, []*models.MemoryRelationship, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, content, embedding, metadata, tags, importance, access_count, last_accessed, created_at, relationship_ids
		FROM nodes
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*models.MemoryNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("node rows: %w", err)
	}

	relRows, err := b.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, strength, created_at FROM relationships
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer relRows.Close()

	var rels []*models.MemoryRelationship
	for relRows.Next() {
		var rel models.MemoryRelationship
		var relType string
		if err := relRows.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &relType, &rel.Strength, &rel.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rel.Type = models.RelationType(relType)
		rels = append(rels, &rel)
	}
	if err := relRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("relationship rows: %w", err)
	}

	return nodes, rels, nil
}

// Compact optimizes the database.
func (b *Backend) Compact(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases resources.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Helper functions

func scanNode(rows *sql.Rows) (*models.MemoryNode, error) {
	var node models.MemoryNode
	var embeddingBlob []byte
	var metadataJSON, tagsJSON, relIDsJSON string
	var lastAccessed sql.NullTime

	err := rows.Scan(
		&node.ID,
		&node.Content,
		&embeddingBlob,
		&metadataJSON,
		&tagsJSON,
		&node.ImportanceScore,
		&node.AccessCount,
		&lastAccessed,
		&node.CreatedAt,
		&relIDsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan node: %w", err)
	}

	node.Embedding = decodeEmbedding(embeddingBlob)
	node.LastAccessed = lastAccessed.Time
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &node.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &node.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if relIDsJSON != "" {
		if err := json.Unmarshal([]byte(relIDsJSON), &node.RelationshipIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relationship ids: %w", err)
		}
	}
	return &node, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
