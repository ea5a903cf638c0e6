package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/cortex/pkg/models"
)

// addRelationshipLocked creates an edge and updates both endpoints'
// back-references. Caller holds the write lock and has verified both
// endpoints exist. Duplicate edges (same endpoints and type, either
// direction) are skipped.
func (s *Store) addRelationshipLocked(ctx context.Context, sourceID, targetID string, relType models.RelationType, strength float64) *models.MemoryRelationship {
	if sourceID == targetID {
		return nil
	}
	if s.findEdgeLocked(sourceID, targetID, relType) != nil {
		return nil
	}

	rel := &models.MemoryRelationship{
		ID:        uuid.New().String(),
		SourceID:  sourceID,
		TargetID:  targetID,
		Type:      relType,
		Strength:  clamp01(strength),
		CreatedAt: time.Now(),
	}
	s.rels[rel.ID] = rel

	src := s.nodes[sourceID]
	dst := s.nodes[targetID]
	src.RelationshipIDs = append(src.RelationshipIDs, rel.ID)
	dst.RelationshipIDs = append(dst.RelationshipIDs, rel.ID)

	if err := s.backend.PutRelationship(ctx, rel); err != nil {
		s.logger.Warn("persist relationship failed", "relationship", rel.ID, "error", err)
	}
	if err := s.backend.PutNodes(ctx, []*models.MemoryNode{src, dst}); err != nil {
		s.logger.Warn("persist back-references failed", "error", err)
	}
	return rel
}

// findEdgeLocked returns an existing edge of the given type between the two
// nodes in either direction, or nil.
func (s *Store) findEdgeLocked(a, b string, relType models.RelationType) *models.MemoryRelationship {
	node, ok := s.nodes[a]
	if !ok {
		return nil
	}
	for _, relID := range node.RelationshipIDs {
		rel, ok := s.rels[relID]
		if !ok {
			continue
		}
		if rel.Type == relType && rel.Touches(b) {
			return rel
		}
	}
	return nil
}

// removeRelationshipLocked deletes an edge and removes its id from both
// endpoints' back-references, atomically with respect to the write lock.
func (s *Store) removeRelationshipLocked(ctx context.Context, rel *models.MemoryRelationship) {
	delete(s.rels, rel.ID)
	for _, endpoint := range []string{rel.SourceID, rel.TargetID} {
		node, ok := s.nodes[endpoint]
		if !ok {
			continue
		}
		node.RelationshipIDs = removeString(node.RelationshipIDs, rel.ID)
		if err := s.backend.PutNode(ctx, node); err != nil {
			s.logger.Warn("persist back-reference removal failed", "node", node.ID, "error", err)
		}
	}
	if err := s.backend.DeleteRelationship(ctx, rel.ID); err != nil {
		s.logger.Warn("delete persisted relationship failed", "relationship", rel.ID, "error", err)
	}
}

// SearchGraph walks the relationship graph breadth-first from nodeID up to
// maxDepth hops. A nil or empty relTypes means all types. Results are
// ordered by edge strength plus node importance, descending, and carry the
// hop distance at which each node was first reached. Returned nodes have
// their access bookkeeping updated.
func (s *Store) SearchGraph(ctx context.Context, nodeID string, relTypes []models.RelationType, maxDepth int) ([]*models.GraphResult, error) {
	if maxDepth <= 0 {
		maxDepth = 2
	}
	typeSet := make(map[models.RelationType]bool, len(relTypes))
	for _, t := range relTypes {
		typeSet[t] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}

	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	var results []*models.GraphResult

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			node := s.nodes[id]
			for _, relID := range node.RelationshipIDs {
				rel, ok := s.rels[relID]
				if !ok {
					return nil, fmt.Errorf("%w: node %s references missing relationship %s", ErrCorruption, id, relID)
				}
				if len(typeSet) > 0 && !typeSet[rel.Type] {
					continue
				}
				otherID := rel.Other(id)
				if visited[otherID] {
					continue
				}
				other, ok := s.nodes[otherID]
				if !ok {
					return nil, fmt.Errorf("%w: relationship %s references missing node %s", ErrCorruption, rel.ID, otherID)
				}
				visited[otherID] = true
				next = append(next, otherID)

				relCopy := *rel
				s.touchLocked(ctx, other)
				results = append(results, &models.GraphResult{
					Node:         other.Clone(),
					Relationship: &relCopy,
					Distance:     depth,
				})
			}
		}
		frontier = next
	}

	sort.SliceStable(results, func(i, j int) bool {
		si := results[i].Relationship.Strength + results[i].Node.ImportanceScore
		sj := results[j].Relationship.Strength + results[j].Node.ImportanceScore
		return si > sj
	})
	return results, nil
}

// AdjustRelationship strengthens or weakens the association between two
// nodes by delta. A positive delta with no existing edge creates a
// co_occurrence edge; adjusting a missing edge downward is a no-op.
// Strength is clamped to [0,1]; edges driven to zero are removed.
func (s *Store) AdjustRelationship(ctx context.Context, sourceID, targetID string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[sourceID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	if _, ok := s.nodes[targetID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, targetID)
	}

	var rel *models.MemoryRelationship
	for _, t := range []models.RelationType{models.RelationSemantic, models.RelationCoOccurrence, models.RelationCausal, models.RelationTemporal, models.RelationHierarchical} {
		if rel = s.findEdgeLocked(sourceID, targetID, t); rel != nil {
			break
		}
	}

	if rel == nil {
		if delta > 0 {
			s.addRelationshipLocked(ctx, sourceID, targetID, models.RelationCoOccurrence, delta)
			s.generation.Add(1)
		}
		return nil
	}

	rel.Strength = clamp01(rel.Strength + delta)
	if rel.Strength == 0 {
		s.removeRelationshipLocked(ctx, rel)
	} else if err := s.backend.PutRelationship(ctx, rel); err != nil {
		s.logger.Warn("persist strength adjustment failed", "relationship", rel.ID, "error", err)
	}
	s.generation.Add(1)
	return nil
}

// PruneWeakRelationships deletes every edge with strength below
// minStrength, updating both endpoints' back-references atomically with
// each deletion. Returns the number of edges removed.
func (s *Store) PruneWeakRelationships(ctx context.Context, minStrength float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doomed []*models.MemoryRelationship
	for _, rel := range s.rels {
		if rel.Strength < minStrength {
			doomed = append(doomed, rel)
		}
	}
	for _, rel := range doomed {
		s.removeRelationshipLocked(ctx, rel)
	}
	if len(doomed) > 0 {
		s.generation.Add(1)
	}
	s.recordOp("prune", nil)
	return len(doomed), nil
}

// Relationships returns copies of all edges touching the node.
func (s *Store) Relationships(nodeID string) ([]*models.MemoryRelationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nodeID)
	}
	out := make([]*models.MemoryRelationship, 0, len(node.RelationshipIDs))
	for _, relID := range node.RelationshipIDs {
		if rel, ok := s.rels[relID]; ok {
			c := *rel
			out = append(out, &c)
		}
	}
	return out, nil
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
