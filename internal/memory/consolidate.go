package memory

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/haasonsaas/cortex/pkg/models"
)

// Consolidate merges near-duplicate nodes and creates co_occurrence edges
// between frequently co-accessed nodes. The write lock is held for the
// whole pass, so concurrent readers see either the pre- or post-merge
// state, never a half-merged node.
//
// For each pair with similarity >= MergeThreshold, the lower-importance
// node is merged into the higher-importance one: content concatenated,
// tags unioned, metadata unioned preferring the primary, and every edge of
// the losing node re-pointed at the survivor (dropped when it would
// duplicate an existing edge).
func (s *Store) Consolidate(ctx context.Context) (*models.ConsolidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &models.ConsolidationResult{}

	merged := true
	for merged {
		merged = false
		primary, secondary := s.findMergePairLocked()
		if primary == nil {
			break
		}
		s.mergeLocked(ctx, primary, secondary)
		result.Merged++
		merged = true
	}

	result.RelationshipsCreated = s.linkCoAccessedLocked(ctx)

	if result.Merged > 0 || result.RelationshipsCreated > 0 {
		s.generation.Add(1)
	}
	s.recordOp("consolidate", nil)
	return result, nil
}

// findMergePairLocked returns the first (primary, secondary) pair above the
// merge threshold, primary being the higher-importance node. Node ids are
// visited in sorted order so the pass is deterministic.
func (s *Store) findMergePairLocked() (*models.MemoryNode, *models.MemoryNode) {
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for i := 0; i < len(ids); i++ {
		a := s.nodes[ids[i]]
		for j := i + 1; j < len(ids); j++ {
			b := s.nodes[ids[j]]
			if cosineSimilarity(a.Embedding, b.Embedding) < s.cfg.MergeThreshold {
				continue
			}
			if a.ImportanceScore >= b.ImportanceScore {
				return a, b
			}
			return b, a
		}
	}
	return nil, nil
}

// mergeLocked folds secondary into primary and deletes secondary.
func (s *Store) mergeLocked(ctx context.Context, primary, secondary *models.MemoryNode) {
	// Content concatenation, skipping exact duplicates.
	if !strings.Contains(primary.Content, secondary.Content) {
		primary.Content = primary.Content + "\n" + secondary.Content
	}

	// Tag union.
	for _, tag := range secondary.Tags {
		if !primary.HasTag(tag) {
			primary.Tags = append(primary.Tags, tag)
		}
	}

	// Metadata union preferring the primary's values.
	if len(secondary.Metadata) > 0 && primary.Metadata == nil {
		primary.Metadata = make(map[string]any, len(secondary.Metadata))
	}
	for k, v := range secondary.Metadata {
		if _, exists := primary.Metadata[k]; !exists {
			primary.Metadata[k] = v
		}
	}

	// Bookkeeping carries over so consolidation doesn't reset hotness.
	primary.AccessCount += secondary.AccessCount
	if secondary.LastAccessed.After(primary.LastAccessed) {
		primary.LastAccessed = secondary.LastAccessed
	}

	// Merged embedding: importance-weighted average in the same vector
	// space, renormalized. Avoids a provider call under the lock.
	primary.Embedding = mergeEmbeddings(primary.Embedding, secondary.Embedding, primary.ImportanceScore, secondary.ImportanceScore)

	// Re-point every edge touching the secondary at the primary; drop
	// edges that would duplicate an existing (primary, X) edge or turn
	// into self-loops.
	for _, relID := range append([]string(nil), secondary.RelationshipIDs...) {
		rel, ok := s.rels[relID]
		if !ok {
			continue
		}
		other := rel.Other(secondary.ID)
		if other == primary.ID || s.findEdgeLocked(primary.ID, other, rel.Type) != nil {
			s.removeRelationshipLocked(ctx, rel)
			continue
		}
		if rel.SourceID == secondary.ID {
			rel.SourceID = primary.ID
		} else {
			rel.TargetID = primary.ID
		}
		primary.RelationshipIDs = append(primary.RelationshipIDs, rel.ID)
		if err := s.backend.PutRelationship(ctx, rel); err != nil {
			s.logger.Warn("persist re-pointed relationship failed", "relationship", rel.ID, "error", err)
		}
	}

	delete(s.nodes, secondary.ID)
	if err := s.backend.DeleteNode(ctx, secondary.ID); err != nil {
		s.logger.Warn("delete merged node failed", "node", secondary.ID, "error", err)
	}
	if err := s.backend.PutNode(ctx, primary); err != nil {
		s.logger.Warn("persist merged node failed", "node", primary.ID, "error", err)
	}

	s.logger.Debug("consolidated nodes", "primary", primary.ID, "merged", secondary.ID)
}

// linkCoAccessedLocked creates co_occurrence edges between hot nodes whose
// last accesses fall within the co-access window of each other. Hot means
// an access count above the store median. The candidate set is capped so
// the pass stays cheap on large stores.
func (s *Store) linkCoAccessedLocked(ctx context.Context) int {
	const maxCandidates = 20

	counts := make([]int64, 0, len(s.nodes))
	for _, n := range s.nodes {
		counts = append(counts, n.AccessCount)
	}
	if len(counts) < 2 {
		return 0
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
	median := counts[len(counts)/2]
	if median == 0 {
		median = 1
	}

	var hot []*models.MemoryNode
	for _, n := range s.nodes {
		if n.AccessCount >= median && !n.LastAccessed.IsZero() {
			hot = append(hot, n)
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].AccessCount != hot[j].AccessCount {
			return hot[i].AccessCount > hot[j].AccessCount
		}
		return hot[i].ID < hot[j].ID
	})
	if len(hot) > maxCandidates {
		hot = hot[:maxCandidates]
	}

	created := 0
	for i := 0; i < len(hot); i++ {
		for j := i + 1; j < len(hot); j++ {
			gap := hot[i].LastAccessed.Sub(hot[j].LastAccessed)
			if gap < 0 {
				gap = -gap
			}
			if gap > s.cfg.CoAccessWindow {
				continue
			}
			if s.findEdgeLocked(hot[i].ID, hot[j].ID, models.RelationCoOccurrence) != nil {
				continue
			}
			if rel := s.addRelationshipLocked(ctx, hot[i].ID, hot[j].ID, models.RelationCoOccurrence, coAccessStrength(hot[i], hot[j])); rel != nil {
				created++
			}
		}
	}
	return created
}

func coAccessStrength(a, b *models.MemoryNode) float64 {
	lesser := a.AccessCount
	if b.AccessCount < lesser {
		lesser = b.AccessCount
	}
	return clamp01(0.3 + 0.1*math.Log1p(float64(lesser)))
}

func mergeEmbeddings(a, b []float32, wa, wb float64) []float32 {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 || len(a) != len(b) {
		return a
	}
	if wa <= 0 && wb <= 0 {
		wa, wb = 1, 1
	}
	out := make([]float64, len(a))
	var norm float64
	for i := range a {
		out[i] = wa*float64(a[i]) + wb*float64(b[i])
		norm += out[i] * out[i]
	}
	norm = math.Sqrt(norm)
	merged := make([]float32, len(a))
	if norm == 0 {
		copy(merged, a)
		return merged
	}
	for i, v := range out {
		merged[i] = float32(v / norm)
	}
	return merged
}
