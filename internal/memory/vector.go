package memory

import (
	"math"
	"time"
)

// cosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for mismatched or zero-norm vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// recencyDecay maps the time since last access to (0,1], halving every
// halfLife. Never-accessed nodes decay from their creation time.
func recencyDecay(lastAccessed, createdAt, now time.Time, halfLife time.Duration) float64 {
	ref := lastAccessed
	if ref.IsZero() {
		ref = createdAt
	}
	if ref.IsZero() || halfLife <= 0 {
		return 1
	}
	age := now.Sub(ref)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// blendScore combines raw cosine similarity with node importance and
// recency into the ranking score used by semantic search.
func blendScore(similarity, importance, recency float64) float64 {
	return 0.6*similarity + 0.3*importance + 0.1*recency
}
