package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Fallback is a deterministic statistical vectorizer. It hashes character
// trigrams and word unigrams into a fixed-dimension vector, mixes in a few
// global text statistics, and L2-normalizes the result. The same text always
// produces the same vector, so the store remains functional (and testable)
// without a live embedding provider.
type Fallback struct {
	dimension int
}

var _ Provider = (*Fallback)(nil)

// NewFallback creates a fallback vectorizer with the given dimension.
// A non-positive dimension defaults to 256.
func NewFallback(dimension int) *Fallback {
	if dimension <= 0 {
		dimension = 256
	}
	return &Fallback{dimension: dimension}
}

// Name returns the provider name.
func (f *Fallback) Name() string { return "fallback" }

// Dimension returns the configured vector dimension.
func (f *Fallback) Dimension() int { return f.dimension }

// MaxBatchSize returns the batch limit. The vectorizer is pure CPU work, so
// the limit is generous.
func (f *Fallback) MaxBatchSize() int { return 1024 }

// Embed vectorizes a single text.
func (f *Fallback) Embed(_ context.Context, text string) ([]float32, error) {
	return f.vectorize(text), nil
}

// EmbedBatch vectorizes multiple texts.
func (f *Fallback) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorize(t)
	}
	return out, nil
}

func (f *Fallback) vectorize(text string) []float32 {
	vec := make([]float64, f.dimension)
	lower := strings.ToLower(text)

	// Character trigrams capture sub-word structure.
	runes := []rune(lower)
	for i := 0; i+3 <= len(runes); i++ {
		bucket, sign := hashFeature(string(runes[i : i+3]))
		vec[bucket%f.dimension] += sign
	}

	// Word unigrams capture vocabulary. Weighted higher than trigrams so
	// shared words dominate similarity.
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		bucket, sign := hashFeature("w:" + w)
		vec[bucket%f.dimension] += 3 * sign
	}

	// Global statistics occupy the first few buckets so even degenerate
	// texts produce a nonzero vector.
	if f.dimension >= 4 {
		vec[0] += math.Log1p(float64(len(runes)))
		vec[1] += math.Log1p(float64(len(words)))
		vec[2] += avgWordLength(words)
		vec[3] += float64(strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?"))
	}

	return normalize(vec)
}

func hashFeature(s string) (int, float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	v := h.Sum32()
	sign := 1.0
	if v&1 == 1 {
		sign = -1.0
	}
	return int(v >> 1), sign
}

func avgWordLength(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	total := 0
	for _, w := range words {
		total += len(w)
	}
	return float64(total) / float64(len(words))
}

func normalize(vec []float64) []float32 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
