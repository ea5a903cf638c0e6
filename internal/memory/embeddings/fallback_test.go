package embeddings

import (
	"context"
	"math"
	"testing"
)

func TestFallback_Deterministic(t *testing.T) {
	f := NewFallback(128)
	a, err := f.Embed(context.Background(), "the refund policy allows returns within 30 days")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := f.Embed(context.Background(), "the refund policy allows returns within 30 days")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vector differs at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestFallback_Dimension(t *testing.T) {
	tests := []struct {
		name string
		dim  int
		want int
	}{
		{"explicit", 64, 64},
		{"default", 0, 256},
		{"negative", -5, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFallback(tt.dim)
			if f.Dimension() != tt.want {
				t.Errorf("Dimension() = %d, want %d", f.Dimension(), tt.want)
			}
			vec, err := f.Embed(context.Background(), "hello world")
			if err != nil {
				t.Fatalf("Embed: %v", err)
			}
			if len(vec) != tt.want {
				t.Errorf("len(vec) = %d, want %d", len(vec), tt.want)
			}
		})
	}
}

func TestFallback_Normalized(t *testing.T) {
	f := NewFallback(256)
	vec, err := f.Embed(context.Background(), "a moderately sized sentence about embeddings")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-5 {
		t.Errorf("vector norm = %f, want 1.0", math.Sqrt(norm))
	}
}

func TestFallback_SimilarTextsScoreHigher(t *testing.T) {
	f := NewFallback(256)
	ctx := context.Background()

	base, _ := f.Embed(ctx, "our refund policy allows returns within thirty days of purchase")
	near, _ := f.Embed(ctx, "the refund policy permits returns within thirty days after purchase")
	far, _ := f.Embed(ctx, "the quick brown fox jumps over the lazy dog")

	simNear := dot(base, near)
	simFar := dot(base, far)
	if simNear <= simFar {
		t.Errorf("near-duplicate similarity %f should exceed unrelated similarity %f", simNear, simFar)
	}
}

func TestFallback_EmptyText(t *testing.T) {
	f := NewFallback(32)
	vec, err := f.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed empty: %v", err)
	}
	if len(vec) != 32 {
		t.Errorf("len(vec) = %d, want 32", len(vec))
	}
}

func TestFallback_EmbedBatch(t *testing.T) {
	f := NewFallback(64)
	vecs, err := f.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("len(vecs) = %d, want 3", len(vecs))
	}
	single, _ := f.Embed(context.Background(), "two")
	for i := range single {
		if vecs[1][i] != single[i] {
			t.Fatal("batch embedding differs from single embedding")
		}
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
