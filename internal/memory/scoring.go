package memory

import (
	"strings"
)

// Scorer maps text (plus optional metadata) to a score in [0,1]. Importance
// scoring is pluggable so deployments can substitute their own heuristics
// without touching the store contracts.
type Scorer interface {
	Score(text string, metadata map[string]any) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(text string, metadata map[string]any) float64

// Score calls the underlying function.
func (f ScorerFunc) Score(text string, metadata map[string]any) float64 {
	return f(text, metadata)
}

// HeuristicScorer is the default importance scorer. It rewards length up to
// a saturation point, structural markers (lists, headers, multiple
// sentences), and metadata that marks curated content.
type HeuristicScorer struct{}

var _ Scorer = (*HeuristicScorer)(nil)

// Score computes the importance of the given text in [0,1].
func (HeuristicScorer) Score(text string, metadata map[string]any) float64 {
	score := 0.3 // baseline for any stored content

	// Length: saturates around 800 characters.
	n := len(text)
	switch {
	case n >= 800:
		score += 0.25
	case n >= 200:
		score += 0.15
	case n >= 50:
		score += 0.08
	}

	// Structure: sentences and list/heading markers.
	sentences := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	if sentences >= 3 {
		score += 0.1
	}
	if strings.Contains(text, "\n-") || strings.Contains(text, "\n*") || strings.Contains(text, "\n#") {
		score += 0.1
	}

	// Metadata: curated or corrective content outranks ambient captures.
	if src, ok := metadata["source"].(string); ok {
		switch src {
		case "correction", "feedback":
			score += 0.2
		case "document", "curated":
			score += 0.15
		case "web":
			score += 0.05
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}
