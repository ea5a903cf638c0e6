package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/haasonsaas/cortex/pkg/models"
)

// Response strategies. Selection combines detected query intent with the
// learner's adapted weights; "balanced" is the fallback when no intent
// markers match.
const (
	StrategyDefinition  = "definition"
	StrategyProcedural  = "procedural"
	StrategyCausal      = "causal"
	StrategyComparative = "comparative"
	StrategyEnumerative = "enumerative"
	StrategyCreative    = "creative"
	StrategyBalanced    = "balanced"
)

// allStrategies in deterministic order for tie-breaking.
var allStrategies = []string{
	StrategyDefinition,
	StrategyProcedural,
	StrategyCausal,
	StrategyComparative,
	StrategyEnumerative,
	StrategyCreative,
	StrategyBalanced,
}

// synthesis is the Synthesizing stage's output.
type synthesis struct {
	Strategy     string
	Primary      string
	Alternatives []string
	Creativity   float64
	Confidence   float64
}

// runSynthesize picks a response strategy and composes the primary answer
// plus up to two alternatives from other strategies.
func (p *Processor) runSynthesize(_ context.Context, run *pipelineRun) error {
	ranked := p.rankStrategies(run.req.Query)

	syn := &synthesis{Strategy: ranked[0]}
	syn.Primary = composeResponse(ranked[0], run.req.Query, run.extraction, run.analysis)
	for _, alt := range ranked[1:3] {
		syn.Alternatives = append(syn.Alternatives, composeResponse(alt, run.req.Query, run.extraction, run.analysis))
	}
	syn.Creativity = creativityScore(syn.Primary, syn.Alternatives)
	syn.Confidence = synthesisConfidence(run.extraction, run.analysis, syn.Primary)

	run.note("synthesized response with %s strategy (%d alternatives)",
		syn.Strategy, len(syn.Alternatives))
	run.synthesis = syn
	return nil
}

// rankStrategies orders all strategies by intent prior times learned
// weight, descending. The intent-matched strategy carries a strong prior
// so learned weights reorder only close calls.
func (p *Processor) rankStrategies(query string) []string {
	intent := detectIntent(query)

	var learned map[string]float64
	if p.learner != nil {
		learned = p.learner.StrategyWeights()
	}

	scores := make(map[string]float64, len(allStrategies))
	for _, s := range allStrategies {
		prior := 1.0
		if s == intent {
			prior = 2.0
		} else if s == StrategyBalanced {
			prior = 1.2
		}
		weight := 1.0
		if w, ok := learned[s]; ok && w > 0 {
			weight = w
		}
		scores[s] = prior * weight
	}

	ranked := append([]string(nil), allStrategies...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})
	return ranked
}

var intentMarkers = []struct {
	strategy string
	markers  []string
}{
	{StrategyProcedural, []string{"how to", "how do", "how can", "steps", "procedure", "guide"}},
	{StrategyCausal, []string{"why", "cause", "reason", "because", "what happens if"}},
	{StrategyComparative, []string{"compare", "versus", " vs ", "difference between", "better"}},
	{StrategyEnumerative, []string{"list", "examples", "enumerate", "what are the", "which are"}},
	{StrategyCreative, []string{"imagine", "design", "invent", "brainstorm", "creative"}},
	{StrategyDefinition, []string{"what is", "what's", "define", "meaning of", "definition"}},
}

func detectIntent(query string) string {
	lower := strings.ToLower(query)
	for _, im := range intentMarkers {
		for _, marker := range im.markers {
			if strings.Contains(lower, marker) {
				return im.strategy
			}
		}
	}
	return StrategyBalanced
}

// composeResponse renders the evidence through one strategy's frame. With
// no evidence at all it produces an honest no-knowledge answer.
func composeResponse(strategy, query string, ex *extraction, an *analysis) string {
	if strings.TrimSpace(ex.MergedContent) == "" {
		return fmt.Sprintf("No stored knowledge matches %q yet. Provide sources or store related content first.", query)
	}

	summary := summarize(ex.MergedContent, 3)

	switch strategy {
	case StrategyDefinition:
		lead := firstSentence(ex.MergedContent)
		return lead + defSuffix(an)
	case StrategyProcedural:
		return "The process unfolds as follows. " + numberSentences(ex.MergedContent, 5)
	case StrategyCausal:
		var b strings.Builder
		b.WriteString(summary)
		for _, rel := range an.Relations {
			if rel.Kind == models.RelationCausal {
				b.WriteString(fmt.Sprintf(" %s leads to %s.", rel.Left, rel.Right))
			}
		}
		return b.String()
	case StrategyComparative:
		if len(an.Concepts) >= 2 {
			return fmt.Sprintf("Contrasting %s with %s: %s", an.Concepts[0], an.Concepts[1], summary)
		}
		return summary
	case StrategyEnumerative:
		var b strings.Builder
		b.WriteString("Key points:")
		for i, s := range splitSentences(summary) {
			b.WriteString(fmt.Sprintf(" (%d) %s.", i+1, s))
		}
		return b.String()
	case StrategyCreative:
		base := summarize(ex.MergedContent, 2)
		if len(an.Themes) > 0 {
			return fmt.Sprintf("Viewed through the lens of %s: %s", an.Themes[0], base)
		}
		return "Consider this from a fresh angle: " + base
	default:
		return summary
	}
}

func defSuffix(an *analysis) string {
	if len(an.Concepts) == 0 {
		return ""
	}
	n := min(len(an.Concepts), 3)
	return " Closely related concepts: " + strings.Join(an.Concepts[:n], ", ") + "."
}

// summarize keeps the first n sentences.
func summarize(text string, n int) string {
	sentences := splitSentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return strings.Join(sentences, ". ") + "."
}

func firstSentence(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[0] + "."
}

func numberSentences(text string, limit int) string {
	sentences := splitSentences(text)
	if len(sentences) > limit {
		sentences = sentences[:limit]
	}
	var b strings.Builder
	for i, s := range sentences {
		b.WriteString(fmt.Sprintf("Step %d: %s. ", i+1, s))
	}
	return strings.TrimSpace(b.String())
}

// creativityScore measures the primary's novelty as one minus its maximum
// token overlap with any alternative.
func creativityScore(primary string, alternatives []string) float64 {
	if len(alternatives) == 0 {
		return 0.5
	}
	primarySet := tokenSet(primary)
	maxOverlap := 0.0
	for _, alt := range alternatives {
		if o := jaccard(primarySet, tokenSet(alt)); o > maxOverlap {
			maxOverlap = o
		}
	}
	return 1.0 - maxOverlap
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(w, ".,;:!?()")] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// synthesisConfidence blends evidence volume, context richness, and a
// response-shape proxy.
func synthesisConfidence(ex *extraction, an *analysis, response string) float64 {
	sources := float64(len(ex.Sources)) * 0.1
	if sources > 0.3 {
		sources = 0.3
	}
	length := float64(len(response)) / 800.0
	if length > 0.2 {
		length = 0.2
	}
	coherence := 0.1
	if len(splitSentences(response)) >= 2 {
		coherence = 0.2
	}
	score := sources + 0.3*ex.Confidence + 0.2*an.Context + length + coherence
	if score > 1 {
		score = 1
	}
	return score
}
