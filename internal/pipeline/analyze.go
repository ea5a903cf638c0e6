package pipeline

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/haasonsaas/cortex/pkg/models"
)

// analysis is the Analyzing stage's output: deterministic text features
// derived from the merged extraction content.
type analysis struct {
	Entities  []string
	Concepts  []string
	Themes    []string
	Relations []analyzedRelation
	Chain     []string
	Context   float64
}

// analyzedRelation is a typed relation found by pattern matching over the
// merged text. Left and Right are the clause fragments around the marker.
type analyzedRelation struct {
	Kind  models.RelationType
	Left  string
	Right string
}

var entityPattern = regexp.MustCompile(`\b[A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)*\b`)

// relationMarkers maps marker phrases to the relation type they signal.
// Longer markers are matched first so "leads to" wins over "to".
var relationMarkers = []struct {
	marker string
	kind   models.RelationType
}{
	{"because of", models.RelationCausal},
	{"because", models.RelationCausal},
	{"leads to", models.RelationCausal},
	{"results in", models.RelationCausal},
	{"caused by", models.RelationCausal},
	{"causes", models.RelationCausal},
	{"due to", models.RelationCausal},
	{"followed by", models.RelationTemporal},
	{"before", models.RelationTemporal},
	{"after", models.RelationTemporal},
	{"until", models.RelationTemporal},
	{"part of", models.RelationHierarchical},
	{"consists of", models.RelationHierarchical},
	{"belongs to", models.RelationHierarchical},
	{"contains", models.RelationHierarchical},
	{"includes", models.RelationHierarchical},
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "are": true, "was": true, "were": true,
	"have": true, "has": true, "had": true, "not": true, "but": true,
	"its": true, "their": true, "they": true, "them": true, "then": true,
	"when": true, "what": true, "which": true, "will": true, "would": true,
	"there": true, "these": true, "those": true, "into": true, "also": true,
	"been": true, "being": true, "more": true, "most": true, "some": true,
	"such": true, "than": true, "very": true, "can": true, "may": true,
	"about": true, "over": true, "each": true, "other": true, "only": true,
}

// runAnalyze derives entities, concepts, themes, and typed relations from
// the merged content. Everything here is pattern-based and deterministic;
// the stage cannot fail on empty input, it just produces an empty analysis
// with a low context score.
func (p *Processor) runAnalyze(_ context.Context, run *pipelineRun) error {
	text := run.extraction.MergedContent

	an := &analysis{
		Entities:  extractEntities(text),
		Concepts:  extractConcepts(text, 8),
		Themes:    detectThemes(text),
		Relations: extractRelations(text),
	}

	an.Chain = buildReasoningChain(run.req.Query, an)
	an.Context = contextScore(text, an, run.extraction.Confidence)

	run.note("analyzed content: %d entities, %d concepts, %d relations",
		len(an.Entities), len(an.Concepts), len(an.Relations))
	run.trace = append(run.trace, an.Chain...)
	run.analysis = an
	return nil
}

// extractEntities finds runs of capitalized words, skipping sentence-initial
// single words that are ordinary vocabulary once lowercased.
func extractEntities(text string) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, match := range entityPattern.FindAllString(text, -1) {
		if len(match) < 3 || stopwords[strings.ToLower(match)] {
			continue
		}
		if !seen[match] {
			seen[match] = true
			entities = append(entities, match)
		}
	}
	sort.Strings(entities)
	if len(entities) > 20 {
		entities = entities[:20]
	}
	return entities
}

// extractConcepts returns the most frequent non-stopword terms, ties broken
// alphabetically for determinism.
func extractConcepts(text string, limit int) []string {
	counts := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,;:!?()[]\"'")
		if len(word) < 4 || stopwords[word] {
			continue
		}
		counts[word]++
	}

	concepts := make([]string, 0, len(counts))
	for word := range counts {
		concepts = append(concepts, word)
	}
	sort.Slice(concepts, func(i, j int) bool {
		if counts[concepts[i]] != counts[concepts[j]] {
			return counts[concepts[i]] > counts[concepts[j]]
		}
		return concepts[i] < concepts[j]
	})
	if len(concepts) > limit {
		concepts = concepts[:limit]
	}
	return concepts
}

var themeIndicators = []struct {
	theme   string
	markers []string
}{
	{"process", []string{"step", "first", "next", "finally", "procedure", "process"}},
	{"causality", []string{"because", "cause", "effect", "result", "therefore"}},
	{"comparison", []string{"compared", "versus", "whereas", "unlike", "similar", "difference"}},
	{"definition", []string{"is defined", "refers to", "means", "is a", "known as"}},
	{"structure", []string{"consists", "contains", "component", "part of", "composed"}},
	{"temporal", []string{"before", "after", "during", "timeline", "history"}},
}

func detectThemes(text string) []string {
	lower := strings.ToLower(text)
	var themes []string
	for _, ti := range themeIndicators {
		for _, marker := range ti.markers {
			if strings.Contains(lower, marker) {
				themes = append(themes, ti.theme)
				break
			}
		}
	}
	return themes
}

// extractRelations scans each sentence for relation markers and captures
// the fragments on either side. One relation per sentence, first marker
// wins.
func extractRelations(text string) []analyzedRelation {
	var relations []analyzedRelation
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, rm := range relationMarkers {
			idx := strings.Index(lower, rm.marker)
			if idx < 0 {
				continue
			}
			left := strings.TrimSpace(sentence[:idx])
			right := strings.TrimSpace(sentence[idx+len(rm.marker):])
			if left == "" || right == "" {
				continue
			}
			relations = append(relations, analyzedRelation{
				Kind:  rm.kind,
				Left:  clip(left, 80),
				Right: clip(right, 80),
			})
			break
		}
	}
	return relations
}

func buildReasoningChain(query string, an *analysis) []string {
	chain := []string{
		"identified query intent from: " + clip(query, 60),
	}
	if len(an.Concepts) > 0 {
		chain = append(chain, "key concepts: "+strings.Join(an.Concepts, ", "))
	}
	if len(an.Themes) > 0 {
		chain = append(chain, "dominant themes: "+strings.Join(an.Themes, ", "))
	}
	for _, rel := range an.Relations {
		chain = append(chain, string(rel.Kind)+" relation: "+rel.Left+" -> "+rel.Right)
	}
	return chain
}

// contextScore reflects how much analyzable structure the evidence had.
func contextScore(text string, an *analysis, sourceConfidence float64) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.0
	}
	richness := 0.0
	richness += 0.1 * float64(min(len(an.Entities), 5))
	richness += 0.05 * float64(min(len(an.Concepts), 5))
	richness += 0.1 * float64(min(len(an.Relations), 3))
	length := float64(len(text)) / 2000.0
	if length > 0.3 {
		length = 0.3
	}
	score := 0.3*sourceConfidence + richness + length
	if score > 1 {
		score = 1
	}
	return score
}

var sentenceSplit = regexp.MustCompile(`[.!?]+\s+|[.!?]+$`)

func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	var sentences []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			sentences = append(sentences, part)
		}
	}
	return sentences
}

// clip truncates to at most n runes, never splitting a multi-byte rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
