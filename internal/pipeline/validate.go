package pipeline

import (
	"context"
	"strings"
)

// Validation weights. Accuracy dominates, completeness matters least.
const (
	weightAccuracy     = 0.30
	weightConsistency  = 0.25
	weightReliability  = 0.20
	weightCoherence    = 0.15
	weightCompleteness = 0.10

	repairThreshold = 0.7
	repairBump      = 0.05
)

// validation is the Validating stage's output. Content may differ from the
// synthesized primary when mechanical repairs were applied.
type validation struct {
	Content      string
	Accuracy     float64
	Consistency  float64
	Reliability  float64
	Coherence    float64
	Completeness float64
	Confidence   float64
	Repaired     bool
}

// runValidate independently re-scores the synthesized response against the
// extracted evidence. Scores below the repair threshold trigger bounded
// mechanical repairs and a small confidence bump; synthesis is never
// re-run.
func (p *Processor) runValidate(_ context.Context, run *pipelineRun) error {
	response := run.synthesis.Primary
	evidence := run.extraction.MergedContent

	v := &validation{
		Content:      response,
		Accuracy:     scoreAccuracy(response, evidence),
		Consistency:  scoreConsistency(response),
		Reliability:  scoreReliability(run.extraction.SourceMethods),
		Coherence:    scoreCoherence(response),
		Completeness: scoreCompleteness(run.req.Query, response),
	}
	v.Confidence = weightAccuracy*v.Accuracy +
		weightConsistency*v.Consistency +
		weightReliability*v.Reliability +
		weightCoherence*v.Coherence +
		weightCompleteness*v.Completeness

	if v.Confidence < repairThreshold {
		repaired, changed := repairResponse(v.Content)
		if changed {
			v.Content = repaired
			v.Confidence += repairBump
			v.Repaired = true
			run.note("applied mechanical repairs to response")
		}
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}

	run.note("validated response: confidence %.2f (accuracy %.2f, consistency %.2f)",
		v.Confidence, v.Accuracy, v.Consistency)
	run.validation = v
	return nil
}

// scoreAccuracy checks each response sentence's keywords against the
// evidence text. No evidence means no verifiable claims, scored zero.
func scoreAccuracy(response, evidence string) float64 {
	if strings.TrimSpace(evidence) == "" {
		return 0.0
	}
	evidenceSet := tokenSet(evidence)

	sentences := splitSentences(response)
	if len(sentences) == 0 {
		return 0.0
	}
	supported := 0
	for _, sentence := range sentences {
		words := contentWords(sentence)
		if len(words) == 0 {
			continue
		}
		hits := 0
		for _, w := range words {
			if evidenceSet[w] {
				hits++
			}
		}
		if float64(hits)/float64(len(words)) >= 0.4 {
			supported++
		}
	}
	return float64(supported) / float64(len(sentences))
}

// contradictionPairs are word pairs whose co-occurrence across sentences
// suggests an internal contradiction.
var contradictionPairs = [][2]string{
	{"always", "never"},
	{"all", "none"},
	{"increase", "decrease"},
	{"impossible", "possible"},
	{"required", "optional"},
}

// scoreConsistency starts from a solid base and penalizes detected
// contradictions; argument connectives earn a small credit.
func scoreConsistency(response string) float64 {
	lower := strings.ToLower(response)
	score := 0.7
	for _, pair := range contradictionPairs {
		if strings.Contains(lower, pair[0]) && strings.Contains(lower, pair[1]) {
			score -= 0.2
		}
	}
	for _, connective := range []string{"therefore", "because", "consequently", "thus"} {
		if strings.Contains(lower, connective) {
			score += 0.1
			break
		}
	}
	return clampScore(score)
}

func scoreReliability(methods []string) float64 {
	if len(methods) == 0 {
		return 0.3
	}
	var total float64
	for _, m := range methods {
		total += methodQuality(m)
	}
	return clampScore(total / float64(len(methods)))
}

var transitionWords = map[string]bool{
	"additionally": true, "furthermore": true, "however": true,
	"therefore": true, "moreover": true, "consequently": true,
	"first": true, "next": true, "finally": true, "also": true,
}

// scoreCoherence checks sentence-to-sentence flow: explicit transitions or
// shared vocabulary between adjacent sentences.
func scoreCoherence(response string) float64 {
	sentences := splitSentences(response)
	if len(sentences) <= 1 {
		return 0.6
	}
	linked := 0
	for i := 1; i < len(sentences); i++ {
		fields := strings.Fields(strings.ToLower(sentences[i]))
		if len(fields) > 0 && transitionWords[strings.Trim(fields[0], ",")] {
			linked++
			continue
		}
		if sharesVocabulary(sentences[i-1], sentences[i]) {
			linked++
		}
	}
	return clampScore(0.4 + 0.6*float64(linked)/float64(len(sentences)-1))
}

func sharesVocabulary(a, b string) bool {
	setA := make(map[string]bool)
	for _, w := range contentWords(a) {
		setA[w] = true
	}
	for _, w := range contentWords(b) {
		if setA[w] {
			return true
		}
	}
	return false
}

// scoreCompleteness measures how many of the query's content words the
// response covers.
func scoreCompleteness(query, response string) float64 {
	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return 0.5
	}
	responseSet := tokenSet(response)
	covered := 0
	for _, w := range queryWords {
		if responseSet[w] {
			covered++
		}
	}
	return float64(covered) / float64(len(queryWords))
}

// repairResponse applies bounded mechanical fixes: splits run-on sentences
// at a mid-point comma and inserts a transition between abrupt sentences.
// Returns the repaired text and whether anything changed.
func repairResponse(response string) (string, bool) {
	sentences := splitSentences(response)
	if len(sentences) == 0 {
		return response, false
	}

	changed := false
	var out []string
	for i, sentence := range sentences {
		if len(strings.Fields(sentence)) > 30 {
			if split, ok := splitAtComma(sentence); ok {
				out = append(out, split...)
				changed = true
				continue
			}
		}
		if i > 0 && !startsWithTransition(sentence) && !sharesVocabulary(sentences[i-1], sentence) {
			sentence = "Additionally, " + lowerFirst(sentence)
			changed = true
		}
		out = append(out, sentence)
	}
	if !changed {
		return response, false
	}
	return strings.Join(out, ". ") + ".", true
}

func splitAtComma(sentence string) ([]string, bool) {
	idx := strings.Index(sentence[len(sentence)/3:], ", ")
	if idx < 0 {
		return nil, false
	}
	cut := len(sentence)/3 + idx
	left := strings.TrimSpace(sentence[:cut])
	right := strings.TrimSpace(sentence[cut+1:])
	if left == "" || right == "" {
		return nil, false
	}
	return []string{left, upperFirst(right)}, true
}

func startsWithTransition(sentence string) bool {
	fields := strings.Fields(strings.ToLower(sentence))
	return len(fields) > 0 && transitionWords[strings.Trim(fields[0], ",")]
}

func contentWords(text string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]\"'")
		if len(w) >= 4 && !stopwords[w] {
			words = append(words, w)
		}
	}
	return words
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
