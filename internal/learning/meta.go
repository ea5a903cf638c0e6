package learning

import (
	"fmt"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

// Weight bounds keep a single bad stretch from zeroing a strategy out and
// a lucky one from monopolizing selection.
const (
	minStrategyWeight = 0.25
	maxStrategyWeight = 2.0
)

// metaOptimizeLocked mines the training buffer for temporal, contextual,
// and performance patterns, then re-derives strategy weights from observed
// effectiveness. Caller holds mu.
func (e *Engine) metaOptimizeLocked() {
	e.mineTemporalPatternsLocked()
	e.mineContextualPatternsLocked()
	e.minePerformancePatternsLocked()
	e.rankStrategiesLocked()

	for _, o := range e.objectives {
		o.Progress = append(o.Progress, o.CurrentValue)
		if len(o.Progress) > 100 {
			o.Progress = o.Progress[1:]
		}
	}

	e.logger.Debug("meta-optimization complete",
		"patterns", len(e.patterns),
		"strategies", len(e.strategyWeights),
		"buffer", len(e.buffer),
	)
}

// mineTemporalPatternsLocked tracks success rate per hour of day.
func (e *Engine) mineTemporalPatternsLocked() {
	type bucket struct {
		total   int
		success int
	}
	hours := make(map[int]*bucket)
	for _, ex := range e.buffer {
		h := ex.Timestamp.Hour()
		b, ok := hours[h]
		if !ok {
			b = &bucket{}
			hours[h] = b
		}
		b.total++
		if ex.Feedback > 0 {
			b.success++
		}
	}
	for h, b := range hours {
		if b.total < 5 {
			continue
		}
		e.upsertPatternLocked(
			fmt.Sprintf("temporal-hour-%02d", h),
			models.PatternTemporal,
			map[string]any{"hour": h},
			float64(b.success)/float64(b.total),
			int64(b.total),
		)
	}
}

// mineContextualPatternsLocked correlates context keys with outcomes.
func (e *Engine) mineContextualPatternsLocked() {
	type bucket struct {
		total   int
		success int
	}
	keys := make(map[string]*bucket)
	for _, ex := range e.buffer {
		for key := range ex.Context {
			b, ok := keys[key]
			if !ok {
				b = &bucket{}
				keys[key] = b
			}
			b.total++
			if ex.Feedback > 0 {
				b.success++
			}
		}
	}
	for key, b := range keys {
		if b.total < 5 {
			continue
		}
		e.upsertPatternLocked(
			"contextual-"+key,
			models.PatternContextual,
			map[string]any{"context_key": key},
			float64(b.success)/float64(b.total),
			int64(b.total),
		)
	}
}

// minePerformancePatternsLocked records each strategy's observed outcome
// profile as a success or failure pattern.
func (e *Engine) minePerformancePatternsLocked() {
	for strategy, stat := range e.strategyStats {
		if stat.total < 3 {
			continue
		}
		rate := float64(stat.success) / float64(stat.total)
		kind := models.PatternSuccess
		if rate < 0.4 {
			kind = models.PatternFailure
		}
		e.upsertPatternLocked(
			"performance-"+strategy,
			kind,
			map[string]any{"strategy": strategy},
			rate,
			stat.total,
		)
	}
}

func (e *Engine) upsertPatternLocked(id string, kind models.PatternKind, conditions map[string]any, rate float64, usage int64) {
	p, ok := e.patterns[id]
	if !ok {
		p = &models.NeuralPattern{ID: id, Kind: kind, Conditions: conditions}
		e.patterns[id] = p
	}
	p.Kind = kind
	p.SuccessRate = rate
	p.UsageCount = usage
	p.LastUsed = latestBufferTimestamp(e.buffer)
}

// rankStrategiesLocked converts per-strategy mean outcome into weight
// multipliers consumed by the pipeline's strategy selection. A strategy at
// the neutral outcome keeps weight 1.0.
func (e *Engine) rankStrategiesLocked() {
	for strategy, stat := range e.strategyStats {
		if stat.total == 0 {
			continue
		}
		meanScore := stat.scoreSum / float64(stat.total)
		weight := 1.0 + meanScore
		if weight < minStrategyWeight {
			weight = minStrategyWeight
		}
		if weight > maxStrategyWeight {
			weight = maxStrategyWeight
		}
		e.strategyWeights[strategy] = weight
	}
}

func latestBufferTimestamp(buffer []*models.TrainingExample) time.Time {
	var latest time.Time
	for _, ex := range buffer {
		if ex.Timestamp.After(latest) {
			latest = ex.Timestamp
		}
	}
	return latest
}
