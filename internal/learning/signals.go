package learning

import (
	"strings"
	"time"

	"github.com/haasonsaas/cortex/pkg/models"
)

// SignalKind classifies a piece of learning evidence.
type SignalKind string

const (
	SignalFeedback   SignalKind = "feedback"
	SignalLatency    SignalKind = "latency"
	SignalError      SignalKind = "error"
	SignalPattern    SignalKind = "pattern"
	SignalCorrection SignalKind = "correction"
)

// Signal is one classified piece of evidence extracted from a completed
// interaction. Strength is a polarity in -1..1; positive reinforces,
// negative penalizes.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	Strength float64    `json:"strength"`
	Payload  string     `json:"payload,omitempty"`
}

// Latency bounds for the response-time proxy signal.
const (
	fastResponse = time.Second
	slowResponse = 10 * time.Second
)

// extractSignals derives typed learning signals from an interaction:
// explicit feedback polarity, a response-time proxy, degraded-run error
// detection, a high-confidence success pattern, and user corrections.
func extractSignals(in *models.Interaction) []Signal {
	var signals []Signal

	if fb := in.Feedback; fb != nil {
		score := fb.Score
		if fb.Helpful != nil {
			if *fb.Helpful {
				score = 1.0
			} else {
				score = -1.0
			}
		}
		signals = append(signals, Signal{Kind: SignalFeedback, Strength: clampPolarity(score)})

		if strings.TrimSpace(fb.Correction) != "" {
			signals = append(signals, Signal{
				Kind:     SignalCorrection,
				Strength: 1.0,
				Payload:  fb.Correction,
			})
		}
	}

	if in.Duration > 0 {
		switch {
		case in.Duration <= fastResponse:
			signals = append(signals, Signal{Kind: SignalLatency, Strength: 0.2})
		case in.Duration >= slowResponse:
			signals = append(signals, Signal{Kind: SignalLatency, Strength: -0.2})
		}
	}

	if in.Response != nil && (in.Response.Degraded || in.Response.ConfidenceScore == 0.0) {
		signals = append(signals, Signal{Kind: SignalError, Strength: -0.5, Payload: "degraded response"})
	} else if in.Confidence >= 0.8 {
		signals = append(signals, Signal{Kind: SignalPattern, Strength: 0.3, Payload: in.Strategy})
	}

	return signals
}

// polarity collapses an interaction's signals into one net value in -1..1.
// Explicit feedback dominates; the rest nudge.
func polarity(signals []Signal) float64 {
	var net float64
	for _, s := range signals {
		weight := 0.3
		if s.Kind == SignalFeedback {
			weight = 1.0
		}
		net += weight * s.Strength
	}
	return clampPolarity(net)
}

func clampPolarity(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
