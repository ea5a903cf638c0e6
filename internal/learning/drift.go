package learning

import (
	"math"
	"time"
)

// DriftReport describes a detected concept drift. Detection is a
// notification only; no store mutation follows from it.
type DriftReport struct {
	Delta          float64   `json:"delta"`
	RecentMean     float64   `json:"recent_mean"`
	HistoricalMean float64   `json:"historical_mean"`
	Samples        int       `json:"samples"`
	DetectedAt     time.Time `json:"detected_at"`
}

type driftSample struct {
	performance float64
	at          time.Time
}

// DriftDetector keeps a fixed-size sliding window of performance samples
// and compares the recent half against the historical half. Drift is
// flagged when the absolute difference in means exceeds the threshold,
// but never before the window holds the minimum sample count.
type DriftDetector struct {
	window     []driftSample
	size       int
	threshold  float64
	minSamples int
}

// NewDriftDetector builds a detector. Zero arguments get defaults: window
// 50, threshold 0.3, minimum 20 samples.
func NewDriftDetector(size int, threshold float64, minSamples int) *DriftDetector {
	if size <= 0 {
		size = 50
	}
	if threshold <= 0 {
		threshold = 0.3
	}
	if minSamples <= 0 {
		minSamples = 20
	}
	return &DriftDetector{
		size:       size,
		threshold:  threshold,
		minSamples: minSamples,
	}
}

// Add records a performance sample and returns a non-nil report when the
// sample tips the window into drift.
func (d *DriftDetector) Add(performance float64) *DriftReport {
	d.window = append(d.window, driftSample{performance: performance, at: time.Now()})
	if len(d.window) > d.size {
		d.window = d.window[1:]
	}

	if len(d.window) < d.minSamples {
		return nil
	}

	half := len(d.window) / 2
	historical := mean(d.window[:half])
	recent := mean(d.window[half:])
	delta := math.Abs(recent - historical)

	if delta <= d.threshold {
		return nil
	}
	return &DriftReport{
		Delta:          delta,
		RecentMean:     recent,
		HistoricalMean: historical,
		Samples:        len(d.window),
		DetectedAt:     time.Now(),
	}
}

// Len reports how many samples the window currently holds.
func (d *DriftDetector) Len() int { return len(d.window) }

// Reset clears the window, typically after the caller has acted on a
// drift report.
func (d *DriftDetector) Reset() { d.window = d.window[:0] }

func mean(samples []driftSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.performance
	}
	return sum / float64(len(samples))
}
