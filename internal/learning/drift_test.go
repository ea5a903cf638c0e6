package learning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feed pushes a synthetic performance series with a step change of the
// given magnitude halfway through, returning the last report (if any).
func feedStepSeries(d *DriftDetector, samples int, base, step float64) *DriftReport {
	var last *DriftReport
	for i := 0; i < samples; i++ {
		value := base
		if i >= samples/2 {
			value = base + step
		}
		if report := d.Add(value); report != nil {
			last = report
		}
	}
	return last
}

func TestDriftFlaggedAboveThreshold(t *testing.T) {
	d := NewDriftDetector(40, 0.3, 20)

	report := feedStepSeries(d, 40, 0.2, 0.5)
	require.NotNil(t, report, "a 0.5 step must exceed the 0.3 threshold")
	assert.Greater(t, report.Delta, 0.3)
	assert.Greater(t, report.RecentMean, report.HistoricalMean)
	assert.GreaterOrEqual(t, report.Samples, 20)
}

func TestDriftNotFlaggedBelowThreshold(t *testing.T) {
	d := NewDriftDetector(40, 0.3, 20)

	report := feedStepSeries(d, 40, 0.2, 0.1)
	assert.Nil(t, report, "a 0.1 step must stay under the 0.3 threshold")
}

func TestDriftNeverFlaggedBelowMinSamples(t *testing.T) {
	d := NewDriftDetector(40, 0.3, 20)

	// A massive step, but fewer samples than the minimum.
	for i := 0; i < 19; i++ {
		value := 0.0
		if i >= 10 {
			value = 1.0
		}
		assert.Nil(t, d.Add(value), "drift must never be flagged under the sample minimum")
	}
	assert.Equal(t, 19, d.Len())
}

func TestDriftWindowSlides(t *testing.T) {
	d := NewDriftDetector(10, 0.3, 5)

	for i := 0; i < 25; i++ {
		d.Add(0.5)
	}
	assert.Equal(t, 10, d.Len(), "window must stay at its configured size")
}

func TestDriftDirectionAgnostic(t *testing.T) {
	d := NewDriftDetector(40, 0.3, 20)

	// Performance degrading instead of improving.
	report := feedStepSeries(d, 40, 0.8, -0.5)
	require.NotNil(t, report)
	assert.Less(t, report.RecentMean, report.HistoricalMean)
}

func TestDriftReset(t *testing.T) {
	d := NewDriftDetector(40, 0.3, 20)
	feedStepSeries(d, 40, 0.2, 0.5)
	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.Nil(t, d.Add(1.0))
}
