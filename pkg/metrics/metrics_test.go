package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
)

func TestQuantileMedianAndTail(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, 5.0, quantile(sorted, 0.50))
	assert.Equal(t, 10.0, quantile(sorted, 0.99))
	assert.Equal(t, 1.0, quantile(sorted, 0))
}

func TestQuantileEmptySamples(t *testing.T) {
	assert.Equal(t, 0.0, quantile(nil, 0.50))
}

func TestPercentilesOrdersWithoutMutatingInput(t *testing.T) {
	samples := []float64{5, 1, 3, 2, 4}
	p50, p95, p99 := percentiles(samples)
	assert.Equal(t, []float64{5, 1, 3, 2, 4}, samples, "percentiles must not reorder the caller's slice")
	assert.Greater(t, p95, 0.0)
	assert.GreaterOrEqual(t, p99, p95)
	assert.GreaterOrEqual(t, p95, p50)
}

func newTestCollector() *Collector {
	return New(nil, prometheus.NewRegistry(), nil)
}

func TestObserveStageDurationEvictsOldestWhenWindowFull(t *testing.T) {
	c := newTestCollector()
	for i := 0; i < windowSize+10; i++ {
		c.ObserveStageDuration(models.StageUpload, models.StatusCompleted, time.Millisecond)
	}
	c.mu.Lock()
	n := len(c.samples[models.StageUpload])
	c.mu.Unlock()
	require.Equal(t, windowSize, n)
}

func TestSnapshotSamplesIsIndependentCopy(t *testing.T) {
	c := newTestCollector()
	c.ObserveStageDuration(models.StageText, models.StatusCompleted, time.Second)

	snap := c.snapshotSamples()
	snap[models.StageText][0] = 999

	c.mu.Lock()
	original := c.samples[models.StageText][0]
	c.mu.Unlock()
	assert.NotEqual(t, 999.0, original)
}
