package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.WorkerCount)
	assert.Equal(t, 5, cfg.MaxConcurrentDocuments)
	assert.Equal(t, 1*time.Second, cfg.PollInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.PollIntervalJitter)
	assert.Equal(t, 15*time.Minute, cfg.StageTimeout)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.OrphanDetectionInterval)
	assert.Equal(t, 5*time.Minute, cfg.OrphanThreshold)
}

func TestPollJitterNoopWhenJitterZero(t *testing.T) {
	assert.Equal(t, time.Second, pollJitter(time.Second, 0))
}

func TestPollJitterStaysWithinBounds(t *testing.T) {
	base := time.Second
	jitter := 200 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := pollJitter(base, jitter)
		assert.GreaterOrEqual(t, d, base-jitter)
		assert.Less(t, d, base+jitter)
	}
}

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()
	assert.Equal(t, 90, cfg.PipelineErrorRetentionDays)
	assert.Equal(t, 7*24*time.Hour, cfg.CompletedQueueRetention)
	assert.Equal(t, 12*time.Hour, cfg.CleanupInterval)
}
