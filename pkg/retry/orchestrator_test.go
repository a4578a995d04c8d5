package retry

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/krai-project/krai/pkg/models"
)

func TestAdvisoryLockIDDeterministic(t *testing.T) {
	docID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	a := AdvisoryLockID(docID, models.StageEmbedding)
	b := AdvisoryLockID(docID, models.StageEmbedding)
	assert.Equal(t, a, b, "same (document, stage) must always yield the same lock ID")

	c := AdvisoryLockID(docID, models.StageText)
	assert.NotEqual(t, a, c, "different stages must yield different lock IDs")

	otherDoc := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	d := AdvisoryLockID(otherDoc, models.StageEmbedding)
	assert.NotEqual(t, a, d, "different documents must yield different lock IDs")
}

func TestAdvisoryLockIDFitsSignedBigint(t *testing.T) {
	for i := 0; i < 100; i++ {
		docID := uuid.New()
		id := AdvisoryLockID(docID, models.StageUpload)
		assert.GreaterOrEqual(t, id, int64(0), "lock id must be non-negative (mod 2^63-1)")
	}
}

func TestComputeBackoffRespectsMax(t *testing.T) {
	policy := models.RetryPolicy{
		BaseDelaySeconds:  2,
		MaxDelaySeconds:   10,
		BackoffMultiplier: 2.0,
		JitterFactor:      0,
	}

	d1 := computeBackoff(policy, 1)
	assert.Equal(t, 2*time.Second, d1)

	d2 := computeBackoff(policy, 2)
	assert.Equal(t, 4*time.Second, d2)

	d5 := computeBackoff(policy, 5)
	assert.Equal(t, 10*time.Second, d5, "backoff must cap at max_delay_seconds")
}

func TestComputeBackoffJitterBounded(t *testing.T) {
	policy := models.RetryPolicy{
		BaseDelaySeconds:  10,
		MaxDelaySeconds:   60,
		BackoffMultiplier: 1.0,
		JitterFactor:      0.1,
	}

	for i := 0; i < 50; i++ {
		d := computeBackoff(policy, 1)
		assert.GreaterOrEqual(t, d, 9*time.Second)
		assert.LessOrEqual(t, d, 11*time.Second)
	}
}
