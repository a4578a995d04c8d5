package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
)

func TestCachedValueMissReturnsFalse(t *testing.T) {
	s := NewPolicyStore(nil)
	_, ok := s.cachedValue(cacheKey{service: "krai", stage: models.StageEmbedding})
	assert.False(t, ok)
}

func TestCachedValueHitWithinTTL(t *testing.T) {
	s := NewPolicyStore(nil)
	key := cacheKey{service: "krai", stage: models.StageEmbedding}
	want := models.RetryPolicy{MaxAttempts: 5}

	s.mu.Lock()
	s.cache[key] = cacheEntry{policy: want, fetchedAt: time.Now()}
	s.mu.Unlock()

	got, ok := s.cachedValue(key)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestCachedValueExpiresAfterTTL(t *testing.T) {
	s := NewPolicyStore(nil)
	key := cacheKey{service: "krai", stage: models.StageEmbedding}

	s.mu.Lock()
	s.cache[key] = cacheEntry{
		policy:    models.RetryPolicy{MaxAttempts: 5},
		fetchedAt: time.Now().Add(-(policyCacheTTL + time.Second)),
	}
	s.mu.Unlock()

	_, ok := s.cachedValue(key)
	assert.False(t, ok, "entry older than the TTL window must be treated as a miss")
}

func TestLockForReturnsSameMutexForSameKey(t *testing.T) {
	s := NewPolicyStore(nil)
	key := cacheKey{service: "krai", stage: models.StageUpload}

	a := s.lockFor(key)
	b := s.lockFor(key)
	assert.Same(t, a, b, "repeated lockFor calls for the same key must return the same mutex, not a fresh one")
}

func TestLockForReturnsDistinctMutexForDistinctKeys(t *testing.T) {
	s := NewPolicyStore(nil)
	a := s.lockFor(cacheKey{service: "krai", stage: models.StageUpload})
	b := s.lockFor(cacheKey{service: "krai", stage: models.StageText})
	assert.NotSame(t, a, b)
}

func TestDefaultRetryPolicyFallback(t *testing.T) {
	p := models.DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Nil(t, p.StageName)
}
