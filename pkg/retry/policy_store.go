// Package retry implements the Retry Policy Store (C5) and Retry
// Orchestrator (C6): cached policy resolution and advisory-lock-guarded
// background retry scheduling.
package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// policyCacheTTL matches spec section 4.3's 60s cache window.
const policyCacheTTL = 60 * time.Second

type cacheKey struct {
	service string
	stage   models.StageName
}

type cacheEntry struct {
	policy    models.RetryPolicy
	fetchedAt time.Time
}

// PolicyStore caches (service, stage) -> RetryPolicy resolution, refetching
// from krai_system.retry_policies at most once per key per TTL window.
//
// Grounded on the teacher's per-resource-map-plus-mutex pattern in
// pkg/queue/pool.go (activeSessions map guarded by sync.RWMutex); there is
// no golang.org/x/sync/singleflight dependency in the pack, so the per-key
// fetch lock below is hand-rolled the same way the teacher hand-rolls its
// concurrency primitives.
type PolicyStore struct {
	pool *pgxpool.Pool

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry

	fetchMu    sync.Mutex
	fetchLocks map[cacheKey]*sync.Mutex
}

// NewPolicyStore constructs a PolicyStore over the shared pool.
func NewPolicyStore(pool *pgxpool.Pool) *PolicyStore {
	return &PolicyStore{
		pool:       pool,
		cache:      make(map[cacheKey]cacheEntry),
		fetchLocks: make(map[cacheKey]*sync.Mutex),
	}
}

// Resolve returns the policy for (service, stage), preferring, in order: an
// exact (service, stage) row, a (service, NULL) service-wide row, a (NULL,
// stage) stage-wide row, then in-process defaults.
func (s *PolicyStore) Resolve(ctx context.Context, service string, stage models.StageName) (models.RetryPolicy, error) {
	key := cacheKey{service: service, stage: stage}

	if p, ok := s.cachedValue(key); ok {
		return p, nil
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// Double-checked: another goroutine may have populated the cache while
	// we waited for the fetch lock — the thundering-herd case this guards.
	if p, ok := s.cachedValue(key); ok {
		return p, nil
	}

	policy, err := s.fetch(ctx, service, stage)
	if err != nil {
		return models.RetryPolicy{}, err
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{policy: policy, fetchedAt: time.Now()}
	s.mu.Unlock()

	return policy, nil
}

func (s *PolicyStore) cachedValue(key cacheKey) (models.RetryPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.fetchedAt) > policyCacheTTL {
		return models.RetryPolicy{}, false
	}
	return entry.policy, true
}

func (s *PolicyStore) lockFor(key cacheKey) *sync.Mutex {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()
	lock, ok := s.fetchLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.fetchLocks[key] = lock
	}
	return lock
}

// fetch resolves most-specific-first against krai_system.retry_policies,
// falling back to models.DefaultRetryPolicy when nothing matches.
func (s *PolicyStore) fetch(ctx context.Context, service string, stage models.StageName) (models.RetryPolicy, error) {
	queries := []struct {
		sql  string
		args []any
	}{
		{
			sql:  `SELECT max_attempts, base_delay_seconds, max_delay_seconds, backoff_multiplier, jitter_factor, priority FROM krai_system.retry_policies WHERE service_name = $1 AND stage_name = $2`,
			args: []any{service, string(stage)},
		},
		{
			sql:  `SELECT max_attempts, base_delay_seconds, max_delay_seconds, backoff_multiplier, jitter_factor, priority FROM krai_system.retry_policies WHERE service_name = $1 AND stage_name IS NULL`,
			args: []any{service},
		},
		{
			sql:  `SELECT max_attempts, base_delay_seconds, max_delay_seconds, backoff_multiplier, jitter_factor, priority FROM krai_system.retry_policies WHERE service_name = '' AND stage_name = $1`,
			args: []any{string(stage)},
		},
	}

	for _, q := range queries {
		var p models.RetryPolicy
		err := s.pool.QueryRow(ctx, q.sql, q.args...).Scan(
			&p.MaxAttempts, &p.BaseDelaySeconds, &p.MaxDelaySeconds, &p.BackoffMultiplier, &p.JitterFactor, &p.Priority,
		)
		if err == nil {
			p.ServiceName = service
			st := stage
			p.StageName = &st
			return p, nil
		}
		if err != pgx.ErrNoRows {
			return models.RetryPolicy{}, fmt.Errorf("retry: resolve policy: %w", err)
		}
	}

	return models.DefaultRetryPolicy(), nil
}
