package retry

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// StageProcessor re-invokes a single stage for one retry attempt. Registered
// per stage name so the Orchestrator never needs to know stage internals.
type StageProcessor func(ctx context.Context, documentID uuid.UUID) error

// PipelineErrorStore is the subset of storage the Orchestrator needs to
// read retry context and record outcomes, kept as an interface so it can be
// backed by the real pool or a test double.
type PipelineErrorStore interface {
	Create(ctx context.Context, pe *models.PipelineError) (uuid.UUID, error)
	GetPending(ctx context.Context, documentID uuid.UUID, stage models.StageName) (*models.PipelineError, error)
	MarkRetrying(ctx context.Context, id uuid.UUID, attempt int, correlationID string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	MarkResolved(ctx context.Context, id uuid.UUID) error
}

// Orchestrator schedules background retries guarded by a deterministic
// Postgres advisory lock per (document_id, stage_name), so at most one
// process is retrying a given stage of a given document at a time.
//
// Grounded on the teacher's Worker.runHeartbeat (ticker-driven background
// goroutine launched from the worker) and Worker.pollInterval (jittered
// backoff) in pkg/queue/worker.go.
type Orchestrator struct {
	pool   *pgxpool.Pool
	store  PipelineErrorStore
	policy *PolicyStore
	logger *slog.Logger

	mu        sync.Mutex
	processors map[models.StageName]StageProcessor
}

// NewOrchestrator constructs an Orchestrator over the shared pool.
func NewOrchestrator(pool *pgxpool.Pool, store PipelineErrorStore, policy *PolicyStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		pool:       pool,
		store:      store,
		policy:     policy,
		logger:     logger,
		processors: make(map[models.StageName]StageProcessor),
	}
}

// RegisterStage associates a stage name with the function the Orchestrator
// invokes to retry it.
func (o *Orchestrator) RegisterStage(stage models.StageName, fn StageProcessor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processors[stage] = fn
}

// AdvisoryLockID computes the deterministic 63-bit lock ID for
// (documentID, stage): the first 8 bytes of sha256("doc_id:stage_name") read
// as a big-endian uint64, reduced modulo 2^63-1 so it fits signed bigint.
func AdvisoryLockID(documentID uuid.UUID, stage models.StageName) int64 {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", documentID.String(), stage)))
	n := binary.BigEndian.Uint64(sum[:8])
	return int64(n % (1<<63 - 1))
}

// SpawnBackgroundRetry attempts to take the advisory lock for
// (documentID, stage); if acquired, it launches a goroutine that sleeps the
// policy-computed backoff, then re-invokes the registered stage processor.
// If the lock is already held, another worker is retrying this exact
// (document, stage) pair and SpawnBackgroundRetry returns immediately
// without error.
func (o *Orchestrator) SpawnBackgroundRetry(ctx context.Context, documentID uuid.UUID, stage models.StageName, attempt int, policy models.RetryPolicy, correlationID string) error {
	lockID := AdvisoryLockID(documentID, stage)

	// Session-level advisory locks are tied to the physical backend
	// connection, not the pool — a single *pgxpool.Conn must be held for
	// the lifetime of the retry and released explicitly afterward.
	conn, err := o.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("retry: acquire connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		conn.Release()
		return fmt.Errorf("retry: pg_try_advisory_lock: %w", err)
	}
	if !acquired {
		conn.Release()
		o.logger.Debug("retry already in flight for document/stage", "document_id", documentID, "stage", stage)
		return nil
	}

	delay := computeBackoff(policy, attempt)

	go o.runRetry(conn, lockID, documentID, stage, attempt, delay, correlationID)
	return nil
}

func (o *Orchestrator) runRetry(conn *pgxpool.Conn, lockID int64, documentID uuid.UUID, stage models.StageName, attempt int, delay time.Duration, correlationID string) {
	defer func() {
		ctx := context.Background()
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, lockID)
		conn.Release()
	}()

	time.Sleep(delay)

	o.mu.Lock()
	processor, ok := o.processors[stage]
	o.mu.Unlock()
	if !ok {
		o.logger.Warn("no registered processor for stage retry", "stage", stage)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pe, err := o.store.GetPending(ctx, documentID, stage)
	if err != nil || pe == nil {
		o.logger.Error("retry: failed to load pipeline error context", "document_id", documentID, "stage", stage, "error", err)
		return
	}

	if err := o.store.MarkRetrying(ctx, pe.ID, attempt, correlationID); err != nil {
		o.logger.Error("retry: failed to mark retrying", "error", err)
	}

	if err := processor(ctx, documentID); err != nil {
		o.logger.Error("retry attempt failed", "document_id", documentID, "stage", stage, "attempt", attempt, "error", err)
		if err := o.store.MarkFailed(ctx, pe.ID); err != nil {
			o.logger.Error("retry: failed to mark failed", "error", err)
		}
		return
	}

	if err := o.store.MarkResolved(ctx, pe.ID); err != nil {
		o.logger.Error("retry: failed to mark resolved", "error", err)
	}
}

// computeBackoff returns min(base * multiplier^(attempt-1), max) jittered by
// ±jitter_factor, mirroring the teacher's pollInterval jitter approach but
// driven by the resolved RetryPolicy instead of a fixed config value.
func computeBackoff(policy models.RetryPolicy, attempt int) time.Duration {
	raw := policy.BaseDelaySeconds * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	if raw > policy.MaxDelaySeconds {
		raw = policy.MaxDelaySeconds
	}
	if policy.JitterFactor > 0 {
		jitter := 1 + (rand.Float64()*2-1)*policy.JitterFactor
		raw *= jitter
	}
	if raw < 0 {
		raw = 0
	}
	return time.Duration(raw * float64(time.Second))
}
