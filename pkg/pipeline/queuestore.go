package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// Sentinel errors for queue operations, named the way the teacher names
// queue.ErrNoSessionsAvailable / queue.ErrAtCapacity.
var (
	ErrNoDocumentsAvailable = errors.New("pipeline: no documents available")
	ErrAtCapacity           = errors.New("pipeline: at capacity")
)

// QueueStore persists krai_system.processing_queue rows: one row per
// document awaiting (re)processing, claimed with FOR UPDATE SKIP LOCKED so
// multiple worker pool replicas can share the table safely.
//
// Grounded on the teacher's Worker.claimNextSession (pkg/queue/worker.go),
// generalized from ent's query builder to raw pgx since KRAI has no ORM
// layer.
type QueueStore struct {
	pool *pgxpool.Pool
}

// NewQueueStore constructs a QueueStore over the shared pool.
func NewQueueStore(pool *pgxpool.Pool) *QueueStore {
	return &QueueStore{pool: pool}
}

// Enqueue inserts a pending processing_queue row for documentID.
func (s *QueueStore) Enqueue(ctx context.Context, documentID uuid.UUID, filePath string, forceReprocess bool) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx,
		`INSERT INTO krai_system.processing_queue (document_id, file_path, force_reprocess, status)
		 VALUES ($1, $2, $3, 'pending')
		 RETURNING id`,
		documentID, filePath, forceReprocess,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("pipeline: enqueue document %s: %w", documentID, err)
	}
	return id, nil
}

// Claim atomically claims the oldest pending row for claimedBy (a
// worker ID), transitioning it to 'running'.
func (s *QueueStore) Claim(ctx context.Context, claimedBy string) (*models.QueueEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var entry models.QueueEntry
	err = tx.QueryRow(ctx,
		`SELECT id, document_id, file_path, status, force_reprocess, created_at
		 FROM krai_system.processing_queue
		 WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`,
	).Scan(&entry.ID, &entry.DocumentID, &entry.FilePath, &entry.Status, &entry.ForceReprocess, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoDocumentsAvailable
		}
		return nil, fmt.Errorf("pipeline: query pending queue row: %w", err)
	}

	now := time.Now()
	_, err = tx.Exec(ctx,
		`UPDATE krai_system.processing_queue
		 SET status = 'running', claimed_by = $2, claimed_at = $3, heartbeat_at = $3
		 WHERE id = $1`,
		entry.ID, claimedBy, now,
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: claim queue row %s: %w", entry.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: commit claim: %w", err)
	}

	entry.Status = models.QueueStatusRunning
	entry.ClaimedBy = claimedBy
	entry.ClaimedAt = &now
	entry.HeartbeatAt = &now
	return &entry, nil
}

// Heartbeat refreshes heartbeat_at for an in-flight row, so orphan detection
// can distinguish a slow document from a dead worker.
func (s *QueueStore) Heartbeat(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE krai_system.processing_queue SET heartbeat_at = $2 WHERE id = $1 AND status = 'running'`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("pipeline: heartbeat queue row %s: %w", id, err)
	}
	return nil
}

// MarkCompleted transitions a row to its terminal success state.
func (s *QueueStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE krai_system.processing_queue SET status = 'completed' WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("pipeline: mark queue row %s completed: %w", id, err)
	}
	return nil
}

// MarkFailed transitions a row to its terminal failure state.
func (s *QueueStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE krai_system.processing_queue SET status = 'failed' WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("pipeline: mark queue row %s failed: %w", id, err)
	}
	return nil
}

// CountRunning reports the global count of 'running' rows, used by the
// worker pool's capacity check.
func (s *QueueStore) CountRunning(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM krai_system.processing_queue WHERE status = 'running'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("pipeline: count running queue rows: %w", err)
	}
	return n, nil
}

// DetectAndRecoverOrphans marks 'running' rows whose heartbeat is older than
// threshold as 'failed', so a crashed worker's claim does not block its
// document forever.
//
// Grounded on the teacher's detectAndRecoverOrphans (pkg/queue/orphan.go).
func (s *QueueStore) DetectAndRecoverOrphans(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)
	tag, err := s.pool.Exec(ctx,
		`UPDATE krai_system.processing_queue
		 SET status = 'failed'
		 WHERE status = 'running' AND heartbeat_at IS NOT NULL AND heartbeat_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pipeline: detect orphaned queue rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CleanupStartupOrphans marks any row still 'running' and claimed by
// claimedBy as failed; called once at worker pool startup to recover from a
// previous crash of this exact worker ID.
//
// Grounded on the teacher's CleanupStartupOrphans (pkg/queue/orphan.go).
func (s *QueueStore) CleanupStartupOrphans(ctx context.Context, claimedBy string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE krai_system.processing_queue SET status = 'failed' WHERE status = 'running' AND claimed_by = $1`,
		claimedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("pipeline: cleanup startup orphans for %s: %w", claimedBy, err)
	}
	return int(tag.RowsAffected()), nil
}

// LoadForProcessing implements DocumentLoader by reading the most recent
// processing_queue row for documentID.
func (s *QueueStore) LoadForProcessing(ctx context.Context, documentID uuid.UUID) (string, bool, error) {
	var filePath string
	var forceReprocess bool
	err := s.pool.QueryRow(ctx,
		`SELECT file_path, force_reprocess FROM krai_system.processing_queue
		 WHERE document_id = $1 ORDER BY created_at DESC LIMIT 1`,
		documentID,
	).Scan(&filePath, &forceReprocess)
	if err != nil {
		return "", false, fmt.Errorf("pipeline: load queue row for document %s: %w", documentID, err)
	}
	return filePath, forceReprocess, nil
}
