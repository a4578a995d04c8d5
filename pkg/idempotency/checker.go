package idempotency

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// Checker wraps the connection pool to answer is_stage_completed and
// set_completion_marker against krai_system.stage_completion_markers.
type Checker struct {
	pool *pgxpool.Pool
}

// NewChecker constructs a Checker over the shared pool.
func NewChecker(pool *pgxpool.Pool) *Checker {
	return &Checker{pool: pool}
}

// IsStageCompleted reports whether (documentID, stage) has a completion
// marker whose data_hash matches dataHash exactly — a stale marker (input
// changed) is treated as not completed so the stage re-runs.
func (c *Checker) IsStageCompleted(ctx context.Context, documentID uuid.UUID, stage models.StageName, dataHash string) (bool, error) {
	var storedHash string
	err := c.pool.QueryRow(ctx,
		`SELECT data_hash FROM krai_system.stage_completion_markers WHERE document_id = $1 AND stage_name = $2`,
		documentID, string(stage),
	).Scan(&storedHash)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("idempotency: query completion marker: %w", err)
	}
	return storedHash == dataHash, nil
}

// SetCompletionMarker upserts the completion marker for (documentID, stage).
// Safe under concurrent calls: ON CONFLICT DO UPDATE makes the last writer
// win without requiring an application-level lock.
func (c *Checker) SetCompletionMarker(ctx context.Context, documentID uuid.UUID, stage models.StageName, dataHash string) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO krai_system.stage_completion_markers (document_id, stage_name, data_hash, completed_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (document_id, stage_name) DO UPDATE
		   SET data_hash = EXCLUDED.data_hash, completed_at = EXCLUDED.completed_at`,
		documentID, string(stage), dataHash,
	)
	if err != nil {
		return fmt.Errorf("idempotency: set completion marker: %w", err)
	}
	return nil
}
