package retry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// DBStore is the default PipelineErrorStore, backed by
// krai_system.pipeline_errors (spec section 4.4: "fetches retry context
// from krai_system.pipeline_errors, not krai_intelligence").
type DBStore struct {
	pool *pgxpool.Pool
}

// NewDBStore constructs a DBStore over the shared pool.
func NewDBStore(pool *pgxpool.Pool) *DBStore {
	return &DBStore{pool: pool}
}

// Create inserts a new pipeline_errors row and returns its generated ID.
func (s *DBStore) Create(ctx context.Context, pe *models.PipelineError) (uuid.UUID, error) {
	ctxJSON, err := json.Marshal(pe.Context)
	if err != nil {
		return uuid.Nil, fmt.Errorf("retry: marshal pipeline error context: %w", err)
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO krai_system.pipeline_errors
		   (document_id, stage_name, error_category, error_type, message, context, correlation_id, attempt, status)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9)
		 RETURNING id`,
		pe.DocumentID, string(pe.StageName), string(pe.ErrorCategory), pe.ErrorType, pe.Message,
		string(ctxJSON), pe.CorrelationID, pe.Attempt, string(pe.Status),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("retry: insert pipeline error: %w", err)
	}
	return id, nil
}

// GetPending returns the most recent pending/retrying pipeline_errors row
// for (documentID, stage), the retry context the Orchestrator resumes from.
func (s *DBStore) GetPending(ctx context.Context, documentID uuid.UUID, stage models.StageName) (*models.PipelineError, error) {
	var pe models.PipelineError
	var ctxJSON []byte
	var category, status string

	err := s.pool.QueryRow(ctx,
		`SELECT id, document_id, stage_name, error_category, error_type, message, context, correlation_id, attempt, status, created_at
		 FROM krai_system.pipeline_errors
		 WHERE document_id = $1 AND stage_name = $2 AND status IN ('pending', 'retrying')
		 ORDER BY created_at DESC LIMIT 1`,
		documentID, string(stage),
	).Scan(&pe.ID, &pe.DocumentID, &pe.StageName, &category, &pe.ErrorType, &pe.Message, &ctxJSON, &pe.CorrelationID, &pe.Attempt, &status, &pe.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("retry: query pending pipeline error: %w", err)
	}

	pe.ErrorCategory = models.ErrorCategory(category)
	pe.Status = models.PipelineErrorStatus(status)
	if len(ctxJSON) > 0 {
		_ = json.Unmarshal(ctxJSON, &pe.Context)
	}
	return &pe, nil
}

// MarkRetrying bumps the attempt counter and correlation ID ahead of a
// retry invocation.
func (s *DBStore) MarkRetrying(ctx context.Context, id uuid.UUID, attempt int, correlationID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE krai_system.pipeline_errors SET status = 'retrying', attempt = $2, correlation_id = $3 WHERE id = $1`,
		id, attempt, correlationID,
	)
	if err != nil {
		return fmt.Errorf("retry: mark retrying: %w", err)
	}
	return nil
}

// MarkFailed records permanent exhaustion of retries.
func (s *DBStore) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE krai_system.pipeline_errors SET status = 'failed' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("retry: mark failed: %w", err)
	}
	return nil
}

// MarkResolved records that a retried stage ultimately succeeded.
func (s *DBStore) MarkResolved(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE krai_system.pipeline_errors SET status = 'resolved', resolved_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("retry: mark resolved: %w", err)
	}
	return nil
}
