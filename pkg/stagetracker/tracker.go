// Package stagetracker persists per-document stage status as the
// documents.stage_status JSONB column (Stage Tracker, C8).
package stagetracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/classify"
	"github.com/krai-project/krai/pkg/models"
)

// Tracker issues parameterized SQL performing the same JSONB
// read-modify-write the teacher's ent-generated RPC functions
// (pkg/services/stage_service.go) performed, generalized from multi-agent
// execution aggregation down to single-stage-attempt status.
//
// Row-level locking is implicit in the UPDATE statement (Postgres takes a
// row lock for the duration of the update), so no separate advisory lock is
// needed here — only the cross-process retry path (pkg/retry) needs one.
type Tracker struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu       sync.Mutex
	disabled bool
}

// NewTracker constructs a Tracker over the shared pool.
func NewTracker(pool *pgxpool.Pool, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{pool: pool, logger: logger}
}

// StartStage marks a stage "processing" with a fresh started_at.
func (t *Tracker) StartStage(ctx context.Context, documentID uuid.UUID, stage models.StageName) error {
	state := models.StageState{Status: "processing", Progress: 0}
	now := time.Now()
	state.StartedAt = &now
	return t.setState(ctx, documentID, stage, state)
}

// UpdateProgress updates the progress fraction (0..1) of an in-flight stage
// without altering its status.
func (t *Tracker) UpdateProgress(ctx context.Context, documentID uuid.UUID, stage models.StageName, progress float64, metadata map[string]any) error {
	return t.patch(ctx, documentID, stage, func(s *models.StageState) {
		s.Progress = progress
		if metadata != nil {
			s.Metadata = metadata
		}
	})
}

// CompleteStage marks a stage completed with progress 1.0 and completed_at
// set to now.
func (t *Tracker) CompleteStage(ctx context.Context, documentID uuid.UUID, stage models.StageName, metadata map[string]any) error {
	return t.patch(ctx, documentID, stage, func(s *models.StageState) {
		s.Status = "completed"
		s.Progress = 1.0
		now := time.Now()
		s.CompletedAt = &now
		s.Error = ""
		if metadata != nil {
			s.Metadata = metadata
		}
	})
}

// FailStage marks a stage failed with the supplied error message.
func (t *Tracker) FailStage(ctx context.Context, documentID uuid.UUID, stage models.StageName, errMsg string, metadata map[string]any) error {
	return t.patch(ctx, documentID, stage, func(s *models.StageState) {
		s.Status = "failed"
		s.Error = errMsg
		now := time.Now()
		s.CompletedAt = &now
		if metadata != nil {
			s.Metadata = metadata
		}
	})
}

// GetStageStatus returns the full stage_status map for a document.
func (t *Tracker) GetStageStatus(ctx context.Context, documentID uuid.UUID) (models.StageStatusMap, error) {
	var raw []byte
	err := t.pool.QueryRow(ctx, `SELECT stage_status FROM krai_core.documents WHERE id = $1`, documentID).Scan(&raw)
	if err != nil {
		return nil, t.classifyAndDisable(fmt.Errorf("stagetracker: query stage_status: %w", err))
	}
	out := make(models.StageStatusMap)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("stagetracker: unmarshal stage_status: %w", err)
		}
	}
	return out, nil
}

// setState overwrites a single stage's entry with state.
func (t *Tracker) setState(ctx context.Context, documentID uuid.UUID, stage models.StageName, state models.StageState) error {
	return t.patch(ctx, documentID, stage, func(s *models.StageState) {
		*s = state
	})
}

// patch performs the read-modify-write: load the current stage_status,
// apply mutate to the named stage's entry, then write only that entry back
// with jsonb_set, leaving other stages' entries as the row holds them at
// update time. If the Tracker has auto-disabled (the
// stage_status column/table was reported missing on a previous call), patch
// is a silent no-op.
func (t *Tracker) patch(ctx context.Context, documentID uuid.UUID, stage models.StageName, mutate func(*models.StageState)) error {
	if t.isDisabled() {
		return nil
	}

	current, err := t.GetStageStatus(ctx, documentID)
	if err != nil {
		return err
	}
	if current == nil {
		current = make(models.StageStatusMap)
	}

	entry := current[stage]
	mutate(&entry)

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("stagetracker: marshal stage_status entry: %w", err)
	}

	_, err = t.pool.Exec(ctx,
		`UPDATE krai_core.documents
		 SET stage_status = jsonb_set(COALESCE(stage_status, '{}'::jsonb), ARRAY[$2::text], $3::jsonb)
		 WHERE id = $1`,
		documentID, string(stage), string(payload),
	)
	if err != nil {
		return t.classifyAndDisable(fmt.Errorf("stagetracker: update stage_status: %w", err))
	}
	return nil
}

// classifyAndDisable auto-disables the tracker the first time a query fails
// in a way consistent with a missing column/table (the MissingDependency
// taxonomy from spec section 7), logging once and swallowing such errors so
// the pipeline continues without stage tracking. Any other error is
// returned unchanged and leaves the tracker enabled.
func (t *Tracker) classifyAndDisable(err error) error {
	if !strings.Contains(strings.ToLower(err.Error()), "does not exist") &&
		classify.Classify(err, 0).Category != models.CategoryMissingDependency {
		return err
	}

	t.mu.Lock()
	alreadyDisabled := t.disabled
	t.disabled = true
	t.mu.Unlock()

	if !alreadyDisabled {
		t.logger.Warn("stage tracker disabled: documents.stage_status appears unavailable; pipeline will continue without stage tracking", "error", err)
	}
	return nil
}

func (t *Tracker) isDisabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disabled
}
