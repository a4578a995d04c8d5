package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RetentionConfig controls how long terminal pipeline bookkeeping rows are
// kept. Field names mirror the teacher's config.RetentionConfig
// (pkg/config/retention.go), generalized from session/event retention to
// pipeline-error/stage-marker retention.
type RetentionConfig struct {
	PipelineErrorRetentionDays int           `yaml:"pipeline_error_retention_days"`
	CompletedQueueRetention    time.Duration `yaml:"completed_queue_retention"`
	CleanupInterval            time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		PipelineErrorRetentionDays: 90,
		CompletedQueueRetention:    7 * 24 * time.Hour,
		CleanupInterval:            12 * time.Hour,
	}
}

// RetentionService periodically enforces retention policies on
// krai_system.pipeline_errors (resolved rows) and
// krai_system.processing_queue (terminal rows), keeping the tables from
// growing unbounded across a long-lived deployment.
//
// Grounded on the teacher's cleanup.Service (pkg/cleanup/service.go),
// generalized from session/event soft-deletion to pipeline bookkeeping
// row deletion. All operations are idempotent and safe to run from
// multiple pods.
type RetentionService struct {
	pool   *pgxpool.Pool
	cfg    RetentionConfig
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRetentionService constructs a RetentionService over the shared pool.
func NewRetentionService(pool *pgxpool.Pool, cfg RetentionConfig, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{pool: pool, cfg: cfg, logger: logger}
}

// Start launches the background retention loop. Safe to call once;
// subsequent calls are no-ops.
func (s *RetentionService) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("retention service started",
		"pipeline_error_retention_days", s.cfg.PipelineErrorRetentionDays,
		"completed_queue_retention", s.cfg.CompletedQueueRetention,
		"interval", s.cfg.CleanupInterval)
}

// Stop signals the retention loop to exit and waits for it to finish.
func (s *RetentionService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("retention service stopped")
}

func (s *RetentionService) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *RetentionService) runAll(ctx context.Context) {
	s.pruneResolvedPipelineErrors(ctx)
	s.pruneCompletedQueueRows(ctx)
	s.pruneOrphanedStageMarkers(ctx)
}

func (s *RetentionService) pruneResolvedPipelineErrors(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.PipelineErrorRetentionDays)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM krai_system.pipeline_errors WHERE status = 'resolved' AND resolved_at < $1`,
		cutoff,
	)
	if err != nil {
		s.logger.Error("retention: prune resolved pipeline errors failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("retention: pruned resolved pipeline errors", "count", n)
	}
}

func (s *RetentionService) pruneCompletedQueueRows(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.CompletedQueueRetention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM krai_system.processing_queue WHERE status IN ('completed', 'failed') AND created_at < $1`,
		cutoff,
	)
	if err != nil {
		s.logger.Error("retention: prune completed queue rows failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("retention: pruned completed queue rows", "count", n)
	}
}

// pruneOrphanedStageMarkers removes stage_completion_markers for documents
// that no longer exist (e.g. a document row was deleted out from under the
// pipeline by an external process). Under normal operation the foreign key
// makes this a no-op; it exists as a safety net against FK-free test
// fixtures or manual data surgery.
func (s *RetentionService) pruneOrphanedStageMarkers(ctx context.Context) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM krai_system.stage_completion_markers m
		 WHERE NOT EXISTS (SELECT 1 FROM krai_core.documents d WHERE d.id = m.document_id)`,
	)
	if err != nil {
		s.logger.Error("retention: prune orphaned stage markers failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Info("retention: pruned orphaned stage markers", "count", n)
	}
}
