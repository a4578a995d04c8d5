// Package pipeline implements the Master Pipeline (C19): the stage-by-stage
// driver that walks a document through the canonical stage order, plus the
// worker pool and retention sweep that keep the driver fed and the system
// tables bounded.
//
// Grounded on the teacher's Worker.pollAndProcess (pkg/queue/worker.go),
// generalized from one-shot multi-stage session execution (stop on first
// failure, no resume) to per-stage idempotent execution with smart resume.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/krai-project/krai/pkg/models"
	"github.com/krai-project/krai/pkg/processor"
	"github.com/krai-project/krai/pkg/retry"
	"github.com/krai-project/krai/pkg/stagetracker"
)

// DocumentLoader resolves the inputs a pipeline run needs that do not live
// on models.ProcessingContext by default: the staged file path and any
// caller-supplied reprocessing flag. Implemented by the queue store so a
// worker can hand a freshly claimed queue row straight to the pipeline.
type DocumentLoader interface {
	LoadForProcessing(ctx context.Context, documentID uuid.UUID) (filePath string, forceReprocess bool, err error)
}

// Pipeline runs every registered stage, in canonical order, for one
// document.
type Pipeline struct {
	stages    map[models.StageName]processor.Stage
	processor *processor.Processor
	tracker   *stagetracker.Tracker
	loader    DocumentLoader
	logger    *slog.Logger
}

// New constructs a Pipeline. stages must cover every entry in
// models.CanonicalStages; a missing stage is a configuration error surfaced
// the first time Run reaches it, not at construction time, so tests can
// register a partial stage set deliberately.
func New(stages map[models.StageName]processor.Stage, proc *processor.Processor, tracker *stagetracker.Tracker, loader DocumentLoader, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{stages: stages, processor: proc, tracker: tracker, loader: loader, logger: logger}
}

// Run walks models.CanonicalStages in order for documentID, skipping stages
// already marked completed in stage_status unless forceReprocess overrides
// that (spec section 5's smart-resume behavior). It stops at the first
// stage that does not report forward progress, mirroring the teacher's
// "stage fails, session stops immediately" rule — a later manual or
// background retry resumes from the same point because completed stages
// are skipped on the next Run.
func (p *Pipeline) Run(ctx context.Context, documentID uuid.UUID) error {
	filePath, forceReprocess, err := p.loader.LoadForProcessing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("pipeline: load document %s: %w", documentID, err)
	}

	status, err := p.tracker.GetStageStatus(ctx, documentID)
	if err != nil {
		return fmt.Errorf("pipeline: load stage status for %s: %w", documentID, err)
	}

	pctx := models.NewProcessingContext(documentID, correlationSeed(documentID))
	pctx.FilePath = filePath
	pctx.Filename = filepath.Base(filePath)
	pctx.ForceReprocess = forceReprocess

	for _, name := range models.CanonicalStages {
		if !forceReprocess {
			if st, ok := status[name]; ok && st.Status == "completed" {
				continue
			}
		}

		if err := p.runStage(ctx, name, pctx); err != nil {
			return err
		}
	}

	return nil
}

// RunSingleStage re-executes exactly one stage for documentID, used by the
// retry HTTP endpoint (spec section 4.2) and by pkg/retry's Orchestrator
// when a background retry fires. It does not consult smart-resume: a retry
// request is an explicit instruction to run this stage again regardless of
// its last recorded status.
func (p *Pipeline) RunSingleStage(ctx context.Context, documentID uuid.UUID, stage models.StageName) error {
	filePath, _, err := p.loader.LoadForProcessing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("pipeline: load document %s: %w", documentID, err)
	}

	pctx := models.NewProcessingContext(documentID, correlationSeed(documentID))
	pctx.FilePath = filePath
	pctx.Filename = filepath.Base(filePath)
	pctx.ForceReprocess = true

	return p.runStage(ctx, stage, pctx)
}

func (p *Pipeline) runStage(ctx context.Context, name models.StageName, pctx *models.ProcessingContext) error {
	stage, ok := p.stages[name]
	if !ok {
		return fmt.Errorf("pipeline: no stage registered for %q", name)
	}

	if err := p.tracker.StartStage(ctx, pctx.DocumentID, name); err != nil {
		p.logger.Warn("pipeline: failed to mark stage started", "stage", name, "error", err)
	}

	result := p.processor.SafeProcess(ctx, stage, pctx)

	switch result.Status {
	case models.StatusCompleted, models.StatusSkippedCompleted, models.StatusSkippedDuplicate:
		if err := p.tracker.CompleteStage(ctx, pctx.DocumentID, name, result.Data); err != nil {
			p.logger.Warn("pipeline: failed to mark stage completed", "stage", name, "error", err)
		}
		return nil
	case models.StatusRetrying:
		if err := p.tracker.FailStage(ctx, pctx.DocumentID, name, "retry scheduled", result.Metadata); err != nil {
			p.logger.Warn("pipeline: failed to mark stage retrying", "stage", name, "error", err)
		}
		return fmt.Errorf("pipeline: stage %s scheduled for retry (correlation %s)", name, result.CorrelationID)
	default:
		errMsg := "stage failed"
		if result.Err != nil {
			errMsg = result.Err.Error()
		}
		if err := p.tracker.FailStage(ctx, pctx.DocumentID, name, errMsg, result.Metadata); err != nil {
			p.logger.Warn("pipeline: failed to mark stage failed", "stage", name, "error", err)
		}
		if result.Err != nil {
			return fmt.Errorf("pipeline: stage %s failed: %w", name, result.Err)
		}
		return fmt.Errorf("pipeline: stage %s failed", name)
	}
}

// RegisterWithOrchestrator wires every canonical stage into orch as a
// StageProcessor, so a background retry (spawned from pkg/processor when a
// stage fails transiently) re-enters the pipeline at exactly the failed
// stage instead of needing its own invocation path.
func (p *Pipeline) RegisterWithOrchestrator(orch *retry.Orchestrator) {
	for _, name := range models.CanonicalStages {
		stage := name
		orch.RegisterStage(stage, func(ctx context.Context, documentID uuid.UUID) error {
			return p.RunSingleStage(ctx, documentID, stage)
		})
	}
}

// correlationSeed derives a stable parent_request_id for a run that was not
// triggered through the API (e.g. worker pool pickup), so correlation IDs
// are reproducible across stage attempts.
func correlationSeed(documentID uuid.UUID) string {
	return "doc:" + documentID.String()
}
