// Package processor implements the Base Processor (C9): the safe_process
// wrapper every stage runs through (idempotency check → execute → classify
// → retry → metrics).
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/krai-project/krai/pkg/classify"
	"github.com/krai-project/krai/pkg/idempotency"
	"github.com/krai-project/krai/pkg/models"
	"github.com/krai-project/krai/pkg/retry"
)

// Stage is implemented by every pipeline stage. Process executes the
// stage's actual work; HashFields returns the subset of the context this
// stage's idempotency check depends on.
type Stage interface {
	Name() models.StageName
	Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error)
	HashFields(pctx *models.ProcessingContext) map[string]any
}

// MetricsRecorder captures per-stage duration for the Performance Collector.
// Defined here rather than imported from pkg/metrics to avoid a dependency
// cycle: pkg/metrics.Collector satisfies this interface without importing
// pkg/processor.
type MetricsRecorder interface {
	ObserveStageDuration(stage models.StageName, status models.ResultStatus, d time.Duration)
}

// noopMetrics satisfies MetricsRecorder when the caller doesn't need one
// (e.g. in tests).
type noopMetrics struct{}

func (noopMetrics) ObserveStageDuration(models.StageName, models.ResultStatus, time.Duration) {}

// Processor wires together the idempotency checker, error classifier, retry
// orchestrator/policy store and metrics recorder that SafeProcess needs.
// Grounded on the teacher's Worker.pollAndProcess flow in
// pkg/queue/worker.go: claim → execute → classify outcome → update
// terminal state, generalized from one-shot session execution to per-stage
// idempotent execution.
type Processor struct {
	Idempotency  *idempotency.Checker
	Orchestrator *retry.Orchestrator
	Policies     *retry.PolicyStore
	ErrorStore   retry.PipelineErrorStore
	Metrics      MetricsRecorder
	Logger       *slog.Logger

	// ServiceName identifies this process for retry policy lookups.
	ServiceName string
}

// New constructs a Processor. metrics and logger may be nil; sensible
// no-op/default values are substituted.
func New(idem *idempotency.Checker, orch *retry.Orchestrator, policies *retry.PolicyStore, errStore retry.PipelineErrorStore, metrics MetricsRecorder, logger *slog.Logger, serviceName string) *Processor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Idempotency:  idem,
		Orchestrator: orch,
		Policies:     policies,
		ErrorStore:   errStore,
		Metrics:      metrics,
		Logger:       logger,
		ServiceName:  serviceName,
	}
}

// SafeProcess runs stage.Process with idempotency gating, error
// classification, and retry scheduling, per spec section 4.1.
func (p *Processor) SafeProcess(ctx context.Context, stage Stage, pctx *models.ProcessingContext) *models.ProcessingResult {
	start := time.Now()
	name := stage.Name()

	dataHash := idempotency.ComputeContextHash(stage.HashFields(pctx))

	if p.Idempotency != nil {
		completed, err := p.Idempotency.IsStageCompleted(ctx, pctx.DocumentID, name, dataHash)
		if err != nil {
			p.Logger.Warn("idempotency check failed, proceeding with execution", "stage", name, "error", err)
		} else if completed {
			result := &models.ProcessingResult{
				Status:         models.StatusSkippedCompleted,
				ProcessingTime: time.Since(start),
				CorrelationID:  correlationID(pctx.ParentRequestID, name, 0),
			}
			p.Metrics.ObserveStageDuration(name, result.Status, result.ProcessingTime)
			return result
		}
	}

	result, err := stage.Process(ctx, pctx)
	elapsed := time.Since(start)

	if err == nil {
		if result == nil {
			result = &models.ProcessingResult{Status: models.StatusCompleted}
		}
		result.ProcessingTime = elapsed
		if result.CorrelationID == "" {
			result.CorrelationID = correlationID(pctx.ParentRequestID, name, result.RetryAttempt)
		}
		if p.Idempotency != nil {
			if err := p.Idempotency.SetCompletionMarker(ctx, pctx.DocumentID, name, dataHash); err != nil {
				p.Logger.Error("failed to set completion marker", "stage", name, "error", err)
			}
		}
		p.Metrics.ObserveStageDuration(name, result.Status, elapsed)
		return result
	}

	return p.handleFailure(ctx, stage, pctx, err, elapsed)
}

func (p *Processor) handleFailure(ctx context.Context, stage Stage, pctx *models.ProcessingContext, err error, elapsed time.Duration) *models.ProcessingResult {
	name := stage.Name()
	httpStatus := httpStatusFromError(err)
	verdict := classify.Classify(err, httpStatus)

	attempt := 1
	correlation := correlationID(pctx.ParentRequestID, name, attempt)

	policy := models.DefaultRetryPolicy()
	if p.Policies != nil {
		if resolved, perr := p.Policies.Resolve(ctx, p.ServiceName, name); perr == nil {
			policy = resolved
		}
	}

	willRetry := verdict.IsRetryable() && attempt < policy.MaxAttempts

	if p.ErrorStore != nil {
		status := models.ErrStatusFailed
		if willRetry {
			status = models.ErrStatusRetrying
		}
		pe := &models.PipelineError{
			DocumentID:    pctx.DocumentID,
			StageName:     name,
			ErrorCategory: verdict.Category,
			ErrorType:     verdict.ErrorType,
			Message:       err.Error(),
			CorrelationID: correlation,
			Attempt:       attempt,
			Status:        status,
		}
		if _, createErr := p.ErrorStore.Create(ctx, pe); createErr != nil {
			p.Logger.Error("failed to record pipeline error", "stage", name, "error", createErr)
		}
	}

	if !verdict.IsRetryable() {
		if verdict.Category == models.CategoryUnknown {
			p.Logger.Warn("unclassified stage error treated as permanent", "stage", name, "error", err)
		}
		p.Metrics.ObserveStageDuration(name, models.StatusFailed, elapsed)
		return &models.ProcessingResult{
			Status:         models.StatusFailed,
			ProcessingTime: elapsed,
			CorrelationID:  correlation,
			Err:            err,
			Metadata:       map[string]any{"error_category": verdict.Category, "error_type": verdict.ErrorType},
		}
	}

	if !willRetry {
		p.Metrics.ObserveStageDuration(name, models.StatusFailed, elapsed)
		return &models.ProcessingResult{
			Status:         models.StatusFailed,
			ProcessingTime: elapsed,
			CorrelationID:  correlation,
			Err:            err,
			Metadata:       map[string]any{"error_category": verdict.Category, "attempts_exhausted": true},
		}
	}

	if p.Orchestrator != nil {
		if spawnErr := p.Orchestrator.SpawnBackgroundRetry(ctx, pctx.DocumentID, name, attempt+1, policy, correlation); spawnErr != nil {
			p.Logger.Error("failed to spawn background retry, falling back to synchronous retry", "stage", name, "error", spawnErr)
			return p.synchronousFallback(ctx, stage, pctx, policy, attempt, correlation)
		}
		p.Metrics.ObserveStageDuration(name, models.StatusRetrying, elapsed)
		return &models.ProcessingResult{
			Status:         models.StatusRetrying,
			ProcessingTime: elapsed,
			CorrelationID:  correlation,
			Metadata:       map[string]any{"correlation_id": correlation, "next_attempt": attempt + 1},
		}
	}

	return p.synchronousFallback(ctx, stage, pctx, policy, attempt, correlation)
}

// synchronousFallback handles the "orchestrator unavailable" branch of
// spec section 4.1 step 5: sleep base_delay, then one in-line retry.
func (p *Processor) synchronousFallback(ctx context.Context, stage Stage, pctx *models.ProcessingContext, policy models.RetryPolicy, attempt int, correlation string) *models.ProcessingResult {
	select {
	case <-time.After(time.Duration(policy.BaseDelaySeconds * float64(time.Second))):
	case <-ctx.Done():
		return &models.ProcessingResult{Status: models.StatusFailed, CorrelationID: correlation, Err: ctx.Err()}
	}

	result, err := stage.Process(ctx, pctx)
	if err != nil {
		return &models.ProcessingResult{Status: models.StatusFailed, CorrelationID: correlation, Err: err, RetryAttempt: attempt}
	}
	if result == nil {
		result = &models.ProcessingResult{}
	}
	result.Status = models.StatusCompleted
	result.RetryAttempt = attempt
	result.CorrelationID = correlation
	return result
}

// correlationID derives a fresh per-attempt identifier, hash(parent_request_id, stage_name, attempt).
func correlationID(parentRequestID string, stage models.StageName, attempt int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", parentRequestID, stage, attempt)))
	return hex.EncodeToString(sum[:8])
}

// httpStatusError is implemented by stage errors that originated from an
// HTTP call, so the classifier can apply the spec's status-code rules.
type httpStatusError interface {
	HTTPStatus() int
}

func httpStatusFromError(err error) int {
	if e, ok := err.(httpStatusError); ok {
		return e.HTTPStatus()
	}
	return 0
}

// NewStageContextID is a small convenience for stages that need a fresh
// sub-identifier (e.g. per-image processing) without pulling in uuid
// directly in every stage package.
func NewStageContextID() uuid.UUID {
	return uuid.New()
}
