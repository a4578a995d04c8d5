package models

import (
	"time"

	"github.com/google/uuid"
)

// ErrorCategory is the Error Classifier's verdict on a stage failure.
type ErrorCategory string

const (
	CategoryTransient         ErrorCategory = "transient"
	CategoryPermanent         ErrorCategory = "permanent"
	CategoryContextLimit      ErrorCategory = "context_limit"
	CategoryMissingDependency ErrorCategory = "missing_dependency"
	CategoryUnknown           ErrorCategory = "unknown"
)

// PipelineErrorStatus tracks a logged failure through the retry lifecycle.
type PipelineErrorStatus string

const (
	ErrStatusPending  PipelineErrorStatus = "pending"
	ErrStatusRetrying PipelineErrorStatus = "retrying"
	ErrStatusFailed   PipelineErrorStatus = "failed"
	ErrStatusResolved PipelineErrorStatus = "resolved"
)

// PipelineError is the durable record of one stage-attempt failure, logged
// by safe_process and consumed by the Retry Orchestrator.
type PipelineError struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	StageName     StageName
	ErrorCategory ErrorCategory
	ErrorType     string
	Message       string
	Context       map[string]any
	CorrelationID string
	Attempt       int
	Status        PipelineErrorStatus
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
