// Package models holds the entity and pipeline-context types shared across
// the KRAI document processing pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// StageName identifies one of the canonical pipeline stages.
type StageName string

// Canonical stage order. Structured extraction is best-effort and may be
// skipped entirely when its dependency is unavailable.
const (
	StageUpload         StageName = "upload"
	StageText           StageName = "text"
	StageImage          StageName = "image"
	StageClassification StageName = "classification"
	StageMetadata       StageName = "metadata"
	StageStorage        StageName = "storage"
	StageEmbedding      StageName = "embedding"
	StageSearch         StageName = "search"
	StageLink           StageName = "link"
	StageStructured     StageName = "structured_extraction"
)

// CanonicalStages lists every stage in run order.
var CanonicalStages = []StageName{
	StageUpload,
	StageText,
	StageImage,
	StageClassification,
	StageMetadata,
	StageStorage,
	StageEmbedding,
	StageSearch,
	StageLink,
	StageStructured,
}

// ProcessingContext accumulates artifacts as a document moves through the
// pipeline. It is owned by the Master Pipeline for the duration of one run;
// fields become owned by the database once the stage that produced them
// completes successfully.
type ProcessingContext struct {
	DocumentID uuid.UUID
	FilePath   string
	FileHash   string
	Filename   string

	// PDFTitle is the document's /Title XMP/Info entry, if any, set by the
	// Upload stage and consulted by Classification's priority-2 detection.
	PDFTitle string

	ParentRequestID string
	ForceReprocess  bool

	// PageTexts maps 1-based page number to extracted page text.
	PageTexts map[int]string

	Chunks     []*Chunk
	Images     []*Image
	Products   []*Product
	ErrorCodes []*ErrorCode
	Parts      []*Part
	Links      []*Link
	Videos     []*Video

	ManufacturerID *uuid.UUID
	SeriesID       *uuid.UUID
	DocumentType   string

	// Extra carries stage-specific scratch data that does not warrant its
	// own field (e.g. sampled classification chunks, learned prompt limits).
	Extra map[string]any
}

// NewProcessingContext builds an empty context for the given document.
func NewProcessingContext(documentID uuid.UUID, parentRequestID string) *ProcessingContext {
	return &ProcessingContext{
		DocumentID:      documentID,
		ParentRequestID: parentRequestID,
		PageTexts:       make(map[int]string),
		Extra:           make(map[string]any),
	}
}

// ResultStatus enumerates the terminal and intermediate states a stage
// attempt can report back to the Master Pipeline.
type ResultStatus string

const (
	StatusCompleted        ResultStatus = "completed"
	StatusSkippedCompleted ResultStatus = "skipped_completed"
	StatusSkippedDuplicate ResultStatus = "skipped_duplicate"
	StatusFailed           ResultStatus = "failed"
	StatusRetrying         ResultStatus = "retrying"
)

// ProcessingResult is the outcome of one safe_process invocation.
type ProcessingResult struct {
	Status         ResultStatus
	Data           map[string]any
	ProcessingTime time.Duration
	CorrelationID  string
	RetryAttempt   int
	Metadata       map[string]any
	Err            error
}

// Succeeded reports whether the result represents forward progress (either a
// fresh completion or a legitimate skip).
func (r *ProcessingResult) Succeeded() bool {
	switch r.Status {
	case StatusCompleted, StatusSkippedCompleted, StatusSkippedDuplicate:
		return true
	default:
		return false
	}
}
