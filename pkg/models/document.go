package models

import (
	"time"

	"github.com/google/uuid"
)

// StageState records the lifecycle of a single stage within a document's
// stage_status JSONB column.
type StageState struct {
	Status      string         `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Progress    float64        `json:"progress"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StageStatusMap is the full per-document stage_status column.
type StageStatusMap map[StageName]StageState

// Document is the root entity of the pipeline: one uploaded file.
type Document struct {
	ID             uuid.UUID
	FileHash       string
	Filename       string
	PageCount      int
	DocumentType   string
	StageStatus    StageStatusMap
	ManufacturerID *uuid.UUID
	SeriesID       *uuid.UUID
	CreatedAt      time.Time
}

// Known document_type values. The set is open-ended in practice; these are
// the values the classification stage assigns heuristically.
const (
	DocTypeServiceManual = "service_manual"
	DocTypePartsCatalog  = "parts_catalog"
	DocTypeUserGuide     = "user_guide"
	DocTypeUnknown       = "unknown"
)

// OverallProgress averages per-stage progress across the canonical stage
// list, treating a missing entry as zero progress.
func (d *Document) OverallProgress() float64 {
	if len(d.StageStatus) == 0 {
		return 0
	}
	var sum float64
	for _, s := range CanonicalStages {
		if st, ok := d.StageStatus[s]; ok {
			sum += st.Progress
		}
	}
	return sum / float64(len(CanonicalStages))
}

// CanRetry reports whether any stage is in a failed state and therefore a
// candidate for a manual retry request.
func (d *Document) CanRetry() bool {
	for _, st := range d.StageStatus {
		if st.Status == "failed" {
			return true
		}
	}
	return false
}
