package api

import "github.com/google/uuid"

// UploadResponse is returned by POST /api/v1/upload.
type UploadResponse struct {
	DocumentID uuid.UUID `json:"document_id"`
	Status     string    `json:"status"`
}

// RetryResponse is returned by POST /api/v1/documents/:id/stages/:stage/retry.
type RetryResponse struct {
	DocumentID uuid.UUID `json:"document_id"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
}

// StageStatusEntry is one stage's entry in StagesResponse.Stages.
type StageStatusEntry struct {
	Status      string         `json:"status"`
	StartedAt   *string        `json:"started_at,omitempty"`
	CompletedAt *string        `json:"completed_at,omitempty"`
	Progress    float64        `json:"progress"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StagesResponse is returned by GET /api/v1/documents/:id/stages.
type StagesResponse struct {
	DocumentID      uuid.UUID                   `json:"document_id"`
	Stages          map[string]StageStatusEntry `json:"stages"`
	OverallProgress float64                     `json:"overall_progress"`
	CanRetry        bool                        `json:"can_retry"`
}

// DocumentResponse is returned by GET /api/v1/documents/:id.
type DocumentResponse struct {
	ID             uuid.UUID  `json:"id"`
	FileHash       string     `json:"file_hash"`
	Filename       string     `json:"filename"`
	PageCount      int        `json:"page_count"`
	DocumentType   string     `json:"document_type"`
	ManufacturerID *uuid.UUID `json:"manufacturer_id,omitempty"`
	SeriesID       *uuid.UUID `json:"series_id,omitempty"`
	CreatedAt      string     `json:"created_at"`

	OverallProgress float64                     `json:"overall_progress"`
	CanRetry        bool                        `json:"can_retry"`
	Stages          map[string]StageStatusEntry `json:"stages"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Database    any               `json:"database,omitempty"`
	ObjectStore string            `json:"object_store"`
	AIService   string            `json:"ai_service"`
	Checks      map[string]string `json:"checks,omitempty"`
}
