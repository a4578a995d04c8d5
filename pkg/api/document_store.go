package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// documentStore is a thin read-only repository over krai_core.documents,
// grounded on stagetracker.Tracker's query shape (pkg/stagetracker/tracker.go)
// since no document repository existed elsewhere in the codebase to reuse.
type documentStore struct {
	pool *pgxpool.Pool
}

// Get loads a full document record by id.
func (d *documentStore) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	var rawStatus []byte
	err := d.pool.QueryRow(ctx,
		`SELECT id, file_hash, filename, page_count, document_type, stage_status,
		        manufacturer_id, series_id, created_at
		 FROM krai_core.documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.FileHash, &doc.Filename, &doc.PageCount, &doc.DocumentType, &rawStatus,
		&doc.ManufacturerID, &doc.SeriesID, &doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("api: load document %s: %w", id, err)
	}

	doc.StageStatus = make(models.StageStatusMap)
	if len(rawStatus) > 0 {
		if err := json.Unmarshal(rawStatus, &doc.StageStatus); err != nil {
			return nil, fmt.Errorf("api: unmarshal stage_status for document %s: %w", id, err)
		}
	}
	return &doc, nil
}
