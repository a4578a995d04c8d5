// Package storage implements the Storage stage (S6): uploads extracted
// images to the object store and persists database rows.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
	"github.com/krai-project/krai/pkg/objectstore"
)

// Processor implements processor.Stage for S6.
//
// The Master Pipeline gives this stage no special treatment: Pipeline.Run
// stops at the first stage that fails, so storage is not attempted once an
// earlier stage has failed.
type Processor struct {
	store *objectstore.Store
	pool  *pgxpool.Pool
}

func New(store *objectstore.Store, pool *pgxpool.Pool) *Processor {
	return &Processor{store: store, pool: pool}
}

func (p *Processor) Name() models.StageName { return models.StageStorage }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	hashes := make([]string, 0, len(pctx.Images))
	for _, img := range pctx.Images {
		hashes = append(hashes, img.SHA256)
	}
	return map[string]any{"image_hashes": hashes}
}

// Process implements spec section 4.12: HEAD-before-PUT upload per image,
// then upsert the images table row.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	bucket := p.store.ImagesBucket()
	uploaded := 0

	for _, img := range pctx.Images {
		exists, err := p.store.Exists(ctx, bucket, img.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("storage: check existing object %q: %w", img.StorageKey, err)
		}

		if !exists {
			mtype := mimetype.Detect(img.Bytes)
			img.MimeType = mtype.String()
			if err := p.store.Put(ctx, bucket, img.StorageKey, img.Bytes, img.MimeType); err != nil {
				return nil, fmt.Errorf("storage: put object %q: %w", img.StorageKey, err)
			}
			uploaded++
		}

		img.StorageURL = p.store.PublicURL(img.StorageKey)
		img.Bytes = nil

		if err := p.upsertImageRow(ctx, img); err != nil {
			return nil, err
		}
	}

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"images_uploaded": uploaded, "images_total": len(pctx.Images)},
	}, nil
}

func (p *Processor) upsertImageRow(ctx context.Context, img *models.Image) error {
	relatedChunks, err := json.Marshal(img.RelatedChunks)
	if err != nil {
		return fmt.Errorf("storage: marshal related_chunks: %w", err)
	}
	bbox, err := json.Marshal(img.BBox)
	if err != nil {
		return fmt.Errorf("storage: marshal bbox: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO krai_content.images
		   (id, document_id, page_number, sha256, storage_key, storage_url, original_filename, mime_type, ocr_text, ai_description, bbox, related_chunks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12::jsonb)
		 ON CONFLICT (document_id, sha256) DO UPDATE SET
		   storage_url = EXCLUDED.storage_url,
		   ocr_text = EXCLUDED.ocr_text,
		   ai_description = EXCLUDED.ai_description`,
		img.ID, img.DocumentID, img.PageNumber, img.SHA256, img.StorageKey, img.StorageURL,
		img.OriginalFilename, img.MimeType, img.OCRText, img.AIDescription, bbox, relatedChunks,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert image row: %w", err)
	}
	return nil
}
