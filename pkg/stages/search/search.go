// Package search implements the Search Indexing stage (S8): query analytics
// persistence and the cosine-similarity lookup helper.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// Processor implements processor.Stage for S8. The pipeline stage itself
// is a no-op pass (search indexing happens at query time, not ingest
// time); it exists so the Master Pipeline can mark it completed alongside
// the other nine stages and so analytics rows have somewhere to live.
type Processor struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Processor { return &Processor{pool: pool} }

func (p *Processor) Name() models.StageName { return models.StageSearch }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"document_id": pctx.DocumentID}
}

func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	return &models.ProcessingResult{Status: models.StatusCompleted}, nil
}

// RecordQuery persists one analytics row per spec section 4.14. The
// pipeline stage does not call it, and pkg/api has no search handler that
// does. Loop-safe
// scheduling here just means "an ordinary synchronous call," since Go has
// no event-loop-reentrancy hazard equivalent to the spec's
// "never asyncio.run from inside a running loop" warning.
func (p *Processor) RecordQuery(ctx context.Context, query string, duration time.Duration, resultCount int, filters map[string]any) error {
	filtersJSON, err := json.Marshal(filters)
	if err != nil {
		return fmt.Errorf("search: marshal filters: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO krai_intelligence.search_analytics (query, duration_ms, result_count, filters)
		 VALUES ($1, $2, $3, $4::jsonb)`,
		query, duration.Milliseconds(), resultCount, string(filtersJSON),
	)
	if err != nil {
		return fmt.Errorf("search: insert analytics row: %w", err)
	}
	return nil
}

// SimilarityResult is one row returned by SimilaritySearch.
type SimilarityResult struct {
	SourceID uuid.UUID
	Distance float64
}

// SimilaritySearch implements the cosine-distance helper from spec section
// 4.14: pgvector's `<=>` operator, filtered by source_kind.
func (p *Processor) SimilaritySearch(ctx context.Context, kind models.SourceKind, queryVector string, limit int) ([]SimilarityResult, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT source_id, embedding <=> $2::vector AS distance
		 FROM krai_intelligence.unified_embeddings
		 WHERE source_kind = $1
		 ORDER BY distance ASC
		 LIMIT $3`,
		string(kind), queryVector, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search: similarity query: %w", err)
	}
	defer rows.Close()

	var out []SimilarityResult
	for rows.Next() {
		var r SimilarityResult
		if err := rows.Scan(&r.SourceID, &r.Distance); err != nil {
			return nil, fmt.Errorf("search: scan similarity row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
