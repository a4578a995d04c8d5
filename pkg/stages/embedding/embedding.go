// Package embedding implements the Embedding stage (S7): embeddings of chunk
// text and of image descriptions written into the unified embeddings table.
// Tables are not embedded.
package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/aiservice"
	"github.com/krai-project/krai/pkg/models"
)

// Processor implements processor.Stage for S7.
type Processor struct {
	ai    *aiservice.Service
	pool  *pgxpool.Pool
	model string
}

func New(ai *aiservice.Service, pool *pgxpool.Pool, model string) *Processor {
	if model == "" {
		model = aiservice.DefaultEmbeddingModel
	}
	return &Processor{ai: ai, pool: pool, model: model}
}

func (p *Processor) Name() models.StageName { return models.StageEmbedding }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	ids := make([]string, 0, len(pctx.Chunks))
	for _, c := range pctx.Chunks {
		ids = append(ids, c.ID.String())
	}
	return map[string]any{"chunk_ids": ids, "model": p.model}
}

// Process implements spec section 4.13: embed every chunk's text, embed
// image descriptions as a stand-in for visual embeddings (no visual model
// wired in this deployment), write every vector into
// krai_intelligence.unified_embeddings, and mirror text embeddings into
// krai_intelligence.chunks.embedding.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	count := 0

	for _, chunk := range pctx.Chunks {
		vec, err := p.ai.Embed(ctx, chunk.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding: embed chunk %s: %w", chunk.ID, err)
		}
		normalized, nativeDim := models.Normalize(vec)
		chunk.Embedding = normalized

		if err := p.writeChunkEmbedding(ctx, chunk, normalized); err != nil {
			return nil, err
		}
		if err := p.writeUnifiedEmbedding(ctx, models.SourceChunk, chunk.ID, normalized, nativeDim, nil); err != nil {
			return nil, err
		}
		count++
	}

	for _, img := range pctx.Images {
		if img.AIDescription == nil || *img.AIDescription == "" {
			continue
		}
		vec, err := p.ai.Embed(ctx, *img.AIDescription)
		if err != nil {
			return nil, fmt.Errorf("embedding: embed image %s: %w", img.ID, err)
		}
		normalized, nativeDim := models.Normalize(vec)
		if err := p.writeUnifiedEmbedding(ctx, models.SourceImage, img.ID, normalized, nativeDim, map[string]any{"visual_embedding": false}); err != nil {
			return nil, err
		}
		count++
	}

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"embeddings_written": count},
	}, nil
}

func (p *Processor) writeChunkEmbedding(ctx context.Context, chunk *models.Chunk, vec []float32) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE krai_intelligence.chunks SET embedding = $2::vector WHERE id = $1`,
		chunk.ID, pgvectorLiteral(vec),
	)
	if err != nil {
		return fmt.Errorf("embedding: update chunk embedding: %w", err)
	}
	return nil
}

func (p *Processor) writeUnifiedEmbedding(ctx context.Context, kind models.SourceKind, sourceID uuid.UUID, vec []float32, nativeDim int, extraMetadata map[string]any) error {
	metadata := map[string]any{"native_dim": nativeDim}
	for k, v := range extraMetadata {
		metadata[k] = v
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("embedding: marshal metadata: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO krai_intelligence.unified_embeddings (source_kind, source_id, embedding, native_dim, model, metadata)
		 VALUES ($1, $2, $3::vector, $4, $5, $6::jsonb)`,
		string(kind), sourceID, pgvectorLiteral(vec), nativeDim, p.model, string(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("embedding: insert unified embedding: %w", err)
	}
	return nil
}

// pgvectorLiteral formats a float32 vector as pgvector's bracketed text
// literal — no pgvector Go codec exists in the pack (see SPEC_FULL.md's
// DATA MODEL note), so the wire format is built directly.
func pgvectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
