// Package metadata implements the Metadata stage (S5): error-code and part
// extraction, version detection.
package metadata

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// manufacturerPartPatterns are the per-manufacturer part-number regexes
// named in spec section 4.11 (Konica Minolta's three formats are the only
// ones the spec gives verbatim; others are reasonable generalizations of
// the same alphanumeric-serial shape).
var manufacturerPartPatterns = map[string][]*regexp.Regexp{
	"Konica Minolta": {
		regexp.MustCompile(`\bA[0-9A-Z]{9}\b`),
		regexp.MustCompile(`\bV\d{9}\b`),
		regexp.MustCompile(`\b[1-9]\d{9}\b`),
	},
}

var defaultPartPattern = regexp.MustCompile(`\b[A-Z]{2}\d{4,8}\b`)

// errorCodePattern matches common service-manual error code formats like
// "E-123", "C1234", "SC123".
var errorCodePattern = regexp.MustCompile(`\b([EC]|SC)[-]?\d{2,5}\b`)

var versionPattern = regexp.MustCompile(`(?i)\b(version|rev(?:ision)?)[\s:]*([vV]?\d+(?:\.\d+){0,3})\b`)

// Processor implements processor.Stage for S5.
type Processor struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Processor { return &Processor{pool: pool} }

func (p *Processor) Name() models.StageName { return models.StageMetadata }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_hash": pctx.FileHash, "manufacturer_id": pctx.ManufacturerID}
}

// Process implements spec section 4.11: extract error codes and parts from
// chunk text, link parts mentioned in the same solution text to their
// error code, and pull a version string from the first pages.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	manufacturerName := manufacturerName(pctx)

	var errorCodes []*models.ErrorCode
	var parts []*models.Part

	for _, chunk := range pctx.Chunks {
		codes := extractErrorCodes(pctx.DocumentID, chunk, manufacturerName)
		errorCodes = append(errorCodes, codes...)

		chunkParts := extractParts(pctx.DocumentID, chunk.Text, manufacturerName)
		parts = append(parts, chunkParts...)

		linkPartsToErrorCodes(codes, chunkParts)
	}

	pctx.ErrorCodes = errorCodes
	pctx.Parts = parts

	if version := detectVersion(firstPagesText(pctx.PageTexts, 3)); version != "" {
		pctx.Extra["document_version"] = version
	}

	if err := p.persist(ctx, pctx.DocumentID, errorCodes, parts); err != nil {
		return nil, err
	}

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"error_code_count": len(errorCodes), "part_count": len(parts)},
	}, nil
}

// persist writes error codes and parts inside one transaction per spec
// section 4.11. error_codes has no natural uniqueness, so a re-run first
// clears the document's existing rows rather than risk duplicates;
// parts_catalog carries a (document_id, part_number) unique constraint and
// is upserted instead, merging linked_error_codes on conflict.
func (p *Processor) persist(ctx context.Context, documentID uuid.UUID, errorCodes []*models.ErrorCode, parts []*models.Part) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("metadata: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM krai_intelligence.error_codes WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("metadata: delete existing error codes: %w", err)
	}

	for _, code := range errorCodes {
		relatedImages := code.RelatedImages
		if relatedImages == nil {
			relatedImages = []uuid.UUID{}
		}
		relatedParts := code.RelatedParts
		if relatedParts == nil {
			relatedParts = []string{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO krai_intelligence.error_codes
			   (id, code, description, solution_text, context_text, severity, confidence, document_id, chunk_id, related_images, related_parts)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			code.ID, code.Code, code.Description, code.SolutionText, code.ContextText, code.Severity,
			code.Confidence, documentID, code.ChunkID, relatedImages, relatedParts,
		); err != nil {
			return fmt.Errorf("metadata: insert error code %s: %w", code.Code, err)
		}
	}

	for _, part := range parts {
		linked := part.LinkedErrorCodes
		if linked == nil {
			linked = []string{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO krai_parts.parts_catalog (id, part_number, description, document_id, linked_error_codes)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (document_id, part_number) DO UPDATE SET
			   description = EXCLUDED.description,
			   linked_error_codes = EXCLUDED.linked_error_codes`,
			part.ID, part.PartNumber, part.Description, documentID, linked,
		); err != nil {
			return fmt.Errorf("metadata: upsert part %s: %w", part.PartNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("metadata: commit transaction: %w", err)
	}
	return nil
}

func manufacturerName(pctx *models.ProcessingContext) string {
	if v, ok := pctx.Extra["manufacturer_name"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// extractErrorCodes scans a chunk for codes and builds an ErrorCode per
// match, dropping entries whose description/context fall below the spec's
// minimum-length confidence thresholds.
func extractErrorCodes(documentID uuid.UUID, chunk *models.Chunk, manufacturer string) []*models.ErrorCode {
	matches := errorCodePattern.FindAllStringIndex(chunk.Text, -1)
	var out []*models.ErrorCode

	for _, m := range matches {
		code := chunk.Text[m[0]:m[1]]
		description, solution, ctxText := surroundingText(chunk.Text, m[1])

		if len(description) < models.MinDescriptionChars || len(ctxText) < models.MinContextChars {
			continue
		}

		out = append(out, &models.ErrorCode{
			ID:           uuid.New(),
			Code:         code,
			Description:  description,
			SolutionText: solution,
			ContextText:  ctxText,
			Severity:     inferSeverity(ctxText),
			Confidence:   0.7,
			DocumentID:   documentID,
			ChunkID:      &chunk.ID,
		})
	}
	return out
}

// surroundingText takes the text following a matched code as a rough
// description/solution/context split — real extraction would use layout
// information; this heuristic mirrors the spec's "link to chunk_id by page
// proximity" approach at the text level.
func surroundingText(text string, matchEnd int) (description, solution, context string) {
	rest := strings.TrimSpace(text[matchEnd:])
	sentences := strings.SplitN(rest, ".", 3)

	if len(sentences) > 0 {
		description = strings.TrimSpace(sentences[0])
	}
	if len(sentences) > 1 {
		solution = strings.TrimSpace(sentences[1])
	}
	context = strings.TrimSpace(rest)
	if len(context) > 500 {
		context = context[:500]
	}
	return description, solution, context
}

func inferSeverity(context string) string {
	lower := strings.ToLower(context)
	switch {
	case strings.Contains(lower, "call service") || strings.Contains(lower, "contact support"):
		return "critical"
	case strings.Contains(lower, "replace") || strings.Contains(lower, "fuser") || strings.Contains(lower, "drum"):
		return "high"
	case strings.Contains(lower, "paper jam") || strings.Contains(lower, "low toner"):
		return "low"
	default:
		return "medium"
	}
}

// extractParts scans text for manufacturer-specific part-number patterns.
func extractParts(documentID uuid.UUID, text, manufacturer string) []*models.Part {
	patterns, ok := manufacturerPartPatterns[manufacturer]
	if !ok {
		patterns = []*regexp.Regexp{defaultPartPattern}
	}

	seen := map[string]bool{}
	var out []*models.Part
	for _, re := range patterns {
		for _, match := range re.FindAllString(text, -1) {
			if seen[match] {
				continue
			}
			seen[match] = true
			out = append(out, &models.Part{
				ID:         uuid.New(),
				PartNumber: match,
				DocumentID: documentID,
			})
		}
	}
	return out
}

// linkPartsToErrorCodes links parts to error codes mentioned in the same
// solution text, per spec section 4.11.
func linkPartsToErrorCodes(codes []*models.ErrorCode, parts []*models.Part) {
	for _, code := range codes {
		for _, part := range parts {
			if strings.Contains(code.SolutionText, part.PartNumber) {
				code.RelatedParts = append(code.RelatedParts, part.PartNumber)
				part.LinkedErrorCodes = append(part.LinkedErrorCodes, code.Code)
			}
		}
	}
}

func firstPagesText(pageTexts map[int]string, n int) string {
	var b strings.Builder
	for p := 1; p <= n; p++ {
		if t, ok := pageTexts[p]; ok {
			b.WriteString(t)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func detectVersion(text string) string {
	m := versionPattern.FindStringSubmatch(text)
	if len(m) < 3 {
		return ""
	}
	return m[2]
}
