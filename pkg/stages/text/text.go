// Package text implements the Text Processor (S2): PDF text extraction and
// hierarchical chunking.
package text

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// Config tunes chunk sizing and debug overrides. cmd/krai sets
// AllowShortChunks from DEBUG_ALLOW_SHORT_CHUNKS. MaxChunkSize is the length
// after which the splitter starts a new chunk at the next line; MinChunkSize
// and HierarchicalChunking are carried here but not consulted by the
// splitter, and ENABLE_HIERARCHICAL_CHUNKING is not read.
type Config struct {
	MinChunkSize        int
	MaxChunkSize         int
	HierarchicalChunking bool
	AllowShortChunks     bool
}

// DefaultConfig matches spec section 4.8's "default chunk size 500-1500
// chars".
func DefaultConfig() Config {
	return Config{
		MinChunkSize:         models.DefaultChunkMinSize,
		MaxChunkSize:         models.DefaultChunkMaxSize,
		HierarchicalChunking: true,
	}
}

// Processor implements processor.Stage for S2.
//
// Grounded on the teacher's multi-step extraction-then-transform shape
// seen in `pkg/mcp` tool-result parsing (deleted): open source, walk pages,
// build an ordered output sequence.
type Processor struct {
	pool *pgxpool.Pool
	cfg  Config
}

func New(pool *pgxpool.Pool, cfg Config) *Processor { return &Processor{pool: pool, cfg: cfg} }

func (p *Processor) Name() models.StageName { return models.StageText }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_hash": pctx.FileHash}
}

var headingPattern = regexp.MustCompile(`^(CHAPTER|SECTION|PART)\s+[\dIVXLC]+`)
var numberedHeadingPattern = regexp.MustCompile(`^\d+(\.\d+)*\s+[A-Z]`)
var errorCodesHeadingPattern = regexp.MustCompile(`(?i)^error\s+codes?\b`)

// Process implements spec section 4.8: extract per-page text, detect
// headings heuristically, emit a linked chain of chunks.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	doc, err := fitz.New(pctx.FilePath)
	if err != nil {
		return nil, fmt.Errorf("text: open pdf: %w", err)
	}
	defer doc.Close()

	numPages := doc.NumPage()
	pageTexts := make(map[int]string, numPages)
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("text: extract page %d: %w", i+1, err)
		}
		pageTexts[i+1] = pageText
	}
	pctx.PageTexts = pageTexts

	chunks := p.chunkDocument(pctx.DocumentID, pageTexts)
	pctx.Chunks = chunks

	if err := p.persistChunks(ctx, pctx.DocumentID, chunks); err != nil {
		return nil, err
	}

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"page_count": numPages, "chunk_count": len(chunks)},
	}, nil
}

// persistChunks writes the chunk chain inside one transaction per spec
// section 4.8. krai_intelligence.chunks has no natural uniqueness, so a
// re-run first clears the document's existing rows. previous_chunk_id and
// next_chunk_id both reference krai_intelligence.chunks(id), so the chain is
// written in two passes: the first inserts every chunk with its
// previous_chunk_id (already present from an earlier row in this same pass)
// but next_chunk_id left NULL, since that row doesn't exist yet; the second
// pass fills in next_chunk_id now that every row exists.
func (p *Processor) persistChunks(ctx context.Context, documentID uuid.UUID, chunks []*models.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("text: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM krai_intelligence.chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("text: delete existing chunks: %w", err)
	}

	for _, c := range chunks {
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("text: marshal chunk metadata: %w", err)
		}
		hierarchy := c.SectionHierarchy
		if hierarchy == nil {
			hierarchy = []string{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO krai_intelligence.chunks
			   (id, document_id, page_number, text, section_hierarchy, previous_chunk_id, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
			c.ID, documentID, c.PageNumber, c.Text, hierarchy, c.PreviousChunkID, string(metaJSON),
		); err != nil {
			return fmt.Errorf("text: insert chunk %s: %w", c.ID, err)
		}
	}

	for _, c := range chunks {
		if c.NextChunkID == nil {
			continue
		}
		if _, err := tx.Exec(ctx,
			`UPDATE krai_intelligence.chunks SET next_chunk_id = $2 WHERE id = $1`,
			c.ID, c.NextChunkID,
		); err != nil {
			return fmt.Errorf("text: link next chunk for %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("text: commit transaction: %w", err)
	}
	return nil
}

// chunkDocument walks pages in order, splitting on detected headings and
// falling back to a hard size cut, then links the result into a chain.
func (p *Processor) chunkDocument(documentID uuid.UUID, pageTexts map[int]string) []*models.Chunk {
	var raw []rawChunk
	hierarchy := []string{}

	for page := 1; page <= len(pageTexts); page++ {
		text := pageTexts[page]
		for _, line := range splitLines(text) {
			if heading, level := detectHeading(line); heading != "" {
				hierarchy = setHierarchyLevel(hierarchy, level, heading)
				continue
			}
			raw = appendToChunks(raw, page, line, hierarchy, p.cfg)
		}
	}

	return p.linkChunks(documentID, raw)
}

type rawChunk struct {
	page      int
	text      strings.Builder
	hierarchy []string
}

func appendToChunks(raw []rawChunk, page int, line string, hierarchy []string, cfg Config) []rawChunk {
	if len(raw) == 0 || raw[len(raw)-1].page != page || raw[len(raw)-1].text.Len() >= cfg.MaxChunkSize || !sameHierarchy(raw[len(raw)-1].hierarchy, hierarchy) {
		raw = append(raw, rawChunk{page: page, hierarchy: append([]string{}, hierarchy...)})
	}
	last := &raw[len(raw)-1]
	if last.text.Len() > 0 {
		last.text.WriteString(" ")
	}
	last.text.WriteString(line)
	return raw
}

func sameHierarchy(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// linkChunks converts raw accumulated text into models.Chunk rows, dropping
// short chunks unless AllowShortChunks is set, and wiring
// Previous/NextChunkID into a linear chain per spec section 4.8's invariant.
func (p *Processor) linkChunks(documentID uuid.UUID, raw []rawChunk) []*models.Chunk {
	var chunks []*models.Chunk
	for _, r := range raw {
		text := strings.TrimSpace(r.text.String())
		if len(text) < models.MinChunkChars && !p.cfg.AllowShortChunks {
			continue
		}
		chunks = append(chunks, &models.Chunk{
			ID:               uuid.New(),
			DocumentID:       documentID,
			PageNumber:       r.page,
			Text:             text,
			SectionHierarchy: r.hierarchy,
			Metadata:         map[string]any{},
		})
	}

	for i := range chunks {
		if i > 0 {
			chunks[i].PreviousChunkID = &chunks[i-1].ID
		}
		if i < len(chunks)-1 {
			chunks[i].NextChunkID = &chunks[i+1].ID
		}
	}
	return chunks
}

// detectHeading applies the heuristics named in spec section 4.8: chapter/
// section numbering patterns, ALL-CAPS lines, and an explicit "Error Codes"
// marker. Returns the heading text and its nesting level (1 = top).
func detectHeading(line string) (string, int) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", 0
	}
	switch {
	case headingPattern.MatchString(trimmed):
		return trimmed, 1
	case errorCodesHeadingPattern.MatchString(trimmed):
		return trimmed, 1
	case numberedHeadingPattern.MatchString(trimmed):
		return trimmed, 2
	case isAllCaps(trimmed) && len(trimmed) < 80:
		return trimmed, 2
	default:
		return "", 0
	}
}

func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			hasLetter = true
		}
	}
	return hasLetter
}

// setHierarchyLevel replaces the path entry at the given depth, truncating
// any deeper entries (a new level-1 heading resets level-2 context, etc).
func setHierarchyLevel(hierarchy []string, level int, heading string) []string {
	if level > len(hierarchy) {
		hierarchy = append(hierarchy, heading)
		return hierarchy
	}
	out := append([]string{}, hierarchy[:level-1]...)
	return append(out, heading)
}

func splitLines(text string) []string {
	return strings.Split(text, "\n")
}
