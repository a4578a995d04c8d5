// Package upload implements the Upload Processor (S1): hash-based dedup,
// PDF metadata extraction, document record creation.
package upload

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

// InvalidFileTypeError marks an upload whose sniffed content-type is not
// PDF, per spec section 4.7: "Fails with invalid_file_type on non-PDF
// content." Permanent — never retried.
type InvalidFileTypeError struct {
	DetectedType string
}

func (e *InvalidFileTypeError) Error() string {
	return fmt.Sprintf("invalid_file_type: detected %q, expected application/pdf", e.DetectedType)
}

// Processor implements processor.Stage for S1.
//
// Grounded on the teacher's AlertSession creation path
// (`pkg/services/session_service.go`, deleted — see DESIGN.md) for the
// "lookup-or-insert" shape, generalized from alert dedup-by-fingerprint to
// document dedup-by-content-hash.
type Processor struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New constructs an upload Processor.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{pool: pool, logger: logger}
}

func (p *Processor) Name() models.StageName { return models.StageUpload }

// HashFields ties idempotency to the resolved file path only — the SHA-256
// is recomputed by Process itself since the file content is the whole
// point of this stage.
func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_path": pctx.FilePath}
}

// Process implements spec section 4.7: stream-hash the file, dedup by hash,
// decompress .pdfz transparently, sniff content-type, extract PDF metadata,
// and insert the document row.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	path := pctx.FilePath
	cleanup := func() {}

	if strings.HasSuffix(strings.ToLower(path), ".pdfz") {
		decompressed, cleanupFn, err := decompressToTemp(path)
		if err != nil {
			return nil, fmt.Errorf("upload: decompress .pdfz: %w", err)
		}
		path = decompressed
		cleanup = cleanupFn
	}
	defer cleanup()

	hash, err := hashFile(path)
	if err != nil {
		return nil, fmt.Errorf("upload: hash file: %w", err)
	}
	pctx.FileHash = hash

	if existingID, found, err := p.lookupByHash(ctx, hash); err != nil {
		return nil, err
	} else if found && !pctx.ForceReprocess {
		pctx.DocumentID = existingID
		return &models.ProcessingResult{
			Status: models.StatusSkippedDuplicate,
			Data:   map[string]any{"document_id": existingID},
		}, nil
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("upload: sniff content type: %w", err)
	}
	if !mtype.Is("application/pdf") {
		return nil, &InvalidFileTypeError{DetectedType: mtype.String()}
	}

	meta, err := extractPDFMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("upload: extract pdf metadata: %w", err)
	}
	pctx.PDFTitle = meta.Title

	docType := detectDocumentType(filepath.Base(pctx.Filename), meta.Title)

	id, err := p.insertDocument(ctx, hash, pctx.Filename, meta.PageCount, docType)
	if err != nil {
		return nil, err
	}
	pctx.DocumentID = id
	pctx.DocumentType = docType

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"document_id": id, "page_count": meta.PageCount},
	}, nil
}

// HashFile computes the SHA-256 of a file already on disk, exported so
// pkg/api can compute the same content hash a freshly saved upload will be
// identified by before the pipeline runs the Upload stage.
func HashFile(path string) (string, error) {
	return hashFile(path)
}

// Register looks up or inserts the krai_core.documents row for hash,
// exported so pkg/api's upload handler can obtain a document_id
// synchronously for its 202 response instead of waiting for the pipeline
// to run. Process (run later, asynchronously, via the queue) performs the
// same ON CONFLICT upsert again to fill in page_count and document_type
// once the PDF has been parsed — this call only guarantees the row, and
// therefore the id, exists.
func Register(ctx context.Context, pool *pgxpool.Pool, hash, filename string) (uuid.UUID, error) {
	p := &Processor{pool: pool}
	if id, found, err := p.lookupByHash(ctx, hash); err != nil {
		return uuid.Nil, err
	} else if found {
		return id, nil
	}
	return p.insertDocument(ctx, hash, filename, 0, models.DocTypeUnknown)
}

func (p *Processor) lookupByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := p.pool.QueryRow(ctx, `SELECT id FROM krai_core.documents WHERE file_hash = $1`, hash).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if err == pgx.ErrNoRows {
		return uuid.Nil, false, nil
	}
	return uuid.Nil, false, fmt.Errorf("upload: lookup by hash: %w", err)
}

func (p *Processor) insertDocument(ctx context.Context, hash, filename string, pageCount int, docType string) (uuid.UUID, error) {
	var id uuid.UUID
	err := p.pool.QueryRow(ctx,
		`INSERT INTO krai_core.documents (file_hash, filename, page_count, document_type, stage_status)
		 VALUES ($1, $2, $3, $4, '{}'::jsonb)
		 ON CONFLICT (file_hash) DO UPDATE SET filename = EXCLUDED.filename
		 RETURNING id`,
		hash, filename, pageCount, docType,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upload: insert document: %w", err)
	}
	return id, nil
}

// pdfMetadata is the subset of PDF document info this stage persists.
type pdfMetadata struct {
	Title     string
	Author    string
	PageCount int
}

// extractPDFMetadata opens the PDF with go-fitz (MuPDF bindings), the
// direct analogue of the spec's PyMuPDF dependency.
func extractPDFMetadata(path string) (pdfMetadata, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return pdfMetadata{}, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	return pdfMetadata{
		Title:     doc.Metadata()["title"],
		Author:    doc.Metadata()["author"],
		PageCount: doc.NumPage(),
	}, nil
}

// detectDocumentType applies coarse filename/title heuristics so the
// documents.document_type column is never empty. No later stage revises
// the value.
func detectDocumentType(filename, title string) string {
	lower := strings.ToLower(filename + " " + title)
	switch {
	case strings.Contains(lower, "parts") || strings.Contains(lower, "catalog"):
		return models.DocTypePartsCatalog
	case strings.Contains(lower, "user guide") || strings.Contains(lower, "user_guide"):
		return models.DocTypeUserGuide
	case strings.Contains(lower, "service") || strings.Contains(lower, "manual"):
		return models.DocTypeServiceManual
	default:
		return models.DocTypeUnknown
	}
}

// hashFile streams the file through SHA-256 without loading it whole, per
// spec section 4.7.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// decompressToTemp gunzips a .pdfz file to a temp PDF, returning a cleanup
// function the caller must defer.
func decompressToTemp(path string) (string, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return "", nil, fmt.Errorf("gunzip: %w", err)
	}
	defer gz.Close()

	tmp, err := os.CreateTemp("", "krai-upload-*.pdf")
	if err != nil {
		return "", nil, err
	}

	if _, err := io.Copy(tmp, gz); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	tmp.Close()

	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}
