// Package image implements the Image Processor (S3): embedded-image
// extraction, size filtering, OCR, and VLM description.
package image

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/gen2brain/go-fitz"
	"github.com/google/uuid"
	"github.com/otiai10/gosseract/v2"

	"github.com/krai-project/krai/pkg/aiservice"
	"github.com/krai-project/krai/pkg/classify"
	"github.com/krai-project/krai/pkg/models"
)

// Config toggles the optional OCR/vision enrichment steps, sourced from the
// pipeline's enablement flags.
type Config struct {
	OCREnabled    bool
	VisionEnabled bool
	VisionPrompt  string
}

// DefaultConfig enables both enrichment steps; callers disable per
// deployment (e.g. no Tesseract binary installed).
func DefaultConfig() Config {
	return Config{
		OCREnabled:    true,
		VisionEnabled: true,
		VisionPrompt:  "Describe this image from a technical service manual in one or two sentences.",
	}
}

// Processor implements processor.Stage for S3. It only populates
// context.Images — the Storage stage persists rows and uploads bytes, per
// spec section 4.9's "no DB writes here."
type Processor struct {
	cfg Config
	ai  *aiservice.Service
	log *slog.Logger

	ocrDisabled bool
}

func New(cfg Config, ai *aiservice.Service, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, ai: ai, log: logger}
}

func (p *Processor) Name() models.StageName { return models.StageImage }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_hash": pctx.FileHash}
}

// Process implements spec section 4.9: iterate embedded images per page,
// filter by size, optionally OCR and vision-describe. No bounding box is
// computed: Image.BBox is left at its zero value.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	doc, err := fitz.New(pctx.FilePath)
	if err != nil {
		return nil, fmt.Errorf("image: open pdf: %w", err)
	}
	defer doc.Close()

	var images []*models.Image
	numPages := doc.NumPage()

	for pageNo := 0; pageNo < numPages; pageNo++ {
		extracted, err := doc.ImagesInPage(pageNo)
		if err != nil {
			// Some pages legitimately have no images; go-fitz surfaces this
			// as an error rather than an empty slice on some builds.
			continue
		}

		for _, raw := range extracted {
			img, err := p.buildImage(pctx.DocumentID, pageNo+1, raw)
			if err != nil {
				p.log.Warn("image: skip undecodable embedded image", "page", pageNo+1, "error", err)
				continue
			}
			if !img.InSizeRange() {
				continue
			}
			if isLikelyDecoration(img.Width, img.Height) {
				continue
			}

			if p.cfg.OCREnabled && !p.ocrDisabled {
				p.runOCR(img)
			}
			if p.cfg.VisionEnabled && p.ai != nil {
				p.runVision(ctx, img)
			}

			images = append(images, img)
		}
	}

	pctx.Images = images
	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"image_count": len(images)},
	}, nil
}

func (p *Processor) buildImage(documentID uuid.UUID, pageNumber int, raw []byte) (*models.Image, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}

	return &models.Image{
		ID:         uuid.New(),
		DocumentID: documentID,
		PageNumber: pageNumber,
		SHA256:     hash,
		StorageKey: hash,
		Width:      cfg.Width,
		Height:     cfg.Height,
		Bytes:      raw,
	}, nil
}

// isLikelyDecoration filters obvious non-content: images with a zero
// dimension and thin strips (headers, rule lines) whose aspect ratio is
// above 10:1 or below 1:10. Small icons are left to the absolute size filter.
func isLikelyDecoration(width, height int) bool {
	if width == 0 || height == 0 {
		return true
	}
	ratio := float64(width) / float64(height)
	return ratio > 10 || ratio < 0.1
}

// runOCR extracts text via Tesseract. A missing Tesseract installation is
// classified MissingDependency and disables OCR for the remainder of this
// process, per section 7's auto-disable idiom.
func (p *Processor) runOCR(img *models.Image) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImageFromBytes(img.Bytes); err != nil {
		p.log.Warn("image: ocr set image failed", "image_id", img.ID, "error", err)
		return
	}

	text, err := client.Text()
	if err != nil {
		if isMissingTesseractBinary(err) {
			p.ocrDisabled = true
			p.log.Warn("image: tesseract unavailable, disabling OCR for remainder of run", "error", err)
			return
		}
		p.log.Warn("image: ocr failed", "image_id", img.ID, "error", err)
		return
	}
	img.OCRText = &text
}

func isMissingTesseractBinary(err error) bool {
	c := classify.Classify(err, 0)
	return c.Category == models.CategoryMissingDependency
}

// runVision describes the image via the configured VLM. Failures are
// logged and swallowed — vision description is best-effort enrichment, not
// a stage-failing dependency.
func (p *Processor) runVision(ctx context.Context, img *models.Image) {
	description, err := p.ai.DescribeImage(ctx, img.Bytes, p.visionPrompt())
	if err != nil {
		p.log.Warn("image: vision description failed", "image_id", img.ID, "error", err)
		return
	}
	img.AIDescription = &description
}

func (p *Processor) visionPrompt() string {
	if p.cfg.VisionPrompt != "" {
		return p.cfg.VisionPrompt
	}
	return "Describe this image."
}
